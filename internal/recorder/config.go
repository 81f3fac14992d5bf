package recorder

import (
	"github.com/yanun0323/errors"
)

const (
	defaultSegmentMaxBytes int64 = 64 << 20
	defaultBufferSize            = 256 * 1024
	defaultFilePrefix            = "tape"
)

var ErrInvalidConfig = errors.New("invalid tape config")

// Config controls the tape writer.
type Config struct {
	Dir             string `yaml:"dir"`
	FilePrefix      string `yaml:"file_prefix"`
	SegmentMaxBytes int64  `yaml:"segment_max_bytes"`
	BufferSize      int    `yaml:"buffer_size"`
	// Compress stores payloads zstd compressed.
	Compress bool `yaml:"compress"`
}

// DefaultConfig returns a baseline configuration for a tape in dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:             dir,
		FilePrefix:      defaultFilePrefix,
		SegmentMaxBytes: defaultSegmentMaxBytes,
		BufferSize:      defaultBufferSize,
	}
}

func (c Config) withDefaults() Config {
	if c.SegmentMaxBytes == 0 {
		c.SegmentMaxBytes = defaultSegmentMaxBytes
	}
	if c.BufferSize == 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.FilePrefix == "" {
		c.FilePrefix = defaultFilePrefix
	}
	return c
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	if c.Dir == "" {
		return errors.Wrap(ErrInvalidConfig, "Dir is empty")
	}
	if c.SegmentMaxBytes <= recordHeaderSize+recordChecksumSize {
		return errors.Wrap(ErrInvalidConfig, "SegmentMaxBytes too small")
	}
	if c.BufferSize <= 0 {
		return errors.Wrap(ErrInvalidConfig, "BufferSize must be > 0")
	}
	if c.FilePrefix == "" {
		return errors.Wrap(ErrInvalidConfig, "FilePrefix is empty")
	}
	return nil
}

// PlaybackConfig controls tape playback.
type PlaybackConfig struct {
	Dir             string
	FilePrefix      string
	DisableChecksum bool
	MaxPayloadSize  int
}

func (c PlaybackConfig) withDefaults() PlaybackConfig {
	if c.FilePrefix == "" {
		c.FilePrefix = defaultFilePrefix
	}
	return c
}

// Validate checks if the config is usable.
func (c PlaybackConfig) Validate() error {
	if c.Dir == "" {
		return errors.Wrap(ErrInvalidConfig, "playback Dir is empty")
	}
	if c.MaxPayloadSize < 0 {
		return errors.Wrap(ErrInvalidConfig, "MaxPayloadSize must be >= 0")
	}
	return nil
}
