package middleware

import (
	"fmt"

	"bookreplay/internal/market"
)

const (
	defaultNoiseFloor          = 5.0
	defaultTopHorizonSeconds   = 600.0
	defaultTopCount            = 6
	defaultVolumeRatio         = 0.0025
	defaultMinTriggerSeconds   = 30.0
	defaultTargetWindowSeconds = 60.0
	defaultWAPWindowSeconds    = 15.0
	defaultLadderDepth         = 10
)

// Config holds the signal calibration constants. The defaults are the
// hand-tuned values the signals were developed with.
//
// NoiseFloor, MinTriggerSeconds and TargetWindowSeconds accept an explicit
// zero, so they are pointers and nil means unset.
type Config struct {
	NoiseFloor          *float64 `yaml:"noise_floor"`
	HistoryCapacity     int      `yaml:"history_capacity"`
	TopHorizonSeconds   float64  `yaml:"top_horizon_seconds"`
	TopCount            int      `yaml:"top_count"`
	VolumeRatio         float64  `yaml:"volume_ratio"`
	MinTriggerSeconds   *float64 `yaml:"min_trigger_seconds"`
	TargetWindowSeconds *float64 `yaml:"target_window_seconds"`
	WAPWindowSeconds    float64  `yaml:"wap_window_seconds"`
	LadderDepth         int      `yaml:"ladder_depth"`
}

// DefaultConfig returns the baseline signal configuration.
func DefaultConfig() Config {
	return Config{
		NoiseFloor:          Float(defaultNoiseFloor),
		HistoryCapacity:     market.DefaultHistoryCapacity,
		TopHorizonSeconds:   defaultTopHorizonSeconds,
		TopCount:            defaultTopCount,
		VolumeRatio:         defaultVolumeRatio,
		MinTriggerSeconds:   Float(defaultMinTriggerSeconds),
		TargetWindowSeconds: Float(defaultTargetWindowSeconds),
		WAPWindowSeconds:    defaultWAPWindowSeconds,
		LadderDepth:         defaultLadderDepth,
	}
}

// Float returns a pointer to v, for the optional Config fields.
func Float(v float64) *float64 {
	return &v
}

// WithDefaults fills unset values with the baseline.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.NoiseFloor == nil {
		c.NoiseFloor = d.NoiseFloor
	}
	if c.HistoryCapacity == 0 {
		c.HistoryCapacity = d.HistoryCapacity
	}
	if c.TopHorizonSeconds == 0 {
		c.TopHorizonSeconds = d.TopHorizonSeconds
	}
	if c.TopCount == 0 {
		c.TopCount = d.TopCount
	}
	if c.VolumeRatio == 0 {
		c.VolumeRatio = d.VolumeRatio
	}
	if c.MinTriggerSeconds == nil {
		c.MinTriggerSeconds = d.MinTriggerSeconds
	}
	if c.TargetWindowSeconds == nil {
		c.TargetWindowSeconds = d.TargetWindowSeconds
	}
	if c.WAPWindowSeconds == 0 {
		c.WAPWindowSeconds = d.WAPWindowSeconds
	}
	if c.LadderDepth == 0 {
		c.LadderDepth = d.LadderDepth
	}
	return c
}

// Validate checks if the configuration is usable. Call it on a config
// that went through WithDefaults.
func (c Config) Validate() error {
	if c.NoiseFloor == nil || c.MinTriggerSeconds == nil || c.TargetWindowSeconds == nil {
		return fmt.Errorf("invalid signal config: defaults not applied")
	}
	if *c.NoiseFloor < 0 {
		return fmt.Errorf("invalid signal config: NoiseFloor must be >= 0")
	}
	if c.HistoryCapacity <= 0 {
		return fmt.Errorf("invalid signal config: HistoryCapacity must be > 0")
	}
	if c.TopHorizonSeconds <= 0 {
		return fmt.Errorf("invalid signal config: TopHorizonSeconds must be > 0")
	}
	if c.TopCount <= 0 {
		return fmt.Errorf("invalid signal config: TopCount must be > 0")
	}
	if c.VolumeRatio <= 0 || c.VolumeRatio >= 1 {
		return fmt.Errorf("invalid signal config: VolumeRatio must be in (0, 1)")
	}
	if *c.MinTriggerSeconds < 0 {
		return fmt.Errorf("invalid signal config: MinTriggerSeconds must be >= 0")
	}
	if *c.TargetWindowSeconds < 0 {
		return fmt.Errorf("invalid signal config: TargetWindowSeconds must be >= 0")
	}
	if c.WAPWindowSeconds <= 0 {
		return fmt.Errorf("invalid signal config: WAPWindowSeconds must be > 0")
	}
	if c.LadderDepth <= 0 {
		return fmt.Errorf("invalid signal config: LadderDepth must be > 0")
	}
	return nil
}
