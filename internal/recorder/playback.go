package recorder

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/yanun0323/errors"

	"bookreplay/internal/schema"
	"bookreplay/pkg/exception"
)

var ErrOutOfOrder = errors.New("tape record out of order")

var segmentName = regexp.MustCompile(`^(.+)-([0-9]{6,})\.wal$`)

// SegmentPrefix returns the tape prefix of a segment file name written as
// "<prefix>-<n>.wal".
func SegmentPrefix(name string) (string, bool) {
	m := segmentName.FindStringSubmatch(name)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Playback replays the segments of one tape in order.
type Playback struct {
	cfg PlaybackConfig
}

// NewPlayback validates the config and creates a playback engine.
func NewPlayback(cfg PlaybackConfig) (*Playback, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Playback{cfg: cfg}, nil
}

// Files lists the tape segments in playback order.
func (p *Playback) Files() ([]string, error) {
	entries, err := os.ReadDir(p.cfg.Dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read dir %s", p.cfg.Dir)
	}
	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			continue
		}
		if prefix, ok := SegmentPrefix(name); !ok || prefix != p.cfg.FilePrefix {
			continue
		}
		files = append(files, filepath.Join(p.cfg.Dir, name))
	}
	sort.Strings(files)
	return files, nil
}

// Run calls handler for every record. Sequence numbers must increase and
// event times must not go backwards across the whole tape.
func (p *Playback) Run(ctx context.Context, handler func(schema.EventHeader, []byte) error) error {
	if handler == nil {
		return exception.ErrNilInstance
	}
	files, err := p.Files()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.Wrapf(exception.ErrMarketNotFound, "no %s segments in %s", p.cfg.FilePrefix, p.cfg.Dir)
	}

	var last schema.EventHeader
	for _, path := range files {
		if err := p.playFile(ctx, path, handler, &last); err != nil {
			return err
		}
	}
	return nil
}

func (p *Playback) playFile(ctx context.Context, path string, handler func(schema.EventHeader, []byte) error, last *schema.EventHeader) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer file.Close()

	reader := NewReader(file, ReaderOptions{
		DisableChecksum: p.cfg.DisableChecksum,
		MaxPayloadSize:  p.cfg.MaxPayloadSize,
	})
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		header, payload, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "read %s", path)
		}
		if last.Seq != 0 && (header.Seq <= last.Seq || header.TsEvent < last.TsEvent) {
			return errors.Wrapf(ErrOutOfOrder, "%s seq %d after %d", path, header.Seq, last.Seq)
		}
		*last = header
		if err := handler(header, payload); err != nil {
			return err
		}
	}
}

// ReadBooks replays a tape and decodes every market book record.
func ReadBooks(ctx context.Context, cfg PlaybackConfig, fn func(*schema.MarketBook) error) error {
	pb, err := NewPlayback(cfg)
	if err != nil {
		return err
	}
	return pb.Run(ctx, func(h schema.EventHeader, payload []byte) error {
		if h.Type != schema.EventMarketBook {
			return nil
		}
		book, err := DecodeBook(h, payload)
		if err != nil {
			return err
		}
		return fn(book)
	})
}
