package recorder

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/yanun0323/errors"

	"bookreplay/internal/schema"
)

func testBook(seq int) *schema.MarketBook {
	return &schema.MarketBook{
		MarketID:       "1.600",
		PublishTime:    1_700_000_000_000 + int64(seq)*1000,
		Status:         schema.MarketStatusOpen,
		SecondsToStart: float64(300 - seq),
		Runners: []schema.RunnerBook{{
			SelectionID:     7,
			Status:          schema.RunnerStatusActive,
			LastPriceTraded: 2.5,
			AvailableToBack: schema.Ladder{{Price: 2.5, Size: float64(10 + seq)}},
			TradedVolume:    schema.Ladder{{Price: 2.5, Size: float64(100 + seq)}},
		}},
	}
}

func writeTape(t *testing.T, cfg Config, n int) *Writer {
	t.Helper()
	w, err := NewWriter(cfg)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	for i := 0; i < n; i++ {
		if err := w.AppendBook(testBook(i)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return w
}

func TestTapeRoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		dir := t.TempDir()
		cfg := DefaultConfig(dir)
		cfg.FilePrefix = "1.600"
		cfg.Compress = compress
		writeTape(t, cfg, 5)

		var got []*schema.MarketBook
		err := ReadBooks(context.Background(), PlaybackConfig{Dir: dir, FilePrefix: "1.600"}, func(b *schema.MarketBook) error {
			got = append(got, b)
			return nil
		})
		if err != nil {
			t.Fatalf("read books (compress=%v): %v", compress, err)
		}
		if len(got) != 5 {
			t.Fatalf("books = %d, want 5", len(got))
		}
		for i, b := range got {
			want := testBook(i)
			if b.PublishTime != want.PublishTime || b.SecondsToStart != want.SecondsToStart {
				t.Fatalf("book %d clock mismatch: %+v", i, b)
			}
			if b.Runners[0].TradedVolume[0] != want.Runners[0].TradedVolume[0] {
				t.Fatalf("book %d traded mismatch: %+v", i, b.Runners[0].TradedVolume)
			}
		}
	}
}

func TestSegmentRotation(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.SegmentMaxBytes = 400
	w := writeTape(t, cfg, 6)
	if w.Segments() < 2 {
		t.Fatalf("segments = %d, want rotation", w.Segments())
	}

	pb, err := NewPlayback(PlaybackConfig{Dir: dir})
	if err != nil {
		t.Fatalf("new playback: %v", err)
	}
	files, err := pb.Files()
	if err != nil {
		t.Fatalf("files: %v", err)
	}
	if len(files) != w.Segments() {
		t.Fatalf("files = %d, segments = %d", len(files), w.Segments())
	}

	var seqs []uint64
	err = pb.Run(context.Background(), func(h schema.EventHeader, _ []byte) error {
		seqs = append(seqs, h.Seq)
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for i, seq := range seqs {
		if seq != uint64(i+1) {
			t.Fatalf("seqs = %v", seqs)
		}
	}
}

func TestChecksumMismatch(t *testing.T) {
	dir := t.TempDir()
	writeTape(t, DefaultConfig(dir), 1)

	path := filepath.Join(dir, "tape-000001.wal")
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	raw[recordHeaderSize+2] ^= 0xff
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	pb, _ := NewPlayback(PlaybackConfig{Dir: dir})
	err = pb.Run(context.Background(), func(schema.EventHeader, []byte) error { return nil })
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("err = %v, want checksum mismatch", err)
	}
}

func TestOutOfOrderRejected(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(DefaultConfig(dir))
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	for _, seq := range []uint64{1, 3, 2} {
		if err := w.Append(schema.NewHeader(schema.EventMarketBook, seq, 10), []byte("{}")); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	pb, _ := NewPlayback(PlaybackConfig{Dir: dir})
	err = pb.Run(context.Background(), func(schema.EventHeader, []byte) error { return nil })
	if !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("err = %v, want out of order", err)
	}
}

func TestSegmentPrefix(t *testing.T) {
	testCases := []struct {
		name   string
		prefix string
		ok     bool
	}{
		{name: "tape-000001.wal", prefix: "tape", ok: true},
		{name: "race-1-000012.wal", prefix: "race-1", ok: true},
		{name: "race-1-b-000001.wal", prefix: "race-1-b", ok: true},
		{name: "1.901-1234567.wal", prefix: "1.901", ok: true},
		{name: "race-1-b.wal"},
		{name: "tape-000001.log"},
		{name: "-000001.wal"},
	}
	for _, tc := range testCases {
		prefix, ok := SegmentPrefix(tc.name)
		if ok != tc.ok || prefix != tc.prefix {
			t.Fatalf("SegmentPrefix(%q) = %q, %v", tc.name, prefix, ok)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	if err := (Config{}).Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("empty config err = %v", err)
	}
	if err := DefaultConfig("x").Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}
	if _, err := NewPlayback(PlaybackConfig{}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("empty playback err = %v", err)
	}
}
