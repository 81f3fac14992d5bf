package main

import (
	"context"
	"flag"
	"log"
	"path/filepath"

	"bookreplay/internal/recorder"
	"bookreplay/internal/schema"
	"bookreplay/internal/source"
)

// convert rewrites JSONL market files as tapes, one tape per market named
// after the market id, so the tape source can serve them.
func main() {
	in := flag.String("in", "testdata/books", "Directory of JSONL market files")
	out := flag.String("out", "testdata/tapes", "Tape output directory")
	compress := flag.Bool("compress", true, "Store payloads zstd compressed")
	segmentMax := flag.Int64("segment-max-bytes", 0, "Rotate tape segments after this many bytes (0=default)")
	flag.Parse()

	files, err := source.Discover(*in)
	if err != nil {
		log.Fatalf("discover failed: %+v", err)
	}
	if len(files) == 0 {
		log.Fatalf("no market files in %s", *in)
	}

	ctx := context.Background()
	for _, f := range files {
		n, err := convert(ctx, f, *out, *compress, *segmentMax)
		if err != nil {
			log.Fatalf("convert %s failed: %+v", f.Path, err)
		}
		log.Printf("%s -> %s (%d snapshots)", filepath.Base(f.Path), f.MarketID, n)
	}
}

func convert(ctx context.Context, f source.MarketFile, dir string, compress bool, segmentMax int64) (int, error) {
	cfg := recorder.DefaultConfig(dir)
	cfg.FilePrefix = f.MarketID
	cfg.Compress = compress
	if segmentMax > 0 {
		cfg.SegmentMaxBytes = segmentMax
	}
	w, err := recorder.NewWriter(cfg)
	if err != nil {
		return 0, err
	}

	var n int
	err = source.StreamFile(ctx, f.Path, f.MarketID, source.Filter{}, func(book *schema.MarketBook) error {
		n++
		return w.AppendBook(book)
	})
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	return n, err
}
