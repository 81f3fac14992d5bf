package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/gzip"

	"bookreplay/internal/chaos"
	"bookreplay/internal/ops"
	"bookreplay/internal/schema"
	"bookreplay/internal/source"
)

// chaos writes a perturbed JSONL copy of every market so the source gate and
// the signal stages can be exercised against drops, duplicates and late or
// reordered snapshots.
func main() {
	inputDir := flag.String("input-dir", "testdata/books", "Input snapshot directory")
	format := flag.String("format", "jsonl", "Input format: jsonl or tape")
	outputDir := flag.String("output-dir", "testdata/books_chaos", "Output directory of .jsonl.gz files")
	seed := flag.Int64("seed", 0, "RNG seed (0=now)")
	dropRate := flag.Float64("drop-rate", 0, "Drop probability [0-1]")
	dupRate := flag.Float64("dup-rate", 0, "Duplicate probability [0-1]")
	reorderWindow := flag.Int("reorder-window", 1, "Reorder window (>=1)")
	maxDelay := flag.Duration("max-delay", 0, "Max publish time delay")
	flag.Parse()

	cfg := chaos.Config{
		Seed:          *seed,
		DropRate:      *dropRate,
		DuplicateRate: *dupRate,
		ReorderWindow: *reorderWindow,
		MaxDelay:      *maxDelay,
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("chaos config invalid: %v", err)
	}

	var src source.Source
	switch ops.DataFormat(*format) {
	case ops.DataFormatTape:
		src = source.NewTapeSource(*inputDir, source.Filter{})
	default:
		fs, err := source.NewFileSource(*inputDir, source.Filter{})
		if err != nil {
			log.Fatalf("source init failed: %v", err)
		}
		src = fs
	}
	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		log.Fatalf("mkdir failed: %v", err)
	}

	ctx := context.Background()
	ids, err := src.Markets(ctx)
	if err != nil {
		log.Fatalf("list markets failed: %v", err)
	}
	for i, id := range ids {
		engine, err := chaos.NewEngine(cfg)
		if err != nil {
			log.Fatalf("chaos init failed: %v", err)
		}
		if cfg.Seed != 0 {
			cfg.Seed += int64(i) + 1
		}
		n, err := perturb(ctx, src, engine, id, filepath.Join(*outputDir, id+".jsonl.gz"))
		if err != nil {
			log.Fatalf("market %s failed: %v", id, err)
		}
		log.Printf("%s: wrote %d snapshots", id, n)
	}
}

func perturb(ctx context.Context, src source.Source, engine *chaos.Engine, marketID, path string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	zw := gzip.NewWriter(f)
	enc := sonic.ConfigDefault.NewEncoder(zw)

	var n int
	write := func(books []*schema.MarketBook) error {
		for _, b := range books {
			if err := enc.Encode(b); err != nil {
				return err
			}
			n++
		}
		return nil
	}
	err = src.Stream(ctx, marketID, func(book *schema.MarketBook) error {
		return write(engine.Process(book))
	})
	if err == nil {
		err = write(engine.Flush())
	}
	if cerr := zw.Close(); err == nil {
		err = cerr
	}
	return n, err
}
