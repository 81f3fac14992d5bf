package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sort"
	"strings"

	"bookreplay/internal/market"
	"bookreplay/internal/middleware"
	"bookreplay/internal/ops"
	"bookreplay/internal/schema"
	"bookreplay/internal/source"
)

func main() {
	dir := flag.String("dir", "testdata/books", "Snapshot directory")
	format := flag.String("format", "jsonl", "Snapshot format: jsonl or tape")
	marketID := flag.String("market", "", "Market id to replay (default: first market)")
	configPath := flag.String("config", "", "Optional YAML config for the signal parameters")
	prePlay := flag.Bool("pre-play", false, "Drop in-play snapshots")
	verbose := flag.Bool("v", false, "Print per runner WAP and history length")
	flag.Parse()

	cfg := middleware.DefaultConfig()
	if *configPath != "" {
		loaded, err := ops.Load(*configPath)
		if err != nil {
			log.Fatalf("config load failed: %+v", err)
		}
		cfg = loaded.Middleware.WithDefaults()
	}

	filter := source.Filter{PrePlayOnly: *prePlay}
	var src source.Source
	switch ops.DataFormat(*format) {
	case ops.DataFormatTape:
		src = source.NewTapeSource(*dir, filter)
	case ops.DataFormatJSONL:
		fs, err := source.NewFileSource(*dir, filter)
		if err != nil {
			log.Fatalf("source init failed: %+v", err)
		}
		src = fs
	default:
		log.Fatalf("unknown format %q", *format)
	}

	ctx := context.Background()
	id := *marketID
	if id == "" {
		ids, err := src.Markets(ctx)
		if err != nil || len(ids) == 0 {
			log.Fatalf("no markets in %s: %v", *dir, err)
		}
		id = ids[0]
	}

	chain, err := middleware.NewChain(middleware.DefaultStages(cfg)...)
	if err != nil {
		log.Fatalf("chain init failed: %+v", err)
	}

	var mc *market.Context
	err = src.Stream(ctx, id, func(book *schema.MarketBook) error {
		if mc == nil {
			mc = market.NewContext(book)
		}
		chain.Process(ctx, mc, book)
		printUpdate(mc, *verbose)
		return nil
	})
	if err != nil {
		log.Fatalf("replay %s failed: %+v", id, err)
	}
	if mc == nil {
		log.Fatalf("market %s has no snapshots", id)
	}
	fmt.Printf("market=%s updates=%d top=%v trigger_seconds=%v target_ladders=%d\n",
		mc.MarketID, mc.Updates, mc.TopSelections, mc.TriggerSeconds, len(mc.TargetLadders))
}

func printUpdate(mc *market.Context, verbose bool) {
	var deltas []string
	for _, d := range mc.TradeDeltas {
		deltas = append(deltas, fmt.Sprintf("%d@%.2f+%.2f", d.SelectionID, d.Price, d.Size))
	}
	fmt.Printf("%06d sts=%.1f status=%s inplay=%t top=%v triggered=%v deltas=[%s]\n",
		mc.Updates, mc.SecondsToStart, mc.Status, mc.InPlay, mc.TopSelections, mc.TriggeredSelections, strings.Join(deltas, " "))
	if !verbose {
		return
	}
	ids := make([]int64, 0, len(mc.WAPTotal))
	for id := range mc.WAPTotal {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		fmt.Printf("       sel=%d wap15=%.2f wap=%.2f history=%d\n", id, mc.WAPLast15[id], mc.WAPTotal[id], mc.History[id].Len())
	}
}
