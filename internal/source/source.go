package source

import (
	"context"
	"sort"

	"github.com/yanun0323/logs"

	"bookreplay/internal/schema"
)

// Filter is applied by every source before a snapshot reaches the pipeline.
// A CLOSED snapshot always passes so the market can settle.
type Filter struct {
	PrePlayOnly bool `yaml:"pre_play_only"`
	// MaxSecondsToStart drops snapshots further from the start. Zero keeps all.
	MaxSecondsToStart float64 `yaml:"max_seconds_to_start"`
}

// Admit reports whether a snapshot passes the filter.
func (f Filter) Admit(book *schema.MarketBook) bool {
	if book.Status == schema.MarketStatusClosed {
		return true
	}
	if f.PrePlayOnly && book.InPlay {
		return false
	}
	if f.MaxSecondsToStart > 0 && book.SecondsToStart > f.MaxSecondsToStart {
		return false
	}
	return true
}

// Source delivers the snapshots of one market in event time order.
type Source interface {
	// Markets lists the market ids the source can stream, sorted.
	Markets(ctx context.Context) ([]string, error)
	// Stream calls fn for every admitted snapshot of the market. It stops at
	// the first CLOSED snapshot or the first error returned by fn.
	Stream(ctx context.Context, marketID string, fn func(*schema.MarketBook) error) error
}

// gate enforces the delivery rules shared by all sources.
type gate struct {
	marketID string
	filter   Filter
	fn       func(*schema.MarketBook) error
	lastTime int64
	closed   bool
	dropped  int
}

func newGate(marketID string, filter Filter, fn func(*schema.MarketBook) error) *gate {
	return &gate{marketID: marketID, filter: filter, fn: fn}
}

// push forwards one snapshot. It returns done once the market has closed.
func (g *gate) push(book *schema.MarketBook) (done bool, err error) {
	if g.closed {
		return true, nil
	}
	if book.PublishTime < g.lastTime {
		g.dropped++
		return false, nil
	}
	g.lastTime = book.PublishTime
	if !g.filter.Admit(book) {
		return false, nil
	}
	if book.MarketID == "" {
		book.MarketID = g.marketID
	}
	if err := g.fn(book); err != nil {
		return true, err
	}
	if book.Status == schema.MarketStatusClosed {
		g.closed = true
		return true, nil
	}
	return false, nil
}

func (g *gate) finish() {
	if g.dropped > 0 {
		logs.Warnf("market %s dropped %d snapshots older than the previous one", g.marketID, g.dropped)
	}
}

// MemorySource serves snapshots held in memory.
type MemorySource struct {
	filter Filter
	books  map[string][]*schema.MarketBook
}

func NewMemorySource(filter Filter, books ...*schema.MarketBook) *MemorySource {
	s := &MemorySource{filter: filter, books: make(map[string][]*schema.MarketBook)}
	for _, b := range books {
		s.books[b.MarketID] = append(s.books[b.MarketID], b)
	}
	return s
}

func (s *MemorySource) Markets(context.Context) ([]string, error) {
	ids := make([]string, 0, len(s.books))
	for id := range s.books {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemorySource) Stream(ctx context.Context, marketID string, fn func(*schema.MarketBook) error) error {
	books, ok := s.books[marketID]
	if !ok {
		return marketNotFound(marketID)
	}
	g := newGate(marketID, s.filter, fn)
	defer g.finish()
	for _, b := range books {
		if err := ctx.Err(); err != nil {
			return err
		}
		cp := *b
		cp.Runners = append([]schema.RunnerBook(nil), b.Runners...)
		cp.Normalize()
		if done, err := g.push(&cp); done || err != nil {
			return err
		}
	}
	return nil
}
