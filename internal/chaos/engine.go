package chaos

import (
	"math/rand"
	"time"

	"github.com/yanun0323/errors"

	"bookreplay/internal/schema"
	"bookreplay/pkg/exception"
)

// Config controls how a snapshot stream is perturbed.
type Config struct {
	Seed          int64
	DropRate      float64
	DuplicateRate float64
	// ReorderWindow buffers this many snapshots and releases them in random
	// order. One keeps the order.
	ReorderWindow int
	// MaxDelay pushes publish times forward by up to this much.
	MaxDelay time.Duration
}

// Engine perturbs the snapshots of one market. Closing snapshots are never
// dropped and come last, stamped no earlier than any snapshot before them.
type Engine struct {
	cfg     Config
	rng     *rand.Rand
	pending []*schema.MarketBook
	latest  int64
}

// NewEngine creates a chaos engine with validation.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.ReorderWindow <= 0 {
		cfg.ReorderWindow = 1
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UTC().UnixNano()
	}
	return &Engine{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Validate ensures the config is within supported ranges.
func (c Config) Validate() error {
	if c.DropRate < 0 || c.DropRate > 1 {
		return errors.Wrap(exception.ErrInvalidArgument, "drop rate must be between 0 and 1")
	}
	if c.DuplicateRate < 0 || c.DuplicateRate > 1 {
		return errors.Wrap(exception.ErrInvalidArgument, "duplicate rate must be between 0 and 1")
	}
	if c.ReorderWindow <= 0 {
		return errors.Wrap(exception.ErrInvalidArgument, "reorder window must be >= 1")
	}
	if c.MaxDelay < 0 {
		return errors.Wrap(exception.ErrInvalidArgument, "max delay must be >= 0")
	}
	return nil
}

// Process applies chaos to a single snapshot and returns any output.
func (e *Engine) Process(book *schema.MarketBook) []*schema.MarketBook {
	if e == nil {
		return []*schema.MarketBook{book}
	}
	if book.Status == schema.MarketStatusClosed {
		if book.PublishTime < e.latest {
			cp := *book
			cp.PublishTime = e.latest
			book = &cp
		}
		return append(e.Flush(), book)
	}
	if e.shouldDrop() {
		return nil
	}
	book = e.applyDelay(book)
	e.latest = max(e.latest, book.PublishTime)
	if e.cfg.ReorderWindow <= 1 {
		return e.applyDuplicate(book)
	}
	e.pending = append(e.pending, book)
	if len(e.pending) < e.cfg.ReorderWindow {
		return nil
	}
	return e.applyDuplicate(e.take())
}

// Flush returns any buffered snapshots after the stream ends.
func (e *Engine) Flush() []*schema.MarketBook {
	if e == nil || len(e.pending) == 0 {
		return nil
	}
	out := make([]*schema.MarketBook, 0, len(e.pending))
	for len(e.pending) > 0 {
		out = append(out, e.applyDuplicate(e.take())...)
	}
	return out
}

func (e *Engine) take() *schema.MarketBook {
	idx := e.rng.Intn(len(e.pending))
	book := e.pending[idx]
	e.pending = append(e.pending[:idx], e.pending[idx+1:]...)
	return book
}

func (e *Engine) shouldDrop() bool {
	return e.cfg.DropRate > 0 && e.rng.Float64() < e.cfg.DropRate
}

func (e *Engine) applyDuplicate(book *schema.MarketBook) []*schema.MarketBook {
	out := []*schema.MarketBook{book}
	if e.cfg.DuplicateRate > 0 && e.rng.Float64() < e.cfg.DuplicateRate {
		out = append(out, book)
	}
	return out
}

func (e *Engine) applyDelay(book *schema.MarketBook) *schema.MarketBook {
	maxDelay := e.cfg.MaxDelay.Milliseconds()
	if maxDelay <= 0 {
		return book
	}
	delay := e.rng.Int63n(maxDelay + 1)
	if delay == 0 {
		return book
	}
	cp := *book
	cp.PublishTime += delay
	return &cp
}
