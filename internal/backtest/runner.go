package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"bookreplay/internal/decision"
	"bookreplay/internal/inference"
	"bookreplay/internal/market"
	"bookreplay/internal/matching"
	"bookreplay/internal/middleware"
	"bookreplay/internal/obs"
	"bookreplay/internal/ops"
	"bookreplay/internal/results"
	"bookreplay/internal/risk"
	"bookreplay/internal/schema"
	"bookreplay/internal/source"
	"bookreplay/pkg/exception"
)

// Env holds what every chunk of a run shares. Everything in it is read-only
// during replay; mutable state is built per chunk by Runner.
type Env struct {
	Config  *ops.Config
	Source  source.Source
	Scorers map[string]inference.Scorer
	Metrics *obs.Metrics
	// Notifier receives decision events. Chunks run concurrently, so it must
	// be safe for concurrent use. Nil logs events.
	Notifier decision.Notifier
}

// ChunkResult summarises one replayed chunk.
type ChunkResult struct {
	Index   int
	Path    string
	Markets int
	Failed  []string
	Rows    int
}

// Runner replays the markets of one chunk sequentially. A Runner is not safe
// for concurrent use.
type Runner struct {
	env    Env
	chain  *middleware.Chain
	engine *decision.Engine
}

// NewRunner builds the chain, strategies and decision engine of one chunk.
func NewRunner(env Env) (*Runner, error) {
	if env.Config == nil || env.Source == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "backtest env")
	}
	extra := make([]middleware.Stage, 0, len(env.Config.Models))
	for _, m := range env.Config.Models {
		scorer, ok := env.Scorers[m.Slot]
		if !ok {
			return nil, errors.Wrapf(exception.ErrScorerUnavailable, "slot %s", m.Slot)
		}
		adapter, err := inference.NewAdapter(m.Slot, scorer)
		if err != nil {
			return nil, err
		}
		adapter.SetMetrics(env.Metrics)
		extra = append(extra, adapter)
	}
	chain, err := middleware.NewChain(middleware.DefaultStages(env.Config.Middleware, extra...)...)
	if err != nil {
		return nil, err
	}
	chain.WithMetrics(env.Metrics)

	notifier := env.Notifier
	if notifier == nil {
		notifier = decision.LogNotifier{}
	}
	engine := decision.NewEngine(nil, notifier, risk.NewEngine(env.Config.Risk), env.Config.BuildStrategies()...)
	engine.SetMetrics(env.Metrics)

	return &Runner{env: env, chain: chain, engine: engine}, nil
}

// RunChunk replays every market of the chunk into the result file out. A
// failing market is logged and skipped; only an unusable result file fails
// the chunk.
func (r *Runner) RunChunk(ctx context.Context, chunk Chunk, out string) (ChunkResult, error) {
	started := time.Now()
	res := ChunkResult{Index: chunk.Index, Path: out}

	w, err := results.Open(out)
	if err != nil {
		return res, errors.Wrapf(exception.ErrChunkFailed, "chunk %d, err: %+v", chunk.Index, err)
	}
	defer w.Close()

	for _, id := range chunk.Markets {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Markets++
		if err := r.RunMarket(ctx, id, w); err != nil {
			if errors.Is(err, errWrite) {
				return res, errors.Wrapf(exception.ErrChunkFailed, "chunk %d, err: %+v", chunk.Index, err)
			}
			res.Failed = append(res.Failed, id)
			r.env.Metrics.Inc(obs.CounterMarketsFailed)
			logs.Errorf("chunk %d market %s, err: %+v", chunk.Index, id, err)
			continue
		}
		r.env.Metrics.Inc(obs.CounterMarketsDone)
	}
	res.Rows = w.Rows()
	r.env.Metrics.ObserveChunk(time.Since(started))
	return res, w.Close()
}

var errWrite = errors.New("backtest: write results")

// RunMarket replays one market from its first snapshot to settlement and
// appends its terminal orders to w. Panics are returned as errors.
func (r *Runner) RunMarket(ctx context.Context, marketID string, w *results.Writer) (err error) {
	started := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = errors.Wrap(exception.ErrMarketFailed, fmt.Sprint(p))
		}
	}()

	matcher := matching.NewSimMatcher(r.env.Config.Matching)
	matcher.SetMetrics(r.env.Metrics)
	matcher.SetListener(r.engine)
	r.engine.SetPlacer(matcher)
	r.engine.Begin(marketID)

	var (
		mc      *market.Context
		last    *schema.MarketBook
		settled bool
	)
	settle := func(book *schema.MarketBook) error {
		settled = true
		orders, summary := matcher.Settle(book)
		var triggers []float64
		if mc != nil {
			triggers = mc.TriggerSeconds
		}
		r.engine.Close(summary, triggers)
		if err := w.Write(orders); err != nil {
			return errors.Wrap(errWrite, err.Error())
		}
		return nil
	}

	err = r.env.Source.Stream(ctx, marketID, func(book *schema.MarketBook) error {
		if mc == nil {
			mc = market.NewContext(book)
		}
		r.chain.Process(ctx, mc, book)
		last = book
		if book.Status == schema.MarketStatusClosed {
			return settle(book)
		}
		matcher.OnBook(book)
		r.engine.OnBook(ctx, mc, book)
		return nil
	})
	if err != nil {
		return err
	}
	if !settled && last != nil {
		logs.Warnf("market %s ended without a closing snapshot", marketID)
		if err := settle(last); err != nil {
			return err
		}
	}
	r.env.Metrics.ObserveMarket(time.Since(started))
	return nil
}
