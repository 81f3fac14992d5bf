package middleware

import (
	"context"
	"fmt"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"bookreplay/internal/market"
	"bookreplay/internal/obs"
	"bookreplay/internal/schema"
	"bookreplay/pkg/exception"
)

// Stage is one step of the per-snapshot pipeline. Process must not fail:
// missing upstream data yields an empty result for the stage's own fields.
type Stage interface {
	Name() string
	Reads() []market.Field
	Writes() []market.Field
	Process(ctx context.Context, mc *market.Context, book *schema.MarketBook)
}

// Chain runs stages in a fixed order once per snapshot.
type Chain struct {
	stages  []Stage
	metrics *obs.Metrics
}

// NewChain checks the stage order and builds a chain. Every field a stage
// reads must be the snapshot or written by an earlier stage, and a field may
// have only one writer.
func NewChain(stages ...Stage) (*Chain, error) {
	written := map[market.Field]string{market.FieldSnapshot: "snapshot"}
	for _, st := range stages {
		if st == nil {
			return nil, exception.ErrNilInstance
		}
		for _, f := range st.Reads() {
			if _, ok := written[f]; !ok {
				return nil, errors.Wrapf(exception.ErrStageOrder, "stage %s reads %s", st.Name(), f)
			}
		}
		for _, f := range st.Writes() {
			if owner, ok := written[f]; ok {
				return nil, errors.Wrapf(exception.ErrStageDuplicate, "stage %s writes %s already written by %s", st.Name(), f, owner)
			}
			written[f] = st.Name()
		}
	}
	return &Chain{stages: stages}, nil
}

// MetricsAware is implemented by stages that report their own counters.
type MetricsAware interface {
	SetMetrics(m *obs.Metrics)
}

// WithMetrics attaches a metrics sink to the chain and its stages.
func (c *Chain) WithMetrics(m *obs.Metrics) *Chain {
	c.metrics = m
	for _, st := range c.stages {
		if ma, ok := st.(MetricsAware); ok {
			ma.SetMetrics(m)
		}
	}
	return c
}

// Stages returns the stage names in execution order.
func (c *Chain) Stages() []string {
	names := make([]string, len(c.stages))
	for i, st := range c.stages {
		names[i] = st.Name()
	}
	return names
}

// Process applies every stage to the snapshot. A panicking stage is logged
// and skipped; the rest of the chain still runs.
func (c *Chain) Process(ctx context.Context, mc *market.Context, book *schema.MarketBook) {
	mc.Observe(book)
	c.metrics.Inc(obs.CounterSnapshots)
	for _, st := range c.stages {
		if err := c.run(ctx, st, mc, book); err != nil {
			c.metrics.Inc(obs.CounterStagePanics)
			logs.Errorf("market %s stage %s, err: %+v", mc.MarketID, st.Name(), err)
		}
	}
}

func (c *Chain) run(ctx context.Context, st Stage, mc *market.Context, book *schema.MarketBook) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrap(exception.ErrStagePanic, fmt.Sprint(r))
		}
	}()
	st.Process(ctx, mc, book)
	return nil
}

// DefaultStages returns the signal stages in their required order. Extra
// stages (inference adapters) are appended after the feature builder.
func DefaultStages(cfg Config, extra ...Stage) []Stage {
	cfg = cfg.WithDefaults()
	stages := []Stage{
		NewTradeDeltaTracker(),
		NewTradeHistoryWindow(cfg),
		NewTopSelectionRanker(cfg),
		NewVolumePriceTriggerDetector(cfg),
		NewTargetLadderRecorder(cfg),
		NewWAPAggregator(cfg),
		NewFeatureTensorBuilder(cfg),
	}
	return append(stages, extra...)
}
