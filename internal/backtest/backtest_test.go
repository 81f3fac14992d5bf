package backtest

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"

	"bookreplay/internal/decision"
	"bookreplay/internal/inference"
	"bookreplay/internal/market"
	"bookreplay/internal/matching"
	"bookreplay/internal/middleware"
	"bookreplay/internal/obs"
	"bookreplay/internal/ops"
	"bookreplay/internal/results"
	"bookreplay/internal/schema"
	"bookreplay/internal/source"
	"bookreplay/pkg/exception"
)

const slot = "band"

func runnerBook(id int64, ltp, traded float64, status schema.RunnerStatus) schema.RunnerBook {
	return schema.RunnerBook{
		SelectionID:     id,
		Status:          status,
		LastPriceTraded: ltp,
		TotalMatched:    1000,
		AvailableToBack: schema.NormalizeLadder([]schema.PriceSize{{Price: ltp - 0.02, Size: 100}}),
		AvailableToLay:  schema.NormalizeLadder([]schema.PriceSize{{Price: ltp + 0.02, Size: 100}}),
		TradedVolume:    schema.NormalizeLadder([]schema.PriceSize{{Price: ltp, Size: traded}}),
	}
}

// marketBooks builds a six runner market that trades for three updates and
// closes with runner 1 winning. The opening update fires the volume trigger
// and runner 3 trades surge more on every later update, so a large enough
// surge fires it again.
func marketBooks(marketID string, ltp, surge float64) []*schema.MarketBook {
	runners := func(i int, first, rest schema.RunnerStatus) []schema.RunnerBook {
		out := []schema.RunnerBook{runnerBook(1, ltp, 500, first)}
		for id := int64(2); id <= 6; id++ {
			traded := 500.0
			if id == 3 {
				traded += surge * float64(i)
			}
			out = append(out, runnerBook(id, ltp+float64(id), traded, rest))
		}
		return out
	}
	var out []*schema.MarketBook
	for i, sts := range []float64{500, 300, 100} {
		out = append(out, &schema.MarketBook{
			MarketID:       marketID,
			PublishTime:    int64(1_700_000_000_000 + i*1000),
			Status:         schema.MarketStatusOpen,
			SecondsToStart: sts,
			Runners:        runners(i, schema.RunnerStatusActive, schema.RunnerStatusActive),
		})
	}
	out = append(out, &schema.MarketBook{
		MarketID:       marketID,
		PublishTime:    1_700_000_010_000,
		Status:         schema.MarketStatusClosed,
		SecondsToStart: -300,
		Runners:        runners(2, schema.RunnerStatusWinner, schema.RunnerStatusLoser),
	})
	return out
}

type fixture struct {
	ids     []string
	env     Env
	metrics *obs.Metrics
}

// newFixture builds n markets. Every even market has a prediction band that
// runner 1 trades above, so it gets exactly one back bet.
func newFixture(n int) fixture {
	var (
		books   []*schema.MarketBook
		records []inference.HoldoutRecord
		ids     []string
	)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("1.%03d", 100+i)
		ids = append(ids, id)
		books = append(books, marketBooks(id, 3+float64(i)/10, float64(i%3)*20)...)
		if i%2 == 0 {
			records = append(records, inference.HoldoutRecord{
				MarketID:    id,
				SelectionID: 1,
				Prediction:  market.Prediction{PredictedMinPrice: 1.5, PredictedMaxPrice: 2.0, PredictedWAP: 1.8},
			})
		}
	}

	cfg := &ops.Config{
		Middleware: middleware.DefaultConfig(),
		Models:     []ops.ModelConfig{{Slot: slot, Holdout: "memory"}},
		Strategies: ops.StrategiesConfig{PriceBand: []decision.PriceBandConfig{{
			Name:      "band",
			Slot:      slot,
			Threshold: 0.1,
			Stake:     2,
			Window:    decision.Window{EntryFrom: 600, EntryTo: 0},
		}}},
		Matching: matching.Config{Commission: 0.05},
	}
	metrics := obs.NewMetrics()
	return fixture{
		ids: ids,
		env: Env{
			Config:   cfg,
			Source:   source.NewMemorySource(source.Filter{}, books...),
			Scorers:  map[string]inference.Scorer{slot: inference.NewHoldoutScorer(records)},
			Metrics:  metrics,
			Notifier: decision.NoopNotifier{},
		},
		metrics: metrics,
	}
}

func (f fixture) orchestrator(dir string, workers, perChunk int, exec Executor) *Orchestrator {
	if exec == nil {
		exec = InProcessExecutor{Env: f.env}
	}
	return &Orchestrator{
		Workers:         workers,
		MarketsPerChunk: perChunk,
		ResultPattern:   filepath.Join(dir, "chunk-{chunk}.csv"),
		MergedPath:      filepath.Join(dir, "merged.csv"),
		Executor:        exec,
		Metrics:         f.metrics,
	}
}

// readRows reads a result file with the random ids blanked out.
func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	for _, row := range rows[1:] {
		row[0], row[4] = "", ""
	}
	return rows
}

func TestPartition(t *testing.T) {
	ids := func(n int) []string {
		out := make([]string, n)
		for i := range out {
			out[i] = fmt.Sprintf("1.%02d", n-i)
		}
		return out
	}
	sizes := func(chunks []Chunk) []int {
		out := make([]int, len(chunks))
		for i, c := range chunks {
			assert.Equal(t, i, c.Index)
			out[i] = len(c.Markets)
		}
		return out
	}

	testCases := []struct {
		desc     string
		n        int
		workers  int
		perChunk int
		want     []int
	}{
		{desc: "worker bound", n: 10, workers: 3, perChunk: 100, want: []int{4, 4, 2}},
		{desc: "chunk bound", n: 10, workers: 2, perChunk: 3, want: []int{3, 3, 3, 1}},
		{desc: "more workers than markets", n: 2, workers: 8, perChunk: 10, want: []int{1, 1}},
		{desc: "zero workers", n: 3, workers: 0, perChunk: 0, want: []int{3}},
		{desc: "empty", n: 0, workers: 4, perChunk: 10, want: []int{}},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.want, sizes(Partition(ids(tc.n), tc.workers, tc.perChunk)))
		})
	}

	chunks := Partition([]string{"1.3", "1.1", "1.2"}, 2, 10)
	assert.Equal(t, []string{"1.1", "1.2"}, chunks[0].Markets)
	assert.Equal(t, []string{"1.3"}, chunks[1].Markets)
}

func TestRunnerPlacesAndSettles(t *testing.T) {
	f := newFixture(1)
	r, err := NewRunner(f.env)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "chunk.csv")
	res, err := r.RunChunk(context.Background(), Chunk{Markets: f.ids}, out)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Markets)
	assert.Empty(t, res.Failed)
	assert.Equal(t, 1, res.Rows)

	rows := readRows(t, out)
	require.Len(t, rows, 2)
	assert.Equal(t, results.Header, rows[0])
	row := rows[1]
	assert.Equal(t, "band", row[1])
	assert.Equal(t, "1.100", row[2])
	assert.Equal(t, "1", row[3])
	assert.Equal(t, "BACK", row[10])
	assert.Equal(t, string(schema.OrderStatusExecutionComplete), row[12])
	assert.Equal(t, "3.96", row[13])

	assert.Equal(t, uint64(1), f.metrics.Count(obs.CounterMarketsDone))
	assert.Equal(t, uint64(1), f.metrics.Count(obs.CounterOrdersPlaced))
	assert.Equal(t, uint64(4), f.metrics.Count(obs.CounterSnapshots))
}

func TestLeakageIsolation(t *testing.T) {
	f := newFixture(6)

	run := func(workers, perChunk int) (string, *decision.RecordingNotifier, Report) {
		dir := t.TempDir()
		notifier := &decision.RecordingNotifier{}
		env := f.env
		env.Notifier = notifier
		rep, err := f.orchestrator(dir, workers, perChunk, InProcessExecutor{Env: env}).Run(context.Background(), f.ids)
		require.NoError(t, err)
		return dir, notifier, rep
	}
	timelines := func(n *decision.RecordingNotifier) map[string][]float64 {
		out := make(map[string][]float64)
		for _, ev := range n.Events() {
			if ev.Type == decision.EventMarketCleared {
				out[ev.MarketID] = ev.Triggers
			}
		}
		return out
	}

	single, singleEvents, rep := run(1, 100)
	assert.Equal(t, 1, rep.Chunks)

	many, manyEvents, rep := run(3, 2)
	assert.Equal(t, 3, rep.Chunks)
	assert.Empty(t, rep.Failed)
	assert.Equal(t, 3, rep.Merge.Merged)

	want := readRows(t, filepath.Join(single, "merged.csv"))
	got := readRows(t, filepath.Join(many, "merged.csv"))
	assert.Len(t, want, 4)
	assert.Equal(t, want, got)

	wantTriggers := timelines(singleEvents)
	require.Len(t, wantTriggers, len(f.ids))
	assert.Equal(t, wantTriggers, timelines(manyEvents))
	assert.Equal(t, []float64{500}, wantTriggers["1.100"])
	assert.Equal(t, []float64{500, 300, 100}, wantTriggers["1.101"])
	assert.Equal(t, []float64{500, 300, 100}, wantTriggers["1.102"])
	assert.Equal(t, []float64{500}, wantTriggers["1.103"])
}

type failingExecutor struct {
	next Executor
	fail int
}

func (e failingExecutor) Execute(ctx context.Context, chunk Chunk, out string) error {
	if chunk.Index == e.fail {
		_ = os.WriteFile(out, []byte("partial"), 0o644)
		return errors.Wrap(exception.ErrChunkFailed, "boom")
	}
	return e.next.Execute(ctx, chunk, out)
}

func TestChunkFailureIsolation(t *testing.T) {
	f := newFixture(6)
	dir := t.TempDir()
	o := f.orchestrator(dir, 3, 2, failingExecutor{next: InProcessExecutor{Env: f.env}, fail: 1})

	rep, err := o.Run(context.Background(), f.ids)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, rep.Failed)
	assert.Equal(t, 3, rep.Merge.Expected)
	assert.Equal(t, 2, rep.Merge.Merged)
	assert.Equal(t, []string{filepath.Join(dir, "chunk-0001.csv")}, rep.Merge.Missing)
	assert.Equal(t, uint64(1), f.metrics.Count(obs.CounterChunksFailed))
	assert.Equal(t, uint64(2), f.metrics.Count(obs.CounterChunksDone))

	rows := readRows(t, filepath.Join(dir, "merged.csv"))
	var markets []string
	for _, row := range rows[1:] {
		markets = append(markets, row[2])
	}
	assert.Equal(t, []string{"1.100", "1.104"}, markets)
}

type panicSource struct {
	source.Source
	bad string
}

func (s panicSource) Stream(ctx context.Context, marketID string, fn func(*schema.MarketBook) error) error {
	if marketID == s.bad {
		return s.Source.Stream(ctx, marketID, func(*schema.MarketBook) error { panic("corrupt snapshot") })
	}
	return s.Source.Stream(ctx, marketID, fn)
}

func TestMarketFailureIsolation(t *testing.T) {
	f := newFixture(3)
	f.env.Source = panicSource{Source: f.env.Source, bad: "1.100"}
	r, err := NewRunner(f.env)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "chunk.csv")
	res, err := r.RunChunk(context.Background(), Chunk{Markets: append(f.ids, "9.999")}, out)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.100", "9.999"}, res.Failed)
	assert.Equal(t, 1, res.Rows)
	assert.Equal(t, uint64(2), f.metrics.Count(obs.CounterMarketsFailed))
	assert.Equal(t, uint64(2), f.metrics.Count(obs.CounterMarketsDone))
}

func TestRunnerMissingScorer(t *testing.T) {
	f := newFixture(1)
	f.env.Scorers = nil
	_, err := NewRunner(f.env)
	assert.True(t, errors.Is(err, exception.ErrScorerUnavailable))

	_, err = NewRunner(Env{})
	assert.True(t, errors.Is(err, exception.ErrNilInstance))
}

type staticCatalog []string

func (c staticCatalog) MarketIDs(context.Context) ([]string, error) { return c, nil }

func TestUniverse(t *testing.T) {
	f := newFixture(4)
	ids, err := Universe(context.Background(), f.env.Source, nil)
	require.NoError(t, err)
	assert.Equal(t, f.ids, ids)

	ids, err = Universe(context.Background(), f.env.Source, staticCatalog{"1.103", "1.101", "7.7"})
	require.NoError(t, err)
	assert.Equal(t, []string{"1.101", "1.103"}, ids)

	ids, err = Universe(context.Background(), f.env.Source, staticCatalog(nil))
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestProcessExecutorPlumbing(t *testing.T) {
	ids, err := ReadMarkets(strings.NewReader("1.1\n\n 1.2 \n1.3"))
	require.NoError(t, err)
	assert.Equal(t, []string{"1.1", "1.2", "1.3"}, ids)

	assert.Equal(t,
		[]string{"worker", "-config", "cfg.yaml", "-chunk", "7", "-out", "out.csv"},
		WorkerArgs("cfg.yaml", 7, "out.csv"))

	e := &ProcessExecutor{Binary: filepath.Join(t.TempDir(), "missing-binary"), ConfigPath: "cfg.yaml"}
	err = e.Execute(context.Background(), Chunk{Index: 2, Markets: []string{"1.1"}}, "out.csv")
	assert.True(t, errors.Is(err, exception.ErrChunkFailed))
}
