package backtest

import (
	"context"
	"os"
	"sort"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"bookreplay/internal/obs"
	"bookreplay/internal/results"
)

// Report describes a finished run.
type Report struct {
	Markets int
	Chunks  int
	Failed  []int
	Merge   results.MergeReport
	Elapsed time.Duration
}

// Orchestrator partitions the market universe, replays the chunks on a
// bounded worker pool and merges the chunk results.
type Orchestrator struct {
	Workers         int
	MarketsPerChunk int
	// ResultPattern is the per-chunk result path, see results.ChunkPath.
	ResultPattern string
	MergedPath    string
	Executor      Executor
	Metrics       *obs.Metrics
}

type chunkOutcome struct {
	index int
	path  string
	err   error
}

// Run replays ids and merges the outputs. A failing chunk never stops its
// siblings; its partial output is dropped and reported missing by the merge.
func (o *Orchestrator) Run(ctx context.Context, ids []string) (Report, error) {
	started := time.Now()
	chunks := Partition(ids, o.Workers, o.MarketsPerChunk)
	report := Report{Markets: len(ids), Chunks: len(chunks)}

	paths := make([]string, len(chunks))
	for i, c := range chunks {
		paths[i] = results.ChunkPath(o.ResultPattern, c.Index)
		if err := removeStale(paths[i]); err != nil {
			return report, err
		}
	}
	if err := removeStale(o.MergedPath); err != nil {
		return report, err
	}

	logs.Infof("replaying %d markets in %d chunks on %d workers", len(ids), len(chunks), max(o.Workers, 1))

	p := pool.NewWithResults[chunkOutcome]().WithMaxGoroutines(max(o.Workers, 1))
	for i, c := range chunks {
		path := paths[i]
		p.Go(func() chunkOutcome {
			chunkStarted := time.Now()
			err := o.Executor.Execute(ctx, c, path)
			if err != nil {
				_ = os.Remove(path)
				o.Metrics.Inc(obs.CounterChunksFailed)
				logs.Errorf("chunk %d (%d markets, first %s), err: %+v", c.Index, len(c.Markets), c.Markets[0], err)
			} else {
				o.Metrics.Inc(obs.CounterChunksDone)
				logs.Infof("chunk %d done in %s", c.Index, time.Since(chunkStarted))
			}
			return chunkOutcome{index: c.Index, path: path, err: err}
		})
	}
	outcomes := p.Wait()
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].index < outcomes[j].index })
	for _, out := range outcomes {
		if out.err != nil {
			report.Failed = append(report.Failed, out.index)
		}
	}

	merge, err := results.Merge(paths, o.MergedPath)
	report.Merge = merge
	report.Elapsed = time.Since(started)
	if err != nil {
		return report, err
	}
	if len(merge.Missing) > 0 {
		logs.Warnf("merged %d of %d chunks, missing: %v", merge.Merged, merge.Expected, merge.Missing)
	}
	return report, ctx.Err()
}

func removeStale(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "remove stale %s", path)
	}
	return nil
}
