package obs

import (
	"sync/atomic"
	"time"
)

// Counter identifies one replay counter.
type Counter int

const (
	CounterSnapshots Counter = iota
	CounterStagePanics
	CounterScorerCalls
	CounterScorerErrors
	CounterTriggers
	CounterOrdersPlaced
	CounterOrdersRejected
	CounterOrdersFilled
	CounterOrdersCancelled
	CounterMarketsDone
	CounterMarketsFailed
	CounterChunksDone
	CounterChunksFailed
	counterCount
)

var counterNames = [counterCount]string{
	CounterSnapshots:       "snapshots",
	CounterStagePanics:     "stage_panics",
	CounterScorerCalls:     "scorer_calls",
	CounterScorerErrors:    "scorer_errors",
	CounterTriggers:        "volume_triggers",
	CounterOrdersPlaced:    "orders_placed",
	CounterOrdersRejected:  "orders_rejected",
	CounterOrdersFilled:    "orders_filled",
	CounterOrdersCancelled: "orders_cancelled",
	CounterMarketsDone:     "markets_done",
	CounterMarketsFailed:   "markets_failed",
	CounterChunksDone:      "chunks_done",
	CounterChunksFailed:    "chunks_failed",
}

func (c Counter) String() string {
	if c < 0 || c >= counterCount {
		return "unknown"
	}
	return counterNames[c]
}

// Metrics collects replay counters and latency stats. A nil *Metrics is a
// valid no-op sink.
type Metrics struct {
	counters [counterCount]uint64

	marketLatency LatencyStats
	chunkLatency  LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	Counters      map[Counter]uint64
	MarketLatency LatencySnapshot
	ChunkLatency  LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Inc increments a counter by one.
func (m *Metrics) Inc(c Counter) {
	m.Add(c, 1)
}

// Add increments a counter by n.
func (m *Metrics) Add(c Counter, n uint64) {
	if m == nil || c < 0 || c >= counterCount {
		return
	}
	atomic.AddUint64(&m.counters[c], n)
}

// Count returns the current value of a counter.
func (m *Metrics) Count(c Counter) uint64 {
	if m == nil || c < 0 || c >= counterCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[c])
}

// ObserveMarket records the wall time spent replaying one market.
func (m *Metrics) ObserveMarket(d time.Duration) {
	if m == nil {
		return
	}
	m.marketLatency.Observe(d)
}

// ObserveChunk records the wall time spent replaying one chunk.
func (m *Metrics) ObserveChunk(d time.Duration) {
	if m == nil {
		return
	}
	m.chunkLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	counters := make(map[Counter]uint64)
	for i := range m.counters {
		if v := atomic.LoadUint64(&m.counters[i]); v > 0 {
			counters[Counter(i)] = v
		}
	}
	return Snapshot{
		Counters:      counters,
		MarketLatency: m.marketLatency.Snapshot(),
		ChunkLatency:  m.chunkLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		cur := atomic.LoadUint64(&l.min)
		if cur != 0 && nanos >= cur {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, cur, nanos) {
			break
		}
	}

	for {
		cur := atomic.LoadUint64(&l.max)
		if nanos <= cur {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, cur, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(atomic.LoadUint64(&l.min)),
		Max:   time.Duration(atomic.LoadUint64(&l.max)),
		Avg:   time.Duration(atomic.LoadUint64(&l.sum) / count),
	}
}
