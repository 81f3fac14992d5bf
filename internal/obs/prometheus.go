package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bookreplay"

// Collector exports a Metrics container to Prometheus.
type Collector struct {
	metrics  *Metrics
	counters [counterCount]*prometheus.Desc
	latency  *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector wraps metrics for registration.
func NewCollector(m *Metrics) *Collector {
	c := &Collector{
		metrics: m,
		latency: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "replay_seconds"),
			"Average wall time spent replaying one unit.",
			[]string{"unit"}, nil,
		),
	}
	for i := Counter(0); i < counterCount; i++ {
		c.counters[i] = prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", i.String()+"_total"),
			"Replay counter "+i.String()+".",
			nil, nil,
		)
	}
	return c
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.counters {
		ch <- d
	}
	ch <- c.latency
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for i, d := range c.counters {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(c.metrics.Count(Counter(i))))
	}
	snap := c.metrics.Snapshot()
	ch <- prometheus.MustNewConstMetric(c.latency, prometheus.GaugeValue, snap.MarketLatency.Avg.Seconds(), "market")
	ch <- prometheus.MustNewConstMetric(c.latency, prometheus.GaugeValue, snap.ChunkLatency.Avg.Seconds(), "chunk")
}

// Serve registers the collector on a fresh registry and exposes it on addr.
func Serve(addr string, m *Metrics) (*http.Server, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(NewCollector(m)); err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv, nil
}
