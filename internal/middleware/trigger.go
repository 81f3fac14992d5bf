package middleware

import (
	"context"
	"sort"

	"bookreplay/internal/market"
	"bookreplay/internal/obs"
	"bookreplay/internal/schema"
)

// VolumePriceTriggerDetector flags top selections that took a
// disproportionate share of total matched volume in a single update.
type VolumePriceTriggerDetector struct {
	topCount   int
	ratio      float64
	minSeconds float64
	metrics    *obs.Metrics
}

func NewVolumePriceTriggerDetector(cfg Config) *VolumePriceTriggerDetector {
	cfg = cfg.WithDefaults()
	return &VolumePriceTriggerDetector{
		topCount:   cfg.TopCount,
		ratio:      cfg.VolumeRatio,
		minSeconds: *cfg.MinTriggerSeconds,
	}
}

// SetMetrics attaches a metrics sink counting appended trigger seconds.
func (s *VolumePriceTriggerDetector) SetMetrics(m *obs.Metrics) {
	s.metrics = m
}

func (*VolumePriceTriggerDetector) Name() string { return "volume_price_trigger_detector" }

func (*VolumePriceTriggerDetector) Reads() []market.Field {
	return []market.Field{market.FieldSnapshot, market.FieldTradeDeltas, market.FieldTopSelections}
}

func (*VolumePriceTriggerDetector) Writes() []market.Field {
	return []market.Field{market.FieldTriggers}
}

func (s *VolumePriceTriggerDetector) Process(_ context.Context, mc *market.Context, book *schema.MarketBook) {
	mc.TriggeredSelections = nil
	if len(mc.TopSelections) != s.topCount || len(mc.TradeDeltas) == 0 {
		return
	}
	total := book.TotalMatched()
	if total <= 0 {
		return
	}

	sizes := make(map[int64]float64)
	for _, d := range mc.TradeDeltas {
		if mc.IsTopSelection(d.SelectionID) {
			sizes[d.SelectionID] += d.Size
		}
	}
	var flagged []int64
	for id, size := range sizes {
		if size/total >= s.ratio {
			flagged = append(flagged, id)
		}
	}
	if len(flagged) == 0 || mc.SecondsToStart < s.minSeconds {
		return
	}
	sort.Slice(flagged, func(i, j int) bool { return flagged[i] < flagged[j] })
	mc.TriggeredSelections = flagged

	second := market.Round2(mc.SecondsToStart)
	if n := len(mc.TriggerSeconds); n > 0 && mc.TriggerSeconds[n-1] == second {
		return
	}
	mc.TriggerSeconds = append(mc.TriggerSeconds, second)
	s.metrics.Inc(obs.CounterTriggers)
}
