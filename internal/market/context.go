package market

import (
	"math"
	"slices"

	"bookreplay/internal/schema"
)

// TradeDelta is the increase of traded volume at one price since the
// previous snapshot. Size is always > 0.
type TradeDelta struct {
	SelectionID int64   `json:"selection_id"`
	Price       float64 `json:"price"`
	Size        float64 `json:"size"`
}

// TargetLadder brackets a volume trigger: the traded ladders captured when
// the trigger fired and the ladders seen until the follow-up window closed.
type TargetLadder struct {
	Second          float64                 `json:"second"`
	Initial         map[int64]schema.Ladder `json:"initial"`
	Target          map[int64]schema.Ladder `json:"target"`
	LastPriceTraded map[int64]float64       `json:"last_price_traded"`
	Frozen          bool                    `json:"frozen"`
}

// Prediction is the scorer output for one runner.
type Prediction struct {
	PredictedMinPrice float64 `json:"predicted_min_price"`
	PredictedMaxPrice float64 `json:"predicted_max_price"`
	PredictedWAP      float64 `json:"predicted_wap"`
}

// FeatureBundle is the fixed-shape model input for one top selection.
type FeatureBundle struct {
	SelectionID     int64          `json:"selection_id"`
	Back            schema.Ladder  `json:"back"`
	Lay             schema.Ladder  `json:"lay"`
	Traded          schema.Ladder  `json:"traded"`
	History         []HistoryEntry `json:"history"`
	LastPriceTraded float64        `json:"last_price_traded"`
	Triggered       bool           `json:"triggered"`
}

// Context is the per-market state record. Each derived field is written by
// exactly one middleware stage; the field comment names it.
//
// A Context belongs to a single market replay and is never shared.
type Context struct {
	MarketID       string
	Venue          string
	RaceType       string
	SecondsToStart float64
	Status         schema.MarketStatus
	InPlay         bool
	Updates        int

	// TradeDeltaTracker
	Traded      map[int64]schema.Ladder
	TradeDeltas []TradeDelta

	// TradeHistoryWindow
	History map[int64]*History

	// TopSelectionRanker
	TopSelections []int64
	TopLatched    bool

	// VolumePriceTriggerDetector
	TriggerSeconds      []float64
	TriggeredSelections []int64

	// TargetLadderRecorder
	TargetLadders []*TargetLadder

	// WeightedAveragePriceAggregator
	WAPLast15 map[int64]float64
	WAPTotal  map[int64]float64

	// FeatureTensorBuilder
	Features map[int64]FeatureBundle

	// Inference adapters, keyed by slot name.
	Predictions map[string]map[int64]Prediction
}

// NewContext creates the state record for the market of the first snapshot.
func NewContext(book *schema.MarketBook) *Context {
	mc := &Context{
		MarketID:    book.MarketID,
		Venue:       book.Venue,
		RaceType:    book.RaceType,
		Traded:      make(map[int64]schema.Ladder),
		History:     make(map[int64]*History),
		WAPLast15:   make(map[int64]float64),
		WAPTotal:    make(map[int64]float64),
		Features:    make(map[int64]FeatureBundle),
		Predictions: make(map[string]map[int64]Prediction),
	}
	mc.sync(book)
	return mc
}

// Observe copies the snapshot clock and status onto the context and counts
// the update.
func (mc *Context) Observe(book *schema.MarketBook) {
	mc.sync(book)
	mc.Updates++
}

func (mc *Context) sync(book *schema.MarketBook) {
	mc.SecondsToStart = book.SecondsToStart
	mc.Status = book.Status
	mc.InPlay = book.InPlay
	if mc.Venue == "" {
		mc.Venue = book.Venue
	}
	if mc.RaceType == "" {
		mc.RaceType = book.RaceType
	}
}

// Clock is the history clock for the current update: seconds to start, or
// PostStartClock once the event has begun.
func (mc *Context) Clock() float64 {
	if mc.SecondsToStart >= 0 {
		return mc.SecondsToStart
	}
	return PostStartClock
}

// IsTopSelection reports whether the selection is in the latched top set.
func (mc *Context) IsTopSelection(selectionID int64) bool {
	return slices.Contains(mc.TopSelections, selectionID)
}

// Triggered reports whether the selection was volume-flagged this update.
func (mc *Context) Triggered(selectionID int64) bool {
	return slices.Contains(mc.TriggeredSelections, selectionID)
}

// TargetLadder returns the record created for a trigger second.
func (mc *Context) TargetLadder(second float64) (*TargetLadder, bool) {
	for _, tl := range mc.TargetLadders {
		if tl.Second == second {
			return tl, true
		}
	}
	return nil, false
}

// SelectionHistory returns the history buffer of a selection, creating it.
func (mc *Context) SelectionHistory(selectionID int64, capacity int) *History {
	h, ok := mc.History[selectionID]
	if !ok {
		h = NewHistory(capacity)
		mc.History[selectionID] = h
	}
	return h
}

// Prediction returns the prediction written into slot for a selection.
func (mc *Context) Prediction(slot string, selectionID int64) (Prediction, bool) {
	preds, ok := mc.Predictions[slot]
	if !ok {
		return Prediction{}, false
	}
	p, ok := preds[selectionID]
	return p, ok
}

// Round2 rounds to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
