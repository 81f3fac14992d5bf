package schema

// MarketStatus is the exchange status of a market.
type MarketStatus string

const (
	MarketStatusOpen      MarketStatus = "OPEN"
	MarketStatusSuspended MarketStatus = "SUSPENDED"
	MarketStatusClosed    MarketStatus = "CLOSED"
)

// RunnerStatus is the exchange status of a selection.
type RunnerStatus string

const (
	RunnerStatusActive  RunnerStatus = "ACTIVE"
	RunnerStatusWinner  RunnerStatus = "WINNER"
	RunnerStatusLoser   RunnerStatus = "LOSER"
	RunnerStatusRemoved RunnerStatus = "REMOVED"
)

// Side is the direction of a bet.
type Side string

const (
	SideBack Side = "BACK"
	SideLay  Side = "LAY"
)

// RunnerBook is one selection inside a market snapshot.
//
// TradedVolume is nil when the update did not carry the traded ladder.
// LastPriceTraded is zero when the runner has not traded yet.
type RunnerBook struct {
	SelectionID     int64        `json:"selection_id"`
	Handicap        float64      `json:"handicap"`
	Status          RunnerStatus `json:"status"`
	LastPriceTraded float64      `json:"last_price_traded"`
	TotalMatched    float64      `json:"total_matched"`
	AvailableToBack Ladder       `json:"available_to_back"`
	AvailableToLay  Ladder       `json:"available_to_lay"`
	TradedVolume    Ladder       `json:"traded_volume,omitempty"`
}

// LTP returns the last traded price if there is one.
func (r RunnerBook) LTP() (float64, bool) {
	if r.LastPriceTraded <= 0 {
		return 0, false
	}
	return r.LastPriceTraded, true
}

// BestBack returns the highest available-to-back level.
func (r RunnerBook) BestBack() (PriceSize, bool) {
	if len(r.AvailableToBack) == 0 {
		return PriceSize{}, false
	}
	return r.AvailableToBack[len(r.AvailableToBack)-1], true
}

// BestLay returns the lowest available-to-lay level.
func (r RunnerBook) BestLay() (PriceSize, bool) {
	if len(r.AvailableToLay) == 0 {
		return PriceSize{}, false
	}
	return r.AvailableToLay[0], true
}

// MarketBook is one order-book snapshot for a market.
type MarketBook struct {
	MarketID       string       `json:"market_id"`
	PublishTime    int64        `json:"publish_time"`
	Status         MarketStatus `json:"status"`
	InPlay         bool         `json:"inplay"`
	SecondsToStart float64      `json:"seconds_to_start"`
	Venue          string       `json:"venue,omitempty"`
	RaceType       string       `json:"race_type,omitempty"`
	Runners        []RunnerBook `json:"runners"`
}

// Runner looks up a selection.
func (b *MarketBook) Runner(selectionID int64) (*RunnerBook, bool) {
	for i := range b.Runners {
		if b.Runners[i].SelectionID == selectionID {
			return &b.Runners[i], true
		}
	}
	return nil, false
}

// HasTradedVolume reports whether any runner carried a traded ladder.
func (b *MarketBook) HasTradedVolume() bool {
	for i := range b.Runners {
		if b.Runners[i].TradedVolume != nil {
			return true
		}
	}
	return false
}

// TotalMatched sums each runner's cumulative matched volume.
func (b *MarketBook) TotalMatched() float64 {
	var total float64
	for i := range b.Runners {
		total += b.Runners[i].TotalMatched
	}
	return total
}

// PrePlayOpen reports whether the market is still open for pre-race trading.
func (b *MarketBook) PrePlayOpen() bool {
	return b.Status == MarketStatusOpen && !b.InPlay
}

// Normalize sorts every ladder so lookups can rely on price order.
func (b *MarketBook) Normalize() {
	for i := range b.Runners {
		r := &b.Runners[i]
		r.AvailableToBack = NormalizeLadder(r.AvailableToBack)
		r.AvailableToLay = NormalizeLadder(r.AvailableToLay)
		r.TradedVolume = NormalizeLadder(r.TradedVolume)
	}
}
