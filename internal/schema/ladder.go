package schema

import (
	"math"
	"sort"
)

// PriceSize is one ladder level.
type PriceSize struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// Ladder is a price-ascending list of levels with at most one entry per price.
type Ladder []PriceSize

// NormalizeLadder sorts levels by price and keeps the last entry seen for a
// duplicated price. Levels with a non-positive price are dropped.
func NormalizeLadder(levels []PriceSize) Ladder {
	if levels == nil {
		return nil
	}
	byPrice := make(map[float64]float64, len(levels))
	for _, lv := range levels {
		if lv.Price <= 0 || math.IsNaN(lv.Price) || math.IsNaN(lv.Size) {
			continue
		}
		byPrice[lv.Price] = lv.Size
	}
	out := make(Ladder, 0, len(byPrice))
	for price, size := range byPrice {
		out = append(out, PriceSize{Price: price, Size: size})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	return out
}

// SizeAt returns the size stored at price.
func (l Ladder) SizeAt(price float64) (float64, bool) {
	i := sort.Search(len(l), func(i int) bool { return l[i].Price >= price })
	if i < len(l) && l[i].Price == price {
		return l[i].Size, true
	}
	return 0, false
}

// Highest returns up to n levels with the highest prices, best first.
// Used for the back side where the best price is the largest.
func (l Ladder) Highest(n int) Ladder {
	if n <= 0 || len(l) == 0 {
		return Ladder{}
	}
	if n > len(l) {
		n = len(l)
	}
	out := make(Ladder, 0, n)
	for i := len(l) - 1; i >= len(l)-n; i-- {
		out = append(out, l[i])
	}
	return out
}

// Lowest returns up to n levels with the lowest prices, best first.
// Used for the lay side where the best price is the smallest.
func (l Ladder) Lowest(n int) Ladder {
	if n <= 0 || len(l) == 0 {
		return Ladder{}
	}
	if n > len(l) {
		n = len(l)
	}
	out := make(Ladder, n)
	copy(out, l[:n])
	return out
}

// Clone returns a deep copy of the ladder.
func (l Ladder) Clone() Ladder {
	if l == nil {
		return nil
	}
	out := make(Ladder, len(l))
	copy(out, l)
	return out
}

// TotalSize sums all level sizes.
func (l Ladder) TotalSize() float64 {
	var total float64
	for _, lv := range l {
		total += lv.Size
	}
	return total
}
