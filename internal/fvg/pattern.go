package fvg

import (
	"fmt"
	"time"

	"mt5-fvg-bot/internal/market"
)

// Direction classifies a gap pattern.
type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
)

// GapPattern is a three-candle fair value gap. Bounds are fixed at
// formation; only the fill annotation changes afterwards.
// Invariant: UpperBound > LowerBound.
type GapPattern struct {
	ID         string           `json:"id"`
	Symbol     string           `json:"symbol"`
	Timeframe  market.Timeframe `json:"timeframe"`
	Direction  Direction        `json:"direction"`
	UpperBound float64          `json:"upper_bound"`
	LowerBound float64          `json:"lower_bound"`
	FormedAt   time.Time        `json:"formed_at"`

	Filled      bool       `json:"filled"`
	FilledAt    *time.Time `json:"filled_at,omitempty"`
	FilledPrice *float64   `json:"filled_price,omitempty"`
}

// Size returns the gap height in price units.
func (p GapPattern) Size() float64 {
	return p.UpperBound - p.LowerBound
}

// Midpoint returns the center price of the gap.
func (p GapPattern) Midpoint() float64 {
	return (p.UpperBound + p.LowerBound) / 2
}

// Contains reports whether price is inside the gap zone.
func (p GapPattern) Contains(price float64) bool {
	return price >= p.LowerBound && price <= p.UpperBound
}

// Overlap returns the price-range overlap between two gaps, 0 when
// they do not intersect.
func (p GapPattern) Overlap(other GapPattern) float64 {
	low := p.LowerBound
	if other.LowerBound > low {
		low = other.LowerBound
	}
	high := p.UpperBound
	if other.UpperBound < high {
		high = other.UpperBound
	}
	if high <= low {
		return 0
	}
	return high - low
}

// patternID builds a deterministic identifier so the same gap detected
// on two passes maps to one ID.
func patternID(symbol string, tf market.Timeframe, dir Direction, formedAt time.Time) string {
	return fmt.Sprintf("%s_%s_%s_%d", symbol, tf, dir, formedAt.Unix())
}
