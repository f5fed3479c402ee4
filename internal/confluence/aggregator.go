package confluence

import (
	"sort"
	"time"

	"mt5-fvg-bot/internal/fvg"
	"mt5-fvg-bot/internal/market"
)

// Result describes cross-timeframe agreement for one anchor pattern.
// Results are recomputed each detection cycle and never persisted as
// authoritative state.
type Result struct {
	AnchorPatternID         string             `json:"anchor_pattern_id"`
	AnchorTimeframe         market.Timeframe   `json:"anchor_timeframe"`
	ParticipatingTimeframes []market.Timeframe `json:"participating_timeframes"`
	AgreementStrength       float64            `json:"agreement_strength"` // 0..1
}

// Config tunes the aggregation window.
type Config struct {
	PrimaryTimeframe market.Timeframe `json:"primary_timeframe"`
	WindowBars       int              `json:"window_bars"` // corroborating patterns must form within N anchor bars
	MinOverlapRatio  float64          `json:"min_overlap_ratio"`
}

// DefaultConfig returns the standard aggregation settings.
func DefaultConfig() Config {
	return Config{
		PrimaryTimeframe: market.M15,
		WindowBars:       12,
		MinOverlapRatio:  0.25,
	}
}

// Aggregator merges per-timeframe detections into agreement scores.
// Aggregation is pure: no state survives between calls.
type Aggregator struct {
	cfg Config
}

// NewAggregator creates an aggregator.
func NewAggregator(cfg Config) *Aggregator {
	if cfg.PrimaryTimeframe == "" {
		cfg.PrimaryTimeframe = DefaultConfig().PrimaryTimeframe
	}
	if cfg.WindowBars <= 0 {
		cfg.WindowBars = DefaultConfig().WindowBars
	}
	if cfg.MinOverlapRatio <= 0 {
		cfg.MinOverlapRatio = DefaultConfig().MinOverlapRatio
	}
	return &Aggregator{cfg: cfg}
}

// Aggregate scores every primary-timeframe pattern against patterns on
// the other timeframes. A timeframe corroborates the anchor when it
// holds a same-direction pattern overlapping the anchor's price range
// within the time window; when several qualify the most recently
// formed wins, with greatest overlap breaking the remaining tie.
func (a *Aggregator) Aggregate(byTimeframe map[market.Timeframe][]fvg.GapPattern) []Result {
	anchors := byTimeframe[a.cfg.PrimaryTimeframe]
	if len(anchors) == 0 {
		return nil
	}

	// Total weight of every timeframe considered, anchor included.
	totalWeight := a.cfg.PrimaryTimeframe.Weight()
	others := make([]market.Timeframe, 0, len(byTimeframe))
	for tf := range byTimeframe {
		if tf == a.cfg.PrimaryTimeframe {
			continue
		}
		totalWeight += tf.Weight()
		others = append(others, tf)
	}
	sort.Slice(others, func(i, j int) bool { return others[i].Weight() < others[j].Weight() })

	results := make([]Result, 0, len(anchors))
	for _, anchor := range anchors {
		participating := []market.Timeframe{a.cfg.PrimaryTimeframe}
		weight := a.cfg.PrimaryTimeframe.Weight()

		for _, tf := range others {
			if a.corroborates(anchor, byTimeframe[tf], tf) {
				participating = append(participating, tf)
				weight += tf.Weight()
			}
		}

		results = append(results, Result{
			AnchorPatternID:         anchor.ID,
			AnchorTimeframe:         anchor.Timeframe,
			ParticipatingTimeframes: participating,
			AgreementStrength:       weight / totalWeight,
		})
	}
	return results
}

// corroborates reports whether any candidate on tf lines up with the
// anchor in direction, price overlap and formation time.
func (a *Aggregator) corroborates(anchor fvg.GapPattern, candidates []fvg.GapPattern, tf market.Timeframe) bool {
	best := a.bestMatch(anchor, candidates, tf)
	return best != nil
}

// bestMatch picks the linking pattern for the anchor on one timeframe:
// most recently formed first, greatest overlap second.
func (a *Aggregator) bestMatch(anchor fvg.GapPattern, candidates []fvg.GapPattern, tf market.Timeframe) *fvg.GapPattern {
	window := tf.Duration() * time.Duration(a.cfg.WindowBars)

	var best *fvg.GapPattern
	var bestOverlap float64
	for i := range candidates {
		c := candidates[i]
		if c.Direction != anchor.Direction {
			continue
		}
		dt := anchor.FormedAt.Sub(c.FormedAt)
		if dt < 0 {
			dt = -dt
		}
		if dt > window {
			continue
		}

		overlap := anchor.Overlap(c)
		if anchor.Size() <= 0 || overlap/anchor.Size() < a.cfg.MinOverlapRatio {
			continue
		}

		if best == nil ||
			c.FormedAt.After(best.FormedAt) ||
			(c.FormedAt.Equal(best.FormedAt) && overlap > bestOverlap) {
			best = &candidates[i]
			bestOverlap = overlap
		}
	}
	return best
}

// StrengthFor returns the agreement strength for a pattern ID out of a
// result set, defaulting to the anchor-only baseline when absent.
func StrengthFor(results []Result, patternID string, baseline float64) float64 {
	for _, r := range results {
		if r.AnchorPatternID == patternID {
			return r.AgreementStrength
		}
	}
	return baseline
}
