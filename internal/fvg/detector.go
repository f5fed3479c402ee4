package fvg

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mt5-fvg-bot/internal/market"
)

// DetectorConfig bounds which gaps are reported.
type DetectorConfig struct {
	MinGapPercent float64       `json:"min_gap_percent"` // noise filter, gap size as % of price
	MaxGapPercent float64       `json:"max_gap_percent"` // data-error filter
	DedupWindow   time.Duration `json:"dedup_window"`    // how long a reported gap stays suppressed
}

// DefaultDetectorConfig returns the standard filter settings.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		MinGapPercent: 0.05,
		MaxGapPercent: 5.0,
		DedupWindow:   48 * time.Hour,
	}
}

// Detector scans candle sequences for fair value gaps. Detection is a
// pure function of the input window apart from an optional dedup cache
// that suppresses re-reporting of gaps already seen.
type Detector struct {
	cfg    DetectorConfig
	seen   map[string]time.Time
	mu     sync.Mutex
	logger zerolog.Logger
}

// NewDetector creates a detector with the given filters.
func NewDetector(cfg DetectorConfig, logger zerolog.Logger) *Detector {
	if cfg.MinGapPercent <= 0 {
		cfg.MinGapPercent = DefaultDetectorConfig().MinGapPercent
	}
	if cfg.MaxGapPercent <= 0 {
		cfg.MaxGapPercent = DefaultDetectorConfig().MaxGapPercent
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = DefaultDetectorConfig().DedupWindow
	}
	return &Detector{
		cfg:    cfg,
		seen:   make(map[string]time.Time),
		logger: logger.With().Str("component", "fvg_detector").Logger(),
	}
}

// Detect scans each consecutive candle triple for gaps. Malformed
// input (fewer than 3 bars, mixed symbols, non-monotonic time) yields
// an empty result; detection never halts the pipeline.
func (d *Detector) Detect(candles []market.Candle) []GapPattern {
	if !market.ValidSequence(candles, 3) {
		return nil
	}

	var patterns []GapPattern
	for i := 0; i+2 < len(candles); i++ {
		c1 := candles[i]
		c2 := candles[i+1]
		c3 := candles[i+2]

		// Bullish gap: the first candle's high never reaches the
		// third candle's low.
		if c1.High < c3.Low {
			if p, ok := d.buildPattern(Bullish, c3.Low, c1.High, c2); ok {
				patterns = append(patterns, p)
			}
		}

		// Bearish gap: the first candle's low stays above the third
		// candle's high.
		if c1.Low > c3.High {
			if p, ok := d.buildPattern(Bearish, c1.Low, c3.High, c2); ok {
				patterns = append(patterns, p)
			}
		}
	}
	return patterns
}

func (d *Detector) buildPattern(dir Direction, upper, lower float64, middle market.Candle) (GapPattern, bool) {
	size := upper - lower
	if size <= 0 || lower <= 0 {
		return GapPattern{}, false
	}

	gapPercent := size / lower * 100
	if gapPercent < d.cfg.MinGapPercent || gapPercent > d.cfg.MaxGapPercent {
		return GapPattern{}, false
	}

	formedAt := middle.OpenTime.Add(middle.Timeframe.Duration())
	p := GapPattern{
		ID:         patternID(middle.Symbol, middle.Timeframe, dir, formedAt),
		Symbol:     middle.Symbol,
		Timeframe:  middle.Timeframe,
		Direction:  dir,
		UpperBound: upper,
		LowerBound: lower,
		FormedAt:   formedAt,
	}

	if d.alreadySeen(p.ID) {
		return GapPattern{}, false
	}

	d.logger.Debug().
		Str("pattern_id", p.ID).
		Str("direction", string(dir)).
		Float64("size", size).
		Msg("gap detected")
	return p, true
}

// alreadySeen records the pattern ID and reports whether it was
// reported within the dedup window. Stale entries are pruned lazily.
func (d *Detector) alreadySeen(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if at, ok := d.seen[id]; ok && now.Sub(at) < d.cfg.DedupWindow {
		return true
	}
	d.seen[id] = now

	if len(d.seen) > 4096 {
		for k, at := range d.seen {
			if now.Sub(at) >= d.cfg.DedupWindow {
				delete(d.seen, k)
			}
		}
	}
	return false
}

// ResetDedup clears the dedup cache. Used by tests and on cycle reset.
func (d *Detector) ResetDedup() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = make(map[string]time.Time)
}

// ObserveFill annotates the pattern as filled when any of the given
// later candles trades into the gap zone. Already-filled patterns are
// left untouched.
func ObserveFill(p *GapPattern, candles []market.Candle) {
	if p.Filled {
		return
	}

	for _, c := range candles {
		if !c.OpenTime.After(p.FormedAt) {
			continue
		}
		switch p.Direction {
		case Bullish:
			// Price retraced down into the gap.
			if c.Low <= p.UpperBound {
				markFilled(p, c, maxF(c.Low, p.LowerBound))
				return
			}
		case Bearish:
			// Price retraced up into the gap.
			if c.High >= p.LowerBound {
				markFilled(p, c, minF(c.High, p.UpperBound))
				return
			}
		}
	}
}

func markFilled(p *GapPattern, c market.Candle, price float64) {
	at := c.OpenTime.Add(c.Timeframe.Duration())
	p.Filled = true
	p.FilledAt = &at
	p.FilledPrice = &price
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
