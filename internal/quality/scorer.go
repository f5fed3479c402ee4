package quality

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"mt5-fvg-bot/internal/analysis"
	"mt5-fvg-bot/internal/fvg"
	"mt5-fvg-bot/internal/session"
)

// Tier buckets a quality score for sizing and reporting.
type Tier string

const (
	TierPremium Tier = "PREMIUM"
	TierHigh    Tier = "HIGH"
	TierMedium  Tier = "MEDIUM"
	TierLow     Tier = "LOW"
	TierPoor    Tier = "POOR"
)

// TierFor maps a total score to its tier.
func TierFor(total float64) Tier {
	switch {
	case total >= 0.90:
		return TierPremium
	case total >= 0.75:
		return TierHigh
	case total >= 0.50:
		return TierMedium
	case total >= 0.25:
		return TierLow
	default:
		return TierPoor
	}
}

// Weights distributes importance across scoring factors. They must sum
// to 1.0.
type Weights struct {
	Size       float64 `json:"size"`
	Speed      float64 `json:"speed"`
	Volume     float64 `json:"volume"`
	Trend      float64 `json:"trend"`
	Distance   float64 `json:"distance"`
	Confluence float64 `json:"confluence"`
	Session    float64 `json:"session"`
}

// DefaultWeights returns the standard factor distribution.
func DefaultWeights() Weights {
	return Weights{
		Size:       0.20,
		Speed:      0.10,
		Volume:     0.10,
		Trend:      0.20,
		Distance:   0.15,
		Confluence: 0.15,
		Session:    0.10,
	}
}

// Validate rejects weight sets that do not sum to 1.0.
func (w Weights) Validate() error {
	sum := w.Size + w.Speed + w.Volume + w.Trend + w.Distance + w.Confluence + w.Session
	if math.Abs(sum-1.0) > 1e-6 {
		return fmt.Errorf("quality weights sum to %.6f, must be 1.0", sum)
	}
	for name, v := range map[string]float64{
		"size": w.Size, "speed": w.Speed, "volume": w.Volume, "trend": w.Trend,
		"distance": w.Distance, "confluence": w.Confluence, "session": w.Session,
	} {
		if v < 0 {
			return fmt.Errorf("quality weight %s is negative", name)
		}
	}
	return nil
}

// Score is a graded pattern.
type Score struct {
	PatternID  string             `json:"pattern_id"`
	Total      float64            `json:"total"`
	Factors    map[string]float64 `json:"factors"`
	Tier       Tier               `json:"tier"`
	Confidence float64            `json:"confidence"`
}

// Scorer grades gap patterns against market context. The zero value is
// not usable; build one with NewScorer.
type Scorer struct {
	weights Weights
	logger  zerolog.Logger
}

// NewScorer validates the weights and builds a Scorer.
func NewScorer(weights Weights, logger zerolog.Logger) (*Scorer, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{
		weights: weights,
		logger:  logger.With().Str("component", "quality_scorer").Logger(),
	}, nil
}

const neutral = 0.5

// Score grades one pattern. Missing context data degrades the affected
// factors to a neutral 0.5 instead of failing the pattern.
func (s *Scorer) Score(p *fvg.GapPattern, mc *analysis.MarketContext, confluenceStrength float64, sess session.Name) Score {
	factors := map[string]float64{
		"size":       s.sizeFactor(p, mc),
		"speed":      s.speedFactor(p, mc),
		"volume":     s.volumeFactor(mc),
		"trend":      s.trendFactor(p, mc),
		"distance":   s.distanceFactor(p, mc),
		"confluence": analysis.Clamp(confluenceStrength, 0, 1),
		"session":    sessionFactor(sess),
	}

	total := factors["size"]*s.weights.Size +
		factors["speed"]*s.weights.Speed +
		factors["volume"]*s.weights.Volume +
		factors["trend"]*s.weights.Trend +
		factors["distance"]*s.weights.Distance +
		factors["confluence"]*s.weights.Confluence +
		factors["session"]*s.weights.Session
	total = analysis.Clamp(total, 0, 1)

	sc := Score{
		PatternID:  p.ID,
		Total:      total,
		Factors:    factors,
		Tier:       TierFor(total),
		Confidence: confidence(factors),
	}
	s.logger.Debug().Str("pattern", p.ID).Float64("total", total).
		Str("tier", string(sc.Tier)).Msg("Pattern scored")
	return sc
}

// ScoreMany grades a batch and returns it sorted by total descending.
// The sort is stable so equal scores keep input order.
func (s *Scorer) ScoreMany(patterns []*fvg.GapPattern, mc *analysis.MarketContext, strengthByID map[string]float64, sess session.Name) []Score {
	scores := make([]Score, 0, len(patterns))
	for _, p := range patterns {
		scores = append(scores, s.Score(p, mc, strengthByID[p.ID], sess))
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Total > scores[j].Total
	})
	return scores
}

// sizeFactor rewards gaps between 0.5x and 2x ATR. Too small is noise,
// too large tends to exhaust the move.
func (s *Scorer) sizeFactor(p *fvg.GapPattern, mc *analysis.MarketContext) float64 {
	if mc == nil || mc.ATR <= 0 {
		return neutral
	}
	ratio := p.Size() / mc.ATR
	switch {
	case ratio < 0.25:
		return 0.2
	case ratio < 0.5:
		return 0.6
	case ratio <= 2.0:
		return 1.0
	case ratio <= 4.0:
		return 0.5
	default:
		return 0.2
	}
}

// speedFactor rewards fresh patterns. Value decays with age measured in
// bars of the pattern's own timeframe.
func (s *Scorer) speedFactor(p *fvg.GapPattern, mc *analysis.MarketContext) float64 {
	if mc == nil {
		return neutral
	}
	age := mc.GeneratedAt.Sub(p.FormedAt)
	if age < 0 {
		return neutral
	}
	bars := float64(age) / float64(p.Timeframe.Duration())
	switch {
	case bars <= 3:
		return 1.0
	case bars <= 10:
		return 0.7
	case bars <= 30:
		return 0.4
	default:
		return 0.1
	}
}

func (s *Scorer) volumeFactor(mc *analysis.MarketContext) float64 {
	if mc == nil || mc.VolumeRatio <= 0 {
		return neutral
	}
	return analysis.Clamp(mc.VolumeRatio/2.0, 0, 1)
}

// trendFactor asks whether the higher timeframe trend agrees with the
// gap direction.
func (s *Scorer) trendFactor(p *fvg.GapPattern, mc *analysis.MarketContext) float64 {
	if mc == nil {
		return neutral
	}
	return mc.TrendScore(p.Direction == fvg.Bullish)
}

// distanceFactor rewards gaps whose midpoint sits within an actionable
// ATR distance from current price. Price inside the gap or close to it
// scores best; far gaps are stale setups.
func (s *Scorer) distanceFactor(p *fvg.GapPattern, mc *analysis.MarketContext) float64 {
	if mc == nil || mc.ATR <= 0 || mc.CurrentPrice <= 0 {
		return neutral
	}
	if p.Contains(mc.CurrentPrice) {
		return 1.0
	}
	dist := math.Abs(mc.CurrentPrice-p.Midpoint()) / mc.ATR
	switch {
	case dist <= 1.0:
		return 0.9
	case dist <= 2.0:
		return 0.6
	case dist <= 4.0:
		return 0.3
	default:
		return 0.1
	}
}

func sessionFactor(sess session.Name) float64 {
	switch sess {
	case session.London:
		return 1.0
	case session.NewYork:
		return 0.9
	case session.Asia:
		return 0.6
	default:
		return 0.3
	}
}

// confidence is high when the factors agree with each other and low
// when they disagree. One minus the normalized standard deviation.
func confidence(factors map[string]float64) float64 {
	if len(factors) == 0 {
		return 0
	}
	vals := make([]float64, 0, len(factors))
	for _, v := range factors {
		vals = append(vals, v)
	}
	sd := analysis.StdDev(vals)
	// Max possible stddev for values in [0,1] is 0.5.
	return analysis.Clamp(1.0-sd/0.5, 0, 1)
}
