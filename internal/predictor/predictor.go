package predictor

import (
	"math"

	"github.com/rs/zerolog"

	"mt5-fvg-bot/internal/analysis"
	"mt5-fvg-bot/internal/fvg"
	"mt5-fvg-bot/internal/session"
)

// Bucket classifies a fill probability.
type Bucket string

const (
	FillHigh   Bucket = "FILL_HIGH"
	FillMedium Bucket = "FILL_MEDIUM"
	FillLow    Bucket = "FILL_LOW"
	NoFill     Bucket = "NO_FILL"
)

// BucketFor maps a probability to its bucket.
func BucketFor(p float64) Bucket {
	switch {
	case p >= 0.75:
		return FillHigh
	case p >= 0.50:
		return FillMedium
	case p >= 0.25:
		return FillLow
	default:
		return NoFill
	}
}

// Prediction is the fill estimate for one pattern.
type Prediction struct {
	PatternID   string  `json:"pattern_id"`
	Probability float64 `json:"probability"`
	Bucket      Bucket  `json:"bucket"`
	Confidence  float64 `json:"confidence"`
	Source      string  `json:"source"` // "model" or "heuristic"
}

// Predictor estimates gap fill probability, from a trained model when
// one is loaded and from a gap-to-ATR ladder when not. Predict never
// fails; a degraded estimate beats a blocked pipeline.
type Predictor struct {
	model  *Model
	logger zerolog.Logger
}

// New builds a Predictor. model may be nil.
func New(model *Model, logger zerolog.Logger) *Predictor {
	return &Predictor{
		model:  model,
		logger: logger.With().Str("component", "fill_predictor").Logger(),
	}
}

// HasModel reports whether a trained model is loaded.
func (pr *Predictor) HasModel() bool { return pr.model != nil }

// Predict estimates the probability that a gap fills.
func (pr *Predictor) Predict(p *fvg.GapPattern, mc *analysis.MarketContext, confluence float64, sess session.Name) Prediction {
	var prob float64
	source := "model"
	if pr.model != nil {
		prob = pr.model.Probability(FeatureVector(p, mc, confluence, sess))
	} else {
		prob = heuristicProbability(p, mc)
		source = "heuristic"
	}
	prob = analysis.Clamp(prob, 0, 1)

	out := Prediction{
		PatternID:   p.ID,
		Probability: prob,
		Bucket:      BucketFor(prob),
		// Distance from the decision boundary, scaled to [0,1].
		Confidence: math.Abs(prob-0.5) * 2,
		Source:     source,
	}
	pr.logger.Debug().Str("pattern", p.ID).Float64("probability", prob).
		Str("bucket", string(out.Bucket)).Str("source", source).Msg("Fill predicted")
	return out
}

// heuristicProbability is the no-model fallback. Smaller gaps relative
// to volatility fill more often.
func heuristicProbability(p *fvg.GapPattern, mc *analysis.MarketContext) float64 {
	if mc == nil || mc.ATR <= 0 {
		return 0.5
	}
	ratio := p.Size() / mc.ATR
	switch {
	case ratio < 0.5:
		return 0.8
	case ratio < 1.0:
		return 0.6
	case ratio < 2.0:
		return 0.4
	default:
		return 0.2
	}
}
