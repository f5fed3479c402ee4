package signal

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mt5-fvg-bot/internal/analysis"
	"mt5-fvg-bot/internal/fvg"
	"mt5-fvg-bot/internal/predictor"
	"mt5-fvg-bot/internal/quality"
)

// Config gates and shapes signal generation.
type Config struct {
	MinQuality      float64       `json:"min_quality"`
	MinProbability  float64       `json:"min_probability"`
	MaxPerHour      int           `json:"max_per_hour"`
	Cooldown        time.Duration `json:"cooldown"`
	StopATRBuffer   float64       `json:"stop_atr_buffer"`
	RiskRewardTiers [3]float64    `json:"risk_reward_tiers"`
	MinTTL          time.Duration `json:"min_ttl"`
	MaxTTL          time.Duration `json:"max_ttl"`
}

// DefaultConfig returns the standard generation gates.
func DefaultConfig() Config {
	return Config{
		MinQuality:      0.60,
		MinProbability:  0.55,
		MaxPerHour:      3,
		Cooldown:        30 * time.Minute,
		StopATRBuffer:   0.5,
		RiskRewardTiers: [3]float64{1.5, 2.5, 4.0},
		MinTTL:          30 * time.Minute,
		MaxTTL:          24 * time.Hour,
	}
}

// Generator turns graded patterns into trade signals. It enforces the
// quality and probability floors, an hourly rate limit, a per-direction
// cooldown, and emits at most one signal per pattern.
type Generator struct {
	mu       sync.Mutex
	cfg      Config
	signaled map[string]string    // pattern ID -> signal ID
	recent   []time.Time          // emission times inside the rate window
	cooldown map[string]time.Time // symbol+direction -> last emission
	now      func() time.Time
	logger   zerolog.Logger
}

// NewGenerator builds a Generator.
func NewGenerator(cfg Config, logger zerolog.Logger) *Generator {
	return &Generator{
		cfg:      cfg,
		signaled: make(map[string]string),
		cooldown: make(map[string]time.Time),
		now:      time.Now,
		logger:   logger.With().Str("component", "signal_generator").Logger(),
	}
}

// SetClock overrides the time source. Intended for tests.
func (g *Generator) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
}

// Generate evaluates one graded pattern. It returns the signal and an
// empty reason on success, or nil and the reason the pattern was
// filtered.
func (g *Generator) Generate(p *fvg.GapPattern, score quality.Score, pred predictor.Prediction, mc *analysis.MarketContext) (*TradeSignal, string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if p.Filled {
		return nil, "pattern already filled"
	}
	if _, ok := g.signaled[p.ID]; ok {
		return nil, "pattern already signaled"
	}
	if score.Total < g.cfg.MinQuality {
		return nil, "quality below threshold"
	}
	if pred.Probability < g.cfg.MinProbability {
		return nil, "fill probability below threshold"
	}

	g.pruneRecent(now)
	if len(g.recent) >= g.cfg.MaxPerHour {
		return nil, "hourly signal limit reached"
	}
	key := p.Symbol + "|" + string(p.Direction)
	if last, ok := g.cooldown[key]; ok && now.Sub(last) < g.cfg.Cooldown {
		return nil, "direction cooldown active"
	}

	sig := g.build(p, score, pred, mc, now)
	g.signaled[p.ID] = sig.ID
	g.recent = append(g.recent, now)
	g.cooldown[key] = now

	g.logger.Info().Str("signal", sig.ID).Str("pattern", p.ID).
		Str("symbol", p.Symbol).Str("direction", string(p.Direction)).
		Float64("entry", sig.Entry).Float64("stop", sig.StopLoss).
		Str("priority", sig.Priority.String()).Msg("Signal generated")
	return sig, ""
}

// build constructs prices and metadata for an approved pattern.
func (g *Generator) build(p *fvg.GapPattern, score quality.Score, pred predictor.Prediction, mc *analysis.MarketContext, now time.Time) *TradeSignal {
	atr := 0.0
	if mc != nil {
		atr = mc.ATR
	}
	buffer := atr * g.cfg.StopATRBuffer

	// Entry at the gap midpoint while price can still retrace into the
	// zone. When price has already broken past the gap, the entry moves
	// to the near edge for the retest. Stop sits beyond the far edge.
	entry := p.Midpoint()
	var stop float64
	if p.Direction == fvg.Bullish {
		if mc != nil && mc.CurrentPrice > p.UpperBound {
			entry = p.UpperBound
		}
		stop = p.LowerBound - buffer
	} else {
		if mc != nil && mc.CurrentPrice > 0 && mc.CurrentPrice < p.LowerBound {
			entry = p.LowerBound
		}
		stop = p.UpperBound + buffer
	}

	risk := entry - stop
	if risk < 0 {
		risk = -risk
	}
	var tps [3]float64
	for i, rr := range g.cfg.RiskRewardTiers {
		if p.Direction == fvg.Bullish {
			tps[i] = entry + risk*rr
		} else {
			tps[i] = entry - risk*rr
		}
	}

	return &TradeSignal{
		ID:              uuid.New().String(),
		PatternID:       p.ID,
		Symbol:          p.Symbol,
		Timeframe:       p.Timeframe,
		Direction:       p.Direction,
		Entry:           entry,
		StopLoss:        stop,
		TakeProfits:     tps,
		QualityScore:    score.Total,
		QualityTier:     score.Tier,
		FillProbability: pred.Probability,
		FillBucket:      pred.Bucket,
		Priority:        priorityFor(score.Tier, pred.Bucket),
		Status:          StatusPending,
		CreatedAt:       now,
		ExpiresAt:       now.Add(g.ttl(p)),
	}
}

// ttl scales signal validity with the pattern's timeframe, clamped to
// the configured band.
func (g *Generator) ttl(p *fvg.GapPattern) time.Duration {
	ttl := p.Timeframe.Duration() * 8
	if ttl < g.cfg.MinTTL {
		ttl = g.cfg.MinTTL
	}
	if ttl > g.cfg.MaxTTL {
		ttl = g.cfg.MaxTTL
	}
	return ttl
}

func priorityFor(tier quality.Tier, bucket predictor.Bucket) Priority {
	switch {
	case tier == quality.TierPremium && bucket == predictor.FillHigh:
		return PriorityUrgent
	case tier == quality.TierPremium || tier == quality.TierHigh:
		return PriorityHigh
	case tier == quality.TierMedium:
		return PriorityNormal
	default:
		return PriorityLow
	}
}

// pruneRecent drops emissions older than one hour. Caller holds the
// lock.
func (g *Generator) pruneRecent(now time.Time) {
	cutoff := now.Add(-time.Hour)
	kept := g.recent[:0]
	for _, t := range g.recent {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	g.recent = kept
}

// SignaledCount reports how many patterns have produced signals.
func (g *Generator) SignaledCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.signaled)
}

// Snapshot returns generator state for dashboards.
func (g *Generator) Snapshot() map[string]interface{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pruneRecent(g.now())
	return map[string]interface{}{
		"signaled_patterns": len(g.signaled),
		"recent_signals":    len(g.recent),
		"max_per_hour":      g.cfg.MaxPerHour,
	}
}
