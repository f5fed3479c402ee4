package sizing

import (
	"math"

	"github.com/rs/zerolog"

	"mt5-fvg-bot/internal/market"
	"mt5-fvg-bot/internal/quality"
	"mt5-fvg-bot/internal/session"
)

// Volatility is the regime bucket derived from the ATR ratio.
type Volatility string

const (
	VolLow     Volatility = "LOW"
	VolNormal  Volatility = "NORMAL"
	VolHigh    Volatility = "HIGH"
	VolExtreme Volatility = "EXTREME"
)

// VolatilityFor buckets current ATR relative to its recent average.
func VolatilityFor(atrRatio float64) Volatility {
	switch {
	case atrRatio <= 0:
		return VolNormal
	case atrRatio < 0.7:
		return VolLow
	case atrRatio < 1.3:
		return VolNormal
	case atrRatio < 2.0:
		return VolHigh
	default:
		return VolExtreme
	}
}

// Config holds base risk settings.
type Config struct {
	RiskPerTradePct float64 `json:"risk_per_trade_pct"`
	MaxMarginPct    float64 `json:"max_margin_pct"`
	StopATRFloor    float64 `json:"stop_atr_floor"`
}

// DefaultConfig returns the standard 1% risk profile.
func DefaultConfig() Config {
	return Config{
		RiskPerTradePct: 1.0,
		MaxMarginPct:    30.0,
	}
}

// Request carries everything the sizer needs for one trade.
// RiskMultiplier scales the final size per the gate's exposure level;
// zero means no adjustment.
type Request struct {
	Equity          float64
	Spec            market.SymbolSpec
	GapSizePips     float64
	Tier            quality.Tier
	Session         session.Name
	CycleTradeCount int
	Volatility      Volatility
	MarginPerLot    float64
	RiskMultiplier  float64
}

// Result is the sized trade.
type Result struct {
	Lots       float64 `json:"lots"`
	RiskAmount float64 `json:"risk_amount"`
	StopPips   float64 `json:"stop_pips"`
	Multiplier float64 `json:"multiplier"`
	Emergency  bool    `json:"emergency"`
}

// Sizer converts account equity and trade grade into a lot size.
type Sizer struct {
	cfg    Config
	logger zerolog.Logger
}

func NewSizer(cfg Config, logger zerolog.Logger) *Sizer {
	if cfg.RiskPerTradePct <= 0 {
		cfg.RiskPerTradePct = DefaultConfig().RiskPerTradePct
	}
	return &Sizer{
		cfg:    cfg,
		logger: logger.With().Str("component", "position_sizer").Logger(),
	}
}

func tierMultiplier(t quality.Tier) float64 {
	switch t {
	case quality.TierPremium:
		return 1.5
	case quality.TierHigh:
		return 1.2
	case quality.TierMedium:
		return 1.0
	case quality.TierLow:
		return 0.7
	default:
		return 0.5
	}
}

func sessionMultiplier(s session.Name) float64 {
	switch s {
	case session.London:
		return 1.3
	case session.NewYork:
		return 1.2
	case session.Asia:
		return 0.9
	default:
		return 0.7
	}
}

// cycleMultiplier damps exposure as the cycle fills up.
func cycleMultiplier(trades int) float64 {
	switch {
	case trades <= 0:
		return 1.0
	case trades == 1:
		return 0.9
	default:
		return 0.8
	}
}

func volatilityMultiplier(v Volatility) float64 {
	switch v {
	case VolLow:
		return 1.1
	case VolHigh:
		return 0.8
	case VolExtreme:
		return 0.6
	default:
		return 1.0
	}
}

// StopPips derives the protective stop distance from the gap size.
// One and a half gap widths, clamped to a tradable band.
func StopPips(gapSizePips float64) float64 {
	return clamp(gapSizePips*1.5, 15, 50)
}

// Size computes the lot size for a trade. Invalid inputs degrade to an
// emergency minimum-lot result rather than an error, so a sizing bug
// can never produce an oversized order.
func (s *Sizer) Size(req Request) Result {
	mult := tierMultiplier(req.Tier) *
		sessionMultiplier(req.Session) *
		cycleMultiplier(req.CycleTradeCount) *
		volatilityMultiplier(req.Volatility)
	if req.RiskMultiplier > 0 {
		mult *= req.RiskMultiplier
	}

	stopPips := StopPips(req.GapSizePips)
	riskAmount := req.Equity * (s.cfg.RiskPerTradePct / 100.0) * mult

	if invalid(req.Equity) || req.Equity <= 0 ||
		invalid(req.GapSizePips) || req.GapSizePips <= 0 ||
		invalid(riskAmount) || riskAmount <= 0 ||
		req.Spec.PipValue <= 0 {
		s.logger.Error().Float64("equity", req.Equity).
			Float64("gap_pips", req.GapSizePips).
			Msg("Invalid sizing input, falling back to minimum lot")
		return s.emergency(req, stopPips)
	}

	lots := riskAmount / (stopPips * req.Spec.PipValue)

	// Margin ceiling, when the caller knows margin per lot.
	if req.MarginPerLot > 0 && s.cfg.MaxMarginPct > 0 {
		maxByMargin := req.Equity * (s.cfg.MaxMarginPct / 100.0) / req.MarginPerLot
		if lots > maxByMargin {
			lots = maxByMargin
		}
	}

	lots = req.Spec.RoundLots(lots)
	// A computed size below the broker minimum clamps up to the
	// minimum; small accounts still trade their smallest size.
	if lots < req.Spec.MinLot && req.Spec.MinLot > 0 {
		lots = req.Spec.MinLot
	}
	if lots > req.Spec.MaxLot {
		lots = req.Spec.MaxLot
	}

	res := Result{
		Lots:       lots,
		RiskAmount: riskAmount,
		StopPips:   stopPips,
		Multiplier: mult,
	}
	s.logger.Debug().Float64("lots", lots).Float64("stop_pips", stopPips).
		Float64("multiplier", mult).Msg("Position sized")
	return res
}

// emergency is the degraded result: smallest tradable size.
func (s *Sizer) emergency(req Request, stopPips float64) Result {
	minLot := req.Spec.MinLot
	if minLot <= 0 {
		minLot = 0.01
	}
	if invalid(stopPips) || stopPips <= 0 {
		stopPips = 15
	}
	return Result{
		Lots:      minLot,
		StopPips:  stopPips,
		Emergency: true,
	}
}

func invalid(x float64) bool {
	return math.IsNaN(x) || math.IsInf(x, 0)
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
