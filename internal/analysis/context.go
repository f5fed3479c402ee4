package analysis

import (
	"errors"
	"time"

	"mt5-fvg-bot/internal/market"
)

// Default indicator periods. These follow the common charting defaults
// and can be overridden through ContextConfig.
const (
	defaultATRPeriod   = 14
	defaultRSIPeriod   = 14
	defaultEMAFast     = 20
	defaultEMASlow     = 50
	defaultEMATrend    = 200
	defaultVolPeriod   = 20
	defaultBollinger   = 20
	defaultBollingerSD = 2.0
)

// ErrInsufficientData is returned when the candle window is too small
// to compute a meaningful context.
var ErrInsufficientData = errors.New("not enough candles for market context")

// ContextConfig overrides indicator periods for context building.
type ContextConfig struct {
	ATRPeriod    int
	RSIPeriod    int
	EMAFast      int
	EMASlow      int
	EMATrend     int
	VolumePeriod int
}

func (c *ContextConfig) fill() {
	if c.ATRPeriod <= 0 {
		c.ATRPeriod = defaultATRPeriod
	}
	if c.RSIPeriod <= 0 {
		c.RSIPeriod = defaultRSIPeriod
	}
	if c.EMAFast <= 0 {
		c.EMAFast = defaultEMAFast
	}
	if c.EMASlow <= 0 {
		c.EMASlow = defaultEMASlow
	}
	if c.EMATrend <= 0 {
		c.EMATrend = defaultEMATrend
	}
	if c.VolumePeriod <= 0 {
		c.VolumePeriod = defaultVolPeriod
	}
}

// MarketContext is a snapshot of indicator state for one symbol at one
// moment. Scoring and prediction read from it; nothing mutates it
// after construction.
type MarketContext struct {
	Symbol       string
	Timeframe    market.Timeframe
	CurrentPrice float64
	ATR          float64
	ATRRatio     float64 // short ATR vs long ATR, volatility regime
	EMAFast      float64
	EMASlow      float64
	EMATrend     float64
	RSI          float64
	BollUpper    float64
	BollMiddle   float64
	BollLower    float64
	VolumeRatio  float64 // last bar volume vs average
	GeneratedAt  time.Time
}

// BuildContext computes a MarketContext from an ordered candle window
// and the current price.
func BuildContext(candles []market.Candle, currentPrice float64, cfg ContextConfig) (*MarketContext, error) {
	cfg.fill()
	if !market.ValidSequence(candles, cfg.ATRPeriod+1) {
		return nil, ErrInsufficientData
	}

	last := candles[len(candles)-1]

	atr := ATR(candles, cfg.ATRPeriod)
	longATR := ATR(candles, cfg.ATRPeriod*3)
	atrRatio := 1.0
	if longATR > 0 {
		atrRatio = atr / longATR
	}

	upper, middle, lower := BollingerBands(candles, defaultBollinger, defaultBollingerSD)

	volumeRatio := 1.0
	if avg := AverageVolume(candles, cfg.VolumePeriod); avg > 0 {
		volumeRatio = last.Volume / avg
	}

	return &MarketContext{
		Symbol:       last.Symbol,
		Timeframe:    last.Timeframe,
		CurrentPrice: currentPrice,
		ATR:          atr,
		ATRRatio:     atrRatio,
		EMAFast:      EMA(candles, cfg.EMAFast),
		EMASlow:      EMA(candles, cfg.EMASlow),
		EMATrend:     EMA(candles, cfg.EMATrend),
		RSI:          RSI(candles, cfg.RSIPeriod),
		BollUpper:    upper,
		BollMiddle:   middle,
		BollLower:    lower,
		VolumeRatio:  volumeRatio,
		GeneratedAt:  time.Now().UTC(),
	}, nil
}

// Stale reports whether the context is older than maxAge.
func (mc *MarketContext) Stale(maxAge time.Duration) bool {
	return time.Since(mc.GeneratedAt) > maxAge
}

// TrendScore returns 0..1 alignment between the requested direction
// and the EMA stack. A fully ordered EMA stack in the direction scores
// 1, fully inverted scores 0.
func (mc *MarketContext) TrendScore(bullish bool) float64 {
	score := 0.0
	if bullish {
		if mc.EMAFast > mc.EMASlow {
			score += 0.5
		}
		if mc.EMASlow > mc.EMATrend {
			score += 0.3
		}
		if mc.CurrentPrice > mc.EMAFast {
			score += 0.2
		}
	} else {
		if mc.EMAFast < mc.EMASlow {
			score += 0.5
		}
		if mc.EMASlow < mc.EMATrend {
			score += 0.3
		}
		if mc.CurrentPrice < mc.EMAFast {
			score += 0.2
		}
	}
	return score
}

// EMASpread returns the fast/slow EMA spread normalized by price, a
// signed trend-strength measure.
func (mc *MarketContext) EMASpread() float64 {
	if mc.EMASlow == 0 {
		return 0
	}
	return (mc.EMAFast - mc.EMASlow) / mc.EMASlow * 100
}

// BollingerPosition returns the current price position within the
// bands, -1 at the lower band, +1 at the upper band.
func (mc *MarketContext) BollingerPosition() float64 {
	if mc.BollUpper == mc.BollMiddle {
		return 0
	}
	return (mc.CurrentPrice - mc.BollMiddle) / (mc.BollUpper - mc.BollMiddle)
}
