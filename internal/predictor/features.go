package predictor

import (
	"mt5-fvg-bot/internal/analysis"
	"mt5-fvg-bot/internal/fvg"
	"mt5-fvg-bot/internal/session"
)

// FeatureNames fixes the order of the model's input vector. Training
// and inference must agree on this order, so it lives here and nowhere
// else.
var FeatureNames = []string{
	"gap_atr_ratio",
	"gap_pct",
	"age_bars",
	"distance_atr",
	"atr_ratio",
	"ema_spread",
	"volume_ratio",
	"rsi",
	"boll_position",
	"trend_alignment",
	"confluence",
	"session_weight",
}

// FeatureVector builds the model input for one pattern. Missing
// context data falls back to neutral values rather than erroring, so
// inference stays available when an indicator window is short.
func FeatureVector(p *fvg.GapPattern, mc *analysis.MarketContext, confluence float64, sess session.Name) []float64 {
	v := make([]float64, len(FeatureNames))

	var (
		gapATR   = 1.0
		gapPct   = 0.0
		ageBars  = 0.0
		distATR  = 0.0
		atrRatio = 1.0
		emaSprd  = 0.0
		volRatio = 1.0
		rsi      = 50.0
		bollPos  = 0.5
		align    = 0.0
	)
	if p != nil {
		if p.Midpoint() > 0 {
			gapPct = p.Size() / p.Midpoint() * 100
		}
	}
	if mc != nil && p != nil {
		if mc.ATR > 0 {
			gapATR = p.Size() / mc.ATR
			distATR = absF(mc.CurrentPrice-p.Midpoint()) / mc.ATR
		}
		if age := mc.GeneratedAt.Sub(p.FormedAt); age > 0 {
			ageBars = float64(age) / float64(p.Timeframe.Duration())
		}
		atrRatio = mc.ATRRatio
		emaSprd = mc.EMASpread()
		volRatio = mc.VolumeRatio
		rsi = mc.RSI
		bollPos = mc.BollingerPosition()
		if mc.TrendScore(p.Direction == fvg.Bullish) >= 0.5 {
			align = 1.0
		} else {
			align = -1.0
		}
	}

	v[0] = gapATR
	v[1] = gapPct
	v[2] = ageBars
	v[3] = distATR
	v[4] = atrRatio
	v[5] = emaSprd
	v[6] = volRatio
	v[7] = rsi
	v[8] = bollPos
	v[9] = align
	v[10] = analysis.Clamp(confluence, 0, 1)
	v[11] = sessionWeight(sess)
	return v
}

func sessionWeight(sess session.Name) float64 {
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

func absF(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
