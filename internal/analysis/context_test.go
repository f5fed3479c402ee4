package analysis

import (
	"errors"
	"testing"
	"time"

	"mt5-fvg-bot/internal/market"
)

func TestBuildContextFlatSeries(t *testing.T) {
	candles := flatCandles(60, 1.0850, 0.0010, 1200)

	mc, err := BuildContext(candles, 1.0852, ContextConfig{
		ATRPeriod: 5, RSIPeriod: 5, EMAFast: 5, EMASlow: 10, EMATrend: 20, VolumePeriod: 10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if mc.Symbol != "EURUSD" || mc.Timeframe != market.M15 {
		t.Errorf("context should carry series identity, got %s %s", mc.Symbol, mc.Timeframe)
	}
	if mc.CurrentPrice != 1.0852 {
		t.Errorf("expected current price 1.0852, got %v", mc.CurrentPrice)
	}
	if !almostEqual(mc.ATR, 0.0010) {
		t.Errorf("expected ATR 0.0010, got %v", mc.ATR)
	}
	if !almostEqual(mc.ATRRatio, 1.0) {
		t.Errorf("uniform volatility should give ratio 1, got %v", mc.ATRRatio)
	}
	if !almostEqual(mc.EMAFast, 1.0850) || !almostEqual(mc.EMASlow, 1.0850) {
		t.Errorf("flat closes should pin the EMAs, got %v %v", mc.EMAFast, mc.EMASlow)
	}
	if !almostEqual(mc.VolumeRatio, 1.0) {
		t.Errorf("uniform volume should give ratio 1, got %v", mc.VolumeRatio)
	}
	if mc.GeneratedAt.IsZero() {
		t.Error("GeneratedAt must be stamped")
	}
}

func TestBuildContextInsufficientData(t *testing.T) {
	candles := flatCandles(3, 1.0850, 0.0010, 1000)
	_, err := BuildContext(candles, 1.0852, ContextConfig{ATRPeriod: 14})
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestBuildContextRejectsMixedSeries(t *testing.T) {
	candles := flatCandles(20, 1.0850, 0.0010, 1000)
	candles[10].Symbol = "GBPUSD"
	_, err := BuildContext(candles, 1.0852, ContextConfig{ATRPeriod: 5})
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData for mixed symbols, got %v", err)
	}
}

func TestTrendScore(t *testing.T) {
	aligned := &MarketContext{CurrentPrice: 1.09, EMAFast: 1.088, EMASlow: 1.085, EMATrend: 1.080}
	inverted := &MarketContext{CurrentPrice: 1.07, EMAFast: 1.080, EMASlow: 1.085, EMATrend: 1.090}

	if got := aligned.TrendScore(true); got != 1.0 {
		t.Errorf("ordered bullish stack should score 1.0, got %v", got)
	}
	if got := aligned.TrendScore(false); got != 0.0 {
		t.Errorf("bearish read of a bullish stack should score 0, got %v", got)
	}
	if got := inverted.TrendScore(false); got != 1.0 {
		t.Errorf("ordered bearish stack should score 1.0, got %v", got)
	}

	// Fast above slow but slow below trend and price below fast: only
	// the dominant component contributes.
	partial := &MarketContext{CurrentPrice: 1.084, EMAFast: 1.086, EMASlow: 1.085, EMATrend: 1.090}
	if got := partial.TrendScore(true); !almostEqual(got, 0.5) {
		t.Errorf("expected partial score 0.5, got %v", got)
	}
}

func TestEMASpread(t *testing.T) {
	mc := &MarketContext{EMAFast: 1.10, EMASlow: 1.00}
	if got := mc.EMASpread(); !almostEqual(got, 10.0) {
		t.Errorf("expected spread 10%%, got %v", got)
	}
	zero := &MarketContext{EMAFast: 1.10, EMASlow: 0}
	if got := zero.EMASpread(); got != 0 {
		t.Errorf("expected 0 with zero slow EMA, got %v", got)
	}
}

func TestBollingerPosition(t *testing.T) {
	mc := &MarketContext{BollUpper: 1.09, BollMiddle: 1.08, BollLower: 1.07}

	tests := []struct {
		price float64
		want  float64
	}{
		{1.09, 1.0},
		{1.08, 0.0},
		{1.07, -1.0},
		{1.085, 0.5},
	}
	for _, tt := range tests {
		mc.CurrentPrice = tt.price
		if got := mc.BollingerPosition(); !almostEqual(got, tt.want) {
			t.Errorf("position at %v = %v, want %v", tt.price, got, tt.want)
		}
	}

	flat := &MarketContext{BollUpper: 1.08, BollMiddle: 1.08, BollLower: 1.08, CurrentPrice: 1.09}
	if got := flat.BollingerPosition(); got != 0 {
		t.Errorf("collapsed bands should give 0, got %v", got)
	}
}

func TestStale(t *testing.T) {
	fresh := &MarketContext{GeneratedAt: time.Now().UTC()}
	if fresh.Stale(time.Minute) {
		t.Error("fresh context reported stale")
	}
	old := &MarketContext{GeneratedAt: time.Now().UTC().Add(-2 * time.Hour)}
	if !old.Stale(time.Minute) {
		t.Error("two-hour-old context not reported stale")
	}
}
