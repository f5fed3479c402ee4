package signal

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mt5-fvg-bot/internal/analysis"
	"mt5-fvg-bot/internal/fvg"
	"mt5-fvg-bot/internal/market"
	"mt5-fvg-bot/internal/predictor"
	"mt5-fvg-bot/internal/quality"
)

func newTestGenerator(at time.Time) *Generator {
	g := NewGenerator(DefaultConfig(), zerolog.Nop())
	g.SetClock(func() time.Time { return at })
	return g
}

func bullishPattern(id string, formed time.Time) *fvg.GapPattern {
	return &fvg.GapPattern{
		ID:         id,
		Symbol:     "EURUSD",
		Timeframe:  market.M15,
		Direction:  fvg.Bullish,
		LowerBound: 1.0800,
		UpperBound: 1.0820,
		FormedAt:   formed,
	}
}

func passingScore() quality.Score {
	return quality.Score{Total: 0.80, Tier: quality.TierHigh}
}

func passingPrediction() predictor.Prediction {
	return predictor.Prediction{Probability: 0.70, Bucket: predictor.FillMedium}
}

func testContext() *analysis.MarketContext {
	return &analysis.MarketContext{ATR: 0.0010}
}

func TestGeneratePrices(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	g := newTestGenerator(at)
	sig, reason := g.Generate(bullishPattern("p1", at.Add(-time.Hour)), passingScore(), passingPrediction(), testContext())
	if sig == nil {
		t.Fatalf("filtered: %s", reason)
	}
	if math.Abs(sig.Entry-1.0810) > 1e-9 {
		t.Fatalf("entry = %v, want gap midpoint 1.0810", sig.Entry)
	}
	// Stop below the lower bound with a half-ATR buffer.
	if math.Abs(sig.StopLoss-(1.0800-0.0005)) > 1e-9 {
		t.Fatalf("stop = %v, want 1.0795", sig.StopLoss)
	}
	risk := sig.Entry - sig.StopLoss
	wantTPs := [3]float64{sig.Entry + risk*1.5, sig.Entry + risk*2.5, sig.Entry + risk*4.0}
	for i := range wantTPs {
		if math.Abs(sig.TakeProfits[i]-wantTPs[i]) > 1e-9 {
			t.Errorf("tp[%d] = %v, want %v", i, sig.TakeProfits[i], wantTPs[i])
		}
	}
	if sig.Priority != PriorityHigh {
		t.Fatalf("priority = %s, want HIGH", sig.Priority)
	}
	if sig.Status != StatusPending {
		t.Fatalf("status = %s, want PENDING", sig.Status)
	}
	if !sig.ExpiresAt.After(sig.CreatedAt) {
		t.Fatal("signal must expire after creation")
	}
}

func TestGenerateBreakoutEntry(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	// Price already above a bullish gap: enter at the upper edge for
	// the retest instead of deep in the zone.
	g := newTestGenerator(at)
	mc := &analysis.MarketContext{ATR: 0.0010, CurrentPrice: 1.0850}
	sig, reason := g.Generate(bullishPattern("p1", at.Add(-time.Hour)), passingScore(), passingPrediction(), mc)
	if sig == nil {
		t.Fatalf("filtered: %s", reason)
	}
	if math.Abs(sig.Entry-1.0820) > 1e-9 {
		t.Fatalf("entry = %v, want breakout edge 1.0820", sig.Entry)
	}

	// Price still inside the gap keeps the midpoint entry.
	g = newTestGenerator(at)
	mc = &analysis.MarketContext{ATR: 0.0010, CurrentPrice: 1.0812}
	sig, reason = g.Generate(bullishPattern("p2", at.Add(-time.Hour)), passingScore(), passingPrediction(), mc)
	if sig == nil {
		t.Fatalf("filtered: %s", reason)
	}
	if math.Abs(sig.Entry-1.0810) > 1e-9 {
		t.Fatalf("entry = %v, want midpoint 1.0810", sig.Entry)
	}

	// Bearish mirror: price below the gap enters at the lower edge.
	g = newTestGenerator(at)
	bear := bullishPattern("p3", at.Add(-time.Hour))
	bear.Direction = fvg.Bearish
	mc = &analysis.MarketContext{ATR: 0.0010, CurrentPrice: 1.0780}
	sig, reason = g.Generate(bear, passingScore(), passingPrediction(), mc)
	if sig == nil {
		t.Fatalf("filtered: %s", reason)
	}
	if math.Abs(sig.Entry-1.0800) > 1e-9 {
		t.Fatalf("entry = %v, want breakout edge 1.0800", sig.Entry)
	}
}

func TestGenerateBearishMirrors(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	g := newTestGenerator(at)
	p := bullishPattern("p1", at.Add(-time.Hour))
	p.Direction = fvg.Bearish
	sig, reason := g.Generate(p, passingScore(), passingPrediction(), testContext())
	if sig == nil {
		t.Fatalf("filtered: %s", reason)
	}
	if sig.StopLoss <= sig.Entry {
		t.Fatal("bearish stop must sit above entry")
	}
	if sig.TakeProfits[0] >= sig.Entry {
		t.Fatal("bearish targets must sit below entry")
	}
}

func TestGenerateQualityFloor(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	g := newTestGenerator(at)
	score := quality.Score{Total: 0.55, Tier: quality.TierMedium}
	sig, reason := g.Generate(bullishPattern("p1", at), score, passingPrediction(), testContext())
	if sig != nil {
		t.Fatal("expected quality filter")
	}
	if reason != "quality below threshold" {
		t.Fatalf("reason = %q", reason)
	}
}

func TestGenerateProbabilityFloor(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	g := newTestGenerator(at)
	pred := predictor.Prediction{Probability: 0.40, Bucket: predictor.FillLow}
	if sig, _ := g.Generate(bullishPattern("p1", at), passingScore(), pred, testContext()); sig != nil {
		t.Fatal("expected probability filter")
	}
}

func TestGenerateFilledPatternRejected(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	g := newTestGenerator(at)
	p := bullishPattern("p1", at)
	p.Filled = true
	if sig, _ := g.Generate(p, passingScore(), passingPrediction(), testContext()); sig != nil {
		t.Fatal("filled pattern must not produce a signal")
	}
}

func TestGenerateIdempotentPerPattern(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	base := at
	g := NewGenerator(DefaultConfig(), zerolog.Nop())
	g.SetClock(func() time.Time { return base })

	p := bullishPattern("p1", at.Add(-time.Hour))
	if sig, reason := g.Generate(p, passingScore(), passingPrediction(), testContext()); sig == nil {
		t.Fatalf("first call filtered: %s", reason)
	}
	// Outside the cooldown, the same pattern still may not re-signal.
	base = at.Add(2 * time.Hour)
	sig, reason := g.Generate(p, passingScore(), passingPrediction(), testContext())
	if sig != nil {
		t.Fatal("pattern signaled twice")
	}
	if reason != "pattern already signaled" {
		t.Fatalf("reason = %q", reason)
	}
}

func TestGenerateHourlyRateLimit(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	clock := at
	cfg := DefaultConfig()
	cfg.Cooldown = 0
	g := NewGenerator(cfg, zerolog.Nop())
	g.SetClock(func() time.Time { return clock })

	for i := 0; i < 3; i++ {
		p := bullishPattern(string(rune('a'+i)), at.Add(-time.Hour))
		if sig, reason := g.Generate(p, passingScore(), passingPrediction(), testContext()); sig == nil {
			t.Fatalf("signal %d filtered: %s", i, reason)
		}
		clock = clock.Add(time.Minute)
	}
	if sig, reason := g.Generate(bullishPattern("d", at.Add(-time.Hour)), passingScore(), passingPrediction(), testContext()); sig != nil {
		t.Fatal("fourth signal inside the hour should be rate limited")
	} else if reason != "hourly signal limit reached" {
		t.Fatalf("reason = %q", reason)
	}

	// An hour later the window has rolled and generation resumes.
	clock = at.Add(75 * time.Minute)
	if sig, reason := g.Generate(bullishPattern("e", at.Add(-time.Hour)), passingScore(), passingPrediction(), testContext()); sig == nil {
		t.Fatalf("signal after window roll filtered: %s", reason)
	}
}

func TestGenerateDirectionCooldown(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	clock := at
	g := NewGenerator(DefaultConfig(), zerolog.Nop())
	g.SetClock(func() time.Time { return clock })

	if sig, reason := g.Generate(bullishPattern("p1", at.Add(-time.Hour)), passingScore(), passingPrediction(), testContext()); sig == nil {
		t.Fatalf("first filtered: %s", reason)
	}
	clock = clock.Add(10 * time.Minute)
	sig, reason := g.Generate(bullishPattern("p2", at.Add(-time.Hour)), passingScore(), passingPrediction(), testContext())
	if sig != nil {
		t.Fatal("second bullish EURUSD signal inside cooldown should be filtered")
	}
	if reason != "direction cooldown active" {
		t.Fatalf("reason = %q", reason)
	}

	// Opposite direction is a separate cooldown key.
	bear := bullishPattern("p3", at.Add(-time.Hour))
	bear.Direction = fvg.Bearish
	if sig, reason := g.Generate(bear, passingScore(), passingPrediction(), testContext()); sig == nil {
		t.Fatalf("bearish signal filtered: %s", reason)
	}
}

func TestTTLClampedByTimeframe(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	g := newTestGenerator(at)

	p := bullishPattern("p1", at.Add(-time.Hour))
	p.Timeframe = market.M1
	sig, _ := g.Generate(p, passingScore(), passingPrediction(), testContext())
	if sig == nil {
		t.Fatal("filtered")
	}
	if got := sig.ExpiresAt.Sub(sig.CreatedAt); got != 30*time.Minute {
		t.Fatalf("M1 TTL = %v, want the 30m floor", got)
	}
}
