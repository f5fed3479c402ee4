package sizing

import (
	"math"
	"testing"

	"github.com/rs/zerolog"

	"mt5-fvg-bot/internal/market"
	"mt5-fvg-bot/internal/quality"
	"mt5-fvg-bot/internal/session"
)

func newTestSizer() *Sizer {
	return NewSizer(DefaultConfig(), zerolog.Nop())
}

func TestVolatilityFor(t *testing.T) {
	cases := []struct {
		ratio float64
		want  Volatility
	}{
		{0.5, VolLow},
		{1.0, VolNormal},
		{1.5, VolHigh},
		{2.5, VolExtreme},
		{0, VolNormal},
	}
	for _, tc := range cases {
		if got := VolatilityFor(tc.ratio); got != tc.want {
			t.Errorf("VolatilityFor(%v) = %s, want %s", tc.ratio, got, tc.want)
		}
	}
}

func TestStopPipsClamp(t *testing.T) {
	cases := []struct {
		gap, want float64
	}{
		{5, 15},  // 7.5 clamped up
		{20, 30}, // inside the band
		{50, 50}, // 75 clamped down
	}
	for _, tc := range cases {
		if got := StopPips(tc.gap); got != tc.want {
			t.Errorf("StopPips(%v) = %v, want %v", tc.gap, got, tc.want)
		}
	}
}

// A HIGH tier London trade with no cycle load on a 10k account risks
// 100 * 1.2 * 1.3 = 156 over a 30 pip stop, which is 0.52 lots.
func TestSizeReferenceScenario(t *testing.T) {
	s := newTestSizer()
	res := s.Size(Request{
		Equity:          10000,
		Spec:            market.DefaultSpec("EURUSD"),
		GapSizePips:     20,
		Tier:            quality.TierHigh,
		Session:         session.London,
		CycleTradeCount: 0,
		Volatility:      VolNormal,
	})
	if res.Emergency {
		t.Fatal("unexpected emergency sizing")
	}
	if res.StopPips != 30 {
		t.Fatalf("stop pips = %v, want 30", res.StopPips)
	}
	if math.Abs(res.Lots-0.52) > 1e-9 {
		t.Fatalf("lots = %v, want 0.52", res.Lots)
	}
	if math.Abs(res.Multiplier-1.56) > 1e-9 {
		t.Fatalf("multiplier = %v, want 1.56", res.Multiplier)
	}
}

func TestSizeCycleDamping(t *testing.T) {
	s := newTestSizer()
	base := Request{
		Equity:      10000,
		Spec:        market.DefaultSpec("EURUSD"),
		GapSizePips: 20,
		Tier:        quality.TierMedium,
		Session:     session.London,
		Volatility:  VolNormal,
	}
	fresh := s.Size(base)
	base.CycleTradeCount = 2
	damped := s.Size(base)
	if damped.Lots >= fresh.Lots {
		t.Fatalf("late-cycle trade (%v lots) should be smaller than first (%v lots)", damped.Lots, fresh.Lots)
	}
	if math.Abs(damped.Multiplier/fresh.Multiplier-0.8) > 1e-9 {
		t.Fatalf("cycle damping = %v, want 0.8", damped.Multiplier/fresh.Multiplier)
	}
}

func TestSizeExtremeVolatilityCut(t *testing.T) {
	s := newTestSizer()
	req := Request{
		Equity:      10000,
		Spec:        market.DefaultSpec("EURUSD"),
		GapSizePips: 20,
		Tier:        quality.TierMedium,
		Session:     session.NewYork,
		Volatility:  VolExtreme,
	}
	res := s.Size(req)
	req.Volatility = VolNormal
	normal := s.Size(req)
	if res.Lots >= normal.Lots {
		t.Fatal("extreme volatility should cut size")
	}
}

func TestSizeRiskLevelDamping(t *testing.T) {
	s := newTestSizer()
	base := Request{
		Equity:      10000,
		Spec:        market.DefaultSpec("EURUSD"),
		GapSizePips: 20,
		Tier:        quality.TierMedium,
		Session:     session.London,
		Volatility:  VolNormal,
	}
	fresh := s.Size(base)
	base.RiskMultiplier = 0.75
	damped := s.Size(base)
	if damped.Lots >= fresh.Lots {
		t.Fatalf("reduced risk level (%v lots) should size below normal (%v lots)", damped.Lots, fresh.Lots)
	}
	if math.Abs(damped.Multiplier/fresh.Multiplier-0.75) > 1e-9 {
		t.Fatalf("risk damping = %v, want 0.75", damped.Multiplier/fresh.Multiplier)
	}
}

// A tiny account computes less than one minimum lot. That clamps up to
// the broker minimum instead of degrading to the emergency path, which
// is reserved for invalid inputs.
func TestSizeSmallAccountClampsToMinLot(t *testing.T) {
	s := newTestSizer()
	res := s.Size(Request{
		Equity:      100,
		Spec:        market.DefaultSpec("EURUSD"),
		GapSizePips: 20,
		Tier:        quality.TierPoor,
		Session:     session.Off,
		Volatility:  VolNormal,
	})
	if res.Emergency {
		t.Fatal("small account must not trip emergency sizing")
	}
	if res.Lots != market.DefaultSpec("EURUSD").MinLot {
		t.Fatalf("lots = %v, want min lot %v", res.Lots, market.DefaultSpec("EURUSD").MinLot)
	}
}

func TestSizeInvalidInputEmergency(t *testing.T) {
	s := newTestSizer()
	spec := market.DefaultSpec("EURUSD")
	cases := []Request{
		{Equity: math.NaN(), Spec: spec, GapSizePips: 20},
		{Equity: -500, Spec: spec, GapSizePips: 20},
		{Equity: 10000, Spec: spec, GapSizePips: 0},
		{Equity: 10000, Spec: spec, GapSizePips: math.Inf(1)},
	}
	for i, req := range cases {
		req.Tier = quality.TierMedium
		req.Session = session.London
		res := s.Size(req)
		if !res.Emergency {
			t.Errorf("case %d: expected emergency sizing", i)
		}
		if res.Lots != spec.MinLot {
			t.Errorf("case %d: lots = %v, want min lot %v", i, res.Lots, spec.MinLot)
		}
		if math.IsNaN(res.StopPips) || res.StopPips <= 0 {
			t.Errorf("case %d: stop pips = %v", i, res.StopPips)
		}
	}
}

func TestSizeMarginCeiling(t *testing.T) {
	s := newTestSizer()
	res := s.Size(Request{
		Equity:       10000,
		Spec:         market.DefaultSpec("EURUSD"),
		GapSizePips:  20,
		Tier:         quality.TierPremium,
		Session:      session.London,
		Volatility:   VolLow,
		MarginPerLot: 100000, // margin allows at most 0.03 lots
	})
	if res.Lots > 0.03+1e-9 {
		t.Fatalf("lots = %v exceeds margin ceiling", res.Lots)
	}
}

func TestSizeMaxLotClamp(t *testing.T) {
	s := NewSizer(Config{RiskPerTradePct: 50}, zerolog.Nop())
	res := s.Size(Request{
		Equity:      1000000,
		Spec:        market.DefaultSpec("EURUSD"),
		GapSizePips: 10,
		Tier:        quality.TierPremium,
		Session:     session.London,
		Volatility:  VolLow,
	})
	if res.Lots > market.DefaultSpec("EURUSD").MaxLot {
		t.Fatalf("lots = %v exceeds max lot", res.Lots)
	}
}
