package risk

import (
	"testing"

	"github.com/rs/zerolog"
)

func newTestGate() *Gate {
	return NewGate(DefaultConfig(), zerolog.Nop())
}

func TestCheckDisabled(t *testing.T) {
	g := newTestGate()
	g.SetEnabled(false)
	ok, reason := g.Check("EURUSD", 0.9)
	if ok {
		t.Fatal("disabled gate should block")
	}
	if reason != "trading disabled" {
		t.Fatalf("reason = %q", reason)
	}
}

func TestCheckMaxOpenPositions(t *testing.T) {
	g := newTestGate()
	for _, s := range []string{"EURUSD", "GBPUSD", "USDJPY"} {
		if ok, reason := g.Check(s, 0.9); !ok {
			t.Fatalf("%s blocked: %s", s, reason)
		}
		g.RegisterOpen(s)
	}
	if ok, _ := g.Check("AUDUSD", 0.9); ok {
		t.Fatal("fourth position should be blocked")
	}
	g.RegisterClose("GBPUSD")
	if ok, reason := g.Check("AUDUSD", 0.9); !ok {
		t.Fatalf("slot freed but still blocked: %s", reason)
	}
}

func TestCheckPerSymbolLimit(t *testing.T) {
	g := newTestGate()
	g.RegisterOpen("EURUSD")
	if ok, _ := g.Check("EURUSD", 0.9); ok {
		t.Fatal("second EURUSD position should be blocked")
	}
	if ok, reason := g.Check("GBPUSD", 0.9); !ok {
		t.Fatalf("other symbol blocked: %s", reason)
	}
}

func TestCheckMinStrength(t *testing.T) {
	g := newTestGate()
	if ok, _ := g.Check("EURUSD", 0.2); ok {
		t.Fatal("weak signal should be blocked")
	}
}

func TestCheckOrderFirstFailureWins(t *testing.T) {
	g := newTestGate()
	g.SetEnabled(false)
	// Disabled outranks the weak signal in the reported reason.
	_, reason := g.Check("EURUSD", 0.1)
	if reason != "trading disabled" {
		t.Fatalf("reason = %q, want the disabled check first", reason)
	}
}

func TestLevelLattice(t *testing.T) {
	if got := MoreConservative(LevelNormal, LevelMinimal); got != LevelMinimal {
		t.Fatalf("MoreConservative = %s", got)
	}
	if got := MoreConservative(LevelBlocked, LevelReduced); got != LevelBlocked {
		t.Fatalf("MoreConservative = %s", got)
	}
}

func TestLevelFor(t *testing.T) {
	g := newTestGate()
	if got := g.LevelFor(0.9); got != LevelNormal {
		t.Fatalf("fresh gate strong signal: %s, want NORMAL", got)
	}
	if got := g.LevelFor(0.4); got != LevelReduced {
		t.Fatalf("weak-ish signal: %s, want REDUCED", got)
	}
	if got := g.LevelFor(0.1); got != LevelBlocked {
		t.Fatalf("below-minimum signal: %s, want BLOCKED", got)
	}
	g.RegisterOpen("EURUSD")
	g.RegisterOpen("GBPUSD")
	if got := g.LevelFor(0.9); got != LevelReduced {
		t.Fatalf("loaded gate: %s, want REDUCED", got)
	}
}

func TestSizeMultiplierByLevel(t *testing.T) {
	cases := []struct {
		level Level
		want  float64
	}{
		{LevelNormal, 1.0},
		{LevelReduced, 0.75},
		{LevelMinimal, 0.5},
		{LevelBlocked, 0},
	}
	for _, tc := range cases {
		if got := tc.level.SizeMultiplier(); got != tc.want {
			t.Errorf("%s.SizeMultiplier() = %v, want %v", tc.level, got, tc.want)
		}
	}
}

func TestRegisterCloseUnderflow(t *testing.T) {
	g := newTestGate()
	g.RegisterClose("EURUSD") // must not panic or go negative
	if n := g.OpenPositions(); n != 0 {
		t.Fatalf("open positions = %d, want 0", n)
	}
}
