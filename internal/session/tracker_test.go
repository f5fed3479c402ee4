package session

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestTracker(at time.Time) *Tracker {
	tr := NewTracker(DefaultWindows(), DefaultCycleConfig(), zerolog.Nop())
	tr.SetClock(fixedClock(at))
	return tr
}

func TestClassify(t *testing.T) {
	windows := DefaultWindows()
	cases := []struct {
		hour int
		want Name
	}{
		{2, Asia},
		{7, London},
		{12, London},
		{13, NewYork},
		{20, NewYork},
		{22, Off},
	}
	for _, tc := range cases {
		at := time.Date(2026, 3, 2, tc.hour, 0, 0, 0, time.UTC)
		if got := Classify(at, windows); got != tc.want {
			t.Errorf("hour %d: got %s, want %s", tc.hour, got, tc.want)
		}
	}
}

func TestValidateWindowsOverlap(t *testing.T) {
	windows := []Window{
		{Name: Asia, StartHour: 0, EndHour: 8, MaxTrades: 1, RiskBudgetPct: 1},
		{Name: London, StartHour: 7, EndHour: 13, MaxTrades: 1, RiskBudgetPct: 1},
	}
	if err := ValidateWindows(windows); err == nil {
		t.Fatal("expected overlap error")
	}
}

func TestCycleTradeLimit(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	tr := NewTracker([]Window{
		{Name: London, StartHour: 7, EndHour: 13, MaxTrades: 5, RiskBudgetPct: 5, TargetReturnPct: 10},
	}, DefaultCycleConfig(), zerolog.Nop())
	tr.SetClock(fixedClock(at))

	for i := 0; i < 3; i++ {
		if ok, reason := tr.CanTrade(); !ok {
			t.Fatalf("trade %d blocked: %s", i, reason)
		}
		if err := tr.RecordTrade(); err != nil {
			t.Fatalf("trade %d: %v", i, err)
		}
	}
	if ok, _ := tr.CanTrade(); ok {
		t.Fatal("fourth trade should be blocked by cycle limit")
	}
	if got := tr.CycleTradeCount(); got != 3 {
		t.Fatalf("cycle trade count = %d, want 3", got)
	}
}

func TestSessionTradeLimit(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	tr := newTestTracker(at)

	if err := tr.RecordTrade(); err != nil {
		t.Fatal(err)
	}
	ok, reason := tr.CanTrade()
	if ok {
		t.Fatal("second trade in session should be blocked")
	}
	if reason == "" {
		t.Fatal("expected a blocking reason")
	}
}

func TestOutsideSessionBlocked(t *testing.T) {
	at := time.Date(2026, 3, 2, 22, 30, 0, 0, time.UTC)
	tr := newTestTracker(at)
	if ok, _ := tr.CanTrade(); ok {
		t.Fatal("trading outside all sessions should be blocked")
	}
}

func TestCycleRiskLimitImmediateReset(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	tr := newTestTracker(start)

	if err := tr.RecordTrade(); err != nil {
		t.Fatal(err)
	}
	tr.RecordOutcome(London, -2.5)

	if ok, _ := tr.CanTrade(); !ok {
		// roll() resets immediately on risk-limit hit, so a new cycle
		// is active, but the London session itself failed its budget.
		snap := tr.Snapshot()
		cycle := snap["cycle"].(map[string]interface{})
		if cycle["status"] != string(CycleActive) {
			t.Fatalf("cycle not reset after risk limit, status %v", cycle["status"])
		}
		if cycle["trade_count"].(int) != 0 {
			t.Fatalf("new cycle should have no trades, got %v", cycle["trade_count"])
		}
		return
	}
	t.Fatal("expected session budget to block after a -2.5%% outcome")
}

func TestCycleObjectiveDelayedReset(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	tr := newTestTracker(start)

	if err := tr.RecordTrade(); err != nil {
		t.Fatal(err)
	}
	tr.RecordOutcome(London, 3.5)

	if ok, reason := tr.CanTrade(); ok {
		t.Fatalf("expected cycle block after objective, got allowed; reason %q", reason)
	}

	// Twelve hours later a fresh cycle should be running.
	tr.SetClock(fixedClock(start.Add(13 * time.Hour)))
	snap := tr.Snapshot()
	cycle := snap["cycle"].(map[string]interface{})
	if cycle["status"] != string(CycleActive) {
		t.Fatalf("cycle should have reset, status %v", cycle["status"])
	}
}

func TestCycleHorizonExpiry(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	tr := newTestTracker(start)

	if err := tr.RecordTrade(); err != nil {
		t.Fatal(err)
	}
	tr.SetClock(fixedClock(start.Add(25 * time.Hour)))
	snap := tr.Snapshot()
	cycle := snap["cycle"].(map[string]interface{})
	if cycle["status"] != string(CycleActive) {
		t.Fatalf("expired cycle should reset into a fresh one, status %v", cycle["status"])
	}
	if cycle["trade_count"].(int) != 0 {
		t.Fatalf("fresh cycle should have no trades, got %v", cycle["trade_count"])
	}
}

func TestOutcomeConservation(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	tr := newTestTracker(start)

	if err := tr.RecordTrade(); err != nil {
		t.Fatal(err)
	}
	tr.RecordOutcome(London, 0.4)
	tr.RecordOutcome(London, -0.3)

	snap := tr.Snapshot()
	cycle := snap["cycle"].(map[string]interface{})
	got := cycle["realized_pct"].(float64)
	if got < 0.0999 || got > 0.1001 {
		t.Fatalf("cycle realized pct = %v, want 0.1", got)
	}
	sessions := snap["sessions"].(map[string]interface{})
	london := sessions[string(London)].(map[string]interface{})
	sGot := london["realized_pct"].(float64)
	if sGot < 0.0999 || sGot > 0.1001 {
		t.Fatalf("session realized pct = %v, want 0.1", sGot)
	}
}
