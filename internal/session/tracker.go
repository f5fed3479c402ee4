package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// windowState is the mutable per-session state for the current day.
type windowState struct {
	Status      Status
	TradeCount  int
	RealizedPct float64
	Day         int // yearday, to detect rollover
}

// Tracker owns the session windows and the active trading cycle. All
// entry points take the lock, so budget checks and trade recording are
// consistent under concurrent pipelines.
type Tracker struct {
	mu      sync.Mutex
	windows []Window
	cycle   *Cycle
	cfg     CycleConfig
	states  map[Name]*windowState
	now     func() time.Time
	logger  zerolog.Logger
}

// NewTracker builds a Tracker. Windows must already be validated.
func NewTracker(windows []Window, cfg CycleConfig, logger zerolog.Logger) *Tracker {
	t := &Tracker{
		windows: windows,
		cfg:     cfg,
		states:  make(map[Name]*windowState, len(windows)),
		now:     time.Now,
		logger:  logger.With().Str("component", "session_tracker").Logger(),
	}
	t.cycle = newCycle(t.now())
	return t
}

// SetClock overrides the time source. Intended for tests.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// Current returns the session active at the tracker's current time.
func (t *Tracker) Current() Name {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Classify(t.now(), t.windows)
}

// CycleTradeCount returns the number of trades recorded in the active
// cycle. Used by the sizer to damp late-cycle exposure.
func (t *Tracker) CycleTradeCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.roll()
	return t.cycle.TradeCount
}

// CanTrade reports whether a new trade is allowed right now, and the
// blocking reason when it is not.
func (t *Tracker) CanTrade() (bool, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.roll()

	now := t.now()
	if t.cycle.terminal() {
		return false, fmt.Sprintf("cycle %s, awaiting reset", t.cycle.Status)
	}
	if t.cycle.TradeCount >= t.cfg.MaxTrades {
		return false, fmt.Sprintf("cycle trade limit reached (%d/%d)", t.cycle.TradeCount, t.cfg.MaxTrades)
	}

	name := Classify(now, t.windows)
	if name == Off {
		return false, "outside trading sessions"
	}
	w, ws := t.window(name)
	switch ws.Status {
	case StatusFailed:
		return false, fmt.Sprintf("session %s risk budget exhausted", name)
	case StatusCompleted:
		return false, fmt.Sprintf("session %s target already achieved", name)
	}
	if ws.TradeCount >= w.MaxTrades {
		return false, fmt.Sprintf("session %s trade limit reached (%d/%d)", name, ws.TradeCount, w.MaxTrades)
	}
	return true, ""
}

// RecordTrade registers an executed trade against the active session
// and cycle. Call it at execution time, before the outcome is known.
func (t *Tracker) RecordTrade() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.roll()

	if t.cycle.terminal() {
		return fmt.Errorf("cycle is %s", t.cycle.Status)
	}
	name := Classify(t.now(), t.windows)
	if name == Off {
		return fmt.Errorf("no active session")
	}
	_, ws := t.window(name)
	ws.Status = StatusActive
	ws.TradeCount++
	t.cycle.TradeCount++
	t.logger.Info().Str("session", string(name)).
		Int("session_trades", ws.TradeCount).
		Int("cycle_trades", t.cycle.TradeCount).
		Msg("Trade recorded")
	return nil
}

// RecordOutcome applies a realized PnL percentage to the session it was
// taken in and to the cycle, then re-evaluates both state machines.
func (t *Tracker) RecordOutcome(name Name, pnlPct float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.roll()

	if w, ws := t.window(name); ws != nil {
		ws.RealizedPct += pnlPct
		switch {
		case ws.RealizedPct <= -w.RiskBudgetPct:
			ws.Status = StatusFailed
		case ws.RealizedPct >= w.TargetReturnPct:
			ws.Status = StatusCompleted
		}
	}

	t.cycle.RealizedPct += pnlPct
	if t.cycle.evaluate(t.cfg, t.now()) {
		t.logger.Warn().Str("status", string(t.cycle.Status)).
			Float64("realized_pct", t.cycle.RealizedPct).
			Int("trades", t.cycle.TradeCount).
			Msg("Cycle ended")
	}
}

// window returns the config and state for a session, creating state on
// first use. Caller holds the lock.
func (t *Tracker) window(name Name) (Window, *windowState) {
	for _, w := range t.windows {
		if w.Name == name {
			ws, ok := t.states[name]
			if !ok {
				ws = &windowState{Status: StatusPending, Day: t.now().UTC().YearDay()}
				t.states[name] = ws
			}
			return w, ws
		}
	}
	return Window{}, nil
}

// roll expires stale session state on day rollover and starts a fresh
// cycle when the previous one is eligible for reset. Caller holds the
// lock.
func (t *Tracker) roll() {
	now := t.now()
	day := now.UTC().YearDay()
	for name, ws := range t.states {
		if ws.Day != day {
			if ws.Status == StatusActive || ws.Status == StatusPending {
				ws.Status = StatusExpired
			}
			delete(t.states, name)
		}
	}

	t.cycle.evaluate(t.cfg, now)
	if t.cycle.readyForReset(t.cfg, now) {
		t.logger.Info().Str("prev_status", string(t.cycle.Status)).Msg("Cycle reset")
		t.cycle = newCycle(now)
	}
}

// Snapshot returns the tracker state for dashboards.
func (t *Tracker) Snapshot() map[string]interface{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.roll()

	sessions := make(map[string]interface{}, len(t.states))
	for name, ws := range t.states {
		sessions[string(name)] = map[string]interface{}{
			"status":       string(ws.Status),
			"trade_count":  ws.TradeCount,
			"realized_pct": ws.RealizedPct,
		}
	}
	return map[string]interface{}{
		"current_session": string(Classify(t.now(), t.windows)),
		"sessions":        sessions,
		"cycle": map[string]interface{}{
			"status":       string(t.cycle.Status),
			"started_at":   t.cycle.StartedAt,
			"trade_count":  t.cycle.TradeCount,
			"realized_pct": t.cycle.RealizedPct,
		},
	}
}
