package session

import (
	"fmt"
	"time"
)

// Name identifies a trading session window.
type Name string

const (
	Asia    Name = "ASIA"
	London  Name = "LONDON"
	NewYork Name = "NEW_YORK"
	Off     Name = "OFF" // outside every configured window
)

// Status tracks a session window through its lifecycle.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED" // target hit
	StatusFailed    Status = "FAILED"    // risk budget exhausted
	StatusExpired   Status = "EXPIRED"   // window closed with no result
)

// Window is the static configuration of one trading session. Start and
// End are UTC hours; windows must not wrap midnight and must not
// overlap each other.
type Window struct {
	Name            Name    `json:"name"`
	StartHour       int     `json:"start_hour"`
	EndHour         int     `json:"end_hour"`
	MaxTrades       int     `json:"max_trades"`
	RiskBudgetPct   float64 `json:"risk_budget_pct"`
	TargetReturnPct float64 `json:"target_return_pct"`
}

// Contains reports whether t (converted to UTC) falls inside the window.
func (w Window) Contains(t time.Time) bool {
	h := t.UTC().Hour()
	return h >= w.StartHour && h < w.EndHour
}

// Validate checks the window definition.
func (w Window) Validate() error {
	if w.StartHour < 0 || w.StartHour > 23 || w.EndHour < 1 || w.EndHour > 24 {
		return fmt.Errorf("session %s: hours out of range [%d, %d)", w.Name, w.StartHour, w.EndHour)
	}
	if w.StartHour >= w.EndHour {
		return fmt.Errorf("session %s: start %d not before end %d", w.Name, w.StartHour, w.EndHour)
	}
	if w.MaxTrades <= 0 {
		return fmt.Errorf("session %s: max_trades must be positive", w.Name)
	}
	if w.RiskBudgetPct <= 0 {
		return fmt.Errorf("session %s: risk_budget_pct must be positive", w.Name)
	}
	return nil
}

// DefaultWindows returns the three standard sessions in UTC.
func DefaultWindows() []Window {
	return []Window{
		{Name: Asia, StartHour: 0, EndHour: 7, MaxTrades: 1, RiskBudgetPct: 0.7, TargetReturnPct: 1.0},
		{Name: London, StartHour: 7, EndHour: 13, MaxTrades: 1, RiskBudgetPct: 1.0, TargetReturnPct: 1.2},
		{Name: NewYork, StartHour: 13, EndHour: 21, MaxTrades: 1, RiskBudgetPct: 1.0, TargetReturnPct: 1.0},
	}
}

// ValidateWindows checks each window and rejects overlaps.
func ValidateWindows(windows []Window) error {
	for _, w := range windows {
		if err := w.Validate(); err != nil {
			return err
		}
	}
	for i := 0; i < len(windows); i++ {
		for j := i + 1; j < len(windows); j++ {
			a, b := windows[i], windows[j]
			if a.StartHour < b.EndHour && b.StartHour < a.EndHour {
				return fmt.Errorf("sessions %s and %s overlap", a.Name, b.Name)
			}
		}
	}
	return nil
}

// Classify returns the session a moment belongs to, or Off.
func Classify(t time.Time, windows []Window) Name {
	for _, w := range windows {
		if w.Contains(t) {
			return w.Name
		}
	}
	return Off
}
