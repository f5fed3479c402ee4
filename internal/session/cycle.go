package session

import "time"

// CycleStatus tracks a trading cycle through its lifecycle.
type CycleStatus string

const (
	CycleActive       CycleStatus = "ACTIVE"
	CycleObjectiveHit CycleStatus = "OBJECTIVE_ACHIEVED"
	CycleRiskLimitHit CycleStatus = "RISK_LIMIT_HIT"
	CycleCompleted    CycleStatus = "COMPLETED" // horizon elapsed without either outcome
)

// CycleConfig bounds one trading cycle.
type CycleConfig struct {
	MaxTrades     int           `json:"max_trades"`
	TargetPct     float64       `json:"target_pct"`
	LossLimitPct  float64       `json:"loss_limit_pct"`
	Horizon       time.Duration `json:"horizon"`
	ResetAfterWin time.Duration `json:"reset_after_win"`
}

// DefaultCycleConfig returns the standard cycle bounds.
func DefaultCycleConfig() CycleConfig {
	return CycleConfig{
		MaxTrades:     3,
		TargetPct:     3.0,
		LossLimitPct:  2.0,
		Horizon:       24 * time.Hour,
		ResetAfterWin: 12 * time.Hour,
	}
}

// Cycle is the mutable state of the current trading cycle. It is not
// safe for concurrent use on its own; Tracker guards it.
type Cycle struct {
	StartedAt   time.Time   `json:"started_at"`
	EndedAt     time.Time   `json:"ended_at,omitempty"`
	Status      CycleStatus `json:"status"`
	TradeCount  int         `json:"trade_count"`
	RealizedPct float64     `json:"realized_pct"`
}

func newCycle(now time.Time) *Cycle {
	return &Cycle{StartedAt: now, Status: CycleActive}
}

// terminal reports whether the cycle has reached an end state.
func (c *Cycle) terminal() bool {
	return c.Status != CycleActive
}

// evaluate transitions the cycle based on realized performance and age.
// Returns true when the status changed.
func (c *Cycle) evaluate(cfg CycleConfig, now time.Time) bool {
	if c.terminal() {
		return false
	}
	switch {
	case c.RealizedPct >= cfg.TargetPct:
		c.Status = CycleObjectiveHit
	case c.RealizedPct <= -cfg.LossLimitPct:
		c.Status = CycleRiskLimitHit
	case now.Sub(c.StartedAt) >= cfg.Horizon:
		c.Status = CycleCompleted
	default:
		return false
	}
	c.EndedAt = now
	return true
}

// readyForReset reports whether a fresh cycle may begin.
func (c *Cycle) readyForReset(cfg CycleConfig, now time.Time) bool {
	switch c.Status {
	case CycleRiskLimitHit, CycleCompleted:
		return true
	case CycleObjectiveHit:
		return now.Sub(c.EndedAt) >= cfg.ResetAfterWin
	default:
		return false
	}
}
