package signal

import (
	"time"

	"mt5-fvg-bot/internal/fvg"
	"mt5-fvg-bot/internal/market"
	"mt5-fvg-bot/internal/predictor"
	"mt5-fvg-bot/internal/quality"
)

// Status tracks a signal through its lifecycle.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusExecuted Status = "EXECUTED"
	StatusExpired  Status = "EXPIRED"
	StatusRejected Status = "REJECTED"
)

// Priority orders signals for execution when slots are scarce.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

func (p Priority) String() string {
	switch p {
	case PriorityUrgent:
		return "URGENT"
	case PriorityHigh:
		return "HIGH"
	case PriorityNormal:
		return "NORMAL"
	default:
		return "LOW"
	}
}

// TradeSignal is an actionable trade idea derived from a gap pattern.
type TradeSignal struct {
	ID              string           `json:"id"`
	PatternID       string           `json:"pattern_id"`
	Symbol          string           `json:"symbol"`
	Timeframe       market.Timeframe `json:"timeframe"`
	Direction       fvg.Direction    `json:"direction"`
	Entry           float64          `json:"entry"`
	StopLoss        float64          `json:"stop_loss"`
	TakeProfits     [3]float64       `json:"take_profits"`
	QualityScore    float64          `json:"quality_score"`
	QualityTier     quality.Tier     `json:"quality_tier"`
	FillProbability float64          `json:"fill_probability"`
	FillBucket      predictor.Bucket `json:"fill_bucket"`
	Priority        Priority         `json:"priority"`
	Status          Status           `json:"status"`
	LotSize         float64          `json:"lot_size,omitempty"`
	RiskPercentage  float64          `json:"risk_percentage,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	ExpiresAt       time.Time        `json:"expires_at"`
}

// Expired reports whether the signal is past its validity window.
func (s *TradeSignal) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// RiskDistance is the absolute price distance from entry to stop.
func (s *TradeSignal) RiskDistance() float64 {
	d := s.Entry - s.StopLoss
	if d < 0 {
		return -d
	}
	return d
}
