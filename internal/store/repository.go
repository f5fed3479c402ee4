package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mt5-fvg-bot/internal/fvg"
)

// PatternOutcome is one resolved pattern with the feature vector that
// was observed at detection time. The table is append-only; outcomes
// feed the model trainer.
type PatternOutcome struct {
	PatternID  string     `json:"pattern_id"`
	Symbol     string     `json:"symbol"`
	Timeframe  string     `json:"timeframe"`
	Direction  string     `json:"direction"`
	UpperBound float64    `json:"upper_bound"`
	LowerBound float64    `json:"lower_bound"`
	FormedAt   time.Time  `json:"formed_at"`
	Filled     bool       `json:"filled"`
	FilledAt   *time.Time `json:"filled_at,omitempty"`
	Features   []float64  `json:"features"`
	RecordedAt time.Time  `json:"recorded_at"`
}

// TradeRecord is one executed trade.
type TradeRecord struct {
	SignalID   string     `json:"signal_id"`
	PatternID  string     `json:"pattern_id"`
	Symbol     string     `json:"symbol"`
	Direction  string     `json:"direction"`
	Lots       float64    `json:"lots"`
	Entry      float64    `json:"entry"`
	StopLoss   float64    `json:"stop_loss"`
	TakeProfit float64    `json:"take_profit"`
	Ticket     int64      `json:"ticket"`
	FillPrice  float64    `json:"fill_price"`
	PnLPct     *float64   `json:"pnl_pct,omitempty"`
	ExecutedAt time.Time  `json:"executed_at"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
}

// InsertOutcome stores a pattern at detection time with the features
// observed then. A repeated pattern ID is ignored, so re-detection on
// later passes keeps the original feature snapshot.
func (db *DB) InsertOutcome(ctx context.Context, p *fvg.GapPattern, features []float64) error {
	if db == nil || db.Pool == nil {
		return nil
	}
	featJSON, err := json.Marshal(features)
	if err != nil {
		return fmt.Errorf("failed to marshal features: %w", err)
	}

	query := `
		INSERT INTO pattern_outcomes (
			pattern_id, symbol, timeframe, direction,
			upper_bound, lower_bound, formed_at, filled, filled_at, features
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (pattern_id) DO NOTHING`

	filledAt := p.FilledAt
	_, err = db.Pool.Exec(ctx, query,
		p.ID, p.Symbol, string(p.Timeframe), string(p.Direction),
		p.UpperBound, p.LowerBound, p.FormedAt, p.Filled, filledAt, featJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert pattern outcome: %w", err)
	}
	return nil
}

// MarkOutcomeFilled flips a stored pattern to filled once the gap
// trades. Already-filled rows keep their original fill time.
func (db *DB) MarkOutcomeFilled(ctx context.Context, patternID string, filledAt time.Time) error {
	if db == nil || db.Pool == nil {
		return nil
	}
	query := `
		UPDATE pattern_outcomes
		SET filled = TRUE, filled_at = $2
		WHERE pattern_id = $1 AND NOT filled`
	if _, err := db.Pool.Exec(ctx, query, patternID, filledAt); err != nil {
		return fmt.Errorf("failed to mark outcome filled: %w", err)
	}
	return nil
}

// ListOutcomes returns up to limit outcomes, oldest first, for model
// training.
func (db *DB) ListOutcomes(ctx context.Context, limit int) ([]PatternOutcome, error) {
	if db == nil || db.Pool == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10000
	}
	query := `
		SELECT pattern_id, symbol, timeframe, direction,
			upper_bound, lower_bound, formed_at, filled, filled_at, features, recorded_at
		FROM pattern_outcomes
		ORDER BY recorded_at ASC
		LIMIT $1`

	rows, err := db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pattern outcomes: %w", err)
	}
	defer rows.Close()

	var out []PatternOutcome
	for rows.Next() {
		var o PatternOutcome
		var featJSON []byte
		if err := rows.Scan(
			&o.PatternID, &o.Symbol, &o.Timeframe, &o.Direction,
			&o.UpperBound, &o.LowerBound, &o.FormedAt, &o.Filled, &o.FilledAt,
			&featJSON, &o.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan pattern outcome: %w", err)
		}
		if err := json.Unmarshal(featJSON, &o.Features); err != nil {
			return nil, fmt.Errorf("failed to decode features for %s: %w", o.PatternID, err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// InsertTrade stores an executed trade.
func (db *DB) InsertTrade(ctx context.Context, rec TradeRecord) error {
	if db == nil || db.Pool == nil {
		return nil
	}
	query := `
		INSERT INTO trade_records (
			signal_id, pattern_id, symbol, direction,
			lots, entry, stop_loss, take_profit, ticket, fill_price, executed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	if rec.ExecutedAt.IsZero() {
		rec.ExecutedAt = time.Now().UTC()
	}
	_, err := db.Pool.Exec(ctx, query,
		rec.SignalID, rec.PatternID, rec.Symbol, rec.Direction,
		rec.Lots, rec.Entry, rec.StopLoss, rec.TakeProfit,
		rec.Ticket, rec.FillPrice, rec.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trade record: %w", err)
	}
	return nil
}

// CloseTrade records the realized result for a trade.
func (db *DB) CloseTrade(ctx context.Context, signalID string, pnlPct float64) error {
	if db == nil || db.Pool == nil {
		return nil
	}
	query := `
		UPDATE trade_records
		SET pnl_pct = $2, closed_at = NOW()
		WHERE signal_id = $1 AND closed_at IS NULL`
	_, err := db.Pool.Exec(ctx, query, signalID, pnlPct)
	if err != nil {
		return fmt.Errorf("failed to close trade record: %w", err)
	}
	return nil
}
