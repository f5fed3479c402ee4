package execution

import (
	"context"
	"errors"
	"time"

	"mt5-fvg-bot/internal/fvg"
)

// OrderRequest is a broker order derived from an approved signal.
type OrderRequest struct {
	SignalID    string        `json:"signal_id"`
	Symbol      string        `json:"symbol"`
	Direction   fvg.Direction `json:"direction"`
	Lots        float64       `json:"lots"`
	Entry       float64       `json:"entry"`
	StopLoss    float64       `json:"stop_loss"`
	TakeProfit  float64       `json:"take_profit"`
	Comment     string        `json:"comment"`
	MagicNumber int           `json:"magic_number"`
}

// OrderResult is the broker's response to a placed order.
type OrderResult struct {
	Ticket     int64     `json:"ticket"`
	FillPrice  float64   `json:"fill_price"`
	ExecutedAt time.Time `json:"executed_at"`
}

// AccountState is a point-in-time account snapshot.
type AccountState struct {
	Equity     float64 `json:"equity"`
	Balance    float64 `json:"balance"`
	FreeMargin float64 `json:"free_margin"`
	Currency   string  `json:"currency"`
}

// Position is one open position as the broker reports it.
type Position struct {
	Ticket    int64   `json:"ticket"`
	Symbol    string  `json:"symbol"`
	Lots      float64 `json:"lots"`
	OpenPrice float64 `json:"open_price"`
	Profit    float64 `json:"profit"`
}

// ClosedPosition is the realized result of a ticket that is no longer
// open.
type ClosedPosition struct {
	Ticket     int64     `json:"ticket"`
	Profit     float64   `json:"profit"`
	ClosePrice float64   `json:"close_price"`
	ClosedAt   time.Time `json:"closed_at"`
}

// Executor places orders with a broker.
type Executor interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	ClosePosition(ctx context.Context, ticket int64) error
}

// PositionProvider reads position state from the broker. The broker
// confirms closes asynchronously, so callers poll GetPositions and
// resolve missing tickets through GetClosedPosition.
type PositionProvider interface {
	GetPositions(ctx context.Context) ([]Position, error)
	GetClosedPosition(ctx context.Context, ticket int64) (ClosedPosition, error)
}

// AccountProvider reads account state.
type AccountProvider interface {
	GetAccount(ctx context.Context) (AccountState, error)
}

// ErrRetriesExhausted wraps the final attempt's error once every retry
// has failed.
var ErrRetriesExhausted = errors.New("order retries exhausted")
