package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"mt5-fvg-bot/internal/fvg"
)

// MT5Executor places orders through the local MT5 bridge. The bridge
// translates JSON requests into terminal trade operations.
type MT5Executor struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewMT5Executor creates an executor for the bridge at baseURL.
func NewMT5Executor(baseURL string, timeout time.Duration, logger zerolog.Logger) *MT5Executor {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &MT5Executor{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "mt5_executor").Logger(),
	}
}

type bridgeOrder struct {
	Symbol     string  `json:"symbol"`
	Type       string  `json:"type"` // "buy" or "sell"
	Lots       float64 `json:"lots"`
	Price      float64 `json:"price"`
	StopLoss   float64 `json:"sl"`
	TakeProfit float64 `json:"tp"`
	Comment    string  `json:"comment"`
	Magic      int     `json:"magic"`
}

type bridgeOrderResponse struct {
	Ticket    int64   `json:"ticket"`
	FillPrice float64 `json:"fill_price"`
	Error     string  `json:"error,omitempty"`
}

// PlaceOrder submits the order to the bridge.
func (e *MT5Executor) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	side := "buy"
	if req.Direction == fvg.Bearish {
		side = "sell"
	}
	payload := bridgeOrder{
		Symbol:     req.Symbol,
		Type:       side,
		Lots:       req.Lots,
		Price:      req.Entry,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		Comment:    req.Comment,
		Magic:      req.MagicNumber,
	}

	var resp bridgeOrderResponse
	if err := e.postJSON(ctx, "/order", payload, &resp); err != nil {
		return OrderResult{}, err
	}
	if resp.Error != "" {
		return OrderResult{}, fmt.Errorf("bridge rejected order: %s", resp.Error)
	}
	if resp.Ticket == 0 {
		return OrderResult{}, fmt.Errorf("bridge returned no ticket")
	}

	e.logger.Info().Int64("ticket", resp.Ticket).Str("symbol", req.Symbol).
		Str("side", side).Float64("lots", req.Lots).Msg("Order placed")
	return OrderResult{
		Ticket:     resp.Ticket,
		FillPrice:  resp.FillPrice,
		ExecutedAt: time.Now().UTC(),
	}, nil
}

// ClosePosition closes the position identified by ticket.
func (e *MT5Executor) ClosePosition(ctx context.Context, ticket int64) error {
	var resp bridgeOrderResponse
	if err := e.postJSON(ctx, "/close", map[string]int64{"ticket": ticket}, &resp); err != nil {
		return err
	}
	if resp.Error != "" {
		return fmt.Errorf("bridge rejected close: %s", resp.Error)
	}
	return nil
}

// GetAccount reads the current account snapshot from the bridge.
func (e *MT5Executor) GetAccount(ctx context.Context) (AccountState, error) {
	var state AccountState
	if err := e.getJSON(ctx, "/account", &state); err != nil {
		return AccountState{}, err
	}
	return state, nil
}

// GetPositions lists the positions currently open at the terminal.
func (e *MT5Executor) GetPositions(ctx context.Context) ([]Position, error) {
	var positions []Position
	if err := e.getJSON(ctx, "/positions", &positions); err != nil {
		return nil, err
	}
	return positions, nil
}

// GetClosedPosition resolves the realized result of a closed ticket
// from the terminal's deal history.
func (e *MT5Executor) GetClosedPosition(ctx context.Context, ticket int64) (ClosedPosition, error) {
	var closed ClosedPosition
	if err := e.getJSON(ctx, fmt.Sprintf("/history?ticket=%d", ticket), &closed); err != nil {
		return ClosedPosition{}, err
	}
	if closed.Ticket == 0 {
		return ClosedPosition{}, fmt.Errorf("ticket %d not found in bridge history", ticket)
	}
	return closed, nil
}

func (e *MT5Executor) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mt5 bridge request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mt5 bridge returned status %d for %s", resp.StatusCode, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("mt5 bridge response decode failed: %w", err)
	}
	return nil
}

func (e *MT5Executor) postJSON(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mt5 bridge request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mt5 bridge returned status %d for %s", resp.StatusCode, path)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

var _ Executor = (*MT5Executor)(nil)
var _ AccountProvider = (*MT5Executor)(nil)
var _ PositionProvider = (*MT5Executor)(nil)
