package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// DataClient is the market-data collaborator. Implementations should
// return an empty slice (and no error) when data is simply not there
// yet; errors are reserved for transport failures. Either way the
// pipeline skips the evaluation pass rather than crashing.
type DataClient interface {
	GetOHLC(ctx context.Context, symbol string, tf Timeframe, count int) ([]Candle, error)
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)
	GetSymbolSpec(ctx context.Context, symbol string) (SymbolSpec, error)
}

// MT5Client talks to a local MT5 bridge process over HTTP. The bridge
// exposes the terminal's history and tick data as JSON.
type MT5Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewMT5Client creates a client for the MT5 bridge at baseURL.
func NewMT5Client(baseURL string, timeout time.Duration, logger zerolog.Logger) *MT5Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MT5Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "mt5_data").Logger(),
	}
}

type bridgeCandle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"tick_volume"`
}

// GetOHLC fetches up to count bars for symbol/timeframe, oldest first.
func (c *MT5Client) GetOHLC(ctx context.Context, symbol string, tf Timeframe, count int) ([]Candle, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("timeframe", string(tf))
	q.Set("count", strconv.Itoa(count))

	var raw []bridgeCandle
	if err := c.getJSON(ctx, "/ohlc?"+q.Encode(), &raw); err != nil {
		return nil, err
	}

	candles := make([]Candle, 0, len(raw))
	for _, b := range raw {
		candles = append(candles, Candle{
			OpenTime:  time.Unix(b.Time, 0).UTC(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
			Symbol:    symbol,
			Timeframe: tf,
		})
	}
	return candles, nil
}

// GetCurrentPrice returns the latest mid price for symbol.
func (c *MT5Client) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	var resp struct {
		Bid float64 `json:"bid"`
		Ask float64 `json:"ask"`
	}
	if err := c.getJSON(ctx, "/tick?symbol="+url.QueryEscape(symbol), &resp); err != nil {
		return 0, err
	}
	if resp.Bid <= 0 || resp.Ask <= 0 {
		return 0, fmt.Errorf("invalid tick for %s: bid=%.5f ask=%.5f", symbol, resp.Bid, resp.Ask)
	}
	return (resp.Bid + resp.Ask) / 2, nil
}

// GetSymbolSpec returns the broker contract details for symbol,
// falling back to defaults when the bridge has no entry.
func (c *MT5Client) GetSymbolSpec(ctx context.Context, symbol string) (SymbolSpec, error) {
	var spec SymbolSpec
	if err := c.getJSON(ctx, "/symbol?symbol="+url.QueryEscape(symbol), &spec); err != nil {
		return DefaultSpec(symbol), err
	}
	if spec.PipSize <= 0 || spec.LotStep <= 0 {
		return DefaultSpec(symbol), nil
	}
	spec.Symbol = symbol
	return spec, nil
}

func (c *MT5Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
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

var _ DataClient = (*MT5Client)(nil)
var _ DataClient = (*MockClient)(nil)
