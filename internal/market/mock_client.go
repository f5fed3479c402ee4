package market

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// MockClient provides simulated market data for development and
// dry-run mode. Prices follow a seeded random walk so repeated runs
// with the same seed produce the same series.
type MockClient struct {
	prices     map[string]float64
	rng        *rand.Rand
	lastUpdate time.Time
	mu         sync.Mutex
}

// NewMockClient creates a mock data client with realistic base prices.
func NewMockClient(seed int64) *MockClient {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &MockClient{
		prices: map[string]float64{
			"EURUSD": 1.0850,
			"GBPUSD": 1.2700,
			"USDJPY": 148.50,
			"AUDUSD": 0.6550,
			"USDCAD": 1.3600,
			"XAUUSD": 2350.00,
			"USDCHF": 0.8800,
			"NZDUSD": 0.6050,
		},
		rng:        rand.New(rand.NewSource(seed)),
		lastUpdate: time.Now(),
	}
}

func (mc *MockClient) basePrice(symbol string) float64 {
	p, ok := mc.prices[symbol]
	if !ok {
		p = 1.0
		mc.prices[symbol] = p
	}
	return p
}

// GetOHLC returns a simulated candle series ending near the current
// simulated price.
func (mc *MockClient) GetOHLC(_ context.Context, symbol string, tf Timeframe, count int) ([]Candle, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	base := mc.basePrice(symbol)
	dur := tf.Duration()
	start := time.Now().UTC().Truncate(dur).Add(-dur * time.Duration(count))

	// Walk backwards-deterministic series toward the current price.
	candles := make([]Candle, 0, count)
	price := base * (1 - 0.002*mc.rng.Float64())
	for i := 0; i < count; i++ {
		drift := (mc.rng.Float64() - 0.5) * 0.002 * base
		open := price
		close := price + drift
		spread := 0.0008 * base * mc.rng.Float64()
		high := math.Max(open, close) + spread
		low := math.Min(open, close) - spread
		candles = append(candles, Candle{
			OpenTime:  start.Add(dur * time.Duration(i)),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    500 + mc.rng.Float64()*1500,
			Symbol:    symbol,
			Timeframe: tf,
		})
		price = close
	}
	mc.prices[symbol] = price
	return candles, nil
}

// GetCurrentPrice returns the latest simulated price with a small tick.
func (mc *MockClient) GetCurrentPrice(_ context.Context, symbol string) (float64, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	base := mc.basePrice(symbol)
	tick := (mc.rng.Float64() - 0.5) * 0.0005 * base
	mc.prices[symbol] = base + tick
	return mc.prices[symbol], nil
}

// GetSymbolSpec returns default contract details for the symbol.
func (mc *MockClient) GetSymbolSpec(_ context.Context, symbol string) (SymbolSpec, error) {
	spec := DefaultSpec(symbol)
	if symbol == "USDJPY" {
		spec.PipSize = 0.01
		spec.Digits = 3
	}
	return spec, nil
}
