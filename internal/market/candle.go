package market

import "time"

// Timeframe identifies a chart timeframe in MT5 notation.
type Timeframe string

const (
	M1  Timeframe = "M1"
	M5  Timeframe = "M5"
	M15 Timeframe = "M15"
	M30 Timeframe = "M30"
	H1  Timeframe = "H1"
	H4  Timeframe = "H4"
	D1  Timeframe = "D1"
)

// Duration returns the bar duration for the timeframe.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case M1:
		return time.Minute
	case M5:
		return 5 * time.Minute
	case M15:
		return 15 * time.Minute
	case M30:
		return 30 * time.Minute
	case H1:
		return time.Hour
	case H4:
		return 4 * time.Hour
	case D1:
		return 24 * time.Hour
	default:
		return time.Hour
	}
}

// Weight returns the relative importance of the timeframe for
// cross-timeframe agreement. Higher timeframes carry more weight.
func (tf Timeframe) Weight() float64 {
	switch tf {
	case M1:
		return 0.5
	case M5:
		return 0.7
	case M15:
		return 1.0
	case M30:
		return 1.3
	case H1:
		return 1.6
	case H4:
		return 2.0
	case D1:
		return 2.5
	default:
		return 1.0
	}
}

// Valid reports whether the timeframe is one of the supported values.
func (tf Timeframe) Valid() bool {
	switch tf {
	case M1, M5, M15, M30, H1, H4, D1:
		return true
	}
	return false
}

// Candle is a single OHLC bar. Candles are immutable once recorded;
// they are produced by the market-data collaborator.
type Candle struct {
	OpenTime  time.Time `json:"open_time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe"`
}

// Bullish reports whether the candle closed above its open.
func (c Candle) Bullish() bool {
	return c.Close > c.Open
}

// Range returns the high-low span of the candle.
func (c Candle) Range() float64 {
	return c.High - c.Low
}

// ValidSequence reports whether candles form a well-ordered series: at
// least min bars, one symbol and timeframe, strictly ascending open
// times. Detection treats anything else as malformed input.
func ValidSequence(candles []Candle, min int) bool {
	if len(candles) < min {
		return false
	}
	symbol := candles[0].Symbol
	tf := candles[0].Timeframe
	for i := 1; i < len(candles); i++ {
		if candles[i].Symbol != symbol || candles[i].Timeframe != tf {
			return false
		}
		if !candles[i].OpenTime.After(candles[i-1].OpenTime) {
			return false
		}
	}
	return true
}
