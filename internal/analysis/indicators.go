package analysis

import (
	"math"

	"mt5-fvg-bot/internal/market"
)

// ATR returns the Average True Range over the last period bars.
// Returns 0 when there is not enough data.
func ATR(candles []market.Candle, period int) float64 {
	if period <= 0 || len(candles) < period+1 {
		return 0
	}

	sum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		highLow := candles[i].High - candles[i].Low
		highClose := math.Abs(candles[i].High - candles[i-1].Close)
		lowClose := math.Abs(candles[i].Low - candles[i-1].Close)
		tr := math.Max(highLow, math.Max(highClose, lowClose))
		sum += tr
	}
	return sum / float64(period)
}

// EMA returns the exponential moving average of closes over period.
func EMA(candles []market.Candle, period int) float64 {
	if len(candles) == 0 {
		return 0
	}
	prices := make([]float64, len(candles))
	for i, c := range candles {
		prices[i] = c.Close
	}
	return emaFromPrices(prices, period)
}

func emaFromPrices(prices []float64, period int) float64 {
	if len(prices) < period || period <= 0 {
		return prices[len(prices)-1]
	}

	multiplier := 2.0 / float64(period+1)

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	ema := sum / float64(period)

	for i := period; i < len(prices); i++ {
		ema = (prices[i]-ema)*multiplier + ema
	}
	return ema
}

// RSI returns the Relative Strength Index over period. Returns the
// neutral value 50 when there is not enough data.
func RSI(candles []market.Candle, period int) float64 {
	if len(candles) < period+1 {
		return 50
	}

	gains := 0.0
	losses := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		change := candles[i].Close - candles[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// BollingerBands returns upper, middle and lower bands for the given
// period and standard-deviation multiplier.
func BollingerBands(candles []market.Candle, period int, stdDev float64) (upper, middle, lower float64) {
	if len(candles) == 0 {
		return 0, 0, 0
	}
	if len(candles) < period {
		last := candles[len(candles)-1].Close
		return last, last, last
	}

	sum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		sum += candles[i].Close
	}
	middle = sum / float64(period)

	variance := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		d := candles[i].Close - middle
		variance += d * d
	}
	variance /= float64(period)
	sd := math.Sqrt(variance)

	return middle + stdDev*sd, middle, middle - stdDev*sd
}

// AverageVolume returns the mean volume over the last period bars.
func AverageVolume(candles []market.Candle, period int) float64 {
	if len(candles) == 0 {
		return 0
	}
	if len(candles) < period {
		period = len(candles)
	}

	sum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		sum += candles[i].Volume
	}
	return sum / float64(period)
}

// StdDev returns the population standard deviation of values.
func StdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))

	return math.Sqrt(variance)
}

// Clamp bounds value to [min, max].
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
