package market

// SymbolSpec holds the broker contract details needed to convert
// between prices, pips and lots for one symbol.
type SymbolSpec struct {
	Symbol   string  `json:"symbol"`
	PipSize  float64 `json:"pip_size"`  // price increment of one pip (0.0001 for EURUSD)
	PipValue float64 `json:"pip_value"` // account-currency value of one pip per standard lot
	LotStep  float64 `json:"lot_step"`
	MinLot   float64 `json:"min_lot"`
	MaxLot   float64 `json:"max_lot"`
	Digits   int     `json:"digits"`
}

// DefaultSpec returns a conservative forex-major contract spec used
// when the broker has not supplied symbol details.
func DefaultSpec(symbol string) SymbolSpec {
	return SymbolSpec{
		Symbol:   symbol,
		PipSize:  0.0001,
		PipValue: 10.0,
		LotStep:  0.01,
		MinLot:   0.01,
		MaxLot:   10.0,
		Digits:   5,
	}
}

// PriceToPips converts a price distance to pips.
func (s SymbolSpec) PriceToPips(delta float64) float64 {
	if s.PipSize <= 0 {
		return 0
	}
	if delta < 0 {
		delta = -delta
	}
	return delta / s.PipSize
}

// RoundLots snaps a raw lot size down to the nearest lot step.
func (s SymbolSpec) RoundLots(lots float64) float64 {
	if s.LotStep <= 0 {
		return lots
	}
	// Small epsilon keeps exact multiples from snapping a step down.
	steps := int(lots/s.LotStep + 1e-9)
	return float64(steps) * s.LotStep
}
