// Package strategy defines the plug-in surface for signal producers and a
// runner that feeds their output into the signal pipeline. Concrete
// strategies reduce to one capability: given recent prices, recommend a
// side.
package strategy

// Strategy produces a directional recommendation from a price series. The
// series is ordered oldest first and always ends with the current price.
type Strategy interface {
	Name() string
	Evaluate(prices []float64) string // buy, sell or hold
}

// ============================================================================
// INDICATORS
// ============================================================================

// SMA calculates the simple moving average of the trailing period
func SMA(prices []float64, period int) float64 {
	if period <= 0 || len(prices) < period {
		return 0
	}
	sum := 0.0
	for _, p := range prices[len(prices)-period:] {
		sum += p
	}
	return sum / float64(period)
}

// EMA calculates the exponential moving average of the trailing period
func EMA(prices []float64, period int) float64 {
	if period <= 0 || len(prices) < period {
		return 0
	}
	ema := SMA(prices[:period], period)
	multiplier := 2.0 / float64(period+1)
	for _, p := range prices[period:] {
		ema = (p-ema)*multiplier + ema
	}
	return ema
}

// RSI calculates the relative strength index of the trailing period
func RSI(prices []float64, period int) float64 {
	if period <= 0 || len(prices) < period+1 {
		return 50
	}

	var gains, losses float64
	start := len(prices) - period - 1
	for i := start + 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}
	if losses == 0 {
		return 100
	}

	rs := (gains / float64(period)) / (losses / float64(period))
	return 100 - (100 / (1 + rs))
}
