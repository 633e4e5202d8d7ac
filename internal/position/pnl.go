// Package position owns the position lifecycle: sizing and opening
// operations on the exchange, monitoring them against their thresholds, and
// closing them with settled profit figures.
package position

import (
	"math"

	"consensus-trading-bot/internal/database"
)

// PriceChangePercent returns the percent change from entry to current price
func PriceChangePercent(entry, current float64) float64 {
	if entry == 0 {
		return 0
	}
	return (current - entry) / entry * 100
}

// LeveragedProfitPercent returns the leveraged profit percentage of a
// position. Short positions profit when price falls, so the raw price change
// is inverted before leverage is applied.
func LeveragedProfitPercent(direction string, entry, current float64, leverage int) float64 {
	change := PriceChangePercent(entry, current)
	if direction == database.DirectionShort {
		change = -change
	}
	return change * float64(leverage)
}

// ProfitAmount converts a leveraged profit percentage into an absolute
// quote-currency amount against the invested notional.
func ProfitAmount(investment, leveragedPercent float64) float64 {
	return investment * leveragedPercent / 100
}

// RoundQuantityDown truncates a quantity to the symbol's precision. Rounding
// down keeps the order inside the funded notional.
func RoundQuantityDown(quantity float64, precision int) float64 {
	if precision < 0 {
		precision = 0
	}
	factor := math.Pow(10, float64(precision))
	return math.Floor(quantity*factor) / factor
}
