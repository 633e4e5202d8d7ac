package strategy

import (
	"fmt"

	"consensus-trading-bot/internal/database"
)

// ============================================================================
// BUILT-IN STRATEGIES
// ============================================================================

// SMACrossStrategy recommends the side of the fast average relative to the
// slow one
type SMACrossStrategy struct {
	Fast int
	Slow int
}

func NewSMACrossStrategy(fast, slow int) *SMACrossStrategy {
	return &SMACrossStrategy{Fast: fast, Slow: slow}
}

func (s *SMACrossStrategy) Name() string {
	return fmt.Sprintf("sma-cross-%d-%d", s.Fast, s.Slow)
}

func (s *SMACrossStrategy) Evaluate(prices []float64) string {
	if len(prices) < s.Slow {
		return database.SideHold
	}
	fast := SMA(prices, s.Fast)
	slow := SMA(prices, s.Slow)
	switch {
	case fast > slow:
		return database.SideBuy
	case fast < slow:
		return database.SideSell
	default:
		return database.SideHold
	}
}

// EMACrossStrategy is the exponential variant of the crossover
type EMACrossStrategy struct {
	Fast int
	Slow int
}

func NewEMACrossStrategy(fast, slow int) *EMACrossStrategy {
	return &EMACrossStrategy{Fast: fast, Slow: slow}
}

func (s *EMACrossStrategy) Name() string {
	return fmt.Sprintf("ema-cross-%d-%d", s.Fast, s.Slow)
}

func (s *EMACrossStrategy) Evaluate(prices []float64) string {
	if len(prices) < s.Slow {
		return database.SideHold
	}
	fast := EMA(prices, s.Fast)
	slow := EMA(prices, s.Slow)
	switch {
	case fast > slow:
		return database.SideBuy
	case fast < slow:
		return database.SideSell
	default:
		return database.SideHold
	}
}

// RSIStrategy buys oversold and sells overbought conditions
type RSIStrategy struct {
	Period     int
	Oversold   float64
	Overbought float64
}

func NewRSIStrategy(period int, oversold, overbought float64) *RSIStrategy {
	return &RSIStrategy{Period: period, Oversold: oversold, Overbought: overbought}
}

func (s *RSIStrategy) Name() string {
	return fmt.Sprintf("rsi-%d", s.Period)
}

func (s *RSIStrategy) Evaluate(prices []float64) string {
	if len(prices) < s.Period+1 {
		return database.SideHold
	}
	rsi := RSI(prices, s.Period)
	switch {
	case rsi < s.Oversold:
		return database.SideBuy
	case rsi > s.Overbought:
		return database.SideSell
	default:
		return database.SideHold
	}
}

// MomentumStrategy follows the sign of the price change over a lookback
type MomentumStrategy struct {
	Lookback  int
	Threshold float64 // Minimum absolute percent change to act on
}

func NewMomentumStrategy(lookback int, threshold float64) *MomentumStrategy {
	return &MomentumStrategy{Lookback: lookback, Threshold: threshold}
}

func (s *MomentumStrategy) Name() string {
	return fmt.Sprintf("momentum-%d", s.Lookback)
}

func (s *MomentumStrategy) Evaluate(prices []float64) string {
	if len(prices) < s.Lookback+1 {
		return database.SideHold
	}
	past := prices[len(prices)-s.Lookback-1]
	if past == 0 {
		return database.SideHold
	}
	change := (prices[len(prices)-1] - past) / past * 100
	switch {
	case change >= s.Threshold:
		return database.SideBuy
	case change <= -s.Threshold:
		return database.SideSell
	default:
		return database.SideHold
	}
}

// BreakoutStrategy signals when price escapes the recent range
type BreakoutStrategy struct {
	Lookback int
}

func NewBreakoutStrategy(lookback int) *BreakoutStrategy {
	return &BreakoutStrategy{Lookback: lookback}
}

func (s *BreakoutStrategy) Name() string {
	return fmt.Sprintf("breakout-%d", s.Lookback)
}

func (s *BreakoutStrategy) Evaluate(prices []float64) string {
	if len(prices) < s.Lookback+1 {
		return database.SideHold
	}

	current := prices[len(prices)-1]
	window := prices[len(prices)-s.Lookback-1 : len(prices)-1]
	high, low := window[0], window[0]
	for _, p := range window {
		if p > high {
			high = p
		}
		if p < low {
			low = p
		}
	}

	switch {
	case current > high:
		return database.SideBuy
	case current < low:
		return database.SideSell
	default:
		return database.SideHold
	}
}

// DefaultSet returns the built-in strategy set, five independent producers
// for the consensus pipeline
func DefaultSet() []Strategy {
	return []Strategy{
		NewSMACrossStrategy(9, 21),
		NewEMACrossStrategy(12, 26),
		NewRSIStrategy(14, 30, 70),
		NewMomentumStrategy(10, 0.5),
		NewBreakoutStrategy(20),
	}
}
