package strategy

import (
	"math"
	"testing"

	"consensus-trading-bot/internal/database"
)

func rising(n int) []float64 {
	prices := make([]float64, n)
	for i := range prices {
		prices[i] = 100 + float64(i)
	}
	return prices
}

func falling(n int) []float64 {
	prices := make([]float64, n)
	for i := range prices {
		prices[i] = 100 - float64(i)
	}
	return prices
}

func TestSMA(t *testing.T) {
	prices := []float64{1, 2, 3, 4, 5}
	if got := SMA(prices, 5); got != 3 {
		t.Errorf("expected 3, got %v", got)
	}
	if got := SMA(prices, 2); got != 4.5 {
		t.Errorf("expected 4.5, got %v", got)
	}
	if got := SMA(prices, 10); got != 0 {
		t.Errorf("expected 0 for short series, got %v", got)
	}
}

func TestRSIBounds(t *testing.T) {
	if got := RSI(rising(20), 14); got != 100 {
		t.Errorf("expected RSI 100 on pure uptrend, got %v", got)
	}
	down := RSI(falling(20), 14)
	if math.Abs(down) > 1e-9 {
		t.Errorf("expected RSI 0 on pure downtrend, got %v", down)
	}
	if got := RSI([]float64{100}, 14); got != 50 {
		t.Errorf("expected neutral RSI for short series, got %v", got)
	}
}

func TestSMACrossStrategy(t *testing.T) {
	s := NewSMACrossStrategy(3, 10)

	if got := s.Evaluate(rising(20)); got != database.SideBuy {
		t.Errorf("expected buy in uptrend, got %s", got)
	}
	if got := s.Evaluate(falling(20)); got != database.SideSell {
		t.Errorf("expected sell in downtrend, got %s", got)
	}
	if got := s.Evaluate(rising(5)); got != database.SideHold {
		t.Errorf("expected hold on short series, got %s", got)
	}
}

func TestMomentumStrategy(t *testing.T) {
	s := NewMomentumStrategy(10, 0.5)

	if got := s.Evaluate(rising(20)); got != database.SideBuy {
		t.Errorf("expected buy on rising momentum, got %s", got)
	}
	if got := s.Evaluate(falling(20)); got != database.SideSell {
		t.Errorf("expected sell on falling momentum, got %s", got)
	}

	flat := make([]float64, 20)
	for i := range flat {
		flat[i] = 100
	}
	if got := s.Evaluate(flat); got != database.SideHold {
		t.Errorf("expected hold on flat prices, got %s", got)
	}
}

func TestBreakoutStrategy(t *testing.T) {
	s := NewBreakoutStrategy(5)

	inside := []float64{100, 102, 98, 101, 99, 100}
	if got := s.Evaluate(inside); got != database.SideHold {
		t.Errorf("expected hold inside the range, got %s", got)
	}

	breakUp := []float64{100, 102, 98, 101, 99, 105}
	if got := s.Evaluate(breakUp); got != database.SideBuy {
		t.Errorf("expected buy on upside breakout, got %s", got)
	}

	breakDown := []float64{100, 102, 98, 101, 99, 95}
	if got := s.Evaluate(breakDown); got != database.SideSell {
		t.Errorf("expected sell on downside breakout, got %s", got)
	}
}

func TestDefaultSetHasDistinctNames(t *testing.T) {
	set := DefaultSet()
	if len(set) < 5 {
		t.Fatalf("expected at least 5 strategies, got %d", len(set))
	}
	seen := make(map[string]bool)
	for _, s := range set {
		if seen[s.Name()] {
			t.Errorf("duplicate strategy name %s", s.Name())
		}
		seen[s.Name()] = true
	}
}
