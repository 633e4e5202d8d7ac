package position

import (
	"math"
	"testing"

	"consensus-trading-bot/internal/database"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestPriceChangePercent(t *testing.T) {
	if got := PriceChangePercent(100, 110); !almostEqual(got, 10) {
		t.Errorf("expected +10%%, got %v", got)
	}
	if got := PriceChangePercent(100, 90); !almostEqual(got, -10) {
		t.Errorf("expected -10%%, got %v", got)
	}
	if got := PriceChangePercent(0, 110); got != 0 {
		t.Errorf("expected 0 for zero entry, got %v", got)
	}
}

func TestLeveragedProfitPercentLong(t *testing.T) {
	// Entry 100, exit 110, long 10x: +10% price change, +100% leveraged
	got := LeveragedProfitPercent(database.DirectionLong, 100, 110, 10)
	if !almostEqual(got, 100) {
		t.Errorf("expected +100%%, got %v", got)
	}
}

func TestLeveragedProfitPercentShort(t *testing.T) {
	// Same prices, short 10x: the sign inverts
	got := LeveragedProfitPercent(database.DirectionShort, 100, 110, 10)
	if !almostEqual(got, -100) {
		t.Errorf("expected -100%%, got %v", got)
	}

	got = LeveragedProfitPercent(database.DirectionShort, 100, 90, 10)
	if !almostEqual(got, 100) {
		t.Errorf("expected +100%% for a falling short, got %v", got)
	}
}

func TestProfitAmount(t *testing.T) {
	// +100% leveraged profit on 250 invested doubles the stake
	if got := ProfitAmount(250, 100); !almostEqual(got, 250) {
		t.Errorf("expected 250, got %v", got)
	}
	if got := ProfitAmount(250, -40); !almostEqual(got, -100) {
		t.Errorf("expected -100, got %v", got)
	}
}

func TestRoundQuantityDown(t *testing.T) {
	cases := []struct {
		quantity  float64
		precision int
		want      float64
	}{
		{0.123456, 3, 0.123},
		{0.1299, 2, 0.12},
		{5.999, 0, 5},
		{0.0009, 3, 0},
		{1.5, -1, 1},
	}
	for _, c := range cases {
		if got := RoundQuantityDown(c.quantity, c.precision); !almostEqual(got, c.want) {
			t.Errorf("RoundQuantityDown(%v, %d) = %v, want %v", c.quantity, c.precision, got, c.want)
		}
	}
}
