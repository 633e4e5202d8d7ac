package consensus

import (
	"testing"
	"time"

	"consensus-trading-bot/internal/database"
)

func makeSignals(sides []string, strategies []string) []*database.Signal {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	signals := make([]*database.Signal, len(sides))
	for i := range sides {
		signals[i] = &database.Signal{
			ID:        string(rune('a' + i)),
			Ticker:    "BTCUSDT",
			Side:      sides[i],
			Strategy:  strategies[i],
			Price:     50000,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
	}
	return signals
}

func TestScanFiveDistinctBuys(t *testing.T) {
	signals := makeSignals(
		[]string{"buy", "buy", "buy", "buy", "buy"},
		[]string{"s1", "s2", "s3", "s4", "s5"},
	)

	result := Scan(signals, 5)
	if result == nil {
		t.Fatal("expected consensus, got none")
	}
	if result.Direction != database.SideBuy {
		t.Errorf("expected buy direction, got %s", result.Direction)
	}
	if len(result.Signals) != 5 {
		t.Fatalf("expected 5 signals, got %d", len(result.Signals))
	}
	for i, s := range result.Signals {
		if s != signals[i] {
			t.Errorf("signal %d: expected %s, got %s", i, signals[i].ID, s.ID)
		}
	}
}

func TestScanRepeatedStrategyDoesNotQualify(t *testing.T) {
	signals := makeSignals(
		[]string{"buy", "buy", "buy", "buy", "buy"},
		[]string{"s1", "s2", "s3", "s4", "s1"},
	)

	if result := Scan(signals, 5); result != nil {
		t.Errorf("expected no consensus with only 4 distinct strategies, got %s", result.Direction)
	}
}

func TestScanHoldBreaksRun(t *testing.T) {
	signals := makeSignals(
		[]string{"buy", "buy", "buy", "buy", "hold", "buy"},
		[]string{"s1", "s2", "s3", "s4", "s5", "s6"},
	)

	if result := Scan(signals, 5); result != nil {
		t.Errorf("expected no consensus across a hold break, got %s", result.Direction)
	}
}

func TestScanOppositeSideResetsRun(t *testing.T) {
	signals := makeSignals(
		[]string{"buy", "buy", "buy", "buy", "sell", "buy"},
		[]string{"s1", "s2", "s3", "s4", "s5", "s6"},
	)

	if result := Scan(signals, 5); result != nil {
		t.Errorf("expected no consensus after a direction flip, got %s", result.Direction)
	}
}

func TestScanSlidingWindowCompletesAfterRepeat(t *testing.T) {
	// First 5-window repeats s1; the window sliding one forward is distinct
	signals := makeSignals(
		[]string{"buy", "buy", "buy", "buy", "buy", "buy"},
		[]string{"s1", "s1", "s2", "s3", "s4", "s5"},
	)

	result := Scan(signals, 5)
	if result == nil {
		t.Fatal("expected consensus from sliding window, got none")
	}
	if result.Signals[0] != signals[1] {
		t.Errorf("expected window to start at second signal, got %s", result.Signals[0].ID)
	}
	if result.Signals[4] != signals[5] {
		t.Errorf("expected window to end at last signal, got %s", result.Signals[4].ID)
	}
}

func TestScanSellRun(t *testing.T) {
	signals := makeSignals(
		[]string{"sell", "sell", "sell", "sell", "sell"},
		[]string{"s1", "s2", "s3", "s4", "s5"},
	)

	result := Scan(signals, 5)
	if result == nil {
		t.Fatal("expected sell consensus, got none")
	}
	if result.Direction != database.SideSell {
		t.Errorf("expected sell direction, got %s", result.Direction)
	}
}

func TestScanStopsAtFirstQualifyingWindow(t *testing.T) {
	// Ten distinct buys: the first 5 qualify, the rest must not matter
	signals := makeSignals(
		[]string{"buy", "buy", "buy", "buy", "buy", "buy", "buy", "buy", "buy", "buy"},
		[]string{"s1", "s2", "s3", "s4", "s5", "s6", "s7", "s8", "s9", "s10"},
	)

	result := Scan(signals, 5)
	if result == nil {
		t.Fatal("expected consensus, got none")
	}
	if result.Signals[0] != signals[0] || result.Signals[4] != signals[4] {
		t.Errorf("expected first qualifying window, got %s..%s",
			result.Signals[0].ID, result.Signals[4].ID)
	}
}

func TestScanTooFewSignals(t *testing.T) {
	signals := makeSignals(
		[]string{"buy", "buy", "buy", "buy"},
		[]string{"s1", "s2", "s3", "s4"},
	)

	if result := Scan(signals, 5); result != nil {
		t.Error("expected no consensus from a run of 4")
	}
}
