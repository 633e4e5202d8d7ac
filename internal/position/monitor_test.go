package position

import (
	"context"
	"testing"
	"time"

	"consensus-trading-bot/config"
	"consensus-trading-bot/internal/database"
	"consensus-trading-bot/internal/exchange"
	"consensus-trading-bot/internal/logging"
)

type closeRequest struct {
	operationID string
	reason      string
}

type stubCloser struct {
	requests []closeRequest
}

func (c *stubCloser) RequestClose(ctx context.Context, operationID, reason string) error {
	c.requests = append(c.requests, closeRequest{operationID, reason})
	return nil
}

func monitorOp(direction string) *database.Operation {
	return &database.Operation{
		ID: "op-1", UserID: "u1", Symbol: "BTCUSDT",
		Direction: direction, Status: database.OperationOpen,
		EntryPrice: 100, Quantity: 10, Leverage: 10, Investment: 1000,
		TakeProfit: 50, StopLoss: 50,
	}
}

func TestMonitorThresholds(t *testing.T) {
	cases := []struct {
		name       string
		direction  string
		price      float64
		wantReason string
	}{
		{"long hits take profit", database.DirectionLong, 105, ReasonTakeProfit},
		{"long hits stop loss", database.DirectionLong, 95, ReasonStopLoss},
		{"long inside the band", database.DirectionLong, 104.9, ""},
		{"short hits take profit", database.DirectionShort, 95, ReasonTakeProfit},
		{"short hits stop loss", database.DirectionShort, 105, ReasonStopLoss},
		{"short inside the band", database.DirectionShort, 95.1, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newStubRepo()
			repo.openOps = []*database.Operation{monitorOp(tc.direction)}
			mock := exchange.NewMockClient(10000)
			mock.SetPrice("BTCUSDT", tc.price)
			closer := &stubCloser{}
			m := NewMonitor(repo, exchange.NewMockFactory(mock), closer,
				config.MonitorConfig{ScanInterval: time.Second}, logging.Default())

			m.sweep(context.Background())

			if tc.wantReason == "" {
				if len(closer.requests) != 0 {
					t.Fatalf("expected no close, got %+v", closer.requests)
				}
				return
			}
			if len(closer.requests) != 1 {
				t.Fatalf("expected 1 close request, got %d", len(closer.requests))
			}
			if got := closer.requests[0]; got.operationID != "op-1" || got.reason != tc.wantReason {
				t.Errorf("expected op-1 closed for %s, got %+v", tc.wantReason, got)
			}
		})
	}
}

func TestMonitorSweepIsolatesFailures(t *testing.T) {
	// The first operation's symbol has no price on the exchange; the sweep
	// must still reach the second one.
	broken := monitorOp(database.DirectionLong)
	broken.ID = "op-broken"
	broken.Symbol = "NOSUCH"
	winner := monitorOp(database.DirectionLong)
	winner.ID = "op-winner"

	repo := newStubRepo()
	repo.openOps = []*database.Operation{broken, winner}
	mock := exchange.NewMockClient(10000)
	mock.SetPrice("BTCUSDT", 110)
	closer := &stubCloser{}
	m := NewMonitor(repo, exchange.NewMockFactory(mock), closer,
		config.MonitorConfig{ScanInterval: time.Second}, logging.Default())

	m.sweep(context.Background())

	if len(closer.requests) != 1 {
		t.Fatalf("expected 1 close request, got %d", len(closer.requests))
	}
	if closer.requests[0].operationID != "op-winner" {
		t.Errorf("expected op-winner closed, got %+v", closer.requests[0])
	}
}
