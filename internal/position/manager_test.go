package position

import (
	"context"
	"errors"
	"testing"
	"time"

	"consensus-trading-bot/internal/database"
	"consensus-trading-bot/internal/events"
	"consensus-trading-bot/internal/exchange"
	"consensus-trading-bot/internal/logging"
)

type stubRepo struct {
	settings *database.TradingSettings
	ops      map[string]*database.Operation
	openOps  []*database.Operation

	created   []*database.Operation
	operating []string
	cleared   []string
	attached  []string
	closeOK   bool
}

func newStubRepo() *stubRepo {
	return &stubRepo{ops: make(map[string]*database.Operation), closeOK: true}
}

func (r *stubRepo) GetTradingSettings(ctx context.Context, userID string) (*database.TradingSettings, error) {
	if r.settings == nil {
		return nil, database.ErrNotFound
	}
	return r.settings, nil
}

func (r *stubRepo) CreateOperation(ctx context.Context, op *database.Operation) error {
	op.OpenedAt = time.Now()
	r.created = append(r.created, op)
	r.ops[op.ID] = op
	return nil
}

func (r *stubRepo) GetOperationByID(ctx context.Context, id string) (*database.Operation, error) {
	op, ok := r.ops[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return op, nil
}

func (r *stubRepo) GetOpenOperations(ctx context.Context) ([]*database.Operation, error) {
	return r.openOps, nil
}

func (r *stubRepo) CloseOperation(ctx context.Context, id string, exitPrice, profitLoss, profitLossPercent float64, closedAt time.Time) (bool, error) {
	return r.closeOK, nil
}

func (r *stubRepo) SetBotOperating(ctx context.Context, userID, operationID string) error {
	r.operating = append(r.operating, operationID)
	return nil
}

func (r *stubRepo) ClearBotOperation(ctx context.Context, userID, operationID string) (bool, error) {
	r.cleared = append(r.cleared, operationID)
	return true, nil
}

func (r *stubRepo) AttachOperationToGroup(ctx context.Context, groupID, operationID string) (bool, error) {
	r.attached = append(r.attached, groupID)
	return true, nil
}

// noCredentialsFactory refuses every user
type noCredentialsFactory struct{}

func (noCredentialsFactory) ClientFor(ctx context.Context, userID string) (exchange.Client, error) {
	return nil, exchange.ErrCredentialsMissing
}

func testSettings() *database.TradingSettings {
	return &database.TradingSettings{
		UserID:            "u1",
		Symbol:            "BTCUSDT",
		InvestmentPercent: 10,
		Leverage:          10,
		TakeProfit:        50,
		StopLoss:          50,
	}
}

func newTestManager(repo *stubRepo, factory exchange.Factory) *Manager {
	return NewManager(repo, factory, events.NewEventBus(), nil, logging.Default())
}

func TestOpenMissingCredentialsLeavesNoState(t *testing.T) {
	repo := newStubRepo()
	repo.settings = testSettings()
	m := newTestManager(repo, noCredentialsFactory{})

	_, err := m.Open(context.Background(), "u1", database.DirectionLong, "g1")
	if !errors.Is(err, exchange.ErrCredentialsMissing) {
		t.Fatalf("expected ErrCredentialsMissing, got %v", err)
	}
	if len(repo.created) != 0 || len(repo.operating) != 0 || len(repo.attached) != 0 {
		t.Error("a refused open must not persist anything")
	}
}

func TestOpenExchangeFailureLeavesNoState(t *testing.T) {
	repo := newStubRepo()
	repo.settings = testSettings()
	mock := exchange.NewMockClient(10000)
	mock.FailNext = true
	m := newTestManager(repo, exchange.NewMockFactory(mock))

	_, err := m.Open(context.Background(), "u1", database.DirectionLong, "")
	if !errors.Is(err, exchange.ErrExchange) {
		t.Fatalf("expected ErrExchange, got %v", err)
	}
	if len(repo.created) != 0 || len(repo.operating) != 0 {
		t.Error("an exchange failure must not persist anything")
	}
}

func TestOpenSizesQuantityFromInvestment(t *testing.T) {
	repo := newStubRepo()
	repo.settings = testSettings()
	mock := exchange.NewMockClient(10000)
	mock.SetPrice("BTCUSDT", 50000)
	mock.SetPrecision("BTCUSDT", 3)
	m := newTestManager(repo, exchange.NewMockFactory(mock))

	op, err := m.Open(context.Background(), "u1", database.DirectionLong, "g1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 10% of 10000 buys 0.02 BTC at 50000; leverage never inflates quantity
	if op.Investment != 1000 {
		t.Errorf("expected investment 1000, got %v", op.Investment)
	}
	if op.Quantity != 0.02 {
		t.Errorf("expected quantity 0.02, got %v", op.Quantity)
	}
	if op.EntryPrice != 50000 || op.Leverage != 10 {
		t.Errorf("unexpected entry: price %v leverage %d", op.EntryPrice, op.Leverage)
	}

	orders := mock.Orders()
	if len(orders) != 1 || orders[0].Side != exchange.OrderSideBuy || orders[0].Quantity != 0.02 {
		t.Errorf("unexpected orders: %+v", orders)
	}
	if got := mock.Leverage("BTCUSDT"); got != 10 {
		t.Errorf("expected leverage 10 on the exchange, got %d", got)
	}
	if len(repo.operating) != 1 || repo.operating[0] != op.ID {
		t.Errorf("expected bot bound to %s, got %v", op.ID, repo.operating)
	}
	if len(repo.attached) != 1 || repo.attached[0] != "g1" {
		t.Errorf("expected group g1 attached, got %v", repo.attached)
	}
}

func TestOpenShortSellsAtEntry(t *testing.T) {
	repo := newStubRepo()
	repo.settings = testSettings()
	mock := exchange.NewMockClient(10000)
	mock.SetPrice("BTCUSDT", 50000)
	mock.SetPrecision("BTCUSDT", 3)
	m := newTestManager(repo, exchange.NewMockFactory(mock))

	op, err := m.Open(context.Background(), "u1", database.DirectionShort, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if op.Direction != database.DirectionShort {
		t.Errorf("expected short operation, got %s", op.Direction)
	}
	orders := mock.Orders()
	if len(orders) != 1 || orders[0].Side != exchange.OrderSideSell {
		t.Errorf("a short entry must sell, got %+v", orders)
	}
}

func TestCloseSettlesLeveragedProfit(t *testing.T) {
	cases := []struct {
		name        string
		direction   string
		exitSide    string
		wantPercent float64
	}{
		{"long gains on a rise", database.DirectionLong, exchange.OrderSideSell, 100},
		{"short loses on a rise", database.DirectionShort, exchange.OrderSideBuy, -100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newStubRepo()
			repo.ops["op-1"] = &database.Operation{
				ID: "op-1", UserID: "u1", Symbol: "BTCUSDT",
				Direction: tc.direction, Status: database.OperationOpen,
				EntryPrice: 100, Quantity: 10, Leverage: 10, Investment: 1000,
				TakeProfit: 50, StopLoss: 50,
			}
			mock := exchange.NewMockClient(10000)
			mock.SetPrice("BTCUSDT", 110)
			m := newTestManager(repo, exchange.NewMockFactory(mock))

			op, err := m.Close(context.Background(), "op-1", ReasonManual)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if op.ProfitLossPercent == nil || *op.ProfitLossPercent != tc.wantPercent {
				t.Fatalf("expected %v%% leveraged profit, got %v", tc.wantPercent, op.ProfitLossPercent)
			}
			wantPnL := 1000 * tc.wantPercent / 100
			if op.ProfitLoss == nil || *op.ProfitLoss != wantPnL {
				t.Errorf("expected PnL %v, got %v", wantPnL, op.ProfitLoss)
			}
			orders := mock.Orders()
			if len(orders) != 1 || orders[0].Side != tc.exitSide {
				t.Errorf("unexpected exit orders: %+v", orders)
			}
			if len(repo.cleared) != 1 || repo.cleared[0] != "op-1" {
				t.Errorf("expected bot released from op-1, got %v", repo.cleared)
			}
		})
	}
}

func TestCloseAlreadyClosedIsNoOp(t *testing.T) {
	repo := newStubRepo()
	repo.ops["op-1"] = &database.Operation{
		ID: "op-1", UserID: "u1", Symbol: "BTCUSDT",
		Direction: database.DirectionLong, Status: database.OperationClosed,
	}
	mock := exchange.NewMockClient(10000)
	m := newTestManager(repo, exchange.NewMockFactory(mock))

	if _, err := m.Close(context.Background(), "op-1", ReasonManual); !errors.Is(err, ErrAlreadyClosed) {
		t.Fatalf("expected ErrAlreadyClosed, got %v", err)
	}
	if len(mock.Orders()) != 0 {
		t.Error("a closed operation must not trade again")
	}
}

func TestCloseLosingConditionalUpdateIsNoOp(t *testing.T) {
	// A concurrent close can win the conditional update between our status
	// read and our write; the loser reports ErrAlreadyClosed.
	repo := newStubRepo()
	repo.closeOK = false
	repo.ops["op-1"] = &database.Operation{
		ID: "op-1", UserID: "u1", Symbol: "BTCUSDT",
		Direction: database.DirectionLong, Status: database.OperationOpen,
		EntryPrice: 100, Quantity: 10, Leverage: 10, Investment: 1000,
	}
	mock := exchange.NewMockClient(10000)
	mock.SetPrice("BTCUSDT", 110)
	m := newTestManager(repo, exchange.NewMockFactory(mock))

	if _, err := m.Close(context.Background(), "op-1", ReasonManual); !errors.Is(err, ErrAlreadyClosed) {
		t.Fatalf("expected ErrAlreadyClosed, got %v", err)
	}
	if len(repo.cleared) != 0 {
		t.Error("a lost close must not touch the bot")
	}
}
