package position

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"consensus-trading-bot/internal/database"
	"consensus-trading-bot/internal/events"
	"consensus-trading-bot/internal/exchange"
	"consensus-trading-bot/internal/logging"
)

// ErrAlreadyClosed is returned when a close lands on an operation that is no
// longer open. Redelivered close tasks treat it as a no-op.
var ErrAlreadyClosed = errors.New("operation already closed")

// Notifier delivers a human-readable message to a user's configured channel
type Notifier interface {
	NotifyUser(ctx context.Context, userID, message string)
}

// Repository is the persistence surface the manager and monitor consume
type Repository interface {
	GetTradingSettings(ctx context.Context, userID string) (*database.TradingSettings, error)
	CreateOperation(ctx context.Context, op *database.Operation) error
	GetOperationByID(ctx context.Context, id string) (*database.Operation, error)
	GetOpenOperations(ctx context.Context) ([]*database.Operation, error)
	CloseOperation(ctx context.Context, id string, exitPrice, profitLoss, profitLossPercent float64, closedAt time.Time) (bool, error)
	SetBotOperating(ctx context.Context, userID, operationID string) error
	ClearBotOperation(ctx context.Context, userID, operationID string) (bool, error)
	AttachOperationToGroup(ctx context.Context, groupID, operationID string) (bool, error)
}

// Manager opens and closes operations against the exchange and keeps the
// per-user bot state in step with them.
type Manager struct {
	repo     Repository
	factory  exchange.Factory
	bus      *events.EventBus
	notifier Notifier
	log      *logging.Logger
}

// NewManager creates a position manager
func NewManager(repo Repository, factory exchange.Factory, bus *events.EventBus, notifier Notifier, log *logging.Logger) *Manager {
	return &Manager{
		repo:     repo,
		factory:  factory,
		bus:      bus,
		notifier: notifier,
		log:      log.WithComponent("position"),
	}
}

// Open sizes and opens a position for the user in the given direction. The
// invested notional is the configured percentage of the available balance;
// quantity is that notional at the current price, truncated to the symbol's
// precision. On success the user's bot moves to operating and, when
// a group ID is supplied, the triggering group records the operation.
func (m *Manager) Open(ctx context.Context, userID, direction, groupID string) (*database.Operation, error) {
	settings, err := m.repo.GetTradingSettings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load trading settings for %s: %w", userID, err)
	}

	client, err := m.factory.ClientFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	balance, err := client.GetAvailableBalance(ctx)
	if err != nil {
		return nil, err
	}
	investment := balance * settings.InvestmentPercent / 100
	if investment <= 0 {
		return nil, fmt.Errorf("no available balance to invest for user %s", userID)
	}

	price, err := client.GetCurrentPrice(ctx, settings.Symbol)
	if err != nil {
		return nil, err
	}
	precision, err := client.GetQuantityPrecision(ctx, settings.Symbol)
	if err != nil {
		return nil, err
	}

	quantity := RoundQuantityDown(investment/price, precision)
	if quantity <= 0 {
		return nil, fmt.Errorf("investment %.2f too small for %s at %.2f", investment, settings.Symbol, price)
	}

	if err := client.SetLeverage(ctx, settings.Symbol, settings.Leverage); err != nil {
		return nil, err
	}

	side := exchange.OrderSideBuy
	if direction == database.DirectionShort {
		side = exchange.OrderSideSell
	}
	if err := client.PlaceMarketOrder(ctx, settings.Symbol, side, quantity); err != nil {
		return nil, err
	}

	op := &database.Operation{
		ID:         uuid.New().String(),
		UserID:     userID,
		Symbol:     settings.Symbol,
		Direction:  direction,
		Status:     database.OperationOpen,
		EntryPrice: price,
		Quantity:   quantity,
		Leverage:   settings.Leverage,
		Investment: investment,
		TakeProfit: settings.TakeProfit,
		StopLoss:   settings.StopLoss,
	}
	if err := m.repo.CreateOperation(ctx, op); err != nil {
		return nil, fmt.Errorf("failed to persist operation: %w", err)
	}
	if err := m.repo.SetBotOperating(ctx, userID, op.ID); err != nil {
		return nil, fmt.Errorf("failed to set bot operating: %w", err)
	}

	if groupID != "" {
		attached, err := m.repo.AttachOperationToGroup(ctx, groupID, op.ID)
		if err != nil {
			m.log.Error("Failed to attach operation to group", "group_id", groupID, "operation_id", op.ID, "error", err)
		} else if !attached {
			m.log.Warn("Group already references an operation", "group_id", groupID, "operation_id", op.ID)
		}
	}

	m.log.Info("Position opened",
		"user_id", userID, "operation_id", op.ID, "symbol", op.Symbol,
		"direction", direction, "entry_price", price, "quantity", quantity,
		"leverage", op.Leverage, "investment", investment)
	m.bus.PublishTradeOpened(userID, op.ID, op.Symbol, direction, price, quantity, op.Leverage)
	if m.notifier != nil {
		m.notifier.NotifyUser(ctx, userID, fmt.Sprintf(
			"Opened %s %s: %.6f @ %.2f (%dx, %.2f invested)",
			direction, op.Symbol, quantity, price, op.Leverage, investment))
	}
	return op, nil
}

// Close settles an open operation at the current price and returns it with
// its profit figures filled in. Closing is conditional on the row still being
// open, so a redelivered close returns ErrAlreadyClosed instead of settling
// twice. On success the bot returns to listening.
func (m *Manager) Close(ctx context.Context, operationID, reason string) (*database.Operation, error) {
	op, err := m.repo.GetOperationByID(ctx, operationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load operation %s: %w", operationID, err)
	}
	if op.Status != database.OperationOpen {
		return nil, ErrAlreadyClosed
	}

	client, err := m.factory.ClientFor(ctx, op.UserID)
	if err != nil {
		return nil, err
	}

	price, err := client.GetCurrentPrice(ctx, op.Symbol)
	if err != nil {
		return nil, err
	}

	// Exit with the opposite side of the entry order
	side := exchange.OrderSideSell
	if op.Direction == database.DirectionShort {
		side = exchange.OrderSideBuy
	}
	if err := client.PlaceMarketOrder(ctx, op.Symbol, side, op.Quantity); err != nil {
		return nil, err
	}

	pnlPercent := LeveragedProfitPercent(op.Direction, op.EntryPrice, price, op.Leverage)
	pnl := ProfitAmount(op.Investment, pnlPercent)
	closedAt := time.Now()

	closed, err := m.repo.CloseOperation(ctx, op.ID, price, pnl, pnlPercent, closedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to close operation %s: %w", op.ID, err)
	}
	if !closed {
		return nil, ErrAlreadyClosed
	}

	op.Status = database.OperationClosed
	op.ExitPrice = &price
	op.ProfitLoss = &pnl
	op.ProfitLossPercent = &pnlPercent
	op.ClosedAt = &closedAt

	cleared, err := m.repo.ClearBotOperation(ctx, op.UserID, op.ID)
	if err != nil {
		m.log.Error("Failed to clear bot operation", "user_id", op.UserID, "operation_id", op.ID, "error", err)
	} else if !cleared {
		m.log.Warn("Bot no longer references closed operation", "user_id", op.UserID, "operation_id", op.ID)
	}

	m.log.Info("Position closed",
		"user_id", op.UserID, "operation_id", op.ID, "symbol", op.Symbol,
		"reason", reason, "exit_price", price, "pnl", pnl, "pnl_percent", pnlPercent)
	m.bus.PublishTradeClosed(op.UserID, op.ID, op.Symbol, op.EntryPrice, price, pnl, pnlPercent)
	if m.notifier != nil {
		m.notifier.NotifyUser(ctx, op.UserID, fmt.Sprintf(
			"Closed %s %s @ %.2f (%s): PnL %.2f (%.2f%%)",
			op.Direction, op.Symbol, price, reason, pnl, pnlPercent))
	}
	return op, nil
}
