package position

import (
	"context"
	"sync"
	"time"

	"consensus-trading-bot/config"
	"consensus-trading-bot/internal/database"
	"consensus-trading-bot/internal/exchange"
	"consensus-trading-bot/internal/logging"
)

// Closer requests the close of an operation. The monitor hands closes off
// through it instead of settling inline, so closes run under the same
// per-user serialization as every other lifecycle mutation.
type Closer interface {
	RequestClose(ctx context.Context, operationID, reason string) error
}

// Close reasons recorded on monitor-triggered closes
const (
	ReasonTakeProfit = "take_profit"
	ReasonStopLoss   = "stop_loss"
	ReasonReversal   = "reversal"
	ReasonManual     = "manual"
)

// Monitor periodically sweeps open operations and requests a close for any
// whose leveraged profit crossed its take-profit or stop-loss threshold.
type Monitor struct {
	repo    Repository
	factory exchange.Factory
	closer  Closer
	cfg     config.MonitorConfig
	log     *logging.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewMonitor creates a position monitor
func NewMonitor(repo Repository, factory exchange.Factory, closer Closer, cfg config.MonitorConfig, log *logging.Logger) *Monitor {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = 10 * time.Second
	}
	return &Monitor{
		repo:    repo,
		factory: factory,
		closer:  closer,
		cfg:     cfg,
		log:     log.WithComponent("monitor"),
	}
}

// Start launches the sweep loop
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.cfg.ScanInterval)
		defer ticker.Stop()

		m.log.Info("Position monitor started", "interval", m.cfg.ScanInterval.String())
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sweep(ctx)
			}
		}
	}()
}

// Stop halts the sweep loop and waits for an in-flight sweep to finish
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	m.log.Info("Position monitor stopped")
}

// sweep checks every open operation once. A failure on one operation never
// blocks the rest of the sweep.
func (m *Monitor) sweep(ctx context.Context) {
	operations, err := m.repo.GetOpenOperations(ctx)
	if err != nil {
		m.log.Error("Failed to load open operations", "error", err)
		return
	}

	// One price fetch per symbol per sweep
	prices := make(map[string]float64)

	for _, op := range operations {
		price, ok := prices[op.Symbol]
		if !ok {
			client, err := m.factory.ClientFor(ctx, op.UserID)
			if err != nil {
				m.log.Error("Failed to build exchange client", "user_id", op.UserID, "error", err)
				continue
			}
			price, err = client.GetCurrentPrice(ctx, op.Symbol)
			if err != nil {
				m.log.Error("Failed to fetch price", "symbol", op.Symbol, "error", err)
				continue
			}
			prices[op.Symbol] = price
		}

		m.check(ctx, op, price)
	}
}

func (m *Monitor) check(ctx context.Context, op *database.Operation, price float64) {
	pnlPercent := LeveragedProfitPercent(op.Direction, op.EntryPrice, price, op.Leverage)

	var reason string
	switch {
	case pnlPercent >= op.TakeProfit:
		reason = ReasonTakeProfit
	case pnlPercent <= -op.StopLoss:
		reason = ReasonStopLoss
	default:
		return
	}

	m.log.Info("Threshold crossed",
		"operation_id", op.ID, "user_id", op.UserID, "symbol", op.Symbol,
		"pnl_percent", pnlPercent, "reason", reason)
	if err := m.closer.RequestClose(ctx, op.ID, reason); err != nil {
		m.log.Error("Failed to request close", "operation_id", op.ID, "error", err)
	}
}
