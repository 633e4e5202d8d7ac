package strategy

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"consensus-trading-bot/config"
	"consensus-trading-bot/internal/database"
	"consensus-trading-bot/internal/exchange"
	"consensus-trading-bot/internal/logging"
)

// maxHistory caps the rolling price series fed to strategies
const maxHistory = 500

// Enqueuer hands a stored signal to the ingestion pipeline
type Enqueuer interface {
	IngestSignal(ctx context.Context, signalID string) error
}

// Runner polls the exchange price on an interval, evaluates every registered
// strategy against the rolling series, and submits non-hold recommendations
// as signals.
type Runner struct {
	repo       *database.Repository
	client     exchange.Client
	enqueuer   Enqueuer
	strategies []Strategy
	cfg        config.StrategyConfig
	log        *logging.Logger

	prices []float64
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewRunner creates a strategy runner over the given strategy set
func NewRunner(repo *database.Repository, client exchange.Client, enqueuer Enqueuer, strategies []Strategy, cfg config.StrategyConfig, log *logging.Logger) *Runner {
	if cfg.RunInterval <= 0 {
		cfg.RunInterval = 60
	}
	return &Runner{
		repo:       repo,
		client:     client,
		enqueuer:   enqueuer,
		strategies: strategies,
		cfg:        cfg,
		log:        log.WithComponent("strategy"),
	}
}

// Start launches the evaluation loop
func (r *Runner) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		interval := time.Duration(r.cfg.RunInterval) * time.Second
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		r.log.Info("Strategy runner started",
			"symbol", r.cfg.Symbol, "strategies", len(r.strategies), "interval", interval.String())
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.evaluate(ctx)
			}
		}
	}()
}

// Stop halts the evaluation loop
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.log.Info("Strategy runner stopped")
}

func (r *Runner) evaluate(ctx context.Context) {
	price, err := r.client.GetCurrentPrice(ctx, r.cfg.Symbol)
	if err != nil {
		r.log.Error("Failed to fetch price", "symbol", r.cfg.Symbol, "error", err)
		return
	}

	r.prices = append(r.prices, price)
	if len(r.prices) > maxHistory {
		r.prices = r.prices[len(r.prices)-maxHistory:]
	}

	for _, strat := range r.strategies {
		side := strat.Evaluate(r.prices)
		if side == database.SideHold {
			continue
		}
		r.submit(ctx, strat.Name(), side, price)
	}
}

func (r *Runner) submit(ctx context.Context, strategyName, side string, price float64) {
	signal := &database.Signal{
		ID:        uuid.New().String(),
		Ticker:    r.cfg.Symbol,
		Side:      side,
		Timeframe: r.cfg.Timeframe,
		Strategy:  strategyName,
		Price:     price,
	}
	if err := r.repo.CreateSignal(ctx, signal); err != nil {
		r.log.Error("Failed to store signal", "strategy", strategyName, "error", err)
		return
	}
	if err := r.enqueuer.IngestSignal(ctx, signal.ID); err != nil {
		r.log.Error("Failed to enqueue signal", "signal_id", signal.ID, "error", err)
		return
	}
	r.log.Debug("Signal submitted",
		"strategy", strategyName, "symbol", r.cfg.Symbol, "side", side, "price", price)
}
