package consensus

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"consensus-trading-bot/config"
	"consensus-trading-bot/internal/database"
	"consensus-trading-bot/internal/events"
	"consensus-trading-bot/internal/logging"
)

// Detector ingests signals and detects consensus windows over them
type Detector struct {
	repo *database.Repository
	bus  *events.EventBus
	cfg  config.ConsensusConfig
	log  *logging.Logger
}

// NewDetector creates a consensus detector
func NewDetector(repo *database.Repository, bus *events.EventBus, cfg config.ConsensusConfig, log *logging.Logger) *Detector {
	if cfg.WindowMinutes <= 0 {
		cfg.WindowMinutes = 60
	}
	if cfg.RunLength <= 0 {
		cfg.RunLength = 5
	}
	return &Detector{
		repo: repo,
		bus:  bus,
		cfg:  cfg,
		log:  log.WithComponent("consensus"),
	}
}

// Ingest claims a stored signal for processing. Returns the signal when this
// call won the processed flag, or (nil, nil) when another delivery already
// claimed it.
func (d *Detector) Ingest(ctx context.Context, signalID string) (*database.Signal, error) {
	signal, err := d.repo.GetSignalByID(ctx, signalID)
	if err != nil {
		return nil, fmt.Errorf("failed to load signal %s: %w", signalID, err)
	}

	claimed, err := d.repo.MarkSignalProcessed(ctx, signalID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark signal %s processed: %w", signalID, err)
	}
	if !claimed {
		return nil, nil
	}

	d.log.Info("Signal ingested",
		"signal_id", signal.ID, "ticker", signal.Ticker,
		"side", signal.Side, "strategy", signal.Strategy)
	d.bus.PublishSignalIngested(signal.ID, signal.Ticker, signal.Side, signal.Strategy, signal.Price)
	return signal, nil
}

// CheckSymbol scans the symbol's recent signals for a newly completed
// consensus run. When one is found it is frozen as a signal group; the group
// is returned, or nil when no consensus completed.
func (d *Detector) CheckSymbol(ctx context.Context, ticker string) (*database.SignalGroup, error) {
	since := time.Now().Add(-time.Duration(d.cfg.WindowMinutes) * time.Minute)
	signals, err := d.repo.GetRecentSignals(ctx, ticker, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent signals for %s: %w", ticker, err)
	}

	result := Scan(signals, d.cfg.RunLength)
	if result == nil {
		return nil, nil
	}

	group := &database.SignalGroup{
		ID:        uuid.New().String(),
		Direction: result.Direction,
		Signals:   result.Signals,
	}
	if err := d.repo.CreateSignalGroup(ctx, group); err != nil {
		return nil, fmt.Errorf("failed to create signal group for %s: %w", ticker, err)
	}

	d.log.Info("Consensus detected",
		"ticker", ticker, "direction", group.Direction,
		"group_id", group.ID, "signals", len(group.Signals))
	d.bus.PublishGroupCreated(group.ID, ticker, group.Direction, len(group.Signals))
	return group, nil
}
