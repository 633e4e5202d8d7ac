// Package tasks binds the pipeline stages to queue task types. Each handler
// runs one stage and hands off to the next by enqueueing, never by calling
// into another stage's poll loop.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"consensus-trading-bot/internal/bot"
	"consensus-trading-bot/internal/consensus"
	"consensus-trading-bot/internal/database"
	"consensus-trading-bot/internal/logging"
	"consensus-trading-bot/internal/position"
	"consensus-trading-bot/internal/queue"
)

// Task types
const (
	TypeProcessSignal         = "process_signal"
	TypeCheckConsecutive      = "check_consecutive"
	TypeHandleConfirmation    = "handle_confirmation"
	TypeOpenPosition          = "open_position"
	TypeClosePosition         = "close_position"
	TypeStartBot              = "start_bot"
	TypeStopBot               = "stop_bot"
	TypeRestartBot            = "restart_bot"
	TypeProcessPendingSignals = "process_pending_signals"
)

// Payloads
type (
	SignalPayload struct {
		SignalID string `json:"signal_id"`
	}
	CheckPayload struct {
		Ticker string `json:"ticker"`
	}
	ConfirmationPayload struct {
		UserID  string `json:"user_id"`
		GroupID string `json:"group_id"`
		Side    string `json:"side"` // The group's signal side; mapped to a direction downstream
	}
	OpenPayload struct {
		UserID    string `json:"user_id"`
		Direction string `json:"direction"`
		GroupID   string `json:"group_id,omitempty"`
	}
	ClosePayload struct {
		OperationID string `json:"operation_id"`
		Reason      string `json:"reason"`
	}
	BotPayload struct {
		UserID string `json:"user_id"`
	}
)

// Handlers owns the task handler set and the hand-offs between them
type Handlers struct {
	repo     *database.Repository
	detector *consensus.Detector
	bots     *bot.Service
	manager  *position.Manager
	queue    *queue.Queue
	locker   *queue.Locker
	log      *logging.Logger
}

// NewHandlers creates the handler set. The bot service is attached
// afterwards with SetBotService; it needs the handlers as its scheduler.
func NewHandlers(repo *database.Repository, detector *consensus.Detector, manager *position.Manager, q *queue.Queue, locker *queue.Locker, log *logging.Logger) *Handlers {
	return &Handlers{
		repo:     repo,
		detector: detector,
		manager:  manager,
		queue:    q,
		locker:   locker,
		log:      log.WithComponent("tasks"),
	}
}

// SetBotService attaches the bot service. Must be called before Register.
func (h *Handlers) SetBotService(bots *bot.Service) {
	h.bots = bots
}

// Register binds every handler to its task type
func (h *Handlers) Register() {
	h.queue.Register(TypeProcessSignal, h.processSignal)
	h.queue.Register(TypeCheckConsecutive, h.checkConsecutive)
	h.queue.Register(TypeHandleConfirmation, h.handleConfirmation)
	h.queue.Register(TypeOpenPosition, h.openPosition)
	h.queue.Register(TypeClosePosition, h.closePosition)
	h.queue.Register(TypeStartBot, h.startBot)
	h.queue.Register(TypeStopBot, h.stopBot)
	h.queue.Register(TypeRestartBot, h.restartBot)
	h.queue.Register(TypeProcessPendingSignals, h.processPendingSignals)
}

// IngestSignal enqueues ingestion of a stored signal. Entry point for the
// inbound signal endpoint and the strategy runner.
func (h *Handlers) IngestSignal(ctx context.Context, signalID string) error {
	return h.queue.Enqueue(ctx, TypeProcessSignal, SignalPayload{SignalID: signalID})
}

// ControlBot enqueues a bot lifecycle task (start_bot, stop_bot, restart_bot)
func (h *Handlers) ControlBot(ctx context.Context, taskType, userID string) error {
	return h.queue.Enqueue(ctx, taskType, BotPayload{UserID: userID})
}

// ScheduleOpen defers an open, implementing the reversal hand-off
func (h *Handlers) ScheduleOpen(ctx context.Context, delay time.Duration, userID, direction, groupID string) error {
	return h.queue.EnqueueIn(ctx, delay, TypeOpenPosition, OpenPayload{
		UserID:    userID,
		Direction: direction,
		GroupID:   groupID,
	})
}

// RequestClose enqueues a close, implementing position.Closer for the monitor
func (h *Handlers) RequestClose(ctx context.Context, operationID, reason string) error {
	return h.queue.Enqueue(ctx, TypeClosePosition, ClosePayload{
		OperationID: operationID,
		Reason:      reason,
	})
}

// StartPendingSweep enqueues a pending-signal sweep on a fixed interval
// until the context is cancelled.
func (h *Handlers) StartPendingSweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := h.queue.Enqueue(ctx, TypeProcessPendingSignals, struct{}{}); err != nil {
					h.log.Error("Failed to enqueue pending sweep", "error", err)
				}
			}
		}
	}()
}

func (h *Handlers) processSignal(ctx context.Context, payload json.RawMessage) error {
	var p SignalPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("malformed payload: %w", err)
	}

	signal, err := h.detector.Ingest(ctx, p.SignalID)
	if err != nil {
		return err
	}
	if signal == nil {
		return queue.ErrSkip // Already processed by an earlier delivery
	}
	return h.queue.Enqueue(ctx, TypeCheckConsecutive, CheckPayload{Ticker: signal.Ticker})
}

func (h *Handlers) checkConsecutive(ctx context.Context, payload json.RawMessage) error {
	var p CheckPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("malformed payload: %w", err)
	}

	group, err := h.detector.CheckSymbol(ctx, p.Ticker)
	if err != nil {
		return err
	}
	if group == nil {
		return queue.ErrSkip // No consensus yet
	}

	userIDs, err := h.repo.GetUserIDsBySymbol(ctx, p.Ticker)
	if err != nil {
		return fmt.Errorf("failed to load subscribers for %s: %w", p.Ticker, err)
	}
	for _, userID := range userIDs {
		err := h.queue.Enqueue(ctx, TypeHandleConfirmation, ConfirmationPayload{
			UserID:  userID,
			GroupID: group.ID,
			Side:    group.Direction,
		})
		if err != nil {
			h.log.Error("Failed to dispatch confirmation",
				"user_id", userID, "group_id", group.ID, "error", err)
		}
	}
	return nil
}

func (h *Handlers) handleConfirmation(ctx context.Context, payload json.RawMessage) error {
	var p ConfirmationPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("malformed payload: %w", err)
	}

	return h.locker.WithLock(ctx, p.UserID, func(ctx context.Context) error {
		err := h.bots.HandleConfirmation(ctx, p.UserID, p.GroupID, p.Side)
		if errors.Is(err, position.ErrAlreadyClosed) {
			return queue.ErrSkip
		}
		return err
	})
}

func (h *Handlers) openPosition(ctx context.Context, payload json.RawMessage) error {
	var p OpenPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("malformed payload: %w", err)
	}

	return h.locker.WithLock(ctx, p.UserID, func(ctx context.Context) error {
		// A deferred reversal open only proceeds for a bot still willing to
		// trade; the user may have stopped it during the delay.
		b, err := h.repo.GetBot(ctx, p.UserID)
		if err != nil {
			return fmt.Errorf("failed to load bot for %s: %w", p.UserID, err)
		}
		if b.Status != database.BotListening && b.Status != database.BotConfirming {
			h.log.Info("Skipping deferred open", "user_id", p.UserID, "status", b.Status)
			return queue.ErrSkip
		}

		_, err = h.manager.Open(ctx, p.UserID, p.Direction, p.GroupID)
		return err
	})
}

func (h *Handlers) closePosition(ctx context.Context, payload json.RawMessage) error {
	var p ClosePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("malformed payload: %w", err)
	}

	op, err := h.repo.GetOperationByID(ctx, p.OperationID)
	if err != nil {
		return fmt.Errorf("failed to load operation %s: %w", p.OperationID, err)
	}

	return h.locker.WithLock(ctx, op.UserID, func(ctx context.Context) error {
		_, err := h.manager.Close(ctx, p.OperationID, p.Reason)
		if errors.Is(err, position.ErrAlreadyClosed) {
			return queue.ErrSkip
		}
		return err
	})
}

func (h *Handlers) startBot(ctx context.Context, payload json.RawMessage) error {
	return h.withBotLock(ctx, payload, h.bots.Start)
}

func (h *Handlers) stopBot(ctx context.Context, payload json.RawMessage) error {
	return h.withBotLock(ctx, payload, h.bots.Stop)
}

func (h *Handlers) restartBot(ctx context.Context, payload json.RawMessage) error {
	return h.withBotLock(ctx, payload, h.bots.Restart)
}

func (h *Handlers) withBotLock(ctx context.Context, payload json.RawMessage, fn func(ctx context.Context, userID string) error) error {
	var p BotPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("malformed payload: %w", err)
	}
	return h.locker.WithLock(ctx, p.UserID, func(ctx context.Context) error {
		return fn(ctx, p.UserID)
	})
}

// processPendingSignals re-enqueues ingestion for signals that were stored
// but never claimed, catching work lost to a broker flush or crash.
func (h *Handlers) processPendingSignals(ctx context.Context, payload json.RawMessage) error {
	signals, err := h.repo.GetUnprocessedSignals(ctx, 100)
	if err != nil {
		return fmt.Errorf("failed to load unprocessed signals: %w", err)
	}
	if len(signals) == 0 {
		return queue.ErrSkip
	}

	for _, signal := range signals {
		if err := h.IngestSignal(ctx, signal.ID); err != nil {
			h.log.Error("Failed to re-enqueue signal", "signal_id", signal.ID, "error", err)
		}
	}
	h.log.Info("Re-enqueued pending signals", "count", len(signals))
	return nil
}
