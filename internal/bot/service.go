// Package bot holds the per-user automation state machine and the
// confirmation dispatcher that reacts to consensus groups on its behalf.
package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"consensus-trading-bot/internal/database"
	"consensus-trading-bot/internal/events"
	"consensus-trading-bot/internal/logging"
	"consensus-trading-bot/internal/position"
)

// Scheduler defers the open leg of a reversal. The delay lets the close
// settle before the opposite position is sized and opened.
type Scheduler interface {
	ScheduleOpen(ctx context.Context, delay time.Duration, userID, direction, groupID string) error
}

// Repository is the persistence surface the service consumes
type Repository interface {
	GetBot(ctx context.Context, userID string) (*database.Bot, error)
	GetOrCreateBot(ctx context.Context, userID string) (*database.Bot, error)
	UpdateBotStatus(ctx context.Context, userID, status string) error
	IncrementConfirmingCount(ctx context.Context, userID string) error
	GetOperationByID(ctx context.Context, id string) (*database.Operation, error)
}

// PositionManager opens and closes operations on the service's behalf
type PositionManager interface {
	Open(ctx context.Context, userID, direction, groupID string) (*database.Operation, error)
	Close(ctx context.Context, operationID, reason string) (*database.Operation, error)
}

// Service drives bot lifecycle transitions and dispatches confirmed signal
// groups. Callers serialize per user; the service assumes it is the only
// writer for the user while a method runs.
type Service struct {
	repo          Repository
	manager       PositionManager
	scheduler     Scheduler
	bus           *events.EventBus
	reversalDelay time.Duration
	log           *logging.Logger
}

// NewService creates a bot service
func NewService(repo Repository, manager PositionManager, scheduler Scheduler, bus *events.EventBus, reversalDelay time.Duration, log *logging.Logger) *Service {
	if reversalDelay <= 0 {
		reversalDelay = 5 * time.Second
	}
	return &Service{
		repo:          repo,
		manager:       manager,
		scheduler:     scheduler,
		bus:           bus,
		reversalDelay: reversalDelay,
		log:           log.WithComponent("bot"),
	}
}

// Start moves an idle bot to listening. Creates the bot row on first use;
// a bot that is already active is left as it is.
func (s *Service) Start(ctx context.Context, userID string) error {
	bot, err := s.repo.GetOrCreateBot(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load bot for %s: %w", userID, err)
	}
	if bot.Status != database.BotIdle {
		s.log.Debug("Bot already active", "user_id", userID, "status", bot.Status)
		return nil
	}

	if err := s.repo.UpdateBotStatus(ctx, userID, database.BotListening); err != nil {
		return fmt.Errorf("failed to start bot for %s: %w", userID, err)
	}
	s.log.Info("Bot started", "user_id", userID)
	s.bus.PublishBotStatus(events.EventBotStarted, userID, database.BotListening)
	return nil
}

// Stop moves the bot to idle from any state. An open operation stays open;
// stopping never closes positions.
func (s *Service) Stop(ctx context.Context, userID string) error {
	bot, err := s.repo.GetBot(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load bot for %s: %w", userID, err)
	}
	if bot.Status == database.BotIdle {
		return nil
	}

	if err := s.repo.UpdateBotStatus(ctx, userID, database.BotIdle); err != nil {
		return fmt.Errorf("failed to stop bot for %s: %w", userID, err)
	}
	s.log.Info("Bot stopped", "user_id", userID,
		"open_operation", bot.CurrentOperationID != nil)
	s.bus.PublishBotStatus(events.EventBotStopped, userID, database.BotIdle)
	return nil
}

// Restart is stop then start
func (s *Service) Restart(ctx context.Context, userID string) error {
	if err := s.Stop(ctx, userID); err != nil {
		return err
	}
	return s.Start(ctx, userID)
}

// HandleConfirmation reacts to a confirmed signal group on behalf of one
// user. The group carries a signal side (buy or sell); it becomes an
// operation direction here, at the dispatch boundary, so everything
// downstream only ever sees long or short. An idle bot ignores the group; a
// bot still referencing an open operation ignores same-direction groups and
// reverses on opposite ones, closing first and deferring the new open; a bot
// with no operation opens directly. Returns position.ErrAlreadyClosed
// untouched so redelivered reversals stay no-ops.
func (s *Service) HandleConfirmation(ctx context.Context, userID, groupID, side string) error {
	bot, err := s.repo.GetOrCreateBot(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load bot for %s: %w", userID, err)
	}
	if bot.Status == database.BotIdle {
		s.log.Debug("Ignoring group for idle bot", "user_id", userID, "group_id", groupID)
		return nil
	}

	direction := database.SideToDirection(side)

	// The operation reference outranks the status: a stop/start cycle leaves
	// the operation attached while the bot sits in listening, and opening on
	// top of it would break the one-open-position rule.
	if bot.CurrentOperationID != nil {
		op, err := s.repo.GetOperationByID(ctx, *bot.CurrentOperationID)
		if err != nil {
			return fmt.Errorf("failed to load operation %s: %w", *bot.CurrentOperationID, err)
		}
		if database.DirectionToSide(op.Direction) == side {
			s.log.Debug("Ignoring same-direction group",
				"user_id", userID, "group_id", groupID, "direction", direction)
			return nil
		}
		return s.reverse(ctx, userID, op.ID, groupID, direction)
	}

	// listening, or the transient confirming state
	if err := s.repo.IncrementConfirmingCount(ctx, userID); err != nil {
		s.log.Warn("Failed to bump confirming count", "user_id", userID, "error", err)
	}
	_, err = s.manager.Open(ctx, userID, direction, groupID)
	return err
}

// reverse closes the current operation and schedules the opposite open after
// the reversal delay. The deferred open survives a crash because it lives on
// the queue, not in this process.
func (s *Service) reverse(ctx context.Context, userID, operationID, groupID, direction string) error {
	s.log.Info("Reversing position",
		"user_id", userID, "operation_id", operationID,
		"group_id", groupID, "new_direction", direction)

	if _, err := s.manager.Close(ctx, operationID, position.ReasonReversal); err != nil {
		return err
	}
	if err := s.scheduler.ScheduleOpen(ctx, s.reversalDelay, userID, direction, groupID); err != nil {
		return fmt.Errorf("failed to schedule reversal open for %s: %w", userID, err)
	}
	return nil
}
