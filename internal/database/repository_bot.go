package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// ============================================================================
// BOTS
// ============================================================================

// GetBot retrieves the bot state for a user
func (r *Repository) GetBot(ctx context.Context, userID string) (*Bot, error) {
	query := `
		SELECT user_id, status, confirming_count, current_operation_id, last_updated
		FROM bots
		WHERE user_id = $1
	`
	bot := &Bot{}
	err := r.db.Pool.QueryRow(ctx, query, userID).Scan(
		&bot.UserID, &bot.Status, &bot.ConfirmingCount,
		&bot.CurrentOperationID, &bot.LastUpdated,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return bot, nil
}

// GetOrCreateBot retrieves a user's bot, creating an idle row on first use
func (r *Repository) GetOrCreateBot(ctx context.Context, userID string) (*Bot, error) {
	_, err := r.db.Pool.Exec(
		ctx,
		`INSERT INTO bots (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	return r.GetBot(ctx, userID)
}

// UpdateBotStatus sets a bot's status
func (r *Repository) UpdateBotStatus(ctx context.Context, userID, status string) error {
	query := `
		UPDATE bots
		SET status = $2, last_updated = NOW()
		WHERE user_id = $1
	`
	tag, err := r.db.Pool.Exec(ctx, query, userID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetBotOperating marks the bot as operating on the given operation.
// Keeps the invariant that current_operation_id is set exactly when the
// status is operating.
func (r *Repository) SetBotOperating(ctx context.Context, userID, operationID string) error {
	query := `
		UPDATE bots
		SET status = $3, current_operation_id = $2, last_updated = NOW()
		WHERE user_id = $1
	`
	tag, err := r.db.Pool.Exec(ctx, query, userID, operationID, BotOperating)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearBotOperation releases the bot from an operation and returns it to
// listening. Conditional on the bot still pointing at that operation, so a
// stale close cannot clobber a newer position. A bot the user stopped while
// the operation was open stays idle. Returns false when nothing was cleared.
func (r *Repository) ClearBotOperation(ctx context.Context, userID, operationID string) (bool, error) {
	query := `
		UPDATE bots
		SET status = CASE WHEN status = $3 THEN $4 ELSE status END,
		    current_operation_id = NULL, last_updated = NOW()
		WHERE user_id = $1 AND current_operation_id = $2
	`
	tag, err := r.db.Pool.Exec(ctx, query, userID, operationID, BotOperating, BotListening)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// IncrementConfirmingCount bumps the informational confirming counter
func (r *Repository) IncrementConfirmingCount(ctx context.Context, userID string) error {
	query := `
		UPDATE bots
		SET confirming_count = confirming_count + 1, last_updated = NOW()
		WHERE user_id = $1
	`
	_, err := r.db.Pool.Exec(ctx, query, userID)
	return err
}
