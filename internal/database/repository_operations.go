package database

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// ============================================================================
// OPERATIONS
// ============================================================================

// CreateOperation inserts a new operation
func (r *Repository) CreateOperation(ctx context.Context, op *Operation) error {
	query := `
		INSERT INTO operations (id, user_id, symbol, direction, status, entry_price,
		                        quantity, leverage, investment, take_profit, stop_loss)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING opened_at
	`
	return r.db.Pool.QueryRow(
		ctx, query,
		op.ID, op.UserID, op.Symbol, op.Direction, op.Status, op.EntryPrice,
		op.Quantity, op.Leverage, op.Investment, op.TakeProfit, op.StopLoss,
	).Scan(&op.OpenedAt)
}

// GetOperationByID retrieves an operation by ID
func (r *Repository) GetOperationByID(ctx context.Context, id string) (*Operation, error) {
	query := `
		SELECT id, user_id, symbol, direction, status, entry_price, exit_price,
		       quantity, leverage, investment, take_profit, stop_loss,
		       profit_loss, profit_loss_percent, opened_at, closed_at
		FROM operations
		WHERE id = $1
	`
	op := &Operation{}
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&op.ID, &op.UserID, &op.Symbol, &op.Direction, &op.Status,
		&op.EntryPrice, &op.ExitPrice, &op.Quantity, &op.Leverage,
		&op.Investment, &op.TakeProfit, &op.StopLoss,
		&op.ProfitLoss, &op.ProfitLossPercent, &op.OpenedAt, &op.ClosedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return op, nil
}

// GetOpenOperations retrieves all open operations, oldest first
func (r *Repository) GetOpenOperations(ctx context.Context) ([]*Operation, error) {
	query := `
		SELECT id, user_id, symbol, direction, status, entry_price, exit_price,
		       quantity, leverage, investment, take_profit, stop_loss,
		       profit_loss, profit_loss_percent, opened_at, closed_at
		FROM operations
		WHERE status = 'open'
		ORDER BY opened_at ASC
	`
	return r.queryOperations(ctx, query)
}

// GetOperationsByUser retrieves a user's operations, newest first. An empty
// status returns all of them.
func (r *Repository) GetOperationsByUser(ctx context.Context, userID, status string, limit, offset int) ([]*Operation, error) {
	query := `
		SELECT id, user_id, symbol, direction, status, entry_price, exit_price,
		       quantity, leverage, investment, take_profit, stop_loss,
		       profit_loss, profit_loss_percent, opened_at, closed_at
		FROM operations
		WHERE user_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY opened_at DESC
		LIMIT $3 OFFSET $4
	`
	return r.queryOperations(ctx, query, userID, status, limit, offset)
}

// CloseOperation records the close of an open operation. Conditional on the
// status still being open, so a redelivered close is a safe no-op; returns
// false in that case.
func (r *Repository) CloseOperation(ctx context.Context, id string, exitPrice, profitLoss, profitLossPercent float64, closedAt time.Time) (bool, error) {
	query := `
		UPDATE operations
		SET status = 'closed', exit_price = $2, profit_loss = $3,
		    profit_loss_percent = $4, closed_at = $5
		WHERE id = $1 AND status = 'open'
	`
	tag, err := r.db.Pool.Exec(ctx, query, id, exitPrice, profitLoss, profitLossPercent, closedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) queryOperations(ctx context.Context, query string, args ...interface{}) ([]*Operation, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var operations []*Operation
	for rows.Next() {
		op := &Operation{}
		err := rows.Scan(
			&op.ID, &op.UserID, &op.Symbol, &op.Direction, &op.Status,
			&op.EntryPrice, &op.ExitPrice, &op.Quantity, &op.Leverage,
			&op.Investment, &op.TakeProfit, &op.StopLoss,
			&op.ProfitLoss, &op.ProfitLossPercent, &op.OpenedAt, &op.ClosedAt,
		)
		if err != nil {
			return nil, err
		}
		operations = append(operations, op)
	}
	return operations, rows.Err()
}
