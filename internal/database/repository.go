package database

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when a referenced row does not exist
var ErrNotFound = errors.New("not found")

// Repository provides data access methods
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// ============================================================================
// SIGNALS
// ============================================================================

// CreateSignal inserts a new signal
func (r *Repository) CreateSignal(ctx context.Context, signal *Signal) error {
	query := `
		INSERT INTO signals (id, ticker, side, timeframe, strategy, price, processed)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	return r.db.Pool.QueryRow(
		ctx, query,
		signal.ID, signal.Ticker, signal.Side, signal.Timeframe,
		signal.Strategy, signal.Price, signal.Processed,
	).Scan(&signal.CreatedAt)
}

// GetSignalByID retrieves a signal by ID
func (r *Repository) GetSignalByID(ctx context.Context, id string) (*Signal, error) {
	query := `
		SELECT id, ticker, side, timeframe, strategy, price, processed, created_at
		FROM signals
		WHERE id = $1
	`
	signal := &Signal{}
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&signal.ID, &signal.Ticker, &signal.Side, &signal.Timeframe,
		&signal.Strategy, &signal.Price, &signal.Processed, &signal.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return signal, nil
}

// MarkSignalProcessed flips the processed flag exactly once. Returns false
// when the signal was already processed, making redelivered ingestion a
// no-op.
func (r *Repository) MarkSignalProcessed(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE signals
		SET processed = TRUE
		WHERE id = $1 AND processed = FALSE
	`
	tag, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// GetRecentSignals retrieves signals for a ticker created after the given
// time, ordered chronologically (oldest first). Signals already frozen into a
// group are excluded, so a consensus run is consumed by the group it creates.
func (r *Repository) GetRecentSignals(ctx context.Context, ticker string, since time.Time) ([]*Signal, error) {
	query := `
		SELECT id, ticker, side, timeframe, strategy, price, processed, created_at
		FROM signals s
		WHERE ticker = $1 AND created_at >= $2
		  AND NOT EXISTS (
			SELECT 1 FROM signal_group_members m WHERE m.signal_id = s.id
		  )
		ORDER BY created_at ASC, id ASC
	`
	return r.querySignals(ctx, query, ticker, since)
}

// GetUnprocessedSignals retrieves signals that were never ingested, used by
// the pending-signal sweep.
func (r *Repository) GetUnprocessedSignals(ctx context.Context, limit int) ([]*Signal, error) {
	query := `
		SELECT id, ticker, side, timeframe, strategy, price, processed, created_at
		FROM signals
		WHERE processed = FALSE
		ORDER BY created_at ASC
		LIMIT $1
	`
	return r.querySignals(ctx, query, limit)
}

// ListSignals retrieves the most recent signals with pagination
func (r *Repository) ListSignals(ctx context.Context, limit, offset int) ([]*Signal, error) {
	query := `
		SELECT id, ticker, side, timeframe, strategy, price, processed, created_at
		FROM signals
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	return r.querySignals(ctx, query, limit, offset)
}

func (r *Repository) querySignals(ctx context.Context, query string, args ...interface{}) ([]*Signal, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var signals []*Signal
	for rows.Next() {
		signal := &Signal{}
		err := rows.Scan(
			&signal.ID, &signal.Ticker, &signal.Side, &signal.Timeframe,
			&signal.Strategy, &signal.Price, &signal.Processed, &signal.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		signals = append(signals, signal)
	}
	return signals, rows.Err()
}

// ============================================================================
// SIGNAL GROUPS
// ============================================================================

// CreateSignalGroup inserts a group and its member signals in one
// transaction. Members are frozen at creation and never change.
func (r *Repository) CreateSignalGroup(ctx context.Context, group *SignalGroup) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(
		ctx,
		`INSERT INTO signal_groups (id, direction) VALUES ($1, $2) RETURNING created_at`,
		group.ID, group.Direction,
	).Scan(&group.CreatedAt)
	if err != nil {
		return err
	}

	for i, signal := range group.Signals {
		_, err = tx.Exec(
			ctx,
			`INSERT INTO signal_group_members (group_id, signal_id, position) VALUES ($1, $2, $3)`,
			group.ID, signal.ID, i,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// GetSignalGroupByID retrieves a group with its member signals
func (r *Repository) GetSignalGroupByID(ctx context.Context, id string) (*SignalGroup, error) {
	group := &SignalGroup{}
	err := r.db.Pool.QueryRow(
		ctx,
		`SELECT id, direction, operation_id, created_at FROM signal_groups WHERE id = $1`,
		id,
	).Scan(&group.ID, &group.Direction, &group.OperationID, &group.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	query := `
		SELECT s.id, s.ticker, s.side, s.timeframe, s.strategy, s.price, s.processed, s.created_at
		FROM signals s
		JOIN signal_group_members m ON m.signal_id = s.id
		WHERE m.group_id = $1
		ORDER BY m.position ASC
	`
	signals, err := r.querySignals(ctx, query, id)
	if err != nil {
		return nil, err
	}
	group.Signals = signals
	return group, nil
}

// AttachOperationToGroup records the operation opened from a group.
// Write-once: returns false if the group already references an operation.
func (r *Repository) AttachOperationToGroup(ctx context.Context, groupID, operationID string) (bool, error) {
	query := `
		UPDATE signal_groups
		SET operation_id = $2
		WHERE id = $1 AND operation_id IS NULL
	`
	tag, err := r.db.Pool.Exec(ctx, query, groupID, operationID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListSignalGroups retrieves the most recent groups with pagination
func (r *Repository) ListSignalGroups(ctx context.Context, limit, offset int) ([]*SignalGroup, error) {
	query := `
		SELECT id, direction, operation_id, created_at
		FROM signal_groups
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []*SignalGroup
	for rows.Next() {
		group := &SignalGroup{}
		err := rows.Scan(&group.ID, &group.Direction, &group.OperationID, &group.CreatedAt)
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	return groups, rows.Err()
}

// ============================================================================
// TRADING SETTINGS
// ============================================================================

// GetTradingSettings retrieves the trading settings for a user
func (r *Repository) GetTradingSettings(ctx context.Context, userID string) (*TradingSettings, error) {
	query := `
		SELECT user_id, symbol, investment_percent, leverage, take_profit, stop_loss,
		       telegram_chat_id, created_at, updated_at
		FROM trading_settings
		WHERE user_id = $1
	`
	settings := &TradingSettings{}
	err := r.db.Pool.QueryRow(ctx, query, userID).Scan(
		&settings.UserID, &settings.Symbol, &settings.InvestmentPercent,
		&settings.Leverage, &settings.TakeProfit, &settings.StopLoss,
		&settings.TelegramChatID, &settings.CreatedAt, &settings.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return settings, nil
}

// UpsertTradingSettings creates or replaces a user's trading settings
func (r *Repository) UpsertTradingSettings(ctx context.Context, settings *TradingSettings) error {
	query := `
		INSERT INTO trading_settings (user_id, symbol, investment_percent, leverage, take_profit, stop_loss, telegram_chat_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			symbol = EXCLUDED.symbol,
			investment_percent = EXCLUDED.investment_percent,
			leverage = EXCLUDED.leverage,
			take_profit = EXCLUDED.take_profit,
			stop_loss = EXCLUDED.stop_loss,
			telegram_chat_id = EXCLUDED.telegram_chat_id,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`
	return r.db.Pool.QueryRow(
		ctx, query,
		settings.UserID, settings.Symbol, settings.InvestmentPercent,
		settings.Leverage, settings.TakeProfit, settings.StopLoss,
		settings.TelegramChatID,
	).Scan(&settings.CreatedAt, &settings.UpdatedAt)
}

// GetUserIDsBySymbol retrieves the users subscribed to a symbol
func (r *Repository) GetUserIDsBySymbol(ctx context.Context, symbol string) ([]string, error) {
	rows, err := r.db.Pool.Query(
		ctx,
		`SELECT user_id FROM trading_settings WHERE symbol = $1`,
		symbol,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, err
		}
		userIDs = append(userIDs, userID)
	}
	return userIDs, rows.Err()
}
