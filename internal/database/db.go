package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"consensus-trading-bot/internal/logging"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// Config holds database configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewDB creates a new database connection
func NewDB(cfg Config) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	logging.Info("Connected to PostgreSQL database", "database", cfg.Database)

	return &DB{Pool: pool}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		logging.Info("Database connection closed")
	}
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	logging.Info("Running database migrations...")

	migrations := []string{
		// Per-user trading configuration
		`CREATE TABLE IF NOT EXISTS trading_settings (
			user_id VARCHAR(64) PRIMARY KEY,
			symbol VARCHAR(20) NOT NULL DEFAULT 'BTCUSDT',
			investment_percent DECIMAL(10, 4) NOT NULL DEFAULT 100,
			leverage INT NOT NULL DEFAULT 25,
			take_profit DECIMAL(10, 4) NOT NULL DEFAULT 25,
			stop_loss DECIMAL(10, 4) NOT NULL DEFAULT 25,
			telegram_chat_id VARCHAR(64) NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trading_settings_symbol ON trading_settings(symbol)`,

		// Signals received from strategies or webhooks
		`CREATE TABLE IF NOT EXISTS signals (
			id UUID PRIMARY KEY,
			ticker VARCHAR(20) NOT NULL,
			side VARCHAR(10) NOT NULL,
			timeframe VARCHAR(10) NOT NULL,
			strategy VARCHAR(64) NOT NULL,
			price DECIMAL(20, 8) NOT NULL,
			processed BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_ticker_created ON signals(ticker, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_processed ON signals(processed)`,

		// Exchange positions, open or closed
		`CREATE TABLE IF NOT EXISTS operations (
			id UUID PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			direction VARCHAR(10) NOT NULL,
			status VARCHAR(10) NOT NULL DEFAULT 'open',
			entry_price DECIMAL(20, 8) NOT NULL,
			exit_price DECIMAL(20, 8),
			quantity DECIMAL(20, 8) NOT NULL,
			leverage INT NOT NULL,
			investment DECIMAL(20, 8) NOT NULL,
			take_profit DECIMAL(10, 4) NOT NULL,
			stop_loss DECIMAL(10, 4) NOT NULL,
			profit_loss DECIMAL(20, 8),
			profit_loss_percent DECIMAL(10, 4),
			opened_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			closed_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_operations_user ON operations(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_operations_status ON operations(status)`,
		`CREATE INDEX IF NOT EXISTS idx_operations_opened_at ON operations(opened_at)`,

		// Groups of consecutive signals that triggered consensus
		`CREATE TABLE IF NOT EXISTS signal_groups (
			id UUID PRIMARY KEY,
			direction VARCHAR(10) NOT NULL,
			operation_id UUID REFERENCES operations(id) ON DELETE SET NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signal_groups_created ON signal_groups(created_at)`,

		`CREATE TABLE IF NOT EXISTS signal_group_members (
			group_id UUID NOT NULL REFERENCES signal_groups(id) ON DELETE CASCADE,
			signal_id UUID NOT NULL REFERENCES signals(id) ON DELETE CASCADE,
			position INT NOT NULL,
			PRIMARY KEY (group_id, signal_id)
		)`,

		// Per-user bot state
		`CREATE TABLE IF NOT EXISTS bots (
			user_id VARCHAR(64) PRIMARY KEY,
			status VARCHAR(20) NOT NULL DEFAULT 'idle',
			confirming_count INT NOT NULL DEFAULT 0,
			current_operation_id UUID REFERENCES operations(id) ON DELETE SET NULL,
			last_updated TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bots_status ON bots(status)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	logging.Info("Database migrations completed successfully")
	return nil
}

// HealthCheck performs a database health check
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}
