package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"consensus-trading-bot/config"
	"consensus-trading-bot/internal/api"
	"consensus-trading-bot/internal/auth"
	"consensus-trading-bot/internal/bot"
	"consensus-trading-bot/internal/consensus"
	"consensus-trading-bot/internal/database"
	"consensus-trading-bot/internal/events"
	"consensus-trading-bot/internal/exchange"
	"consensus-trading-bot/internal/logging"
	"consensus-trading-bot/internal/notification"
	"consensus-trading-bot/internal/position"
	"consensus-trading-bot/internal/queue"
	"consensus-trading-bot/internal/strategy"
	"consensus-trading-bot/internal/tasks"
	"consensus-trading-bot/internal/vault"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(&logging.Config{
		Level:      cfg.LoggingConfig.Level,
		Output:     cfg.LoggingConfig.Output,
		JSONFormat: cfg.LoggingConfig.JSONFormat,
		Component:  "main",
	})
	logging.SetDefault(logger)
	logger.Info("Structured logging initialized")

	// Initialize event bus
	eventBus := events.NewEventBus()

	// Initialize database
	db, err := database.NewDB(database.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		Database: cfg.DatabaseConfig.Database,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.RunMigrations(ctx); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	repo := database.NewRepository(db)

	// Initialize Redis for the task queue and per-user locks
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisConfig.Address,
		Password: cfg.RedisConfig.Password,
		DB:       cfg.RedisConfig.DB,
		PoolSize: cfg.RedisConfig.PoolSize,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	logger.Info("Connected to Redis", "addr", cfg.RedisConfig.Address)

	// Initialize Vault-backed credential store
	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		log.Fatalf("Failed to initialize vault client: %v", err)
	}
	logger.Info("Credential store initialized", "vault_enabled", vaultClient.IsEnabled())

	// Initialize exchange client factory
	var factory exchange.Factory
	var marketClient exchange.Client
	if cfg.ExchangeConfig.MockMode {
		mock := exchange.NewMockClient(10000)
		factory = exchange.NewMockFactory(mock)
		marketClient = mock
		logger.Warn("Exchange mock mode enabled, no real orders will be placed")
	} else {
		factory = exchange.NewClientFactory(vaultClient, cfg.ExchangeConfig.TestNet, cfg.ExchangeConfig.RequestTimeout)
		marketClient = exchange.NewBinanceClient(exchange.Credentials{}, cfg.ExchangeConfig.TestNet, cfg.ExchangeConfig.RequestTimeout)
	}

	// Initialize notifications
	notifier := notification.NewManager(repo, cfg.NotificationConfig, logger)

	// Wire the pipeline: detector -> bot service -> position manager
	detector := consensus.NewDetector(repo, eventBus, cfg.ConsensusConfig, logger)
	manager := position.NewManager(repo, factory, eventBus, notifier, logger)

	taskQueue := queue.New(redisClient, queue.Config{
		Workers:     cfg.QueueConfig.Workers,
		PollTimeout: cfg.QueueConfig.PollTimeout,
	}, logger)
	locker := queue.NewLocker(redisClient, cfg.QueueConfig.LockTTL)

	handlers := tasks.NewHandlers(repo, detector, manager, taskQueue, locker, logger)
	botService := bot.NewService(repo, manager, handlers, eventBus, cfg.QueueConfig.ReversalDelay, logger)
	handlers.SetBotService(botService)
	handlers.Register()

	taskQueue.Start(ctx)
	defer taskQueue.Stop()
	handlers.StartPendingSweep(ctx, time.Minute)

	// Position monitor
	var monitor *position.Monitor
	if cfg.MonitorConfig.Enabled {
		monitor = position.NewMonitor(repo, factory, handlers, cfg.MonitorConfig, logger)
		monitor.Start(ctx)
		defer monitor.Stop()
	}

	// Built-in strategy runner
	var runner *strategy.Runner
	if cfg.StrategyConfig.Enabled {
		runner = strategy.NewRunner(repo, marketClient, handlers, strategy.DefaultSet(), cfg.StrategyConfig, logger)
		runner.Start(ctx)
		defer runner.Stop()
	}

	// API server
	var jwtManager *auth.JWTManager
	if cfg.AuthConfig.Enabled {
		jwtManager = auth.NewJWTManager(cfg.AuthConfig.JWTSecret, 24*time.Hour)
	}
	server := api.NewServer(cfg.ServerConfig, repo, eventBus, handlers, jwtManager, vaultClient, logger)

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("API server failed", "error", err)
		}
	}()

	logger.Info("Consensus trading bot started",
		"port", cfg.ServerConfig.Port,
		"mock_mode", cfg.ExchangeConfig.MockMode,
		"monitor", cfg.MonitorConfig.Enabled,
		"strategies", cfg.StrategyConfig.Enabled)

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second,
	)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", "error", err)
	}
}
