package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	ServerConfig       ServerConfig       `json:"server"`
	DatabaseConfig     DatabaseConfig     `json:"database"`
	RedisConfig        RedisConfig        `json:"redis"`
	QueueConfig        QueueConfig        `json:"queue"`
	VaultConfig        VaultConfig        `json:"vault"`
	AuthConfig         AuthConfig         `json:"auth"`
	ExchangeConfig     ExchangeConfig     `json:"exchange"`
	ConsensusConfig    ConsensusConfig    `json:"consensus"`
	MonitorConfig      MonitorConfig      `json:"monitor"`
	StrategyConfig     StrategyConfig     `json:"strategy"`
	NotificationConfig NotificationConfig `json:"notification"`
	LoggingConfig      LoggingConfig      `json:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"`
	ProductionMode  bool   `json:"production_mode"`
	ReadTimeout     int    `json:"read_timeout"`     // Seconds
	WriteTimeout    int    `json:"write_timeout"`    // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout"` // Seconds
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds Redis configuration for the task queue and user locks
type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// QueueConfig holds task queue configuration
type QueueConfig struct {
	Workers       int           `json:"workers"`        // Concurrent task workers
	PollTimeout   time.Duration `json:"poll_timeout"`   // BRPOP timeout
	LockTTL       time.Duration `json:"lock_ttl"`       // Per-user lease duration
	ReversalDelay time.Duration `json:"reversal_delay"` // Delay between close and re-open on reversal
}

// VaultConfig holds HashiCorp Vault configuration for exchange credentials
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`  // KV secrets engine mount path
	SecretPath string `json:"secret_path"` // Path prefix for exchange credentials
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// AuthConfig holds authentication configuration for the API surface
type AuthConfig struct {
	Enabled   bool   `json:"enabled"`
	JWTSecret string `json:"jwt_secret"`
}

// ExchangeConfig holds exchange client configuration
type ExchangeConfig struct {
	TestNet        bool          `json:"testnet"`
	MockMode       bool          `json:"mock_mode"`       // Use simulated exchange when real API is unavailable
	RequestTimeout time.Duration `json:"request_timeout"` // Bound on every exchange call
}

// ConsensusConfig holds consensus detection configuration
type ConsensusConfig struct {
	WindowMinutes int `json:"window_minutes"` // Trailing window for signal scans
	RunLength     int `json:"run_length"`     // Consecutive same-direction signals required
}

// MonitorConfig holds position monitor configuration
type MonitorConfig struct {
	Enabled      bool          `json:"enabled"`
	ScanInterval time.Duration `json:"scan_interval"`
}

// StrategyConfig holds the built-in strategy runner configuration
type StrategyConfig struct {
	Enabled     bool   `json:"enabled"`
	Symbol      string `json:"symbol"`
	Timeframe   string `json:"timeframe"`
	RunInterval int    `json:"run_interval"` // Seconds between strategy runs
}

// NotificationConfig holds outbound notification configuration
type NotificationConfig struct {
	Enabled  bool           `json:"enabled"`
	Telegram TelegramConfig `json:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
}

type LoggingConfig struct {
	Level      string `json:"level"`       // DEBUG, INFO, WARN, ERROR
	Output     string `json:"output"`      // stdout, stderr, or file path
	JSONFormat bool   `json:"json_format"` // Output as JSON
}

func Load() (*Config, error) {
	// First try to load base config from file
	cfg, err := loadFromFile("config.json")
	if err != nil {
		// If no config file, start with empty config
		cfg = &Config{}
	}

	// Apply environment variable overrides (these take precedence)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Note: exchange API keys are NOT read from environment. All credentials are
// per-user and stored in Vault.
func applyEnvOverrides(cfg *Config) {
	// Server config
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", 8080)
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", "0.0.0.0")
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", "*")
	cfg.ServerConfig.ProductionMode = getEnvOrDefault("SERVER_PRODUCTION", "false") == "true"
	cfg.ServerConfig.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", 30)
	cfg.ServerConfig.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", 30)
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10)

	// Database config
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", "localhost")
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", 5432)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", "trading_bot")
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", "trading_bot_password")
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", "trading_bot")
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", "disable")

	// Redis config
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", "localhost:6379")
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", 0)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", 10)

	// Queue config
	cfg.QueueConfig.Workers = getEnvIntOrDefault("QUEUE_WORKERS", 8)
	cfg.QueueConfig.PollTimeout = getEnvDurationOrDefault("QUEUE_POLL_TIMEOUT", 5*time.Second)
	cfg.QueueConfig.LockTTL = getEnvDurationOrDefault("QUEUE_LOCK_TTL", 30*time.Second)
	cfg.QueueConfig.ReversalDelay = getEnvDurationOrDefault("QUEUE_REVERSAL_DELAY", 5*time.Second)

	// Vault config
	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", "false") == "true"
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", "http://localhost:8200")
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", "secret")
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", "trading-bot/api-keys")
	cfg.VaultConfig.TLSEnabled = getEnvOrDefault("VAULT_TLS_ENABLED", "false") == "true"

	// Auth config
	cfg.AuthConfig.Enabled = getEnvOrDefault("AUTH_ENABLED", "false") == "true"
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)

	// Exchange config
	cfg.ExchangeConfig.TestNet = getEnvOrDefault("EXCHANGE_TESTNET", "false") == "true"
	cfg.ExchangeConfig.MockMode = getEnvOrDefault("EXCHANGE_MOCK_MODE", "false") == "true"
	cfg.ExchangeConfig.RequestTimeout = getEnvDurationOrDefault("EXCHANGE_REQUEST_TIMEOUT", 10*time.Second)

	// Consensus config
	cfg.ConsensusConfig.WindowMinutes = getEnvIntOrDefault("CONSENSUS_WINDOW_MINUTES", 60)
	cfg.ConsensusConfig.RunLength = getEnvIntOrDefault("CONSENSUS_RUN_LENGTH", 5)

	// Monitor config
	cfg.MonitorConfig.Enabled = getEnvOrDefault("MONITOR_ENABLED", "true") == "true"
	cfg.MonitorConfig.ScanInterval = getEnvDurationOrDefault("MONITOR_SCAN_INTERVAL", 30*time.Second)

	// Strategy runner config
	cfg.StrategyConfig.Enabled = getEnvOrDefault("STRATEGY_RUNNER_ENABLED", "false") == "true"
	cfg.StrategyConfig.Symbol = getEnvOrDefault("STRATEGY_SYMBOL", "BTCUSDT")
	cfg.StrategyConfig.Timeframe = getEnvOrDefault("STRATEGY_TIMEFRAME", "15m")
	cfg.StrategyConfig.RunInterval = getEnvIntOrDefault("STRATEGY_RUN_INTERVAL", 900)

	// Notification config
	cfg.NotificationConfig.Enabled = getEnvOrDefault("NOTIFICATIONS_ENABLED", "false") == "true"
	cfg.NotificationConfig.Telegram.Enabled = getEnvOrDefault("TELEGRAM_ENABLED", "false") == "true"
	cfg.NotificationConfig.Telegram.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.NotificationConfig.Telegram.BotToken)

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", "INFO")
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", "stdout")
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// GenerateSampleConfig creates a sample configuration file
func GenerateSampleConfig(filename string) error {
	config := Config{
		ServerConfig: ServerConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			AllowedOrigins:  "*",
			ReadTimeout:     30,
			WriteTimeout:    30,
			ShutdownTimeout: 10,
		},
		DatabaseConfig: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "trading_bot",
			Password: "trading_bot_password",
			Database: "trading_bot",
			SSLMode:  "disable",
		},
		RedisConfig: RedisConfig{
			Address:  "localhost:6379",
			DB:       0,
			PoolSize: 10,
		},
		QueueConfig: QueueConfig{
			Workers:       8,
			PollTimeout:   5 * time.Second,
			LockTTL:       30 * time.Second,
			ReversalDelay: 5 * time.Second,
		},
		ConsensusConfig: ConsensusConfig{
			WindowMinutes: 60,
			RunLength:     5,
		},
		MonitorConfig: MonitorConfig{
			Enabled:      true,
			ScanInterval: 30 * time.Second,
		},
		ExchangeConfig: ExchangeConfig{
			TestNet:        true,
			MockMode:       true,
			RequestTimeout: 10 * time.Second,
		},
		LoggingConfig: LoggingConfig{
			Level:      "INFO",
			Output:     "stdout",
			JSONFormat: true,
		},
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
