package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.ConsensusConfig.WindowMinutes != 60 {
		t.Errorf("expected 60 minute window, got %d", cfg.ConsensusConfig.WindowMinutes)
	}
	if cfg.ConsensusConfig.RunLength != 5 {
		t.Errorf("expected run length 5, got %d", cfg.ConsensusConfig.RunLength)
	}
	if cfg.QueueConfig.ReversalDelay != 5*time.Second {
		t.Errorf("expected 5s reversal delay, got %v", cfg.QueueConfig.ReversalDelay)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("WEB_PORT", "9191")
	t.Setenv("CONSENSUS_RUN_LENGTH", "3")
	t.Setenv("QUEUE_LOCK_TTL", "90s")
	t.Setenv("EXCHANGE_MOCK_MODE", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.ServerConfig.Port != 9191 {
		t.Errorf("expected port 9191, got %d", cfg.ServerConfig.Port)
	}
	if cfg.ConsensusConfig.RunLength != 3 {
		t.Errorf("expected run length 3, got %d", cfg.ConsensusConfig.RunLength)
	}
	if cfg.QueueConfig.LockTTL != 90*time.Second {
		t.Errorf("expected 90s lock TTL, got %v", cfg.QueueConfig.LockTTL)
	}
	if !cfg.ExchangeConfig.MockMode {
		t.Error("expected mock mode enabled")
	}
}

func TestGenerateSampleConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	if err := GenerateSampleConfig(path); err != nil {
		t.Fatalf("failed to generate sample config: %v", err)
	}

	cfg, err := loadFromFile(path)
	if err != nil {
		t.Fatalf("failed to load generated config: %v", err)
	}
	if cfg.ServerConfig.Port == 0 {
		t.Error("expected sample config to set a port")
	}
	if cfg.ConsensusConfig.RunLength == 0 {
		t.Error("expected sample config to set a run length")
	}
}
