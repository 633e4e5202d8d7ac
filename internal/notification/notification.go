// Package notification delivers position and bot summaries to each user's
// configured channel. Failures are logged and swallowed; notifications never
// block position logic.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"consensus-trading-bot/config"
	"consensus-trading-bot/internal/database"
	"consensus-trading-bot/internal/logging"
)

// Sender delivers one message to one notification target
type Sender interface {
	Send(ctx context.Context, target, text string) error
	Name() string
}

// Manager resolves a user's notification target and fans the message out to
// the configured senders.
type Manager struct {
	repo    *database.Repository
	senders []Sender
	enabled bool
	log     *logging.Logger
}

// NewManager creates a notification manager
func NewManager(repo *database.Repository, cfg config.NotificationConfig, log *logging.Logger) *Manager {
	m := &Manager{
		repo:    repo,
		enabled: cfg.Enabled,
		log:     log.WithComponent("notification"),
	}
	if cfg.Telegram.Enabled && cfg.Telegram.BotToken != "" {
		m.senders = append(m.senders, NewTelegramSender(cfg.Telegram.BotToken))
	}
	return m
}

// AddSender registers an additional notification provider
func (m *Manager) AddSender(s Sender) {
	m.senders = append(m.senders, s)
}

// NotifyUser sends a message to the user's configured target. A user with no
// target, or a provider failure, is a logged no-op.
func (m *Manager) NotifyUser(ctx context.Context, userID, message string) {
	if !m.enabled || len(m.senders) == 0 {
		return
	}

	settings, err := m.repo.GetTradingSettings(ctx, userID)
	if err != nil {
		m.log.Warn("No settings for notification target", "user_id", userID, "error", err)
		return
	}
	if settings.TelegramChatID == "" {
		return
	}

	for _, s := range m.senders {
		if err := s.Send(ctx, settings.TelegramChatID, message); err != nil {
			m.log.Error("Failed to send notification",
				"provider", s.Name(), "user_id", userID, "error", err)
		}
	}
}

// =============================================================================
// TELEGRAM SENDER
// =============================================================================

// TelegramSender sends messages through the Telegram bot API
type TelegramSender struct {
	botToken string
	client   *http.Client
}

// NewTelegramSender creates a Telegram sender
func NewTelegramSender(botToken string) *TelegramSender {
	return &TelegramSender{
		botToken: botToken,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramSender) Name() string {
	return "telegram"
}

func (t *TelegramSender) Send(ctx context.Context, chatID, text string) error {
	payload := map[string]interface{}{
		"chat_id": chatID,
		"text":    text,
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}
	return nil
}
