// Package vault stores per-user exchange credentials in HashiCorp Vault's
// KV v2 engine. The trading core only ever sees decrypted key pairs through
// the exchange.CredentialsSource interface.
package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"

	"consensus-trading-bot/config"
	"consensus-trading-bot/internal/exchange"
)

// Client wraps the HashiCorp Vault client. With Vault disabled it degrades
// to an in-memory store for development and testing.
type Client struct {
	client *api.Client
	config config.VaultConfig
	mu     sync.RWMutex
	cache  map[string]*exchange.Credentials // userID -> credentials
}

// NewClient creates a new Vault client
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{
			config: cfg,
			cache:  make(map[string]*exchange.Credentials),
		}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{
			CACert: cfg.CACert,
		}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	client.SetToken(cfg.Token)

	return &Client{
		client: client,
		config: cfg,
		cache:  make(map[string]*exchange.Credentials),
	}, nil
}

// StoreCredentials stores a user's exchange key pair
func (c *Client) StoreCredentials(ctx context.Context, userID string, creds exchange.Credentials) error {
	if c.config.Enabled {
		secretData := map[string]interface{}{
			"data": map[string]interface{}{
				"api_key":    creds.APIKey,
				"secret_key": creds.SecretKey,
			},
		}
		_, err := c.client.Logical().WriteWithContext(ctx, c.secretPath(userID), secretData)
		if err != nil {
			return fmt.Errorf("failed to store credentials in vault: %w", err)
		}
	}

	c.mu.Lock()
	c.cache[userID] = &creds
	c.mu.Unlock()
	return nil
}

// ExchangeCredentials resolves a user's exchange key pair. Returns
// (nil, nil) when the user has none stored, which the exchange factory maps
// to a missing-credentials abort.
func (c *Client) ExchangeCredentials(ctx context.Context, userID string) (*exchange.Credentials, error) {
	c.mu.RLock()
	if cached, ok := c.cache[userID]; ok {
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	if !c.config.Enabled {
		return nil, nil
	}

	secret, err := c.client.Logical().ReadWithContext(ctx, c.secretPath(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, nil
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format for user %s", userID)
	}

	creds := &exchange.Credentials{
		APIKey:    getString(data, "api_key"),
		SecretKey: getString(data, "secret_key"),
	}

	c.mu.Lock()
	c.cache[userID] = creds
	c.mu.Unlock()
	return creds, nil
}

// DeleteCredentials removes a user's exchange key pair
func (c *Client) DeleteCredentials(ctx context.Context, userID string) error {
	c.mu.Lock()
	delete(c.cache, userID)
	c.mu.Unlock()

	if !c.config.Enabled {
		return nil
	}

	_, err := c.client.Logical().DeleteWithContext(ctx, c.metadataPath(userID))
	if err != nil {
		return fmt.Errorf("failed to delete credentials from vault: %w", err)
	}
	return nil
}

// InvalidateCacheForUser drops a user's cached credentials, forcing the next
// read to hit Vault
func (c *Client) InvalidateCacheForUser(userID string) {
	c.mu.Lock()
	delete(c.cache, userID)
	c.mu.Unlock()
}

// IsEnabled returns whether Vault is enabled
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// Health checks the Vault connection
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}
	return nil
}

func (c *Client) secretPath(userID string) string {
	return fmt.Sprintf("%s/data/%s/%s", c.config.MountPath, c.config.SecretPath, userID)
}

func (c *Client) metadataPath(userID string) string {
	return fmt.Sprintf("%s/metadata/%s/%s", c.config.MountPath, c.config.SecretPath, userID)
}

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}
