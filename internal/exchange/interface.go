// Package exchange defines the narrow client surface the trading core
// consumes from an exchange, plus a live Binance USD-M futures
// implementation and a deterministic mock.
package exchange

import (
	"context"
	"errors"
)

// Order sides on the exchange
const (
	OrderSideBuy  = "BUY"
	OrderSideSell = "SELL"
)

// ErrCredentialsMissing is returned when a user has no usable exchange
// credentials. Callers abort and log; there is nothing to retry.
var ErrCredentialsMissing = errors.New("exchange credentials not configured")

// ErrExchange wraps transport and API failures from the exchange. Tasks end
// without mutating persisted state so redelivery stays safe.
var ErrExchange = errors.New("exchange error")

// Client is the exchange surface consumed by the position manager and
// monitor. Every call is bounded by a timeout; a timeout surfaces as
// ErrExchange.
type Client interface {
	GetAvailableBalance(ctx context.Context) (float64, error)
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)
	GetQuantityPrecision(ctx context.Context, symbol string) (int, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	PlaceMarketOrder(ctx context.Context, symbol, side string, quantity float64) error
}

// Credentials is a user's exchange API key pair, decrypted by the
// credential store and opaque to everything else.
type Credentials struct {
	APIKey    string
	SecretKey string
}

// CredentialsSource resolves per-user exchange credentials
type CredentialsSource interface {
	ExchangeCredentials(ctx context.Context, userID string) (*Credentials, error)
}

// Factory produces per-user exchange clients
type Factory interface {
	ClientFor(ctx context.Context, userID string) (Client, error)
}
