package exchange

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/futures"
)

// quoteAsset is the asset the available balance is read in
const quoteAsset = "USDT"

// BinanceClient implements Client against Binance USD-M futures
type BinanceClient struct {
	futures *futures.Client
	timeout time.Duration
}

// NewBinanceClient creates a futures client for one user's credentials
func NewBinanceClient(creds Credentials, testnet bool, timeout time.Duration) *BinanceClient {
	client := futures.NewClient(creds.APIKey, creds.SecretKey)
	if testnet {
		futures.UseTestnet = true
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &BinanceClient{futures: client, timeout: timeout}
}

// GetAvailableBalance returns the available USDT balance of the futures
// account
func (c *BinanceClient) GetAvailableBalance(ctx context.Context) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	balances, err := c.futures.NewGetBalanceService().Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to get balance: %v", ErrExchange, err)
	}

	for _, b := range balances {
		if b.Asset == quoteAsset {
			available, err := strconv.ParseFloat(b.AvailableBalance, 64)
			if err != nil {
				return 0, fmt.Errorf("%w: malformed balance %q: %v", ErrExchange, b.AvailableBalance, err)
			}
			return available, nil
		}
	}
	return 0, fmt.Errorf("%w: no %s balance in futures account", ErrExchange, quoteAsset)
}

// GetCurrentPrice returns the latest price for a symbol
func (c *BinanceClient) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prices, err := c.futures.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to get price for %s: %v", ErrExchange, symbol, err)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("%w: no price returned for %s", ErrExchange, symbol)
	}

	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed price %q: %v", ErrExchange, prices[0].Price, err)
	}
	return price, nil
}

// GetQuantityPrecision returns the declared quantity precision for a symbol
func (c *BinanceClient) GetQuantityPrecision(ctx context.Context, symbol string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	info, err := c.futures.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to get exchange info: %v", ErrExchange, err)
	}

	for _, s := range info.Symbols {
		if s.Symbol == symbol {
			return s.QuantityPrecision, nil
		}
	}
	return 0, fmt.Errorf("%w: symbol %s not found in exchange info", ErrExchange, symbol)
}

// SetLeverage sets the leverage for a symbol
func (c *BinanceClient) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err := c.futures.NewChangeLeverageService().
		Symbol(symbol).
		Leverage(leverage).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to set leverage %dx on %s: %v", ErrExchange, leverage, symbol, err)
	}
	return nil
}

// PlaceMarketOrder submits a market order
func (c *BinanceClient) PlaceMarketOrder(ctx context.Context, symbol, side string, quantity float64) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err := c.futures.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(futures.OrderTypeMarket).
		Quantity(strconv.FormatFloat(quantity, 'f', -1, 64)).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("%w: market %s %s failed: %v", ErrExchange, side, symbol, err)
	}
	return nil
}

// ClientFactory builds per-user Binance clients from stored credentials
type ClientFactory struct {
	source  CredentialsSource
	testnet bool
	timeout time.Duration
	mock    *MockClient // When set, every user shares the mock
}

// NewClientFactory creates a factory over a credentials source
func NewClientFactory(source CredentialsSource, testnet bool, timeout time.Duration) *ClientFactory {
	return &ClientFactory{source: source, testnet: testnet, timeout: timeout}
}

// NewMockFactory creates a factory that hands every user the same mock
// client, for dry runs and tests
func NewMockFactory(mock *MockClient) *ClientFactory {
	return &ClientFactory{mock: mock}
}

// ClientFor returns an exchange client authenticated as the given user
func (f *ClientFactory) ClientFor(ctx context.Context, userID string) (Client, error) {
	if f.mock != nil {
		return f.mock, nil
	}

	creds, err := f.source.ExchangeCredentials(ctx, userID)
	if err != nil {
		return nil, err
	}
	if creds == nil || creds.APIKey == "" || creds.SecretKey == "" {
		return nil, ErrCredentialsMissing
	}
	return NewBinanceClient(*creds, f.testnet, f.timeout), nil
}
