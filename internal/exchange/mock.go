package exchange

import (
	"context"
	"fmt"
	"sync"
)

// MockOrder records one market order placed against the mock
type MockOrder struct {
	Symbol   string
	Side     string
	Quantity float64
}

// MockClient is a deterministic in-memory exchange used in mock mode and in
// tests. Prices are set explicitly; orders are recorded, never executed.
type MockClient struct {
	mu        sync.Mutex
	balance   float64
	prices    map[string]float64
	precision map[string]int
	leverage  map[string]int
	orders    []MockOrder

	// FailNext makes the next call return ErrExchange, for error-path tests
	FailNext bool
}

// NewMockClient creates a mock with the given starting balance
func NewMockClient(balance float64) *MockClient {
	return &MockClient{
		balance:   balance,
		prices:    make(map[string]float64),
		precision: make(map[string]int),
		leverage:  make(map[string]int),
	}
}

func (m *MockClient) failNext() error {
	if m.FailNext {
		m.FailNext = false
		return fmt.Errorf("%w: injected failure", ErrExchange)
	}
	return nil
}

// SetPrice sets the mock price for a symbol
func (m *MockClient) SetPrice(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[symbol] = price
}

// SetPrecision sets the quantity precision for a symbol
func (m *MockClient) SetPrecision(symbol string, precision int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.precision[symbol] = precision
}

// SetBalance replaces the available balance
func (m *MockClient) SetBalance(balance float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balance = balance
}

// Orders returns a copy of every order placed so far
func (m *MockClient) Orders() []MockOrder {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockOrder, len(m.orders))
	copy(out, m.orders)
	return out
}

// Leverage returns the last leverage set for a symbol
func (m *MockClient) Leverage(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leverage[symbol]
}

func (m *MockClient) GetAvailableBalance(ctx context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failNext(); err != nil {
		return 0, err
	}
	return m.balance, nil
}

func (m *MockClient) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failNext(); err != nil {
		return 0, err
	}
	price, ok := m.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("%w: no price set for %s", ErrExchange, symbol)
	}
	return price, nil
}

func (m *MockClient) GetQuantityPrecision(ctx context.Context, symbol string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failNext(); err != nil {
		return 0, err
	}
	if p, ok := m.precision[symbol]; ok {
		return p, nil
	}
	return 3, nil
}

func (m *MockClient) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failNext(); err != nil {
		return err
	}
	m.leverage[symbol] = leverage
	return nil
}

func (m *MockClient) PlaceMarketOrder(ctx context.Context, symbol, side string, quantity float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failNext(); err != nil {
		return err
	}
	m.orders = append(m.orders, MockOrder{Symbol: symbol, Side: side, Quantity: quantity})
	return nil
}
