package exchange

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubSource struct {
	creds *Credentials
	err   error
}

func (s *stubSource) ExchangeCredentials(ctx context.Context, userID string) (*Credentials, error) {
	return s.creds, s.err
}

func TestClientForMissingCredentials(t *testing.T) {
	factory := NewClientFactory(&stubSource{}, true, time.Second)

	_, err := factory.ClientFor(context.Background(), "user-1")
	if !errors.Is(err, ErrCredentialsMissing) {
		t.Errorf("expected ErrCredentialsMissing, got %v", err)
	}
}

func TestClientForEmptyKeyPair(t *testing.T) {
	factory := NewClientFactory(&stubSource{creds: &Credentials{APIKey: "k"}}, true, time.Second)

	_, err := factory.ClientFor(context.Background(), "user-1")
	if !errors.Is(err, ErrCredentialsMissing) {
		t.Errorf("expected ErrCredentialsMissing for partial pair, got %v", err)
	}
}

func TestClientForSourceError(t *testing.T) {
	boom := errors.New("vault sealed")
	factory := NewClientFactory(&stubSource{err: boom}, true, time.Second)

	_, err := factory.ClientFor(context.Background(), "user-1")
	if !errors.Is(err, boom) {
		t.Errorf("expected source error to propagate, got %v", err)
	}
}

func TestMockFactorySharesClient(t *testing.T) {
	mock := NewMockClient(1000)
	factory := NewMockFactory(mock)

	c1, err := factory.ClientFor(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c2, _ := factory.ClientFor(context.Background(), "user-2")
	if c1 != c2 {
		t.Error("expected all users to share the mock client")
	}
}

func TestMockClientOrders(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient(5000)
	mock.SetPrice("BTCUSDT", 50000)
	mock.SetPrecision("BTCUSDT", 3)

	balance, err := mock.GetAvailableBalance(ctx)
	if err != nil || balance != 5000 {
		t.Fatalf("expected balance 5000, got %v (%v)", balance, err)
	}

	price, err := mock.GetCurrentPrice(ctx, "BTCUSDT")
	if err != nil || price != 50000 {
		t.Fatalf("expected price 50000, got %v (%v)", price, err)
	}

	if err := mock.SetLeverage(ctx, "BTCUSDT", 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := mock.Leverage("BTCUSDT"); got != 10 {
		t.Errorf("expected leverage 10, got %d", got)
	}

	if err := mock.PlaceMarketOrder(ctx, "BTCUSDT", OrderSideBuy, 0.01); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	orders := mock.Orders()
	if len(orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(orders))
	}
	if orders[0].Side != OrderSideBuy || orders[0].Quantity != 0.01 {
		t.Errorf("unexpected order: %+v", orders[0])
	}
}

func TestMockClientUnknownSymbol(t *testing.T) {
	mock := NewMockClient(0)

	_, err := mock.GetCurrentPrice(context.Background(), "NOSUCH")
	if !errors.Is(err, ErrExchange) {
		t.Errorf("expected ErrExchange for unknown symbol, got %v", err)
	}
}

func TestMockClientInjectedFailure(t *testing.T) {
	mock := NewMockClient(100)
	mock.FailNext = true

	_, err := mock.GetAvailableBalance(context.Background())
	if !errors.Is(err, ErrExchange) {
		t.Fatalf("expected injected ErrExchange, got %v", err)
	}

	// The failure is one-shot
	if _, err := mock.GetAvailableBalance(context.Background()); err != nil {
		t.Errorf("expected recovery after injected failure, got %v", err)
	}
}
