package events

import (
	"testing"
	"time"
)

func waitForEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestSubscribeReceivesMatchingType(t *testing.T) {
	bus := NewEventBus()
	received := make(chan Event, 1)

	bus.Subscribe(EventTradeOpened, func(ev Event) {
		received <- ev
	})

	bus.PublishTradeOpened("user-1", "op-1", "BTCUSDT", "long", 50000, 0.01, 10)

	ev := waitForEvent(t, received)
	if ev.Type != EventTradeOpened {
		t.Errorf("expected %s, got %s", EventTradeOpened, ev.Type)
	}
	if ev.Data["symbol"] != "BTCUSDT" {
		t.Errorf("expected BTCUSDT, got %v", ev.Data["symbol"])
	}
	if ev.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
}

func TestSubscribeIgnoresOtherTypes(t *testing.T) {
	bus := NewEventBus()
	received := make(chan Event, 1)

	bus.Subscribe(EventTradeClosed, func(ev Event) {
		received <- ev
	})

	bus.PublishBotStatus(EventBotStarted, "user-1", "listening")

	select {
	case ev := <-received:
		t.Errorf("unexpected event %s", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeAllReceivesEverything(t *testing.T) {
	bus := NewEventBus()
	received := make(chan Event, 2)

	bus.SubscribeAll(func(ev Event) {
		received <- ev
	})

	bus.PublishSignalIngested("sig-1", "ETHUSDT", "buy", "rsi-14", 3000)
	bus.PublishError("monitor", "price fetch failed", nil)

	seen := map[EventType]bool{}
	for i := 0; i < 2; i++ {
		seen[waitForEvent(t, received).Type] = true
	}
	if !seen[EventSignalIngested] || !seen[EventError] {
		t.Errorf("expected both event types, got %v", seen)
	}
}
