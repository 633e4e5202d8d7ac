package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventSignalIngested EventType = "SIGNAL_INGESTED"
	EventGroupCreated   EventType = "GROUP_CREATED"
	EventTradeOpened    EventType = "TRADE_OPENED"
	EventTradeClosed    EventType = "TRADE_CLOSED"
	EventBotStarted     EventType = "BOT_STARTED"
	EventBotStopped     EventType = "BOT_STOPPED"
	EventError          EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event) // Run in goroutine to avoid blocking
		}
	}

	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishSignalIngested publishes a signal ingested event
func (eb *EventBus) PublishSignalIngested(signalID, ticker, side, strategy string, price float64) {
	eb.Publish(Event{
		Type: EventSignalIngested,
		Data: map[string]interface{}{
			"signal_id": signalID,
			"ticker":    ticker,
			"side":      side,
			"strategy":  strategy,
			"price":     price,
		},
	})
}

// PublishGroupCreated publishes a consensus group created event
func (eb *EventBus) PublishGroupCreated(groupID, ticker, direction string, signalCount int) {
	eb.Publish(Event{
		Type: EventGroupCreated,
		Data: map[string]interface{}{
			"group_id":     groupID,
			"ticker":       ticker,
			"direction":    direction,
			"signal_count": signalCount,
		},
	})
}

// PublishTradeOpened publishes a trade opened event
func (eb *EventBus) PublishTradeOpened(userID, operationID, symbol, direction string, entryPrice, quantity float64, leverage int) {
	eb.Publish(Event{
		Type: EventTradeOpened,
		Data: map[string]interface{}{
			"user_id":      userID,
			"operation_id": operationID,
			"symbol":       symbol,
			"direction":    direction,
			"entry_price":  entryPrice,
			"quantity":     quantity,
			"leverage":     leverage,
		},
	})
}

// PublishTradeClosed publishes a trade closed event
func (eb *EventBus) PublishTradeClosed(userID, operationID, symbol string, entryPrice, exitPrice, pnl, pnlPercent float64) {
	eb.Publish(Event{
		Type: EventTradeClosed,
		Data: map[string]interface{}{
			"user_id":      userID,
			"operation_id": operationID,
			"symbol":       symbol,
			"entry_price":  entryPrice,
			"exit_price":   exitPrice,
			"pnl":          pnl,
			"pnl_percent":  pnlPercent,
		},
	})
}

// PublishBotStatus publishes a bot started or stopped event
func (eb *EventBus) PublishBotStatus(eventType EventType, userID, status string) {
	eb.Publish(Event{
		Type: eventType,
		Data: map[string]interface{}{
			"user_id": userID,
			"status":  status,
		},
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventError,
		Data: data,
	})
}
