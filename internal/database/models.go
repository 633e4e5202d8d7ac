package database

import (
	"time"
)

// Signal sides as produced by strategies
const (
	SideBuy  = "buy"
	SideSell = "sell"
	SideHold = "hold"
)

// Operation directions
const (
	DirectionLong  = "long"
	DirectionShort = "short"
)

// Operation statuses
const (
	OperationPending   = "pending"
	OperationOpen      = "open"
	OperationClosed    = "closed"
	OperationCancelled = "cancelled"
)

// Bot statuses
const (
	BotIdle       = "idle"
	BotListening  = "listening"
	BotConfirming = "confirming"
	BotOperating  = "operating"
)

// Signal is a single strategy's directional recommendation for a symbol.
// Immutable once created except for the one-way processed flag.
type Signal struct {
	ID        string    `json:"id"`
	Ticker    string    `json:"ticker"`
	Side      string    `json:"side"` // buy, sell, hold
	Timeframe string    `json:"timeframe"`
	Strategy  string    `json:"strategy"`
	Price     float64   `json:"price"`
	Processed bool      `json:"processed"`
	CreatedAt time.Time `json:"created_at"`
}

// SignalGroup is a frozen snapshot of the signals that triggered consensus.
// Member signals are immutable once attached; the operation reference is
// written at most once, when a position is actually opened from the group.
type SignalGroup struct {
	ID          string    `json:"id"`
	Direction   string    `json:"direction"` // buy or sell
	OperationID *string   `json:"operation_id,omitempty"`
	Signals     []*Signal `json:"signals,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Bot holds the per-user automation state.
// CurrentOperationID references the user's open operation. It can outlive an
// operating status: a stop/start cycle keeps it attached while the bot sits
// in idle or listening, and it clears only when the operation closes.
type Bot struct {
	UserID             string    `json:"user_id"`
	Status             string    `json:"status"`
	ConfirmingCount    int       `json:"confirming_count"`
	CurrentOperationID *string   `json:"current_operation_id,omitempty"`
	LastUpdated        time.Time `json:"last_updated"`
}

// Operation is one exchange position, open or closed.
// Exit price, closed-at and both profit fields are set if and only if the
// status is closed. Entry fields never change after creation.
type Operation struct {
	ID                string     `json:"id"`
	UserID            string     `json:"user_id"`
	Symbol            string     `json:"symbol"`
	Direction         string     `json:"direction"` // long or short
	Status            string     `json:"status"`
	EntryPrice        float64    `json:"entry_price"`
	ExitPrice         *float64   `json:"exit_price,omitempty"`
	Quantity          float64    `json:"quantity"`
	Leverage          int        `json:"leverage"`
	Investment        float64    `json:"investment"` // Invested notional in quote currency
	TakeProfit        float64    `json:"take_profit"` // Leveraged profit % threshold
	StopLoss          float64    `json:"stop_loss"`   // Leveraged loss % threshold
	ProfitLoss        *float64   `json:"profit_loss,omitempty"`
	ProfitLossPercent *float64   `json:"profit_loss_percent,omitempty"`
	OpenedAt          time.Time  `json:"opened_at"`
	ClosedAt          *time.Time `json:"closed_at,omitempty"`
}

// TradingSettings is the per-user trading configuration. The core consumes
// it and never mutates it.
type TradingSettings struct {
	UserID            string    `json:"user_id"`
	Symbol            string    `json:"symbol"`
	InvestmentPercent float64   `json:"investment_percent"`
	Leverage          int       `json:"leverage"`
	TakeProfit        float64   `json:"take_profit"`
	StopLoss          float64   `json:"stop_loss"`
	TelegramChatID    string    `json:"telegram_chat_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// SideToDirection maps a signal side to an operation direction.
func SideToDirection(side string) string {
	if side == SideBuy {
		return DirectionLong
	}
	return DirectionShort
}

// DirectionToSide maps an operation direction to the signal side that
// opened it.
func DirectionToSide(direction string) string {
	if direction == DirectionLong {
		return SideBuy
	}
	return SideSell
}
