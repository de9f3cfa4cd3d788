// Package model defines the core domain types shared across the market engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order direction, type, and lifecycle status values.
const (
	DirectionBuy  = "BUY"
	DirectionSell = "SELL"

	TypeMarket = "MARKET"
	TypeLimit  = "LIMIT"

	StatusPending   = "PENDING"
	StatusCompleted = "COMPLETED"
	StatusCancelled = "CANCELLED"
)

// Instrument is a tradable symbol with an immutable reference base price.
// The price generator keeps the simulated walk within [0.2, 2.0] × BasePrice.
type Instrument struct {
	ID        string          `json:"id" db:"id"`
	Symbol    string          `json:"symbol" db:"symbol"`
	Name      string          `json:"name" db:"name"`
	BasePrice decimal.Decimal `json:"base_price" db:"base_price"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// PricePoint is one append-only sample of the simulated price series.
// (instrument, time) is the unique key; rows are never updated or deleted
// by the engine.
type PricePoint struct {
	InstrumentID string          `json:"instrument_id" db:"instrument_id"`
	Time         time.Time       `json:"time" db:"time"`
	Price        decimal.Decimal `json:"price" db:"price"`
	Volume       int64           `json:"volume" db:"volume"`
}

// PriceState is the generator's cached per-instrument state. Ephemeral:
// entries expire after an idle window and are rebuilt from the durable
// price series (or the base price) on the next tick.
type PriceState struct {
	Price decimal.Decimal `json:"price"`
	// Momentum is the signed streak of consecutive same-direction moves;
	// positive while the price keeps rising, negative while falling.
	Momentum int `json:"momentum"`
	// TicksElapsed counts ticks since the last volatility event.
	TicksElapsed int `json:"ticks_elapsed"`
}

// Order is a submitted trade request and its lifecycle state.
// PENDING → {COMPLETED, CANCELLED}; terminal states never transition again.
// Orders are never physically deleted.
type Order struct {
	ID           string `json:"id" db:"id"`
	UserID       string `json:"user_id" db:"user_id"`
	InstrumentID string `json:"instrument_id" db:"instrument_id"`
	Direction    string `json:"direction" db:"direction"`
	Type         string `json:"type" db:"type"`
	Quantity     int64  `json:"quantity" db:"quantity"`
	// LimitPrice is the trigger price for LIMIT orders. For MARKET orders
	// it records the price observed at validation time.
	LimitPrice    decimal.Decimal `json:"limit_price" db:"limit_price"`
	ExecutedPrice decimal.Decimal `json:"executed_price" db:"executed_price"`
	Status        string          `json:"status" db:"status"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	ExecutedAt    *time.Time      `json:"executed_at,omitempty" db:"executed_at"`
}

// Portfolio holds one user's cash balance. Each user has exactly one,
// created at account creation with a fixed starting balance.
type Portfolio struct {
	ID        string          `json:"id" db:"id"`
	UserID    string          `json:"user_id" db:"user_id"`
	Balance   decimal.Decimal `json:"balance" db:"balance"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// Position is a user's aggregated holding of one instrument with a running
// average cost. Created on first acquisition, deleted when quantity reaches
// exactly zero; (portfolio, instrument) is unique.
type Position struct {
	ID           string          `json:"id" db:"id"`
	PortfolioID  string          `json:"portfolio_id" db:"portfolio_id"`
	InstrumentID string          `json:"instrument_id" db:"instrument_id"`
	Quantity     int64           `json:"quantity" db:"quantity"`
	AverageCost  decimal.Decimal `json:"average_cost" db:"average_cost"`
}

// User is the session collaborator's view of an account. The engine only
// ever reads the expiration status.
type User struct {
	ID        string    `json:"id" db:"id"`
	Username  string    `json:"username" db:"username"`
	Token     string    `json:"-" db:"token"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Expired reports whether the user's session has passed its expiry.
func (u *User) Expired() bool {
	return time.Now().After(u.ExpiresAt)
}
