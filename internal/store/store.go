// Package store defines the persistence interface for the market engine.
// Implementations include PostgreSQL (source of truth) and in-memory
// (for testing and development).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockx/market-engine/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// OrderFilter is a structured filter for order queries. Zero-valued fields
// match everything. Built by the request layer; the store never parses
// free-text input.
type OrderFilter struct {
	Symbol    string
	Status    string
	Direction string
	Type      string
}

// Page describes pagination and ordering for list queries.
type Page struct {
	Offset int
	Limit  int
	SortBy string // one of: created_at, executed_at, limit_price, quantity, status
	Desc   bool
}

// Store is the persistence interface. PostgreSQL is the source of truth.
type Store interface {
	// --- Instruments ---

	// CreateInstrument persists a new instrument.
	CreateInstrument(ctx context.Context, inst *model.Instrument) error

	// GetInstrument retrieves an instrument by ID.
	GetInstrument(ctx context.Context, id string) (*model.Instrument, error)

	// GetInstrumentBySymbol retrieves an instrument by its ticker symbol.
	GetInstrumentBySymbol(ctx context.Context, symbol string) (*model.Instrument, error)

	// ListInstruments returns the full instrument universe.
	ListInstruments(ctx context.Context) ([]model.Instrument, error)

	// --- Price series (append-only) ---

	// AppendPricePoints appends one batch of price samples.
	AppendPricePoints(ctx context.Context, points []model.PricePoint) error

	// LatestPrice returns the most recent durable price for an instrument.
	LatestPrice(ctx context.Context, instrumentID string) (decimal.Decimal, error)

	// PriceRange returns samples within [from, to] in ascending time order.
	PriceRange(ctx context.Context, instrumentID string, from, to time.Time) ([]model.PricePoint, error)

	// --- Orders ---

	// CreateOrder persists a new order.
	CreateOrder(ctx context.Context, o *model.Order) error

	// UpdateOrder persists an order's mutable lifecycle fields.
	UpdateOrder(ctx context.Context, o *model.Order) error

	// ListPendingOrders returns every order still in PENDING status.
	ListPendingOrders(ctx context.Context) ([]model.Order, error)

	// ListOrdersByUser returns one page of a user's orders plus the total
	// count matching the filter.
	ListOrdersByUser(ctx context.Context, userID string, f OrderFilter, p Page) ([]model.Order, int64, error)

	// --- Portfolios ---

	// CreatePortfolio persists a new portfolio.
	CreatePortfolio(ctx context.Context, pf *model.Portfolio) error

	// GetPortfolioByUser retrieves the user's single portfolio.
	GetPortfolioByUser(ctx context.Context, userID string) (*model.Portfolio, error)

	// UpdatePortfolioBalance overwrites a portfolio's cash balance.
	UpdatePortfolioBalance(ctx context.Context, portfolioID string, balance decimal.Decimal) error

	// --- Positions ---

	// GetPosition retrieves the (portfolio, instrument) position.
	GetPosition(ctx context.Context, portfolioID, instrumentID string) (*model.Position, error)

	// ListPositions returns all positions in a portfolio.
	ListPositions(ctx context.Context, portfolioID string) ([]model.Position, error)

	// SavePosition inserts or updates a position.
	SavePosition(ctx context.Context, pos *model.Position) error

	// DeletePosition removes a position whose quantity reached zero.
	DeletePosition(ctx context.Context, id string) error

	// --- Users ---

	// CreateUser persists a new user.
	CreateUser(ctx context.Context, u *model.User) error

	// GetUser retrieves a user by ID.
	GetUser(ctx context.Context, id string) (*model.User, error)

	// GetUserByToken resolves a session token to its user.
	GetUserByToken(ctx context.Context, token string) (*model.User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
}
