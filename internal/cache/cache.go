// Package cache provides the ephemeral price-state cache used by the tick
// generator. The cache is a pure accelerator: a miss or an error always has
// a durable-store fallback, so failures here are never fatal.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/stockx/market-engine/internal/model"
)

// TTL is the idle window after which a cached price state expires and is
// reconstructed from durable storage on the next tick.
const TTL = time.Hour

// ErrMiss is returned when no entry exists for an instrument.
var ErrMiss = errors.New("cache: miss")

// PriceCache stores the generator's latest per-instrument state.
type PriceCache interface {
	// Get returns the cached state, or ErrMiss.
	Get(ctx context.Context, instrumentID string) (*model.PriceState, error)

	// Set overwrites the state and refreshes its TTL.
	Set(ctx context.Context, instrumentID string, state *model.PriceState) error

	// Delete drops one instrument's entry.
	Delete(ctx context.Context, instrumentID string) error

	// Clear drops every price-state entry. Called on shutdown so a restart
	// rebuilds from durable data.
	Clear(ctx context.Context) error
}
