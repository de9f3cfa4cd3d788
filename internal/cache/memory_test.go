package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/stockx/market-engine/internal/model"
)

func TestMemoryCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	if _, err := c.Get(ctx, "inst-1"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss on empty cache, got %v", err)
	}

	state := &model.PriceState{
		Price:        decimal.NewFromFloat(101.25),
		Momentum:     3,
		TicksElapsed: 17,
	}
	if err := c.Set(ctx, "inst-1", state); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	got, err := c.Get(ctx, "inst-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !got.Price.Equal(state.Price) || got.Momentum != 3 || got.TicksElapsed != 17 {
		t.Errorf("state mismatch: %+v", got)
	}
}

func TestMemoryCache_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	state := &model.PriceState{Price: decimal.NewFromInt(100)}
	if err := c.Set(ctx, "inst-1", state); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	// Mutating the returned state must not leak back into the cache.
	got, _ := c.Get(ctx, "inst-1")
	got.Momentum = 99

	again, _ := c.Get(ctx, "inst-1")
	if again.Momentum != 0 {
		t.Errorf("cached state mutated through a returned copy: %+v", again)
	}
}

func TestMemoryCache_DeleteAndClear(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	for _, id := range []string{"inst-1", "inst-2"} {
		if err := c.Set(ctx, id, &model.PriceState{Price: decimal.NewFromInt(50)}); err != nil {
			t.Fatalf("set failed: %v", err)
		}
	}

	if err := c.Delete(ctx, "inst-1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := c.Get(ctx, "inst-1"); !errors.Is(err, ErrMiss) {
		t.Errorf("expected ErrMiss after delete, got %v", err)
	}
	if _, err := c.Get(ctx, "inst-2"); err != nil {
		t.Errorf("unrelated entry dropped by delete: %v", err)
	}

	if err := c.Clear(ctx); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if _, err := c.Get(ctx, "inst-2"); !errors.Is(err, ErrMiss) {
		t.Errorf("expected ErrMiss after clear, got %v", err)
	}
}
