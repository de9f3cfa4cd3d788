// Package pricegen advances the simulated price of every instrument on a
// fixed cadence. The walk is a momentum-aware bounded stochastic process:
// uncorrected drift per tick is small, periodic volatility events allow
// larger moves, long same-direction streaks are damped, and hard floor and
// ceiling corrections keep each price inside [0.2, 2.0] × base price.
package pricegen

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockx/market-engine/internal/cache"
	"github.com/stockx/market-engine/internal/metrics"
	"github.com/stockx/market-engine/internal/model"
	"github.com/stockx/market-engine/internal/store"
	"github.com/stockx/market-engine/internal/ws"
)

// tickVolume is the nominal traded volume recorded with every sample.
const tickVolume = 100_000

var (
	floorRatio   = decimal.NewFromFloat(0.2)
	ceilingRatio = decimal.NewFromFloat(2.0)
	lowBandRatio = decimal.NewFromFloat(0.3)
	highBandRatio = decimal.NewFromFloat(1.8)
)

// Generator produces one price tick per instrument per pass.
// Pass nil for hub if WebSocket broadcasting is not needed.
type Generator struct {
	store store.Store
	cache cache.PriceCache
	hub   *ws.Hub
	rng   Source
}

// New creates a price generator.
func New(st store.Store, c cache.PriceCache, hub *ws.Hub, rng Source) *Generator {
	return &Generator{store: st, cache: c, hub: hub, rng: rng}
}

// AdvanceAll ticks every instrument once: resolve the prior state
// (cache, then latest durable point, then base price), advance it, append
// the batch of new samples durably, refresh the cache, and publish the new
// prices. Cache failures are logged and swallowed; the durable append is
// the commit point.
func (g *Generator) AdvanceAll(ctx context.Context) error {
	started := time.Now()

	instruments, err := g.store.ListInstruments(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	points := make([]model.PricePoint, 0, len(instruments))
	updates := make([]ws.PriceUpdate, 0, len(instruments))

	for _, inst := range instruments {
		state, err := g.resolveState(ctx, &inst)
		if err != nil {
			slog.Error("tick state resolution failed", "symbol", inst.Symbol, "err", err)
			continue
		}

		next := Advance(g.rng, inst.BasePrice, *state)

		if err := g.cache.Set(ctx, inst.ID, &next); err != nil {
			slog.Warn("price cache write failed", "symbol", inst.Symbol, "err", err)
		}

		points = append(points, model.PricePoint{
			InstrumentID: inst.ID,
			Time:         now,
			Price:        next.Price,
			Volume:       tickVolume,
		})
		updates = append(updates, ws.PriceUpdate{
			Symbol: inst.Symbol,
			Price:  next.Price.StringFixed(4),
			Time:   now,
		})
	}

	if err := g.store.AppendPricePoints(ctx, points); err != nil {
		return err
	}

	if g.hub != nil {
		for i := range updates {
			g.hub.Broadcast(ws.Message{Type: "price_update", Update: &updates[i]})
		}
		g.hub.Broadcast(ws.Message{Type: "price_snapshot", Updates: updates})
	}

	metrics.TicksTotal.Add(float64(len(points)))
	metrics.TickPassDuration.Observe(time.Since(started).Seconds())
	return nil
}

// resolveState rebuilds an instrument's generator state. The cache is a pure
// accelerator: on miss or error fall back to the latest durable price, and
// on an empty series fall back to the base price with zeroed counters.
func (g *Generator) resolveState(ctx context.Context, inst *model.Instrument) (*model.PriceState, error) {
	state, err := g.cache.Get(ctx, inst.ID)
	if err == nil {
		return state, nil
	}
	if err != cache.ErrMiss {
		slog.Warn("price cache read failed", "symbol", inst.Symbol, "err", err)
	}

	price, err := g.store.LatestPrice(ctx, inst.ID)
	if err == store.ErrNotFound {
		price = inst.BasePrice
	} else if err != nil {
		return nil, err
	}

	return &model.PriceState{Price: price}, nil
}

// Advance computes one stochastic step from the prior state and returns the
// new state. Correction rules are evaluated in strict priority order; the
// first matching rule wins.
func Advance(rng Source, basePrice decimal.Decimal, state model.PriceState) model.PriceState {
	change, ticks := priceChange(rng, basePrice, state.Price, state.Momentum, state.TicksElapsed)
	return model.PriceState{
		// Quantized to the NUMERIC(19,4) scale of the durable series, so
		// the cached state never accumulates precision across ticks.
		Price:        state.Price.Add(change).Round(4),
		Momentum:     updateMomentum(state.Momentum, change),
		TicksElapsed: ticks,
	}
}

func priceChange(rng Source, base, price decimal.Decimal, momentum, ticks int) (decimal.Decimal, int) {
	// Hard bounds and biased bands near them. Each reset the
	// ticks-since-event counter.
	switch {
	case price.LessThanOrEqual(base.Mul(floorRatio)):
		// Force a correction of +[1%, 3%].
		return price.Mul(decimal.NewFromFloat(0.01 + rng.Float64()*0.02)), 1
	case price.GreaterThanOrEqual(base.Mul(ceilingRatio)):
		// Force a correction of -[1%, 3%].
		return price.Mul(decimal.NewFromFloat(0.01 + rng.Float64()*0.02)).Neg(), 1
	case price.LessThanOrEqual(base.Mul(lowBandRatio)) && rng.Intn(3) == 0:
		// Uplift bias near the floor: +[0%, 3%].
		return price.Mul(decimal.NewFromFloat(rng.Float64() * 0.03)), 1
	case price.GreaterThanOrEqual(base.Mul(highBandRatio)) && rng.Intn(3) == 0:
		return price.Mul(decimal.NewFromFloat(rng.Float64() * 0.03)).Neg(), 1
	}

	var change decimal.Decimal
	if ticks >= 99 && rng.Bool() {
		// Volatility event: ±[0%, 3%], sign independently randomized.
		change = price.Mul(decimal.NewFromFloat(rng.Float64() * 0.03))
		if rng.Bool() {
			change = change.Neg()
		}
		return change, 1
	} else if ticks >= 10 && ticks%10 == 0 && rng.Bool() {
		change = price.Mul(decimal.NewFromFloat(rng.Float64() * 0.01))
	} else {
		change = price.Mul(decimal.NewFromFloat(rng.Float64() * 0.005))
	}

	// Sign resolution. A streak of ten or more same-direction moves is
	// damped: the coin decides between the opposing sign and continuing,
	// instead of compounding with an independent flip. Without a streak a
	// fair coin chooses the sign.
	switch {
	case momentum >= 10:
		if rng.Bool() {
			change = change.Neg()
		}
	case momentum <= -10:
		if !rng.Bool() {
			change = change.Neg()
		}
	default:
		if rng.Bool() {
			change = change.Neg()
		}
	}
	return change, ticks + 1
}

// updateMomentum resets the streak counter when the realized change breaks
// direction, then counts the new move. A zero change counts as an up-move.
func updateMomentum(momentum int, change decimal.Decimal) int {
	up := !change.IsNegative()
	if (momentum < 0 && up) || (momentum > 0 && !up) {
		momentum = 0
	}
	if up {
		return momentum + 1
	}
	return momentum - 1
}
