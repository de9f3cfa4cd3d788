// Package seed provisions the fixed instrument universe on first startup.
package seed

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockx/market-engine/internal/model"
	"github.com/stockx/market-engine/internal/store"
)

type seedInstrument struct {
	symbol    string
	name      string
	basePrice float64
}

var universe = []seedInstrument{
	{"AAPL", "Apple Inc.", 180.50},
	{"MSFT", "Microsoft Corporation", 380.25},
	{"GOOGL", "Alphabet Inc.", 160.75},
	{"AMZN", "Amazon.com Inc.", 175.30},
	{"NVDA", "NVIDIA Corporation", 825.60},
	{"META", "Meta Platforms Inc.", 480.40},
	{"TSLA", "Tesla Inc.", 190.75},
	{"NFLX", "Netflix Inc.", 930.00},
	{"AMD", "Advance Micro Devices", 87.40},
	{"INTC", "Intel Corp.", 18.90},
	{"SPX:IND", "S&P 500", 5282.70},
	{"DJIA:IND", "Dow Jones Industrial Average", 39142.20},
	{"IXIC:IND", "Nasdaq Composite", 16286.50},
	{"RUT:IND", "Russell 2000 Index", 1880.60},
	{"VIX:IND", "CBOE Volatility Index", 29.60},
}

// Instruments creates the instrument universe unless instruments already
// exist. Safe to call on every startup.
func Instruments(ctx context.Context, st store.Store) error {
	existing, err := st.ListInstruments(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	now := time.Now().UTC()
	for _, s := range universe {
		inst := &model.Instrument{
			ID:        uuid.New().String(),
			Symbol:    s.symbol,
			Name:      s.name,
			BasePrice: decimal.NewFromFloat(s.basePrice),
			CreatedAt: now,
		}
		if err := st.CreateInstrument(ctx, inst); err != nil {
			return err
		}
	}

	slog.Info("instrument universe seeded", "count", len(universe))
	return nil
}
