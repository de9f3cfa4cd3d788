// Package market serves read-only price data: the instrument universe,
// latest prices, and historical series.
package market

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/stockx/market-engine/internal/cache"
	"github.com/stockx/market-engine/internal/model"
	"github.com/stockx/market-engine/internal/store"
)

// ErrInstrumentNotFound is returned for an unknown ticker symbol.
var ErrInstrumentNotFound = errors.New("market: instrument not found")

// Service answers price queries. The cache is consulted first for the
// latest price but is never authoritative: misses fall back to the durable
// series, and an empty series falls back to the base price.
type Service struct {
	store store.Store
	cache cache.PriceCache
}

// NewService creates a market data service.
func NewService(st store.Store, c cache.PriceCache) *Service {
	return &Service{store: st, cache: c}
}

// InstrumentQuote is one instrument with its current price.
type InstrumentQuote struct {
	Symbol    string          `json:"symbol"`
	Name      string          `json:"name"`
	BasePrice decimal.Decimal `json:"base_price"`
	Price     decimal.Decimal `json:"price"`
}

// ListQuotes returns the whole universe with current prices.
func (s *Service) ListQuotes(ctx context.Context) ([]InstrumentQuote, error) {
	instruments, err := s.store.ListInstruments(ctx)
	if err != nil {
		return nil, err
	}

	quotes := make([]InstrumentQuote, 0, len(instruments))
	for i := range instruments {
		price, err := s.LatestPrice(ctx, &instruments[i])
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, InstrumentQuote{
			Symbol:    instruments[i].Symbol,
			Name:      instruments[i].Name,
			BasePrice: instruments[i].BasePrice,
			Price:     price,
		})
	}
	return quotes, nil
}

// LatestPrice resolves an instrument's current price: cached state first,
// then the latest durable sample, then the base price.
func (s *Service) LatestPrice(ctx context.Context, inst *model.Instrument) (decimal.Decimal, error) {
	if state, err := s.cache.Get(ctx, inst.ID); err == nil {
		return state.Price, nil
	}

	price, err := s.store.LatestPrice(ctx, inst.ID)
	if errors.Is(err, store.ErrNotFound) {
		return inst.BasePrice, nil
	}
	return price, err
}

// History returns the price series for a symbol within [from, to].
func (s *Service) History(ctx context.Context, symbol string, from, to time.Time) ([]model.PricePoint, error) {
	inst, err := s.store.GetInstrumentBySymbol(ctx, symbol)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInstrumentNotFound
		}
		return nil, err
	}
	return s.store.PriceRange(ctx, inst.ID, from, to)
}

// --- HTTP handlers ---

// HandleListQuotes handles GET /api/v1/stocks.
func (s *Service) HandleListQuotes(w http.ResponseWriter, r *http.Request) {
	quotes, err := s.ListQuotes(r.Context())
	if err != nil {
		writeError(w, "failed to list instruments", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(quotes)
}

// HandleHistory handles GET /api/v1/stocks/{symbol}/history.
// Query params from and to are RFC 3339 timestamps; the default window is
// the last 24 hours.
func (s *Service) HandleHistory(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	to := time.Now().UTC()
	from := to.Add(-24 * time.Hour)
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, "invalid from timestamp", http.StatusBadRequest)
			return
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, "invalid to timestamp", http.StatusBadRequest)
			return
		}
		to = t
	}

	points, err := s.History(r.Context(), symbol, from, to)
	if err != nil {
		if errors.Is(err, ErrInstrumentNotFound) {
			writeError(w, err.Error(), http.StatusNotFound)
			return
		}
		writeError(w, "failed to load history", http.StatusInternalServerError)
		return
	}
	if points == nil {
		points = []model.PricePoint{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(points)
}

func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
