package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockx/market-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu          sync.RWMutex
	instruments map[string]*model.Instrument
	prices      map[string][]model.PricePoint // instrumentID → ascending by time
	orders      map[string]*model.Order
	portfolios  map[string]*model.Portfolio
	positions   map[string]*model.Position
	users       map[string]*model.User
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		instruments: make(map[string]*model.Instrument),
		prices:      make(map[string][]model.PricePoint),
		orders:      make(map[string]*model.Order),
		portfolios:  make(map[string]*model.Portfolio),
		positions:   make(map[string]*model.Position),
		users:       make(map[string]*model.User),
	}
}

// --- Instruments ---

func (s *MemoryStore) CreateInstrument(_ context.Context, inst *model.Instrument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.instruments {
		if existing.Symbol == inst.Symbol {
			return fmt.Errorf("instrument %s already exists", inst.Symbol)
		}
	}

	// Store a copy to avoid external mutation.
	copy := *inst
	s.instruments[inst.ID] = &copy
	return nil
}

func (s *MemoryStore) GetInstrument(_ context.Context, id string) (*model.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instruments[id]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *inst
	return &copy, nil
}

func (s *MemoryStore) GetInstrumentBySymbol(_ context.Context, symbol string) (*model.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, inst := range s.instruments {
		if inst.Symbol == symbol {
			copy := *inst
			return &copy, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListInstruments(_ context.Context) ([]model.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	instruments := make([]model.Instrument, 0, len(s.instruments))
	for _, inst := range s.instruments {
		instruments = append(instruments, *inst)
	}
	sort.Slice(instruments, func(i, j int) bool {
		return instruments[i].Symbol < instruments[j].Symbol
	})
	return instruments, nil
}

// --- Price series ---

func (s *MemoryStore) AppendPricePoints(_ context.Context, points []model.PricePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range points {
		s.prices[p.InstrumentID] = append(s.prices[p.InstrumentID], p)
	}
	return nil
}

func (s *MemoryStore) LatestPrice(_ context.Context, instrumentID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.prices[instrumentID]
	if len(series) == 0 {
		return decimal.Zero, ErrNotFound
	}
	return series[len(series)-1].Price, nil
}

func (s *MemoryStore) PriceRange(_ context.Context, instrumentID string, from, to time.Time) ([]model.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.PricePoint
	for _, p := range s.prices[instrumentID] {
		if !p.Time.Before(from) && !p.Time.After(to) {
			result = append(result, p)
		}
	}
	return result, nil
}

// --- Orders ---

func (s *MemoryStore) CreateOrder(_ context.Context, o *model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *o
	s.orders[o.ID] = &copy
	return nil
}

func (s *MemoryStore) UpdateOrder(_ context.Context, o *model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.orders[o.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Status = o.Status
	existing.ExecutedPrice = o.ExecutedPrice
	existing.ExecutedAt = o.ExecutedAt
	return nil
}

func (s *MemoryStore) ListPendingOrders(_ context.Context) ([]model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pending []model.Order
	for _, o := range s.orders {
		if o.Status == model.StatusPending {
			pending = append(pending, *o)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	return pending, nil
}

func (s *MemoryStore) ListOrdersByUser(_ context.Context, userID string, f OrderFilter, p Page) ([]model.Order, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []model.Order
	for _, o := range s.orders {
		if o.UserID != userID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.Direction != "" && o.Direction != f.Direction {
			continue
		}
		if f.Type != "" && o.Type != f.Type {
			continue
		}
		if f.Symbol != "" {
			inst := s.instruments[o.InstrumentID]
			if inst == nil || !strings.EqualFold(inst.Symbol, f.Symbol) {
				continue
			}
		}
		matched = append(matched, *o)
	}

	sortOrders(matched, p)

	total := int64(len(matched))
	limit := p.Limit
	if limit <= 0 {
		limit = 10
	}
	if p.Offset >= len(matched) {
		return nil, total, nil
	}
	end := p.Offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[p.Offset:end], total, nil
}

func sortOrders(orders []model.Order, p Page) {
	less := func(a, b model.Order) bool {
		switch p.SortBy {
		case "limit_price":
			return a.LimitPrice.LessThan(b.LimitPrice)
		case "quantity":
			return a.Quantity < b.Quantity
		case "status":
			return a.Status < b.Status
		case "executed_at":
			switch {
			case a.ExecutedAt == nil:
				return b.ExecutedAt != nil
			case b.ExecutedAt == nil:
				return false
			default:
				return a.ExecutedAt.Before(*b.ExecutedAt)
			}
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	}
	sort.SliceStable(orders, func(i, j int) bool {
		if p.Desc {
			return less(orders[j], orders[i])
		}
		return less(orders[i], orders[j])
	})
}

// --- Portfolios ---

func (s *MemoryStore) CreatePortfolio(_ context.Context, pf *model.Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *pf
	s.portfolios[pf.ID] = &copy
	return nil
}

func (s *MemoryStore) GetPortfolioByUser(_ context.Context, userID string) (*model.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, pf := range s.portfolios {
		if pf.UserID == userID {
			copy := *pf
			return &copy, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) UpdatePortfolioBalance(_ context.Context, portfolioID string, balance decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pf, ok := s.portfolios[portfolioID]
	if !ok {
		return ErrNotFound
	}
	pf.Balance = balance
	return nil
}

// --- Positions ---

func (s *MemoryStore) GetPosition(_ context.Context, portfolioID, instrumentID string) (*model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, pos := range s.positions {
		if pos.PortfolioID == portfolioID && pos.InstrumentID == instrumentID {
			copy := *pos
			return &copy, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListPositions(_ context.Context, portfolioID string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var positions []model.Position
	for _, pos := range s.positions {
		if pos.PortfolioID == portfolioID {
			positions = append(positions, *pos)
		}
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].InstrumentID < positions[j].InstrumentID
	})
	return positions, nil
}

func (s *MemoryStore) SavePosition(_ context.Context, pos *model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *pos
	s.positions[pos.ID] = &copy
	return nil
}

func (s *MemoryStore) DeletePosition(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.positions, id)
	return nil
}

// --- Users ---

func (s *MemoryStore) CreateUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Username, u.Username) {
			return fmt.Errorf("username %s already exists", u.Username)
		}
	}
	copy := *u
	s.users[u.ID] = &copy
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *u
	return &copy, nil
}

func (s *MemoryStore) GetUserByToken(_ context.Context, token string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Token == token {
			copy := *u
			return &copy, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			copy := *u
			return &copy, nil
		}
	}
	return nil, ErrNotFound
}
