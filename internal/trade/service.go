// Package trade implements the order execution engine: synchronous
// validation and execution of market orders at submission, and the periodic
// sweep that settles, cancels, or defers pending limit orders.
//
// All monetary values use shopspring/decimal — never float64 for money.
package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockx/market-engine/internal/metrics"
	"github.com/stockx/market-engine/internal/model"
	"github.com/stockx/market-engine/internal/store"
)

var (
	// ErrInstrumentNotFound is returned for an unknown ticker symbol.
	ErrInstrumentNotFound = errors.New("trade: instrument not found")

	// ErrPortfolioNotFound is returned when the user has no portfolio.
	ErrPortfolioNotFound = errors.New("trade: portfolio not found")

	// ErrInsufficientFunds is returned when a BUY exceeds the cash balance.
	ErrInsufficientFunds = errors.New("trade: insufficient funds")

	// ErrInsufficientShares is returned when a SELL exceeds the held quantity.
	ErrInsufficientShares = errors.New("trade: insufficient shares")

	// ErrInvalidOrder is returned for malformed order parameters.
	ErrInvalidOrder = errors.New("trade: invalid order")
)

// Service is the order execution engine. The validate-then-execute sequence
// for an order is serialized per portfolio, so a MARKET submission and the
// pending sweep can never both spend the same balance.
type Service struct {
	store store.Store
	locks *portfolioLocks
}

// NewService creates a new trade service.
func NewService(st store.Store) *Service {
	return &Service{
		store: st,
		locks: newPortfolioLocks(),
	}
}

// OrderRequest is a submitted trade request, already validated structurally
// by the HTTP layer.
type OrderRequest struct {
	Symbol     string          `json:"symbol"`
	Direction  string          `json:"direction"`
	Type       string          `json:"type"`
	Quantity   int64           `json:"quantity"`
	LimitPrice decimal.Decimal `json:"limit_price"`
}

// OrderResponse is the public representation of an order.
type OrderResponse struct {
	ID            string          `json:"id"`
	Symbol        string          `json:"symbol"`
	Direction     string          `json:"direction"`
	Type          string          `json:"type"`
	Quantity      int64           `json:"quantity"`
	LimitPrice    decimal.Decimal `json:"limit_price"`
	ExecutedPrice decimal.Decimal `json:"executed_price"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	ExecutedAt    *time.Time      `json:"executed_at,omitempty"`
}

// OrderPage is one page of a user's orders.
type OrderPage struct {
	Orders []OrderResponse `json:"orders"`
	Total  int64           `json:"total"`
	Page   int             `json:"page"`
	Size   int             `json:"size"`
}

// PositionResponse is one holding inside a portfolio view.
type PositionResponse struct {
	Symbol       string          `json:"symbol"`
	Name         string          `json:"name"`
	Quantity     int64           `json:"quantity"`
	AverageCost  decimal.Decimal `json:"average_cost"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	TotalValue   decimal.Decimal `json:"total_value"`
}

// PortfolioResponse is the public portfolio view.
type PortfolioResponse struct {
	ID        string             `json:"id"`
	Balance   decimal.Decimal    `json:"balance"`
	Positions []PositionResponse `json:"positions"`
}

// SubmitOrder validates and persists a new order for the user. MARKET
// orders execute synchronously against the current price before returning;
// LIMIT orders stay PENDING for the sweep. The caller blocks until the
// order (and any execution) is durable.
func (s *Service) SubmitOrder(ctx context.Context, user *model.User, req OrderRequest) (*OrderResponse, error) {
	started := time.Now()

	if err := checkRequest(req); err != nil {
		return nil, err
	}

	inst, err := s.store.GetInstrumentBySymbol(ctx, req.Symbol)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrInstrumentNotFound, req.Symbol)
		}
		return nil, err
	}

	currentPrice, err := s.currentPrice(ctx, inst)
	if err != nil {
		return nil, err
	}

	// Serialize against any concurrent execution touching this portfolio.
	unlock := s.locks.lock(user.ID)
	defer unlock()

	portfolio, err := s.store.GetPortfolioByUser(ctx, user.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrPortfolioNotFound
		}
		return nil, err
	}

	order := &model.Order{
		ID:           uuid.New().String(),
		UserID:       user.ID,
		InstrumentID: inst.ID,
		Direction:    req.Direction,
		Type:         req.Type,
		Quantity:     req.Quantity,
		LimitPrice:   req.LimitPrice,
		Status:       model.StatusPending,
		CreatedAt:    time.Now().UTC(),
	}

	// MARKET orders validate against the observed price and record it in
	// the limit price field; LIMIT orders validate against their limit.
	referencePrice := req.LimitPrice
	if req.Type == model.TypeMarket {
		referencePrice = currentPrice
		order.LimitPrice = currentPrice
	}

	if err := s.validate(ctx, order.Direction, referencePrice, order.Quantity, portfolio, inst); err != nil {
		return nil, err
	}

	if err := s.store.CreateOrder(ctx, order); err != nil {
		return nil, err
	}

	if req.Type == model.TypeMarket {
		if err := s.execute(ctx, currentPrice, order, portfolio, inst); err != nil {
			return nil, err
		}
		now := time.Now().UTC()
		order.ExecutedPrice = currentPrice
		order.ExecutedAt = &now
		order.Status = model.StatusCompleted
		if err := s.store.UpdateOrder(ctx, order); err != nil {
			return nil, err
		}
	}

	slog.Info("order submitted",
		"id", order.ID,
		"user", user.ID,
		"symbol", inst.Symbol,
		"direction", order.Direction,
		"type", order.Type,
		"qty", order.Quantity,
		"status", order.Status,
	)

	metrics.OrdersTotal.WithLabelValues(order.Direction, order.Status).Inc()
	metrics.OrderLatency.WithLabelValues(order.Type).Observe(time.Since(started).Seconds())

	return orderResponse(order, inst.Symbol), nil
}

// ProcessPendingOrders re-evaluates every PENDING order against the current
// price: cancelled when the owner's session has expired or validation fails,
// executed when the limit triggers, otherwise left pending. Each order is
// independent; one order's failure never aborts the pass.
func (s *Service) ProcessPendingOrders(ctx context.Context) {
	orders, err := s.store.ListPendingOrders(ctx)
	if err != nil {
		slog.Error("pending order scan failed", "err", err)
		return
	}
	metrics.PendingOrders.Set(float64(len(orders)))

	for i := range orders {
		if err := s.processOne(ctx, &orders[i]); err != nil {
			slog.Error("pending order processing failed", "order", orders[i].ID, "err", err)
		}
	}
}

func (s *Service) processOne(ctx context.Context, order *model.Order) error {
	user, err := s.store.GetUser(ctx, order.UserID)
	if err != nil {
		return err
	}

	// Expired accounts get their orders cancelled without execution.
	if user.Expired() {
		return s.cancel(ctx, order, "account expired")
	}

	inst, err := s.store.GetInstrument(ctx, order.InstrumentID)
	if err != nil {
		return err
	}

	currentPrice, err := s.currentPrice(ctx, inst)
	if err != nil {
		return err
	}

	// Direction-aware trigger: a BUY limit fires when the price has fallen
	// to the limit or below, a SELL limit when it has risen to the limit
	// or above. An untriggered order stays PENDING for the next pass.
	switch order.Direction {
	case model.DirectionBuy:
		if currentPrice.GreaterThan(order.LimitPrice) {
			return nil
		}
	case model.DirectionSell:
		if currentPrice.LessThan(order.LimitPrice) {
			return nil
		}
	}

	unlock := s.locks.lock(order.UserID)
	defer unlock()

	portfolio, err := s.store.GetPortfolioByUser(ctx, order.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return s.cancel(ctx, order, "portfolio missing")
		}
		return err
	}

	if err := s.validate(ctx, order.Direction, order.LimitPrice, order.Quantity, portfolio, inst); err != nil {
		slog.Warn("order validation failed", "order", order.ID, "err", err)
		return s.cancel(ctx, order, err.Error())
	}

	if err := s.execute(ctx, currentPrice, order, portfolio, inst); err != nil {
		return err
	}

	now := time.Now().UTC()
	order.ExecutedPrice = currentPrice
	order.ExecutedAt = &now
	order.Status = model.StatusCompleted
	if err := s.store.UpdateOrder(ctx, order); err != nil {
		return err
	}

	slog.Info("pending order executed", "order", order.ID, "price", currentPrice.String())
	metrics.OrdersTotal.WithLabelValues(order.Direction, order.Status).Inc()
	return nil
}

func (s *Service) cancel(ctx context.Context, order *model.Order, reason string) error {
	order.Status = model.StatusCancelled
	if err := s.store.UpdateOrder(ctx, order); err != nil {
		return err
	}
	slog.Info("order cancelled", "order", order.ID, "reason", reason)
	metrics.OrdersTotal.WithLabelValues(order.Direction, order.Status).Inc()
	return nil
}

// validate checks funds for a BUY and held shares for a SELL against the
// reference price. It never mutates state.
func (s *Service) validate(ctx context.Context, direction string, referencePrice decimal.Decimal, quantity int64, portfolio *model.Portfolio, inst *model.Instrument) error {
	switch direction {
	case model.DirectionBuy:
		total := referencePrice.Mul(decimal.NewFromInt(quantity))
		if portfolio.Balance.LessThan(total) {
			return ErrInsufficientFunds
		}
	case model.DirectionSell:
		held := int64(0)
		pos, err := s.store.GetPosition(ctx, portfolio.ID, inst.ID)
		if err == nil {
			held = pos.Quantity
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if held < quantity {
			return ErrInsufficientShares
		}
	}
	return nil
}

// execute applies an order's fill to the portfolio at the given price.
// Side-effecting and not idempotent: must be called at most once per order,
// under the portfolio lock, after validate has passed.
func (s *Service) execute(ctx context.Context, price decimal.Decimal, order *model.Order, portfolio *model.Portfolio, inst *model.Instrument) error {
	total := price.Mul(decimal.NewFromInt(order.Quantity))

	if order.Direction == model.DirectionBuy {
		portfolio.Balance = portfolio.Balance.Sub(total)
		if err := s.store.UpdatePortfolioBalance(ctx, portfolio.ID, portfolio.Balance); err != nil {
			return err
		}

		pos, err := s.store.GetPosition(ctx, portfolio.ID, inst.ID)
		switch {
		case err == nil:
			// Quantity-weighted average of the old position and the fill.
			oldQty := decimal.NewFromInt(pos.Quantity)
			fillQty := decimal.NewFromInt(order.Quantity)
			newQty := oldQty.Add(fillQty)
			pos.AverageCost = pos.AverageCost.Mul(oldQty).Add(price.Mul(fillQty)).Div(newQty)
			pos.Quantity += order.Quantity
			return s.store.SavePosition(ctx, pos)
		case errors.Is(err, store.ErrNotFound):
			return s.store.SavePosition(ctx, &model.Position{
				ID:           uuid.New().String(),
				PortfolioID:  portfolio.ID,
				InstrumentID: inst.ID,
				Quantity:     order.Quantity,
				AverageCost:  price,
			})
		default:
			return err
		}
	}

	// SELL: shrink or delete the position, then credit the proceeds.
	pos, err := s.store.GetPosition(ctx, portfolio.ID, inst.ID)
	if err != nil {
		return err
	}
	if pos.Quantity == order.Quantity {
		if err := s.store.DeletePosition(ctx, pos.ID); err != nil {
			return err
		}
	} else {
		pos.Quantity -= order.Quantity
		if err := s.store.SavePosition(ctx, pos); err != nil {
			return err
		}
	}

	portfolio.Balance = portfolio.Balance.Add(total)
	return s.store.UpdatePortfolioBalance(ctx, portfolio.ID, portfolio.Balance)
}

// GetOrders returns one page of the user's orders matching the filter.
func (s *Service) GetOrders(ctx context.Context, user *model.User, f store.OrderFilter, p store.Page) (*OrderPage, error) {
	orders, total, err := s.store.ListOrdersByUser(ctx, user.ID, f, p)
	if err != nil {
		return nil, err
	}

	symbols, err := s.symbolIndex(ctx)
	if err != nil {
		return nil, err
	}

	size := p.Limit
	if size <= 0 {
		size = 10
	}
	page := &OrderPage{
		Orders: make([]OrderResponse, 0, len(orders)),
		Total:  total,
		Page:   p.Offset / size,
		Size:   size,
	}
	for i := range orders {
		page.Orders = append(page.Orders, *orderResponse(&orders[i], symbols[orders[i].InstrumentID]))
	}
	return page, nil
}

// GetPortfolio returns the user's balance and positions marked at the
// current price.
func (s *Service) GetPortfolio(ctx context.Context, user *model.User) (*PortfolioResponse, error) {
	portfolio, err := s.store.GetPortfolioByUser(ctx, user.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrPortfolioNotFound
		}
		return nil, err
	}

	positions, err := s.store.ListPositions(ctx, portfolio.ID)
	if err != nil {
		return nil, err
	}

	resp := &PortfolioResponse{
		ID:        portfolio.ID,
		Balance:   portfolio.Balance,
		Positions: make([]PositionResponse, 0, len(positions)),
	}

	for _, pos := range positions {
		inst, err := s.store.GetInstrument(ctx, pos.InstrumentID)
		if err != nil {
			return nil, err
		}
		currentPrice, err := s.currentPrice(ctx, inst)
		if err != nil {
			return nil, err
		}
		resp.Positions = append(resp.Positions, PositionResponse{
			Symbol:       inst.Symbol,
			Name:         inst.Name,
			Quantity:     pos.Quantity,
			AverageCost:  pos.AverageCost,
			CurrentPrice: currentPrice,
			TotalValue:   currentPrice.Mul(decimal.NewFromInt(pos.Quantity)),
		})
	}
	return resp, nil
}

// currentPrice is the engine's price oracle: the latest durable sample, or
// the base price before the first tick has ever committed.
func (s *Service) currentPrice(ctx context.Context, inst *model.Instrument) (decimal.Decimal, error) {
	price, err := s.store.LatestPrice(ctx, inst.ID)
	if errors.Is(err, store.ErrNotFound) {
		return inst.BasePrice, nil
	}
	return price, err
}

func (s *Service) symbolIndex(ctx context.Context) (map[string]string, error) {
	instruments, err := s.store.ListInstruments(ctx)
	if err != nil {
		return nil, err
	}
	index := make(map[string]string, len(instruments))
	for _, inst := range instruments {
		index[inst.ID] = inst.Symbol
	}
	return index, nil
}

func checkRequest(req OrderRequest) error {
	if req.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidOrder)
	}
	if req.Direction != model.DirectionBuy && req.Direction != model.DirectionSell {
		return fmt.Errorf("%w: direction must be BUY or SELL", ErrInvalidOrder)
	}
	switch req.Type {
	case model.TypeMarket:
	case model.TypeLimit:
		if req.LimitPrice.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("%w: limit price must be positive", ErrInvalidOrder)
		}
	default:
		return fmt.Errorf("%w: type must be MARKET or LIMIT", ErrInvalidOrder)
	}
	return nil
}

func orderResponse(o *model.Order, symbol string) *OrderResponse {
	return &OrderResponse{
		ID:            o.ID,
		Symbol:        symbol,
		Direction:     o.Direction,
		Type:          o.Type,
		Quantity:      o.Quantity,
		LimitPrice:    o.LimitPrice,
		ExecutedPrice: o.ExecutedPrice,
		Status:        o.Status,
		CreatedAt:     o.CreatedAt,
		ExecutedAt:    o.ExecutedAt,
	}
}
