package trade

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockx/market-engine/internal/auth"
	"github.com/stockx/market-engine/internal/model"
	"github.com/stockx/market-engine/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func newTestService(t *testing.T) (*Service, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	return NewService(st), st
}

func seedInstrument(t *testing.T, st *store.MemoryStore, symbol string, basePrice float64) *model.Instrument {
	t.Helper()
	inst := &model.Instrument{
		ID:        "inst-" + symbol,
		Symbol:    symbol,
		Name:      symbol + " Test Co.",
		BasePrice: d(basePrice),
		CreatedAt: time.Now().UTC(),
	}
	if err := st.CreateInstrument(context.Background(), inst); err != nil {
		t.Fatalf("failed to seed instrument: %v", err)
	}
	return inst
}

func seedUser(t *testing.T, st *store.MemoryStore, name string, balance float64, expiresIn time.Duration) (*model.User, *model.Portfolio) {
	t.Helper()
	now := time.Now().UTC()
	user := &model.User{
		ID:        "user-" + name,
		Username:  name,
		Token:     "token-" + name,
		ExpiresAt: now.Add(expiresIn),
		CreatedAt: now,
	}
	if err := st.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	pf := &model.Portfolio{
		ID:        "pf-" + name,
		UserID:    user.ID,
		Balance:   d(balance),
		CreatedAt: now,
	}
	if err := st.CreatePortfolio(context.Background(), pf); err != nil {
		t.Fatalf("failed to seed portfolio: %v", err)
	}
	return user, pf
}

func pushPrice(t *testing.T, st *store.MemoryStore, instrumentID string, price float64) {
	t.Helper()
	err := st.AppendPricePoints(context.Background(), []model.PricePoint{{
		InstrumentID: instrumentID,
		Time:         time.Now().UTC(),
		Price:        d(price),
		Volume:       100_000,
	}})
	if err != nil {
		t.Fatalf("failed to push price: %v", err)
	}
}

// --- Market orders ---

func TestSubmitOrder_MarketBuyExecutes(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)
	inst := seedInstrument(t, st, "AAPL", 180.50)
	user, pf := seedUser(t, st, "alice", 100_000, time.Hour)
	pushPrice(t, st, inst.ID, 100)

	resp, err := svc.SubmitOrder(ctx, user, OrderRequest{
		Symbol:    "AAPL",
		Direction: model.DirectionBuy,
		Type:      model.TypeMarket,
		Quantity:  10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Status != model.StatusCompleted {
		t.Errorf("expected COMPLETED, got %s", resp.Status)
	}
	if !resp.ExecutedPrice.Equal(d(100)) {
		t.Errorf("expected execution at 100, got %s", resp.ExecutedPrice)
	}
	// Market orders record the observed price in the limit field.
	if !resp.LimitPrice.Equal(d(100)) {
		t.Errorf("expected observed price 100 recorded, got %s", resp.LimitPrice)
	}
	if resp.ExecutedAt == nil {
		t.Error("expected executed_at to be set")
	}

	got, _ := st.GetPortfolioByUser(ctx, user.ID)
	if !got.Balance.Equal(d(99_000)) {
		t.Errorf("expected balance 99000, got %s", got.Balance)
	}
	pos, err := st.GetPosition(ctx, pf.ID, inst.ID)
	if err != nil {
		t.Fatalf("expected position: %v", err)
	}
	if pos.Quantity != 10 || !pos.AverageCost.Equal(d(100)) {
		t.Errorf("expected 10 shares at 100, got %d at %s", pos.Quantity, pos.AverageCost)
	}
}

func TestSubmitOrder_AverageCostIsQuantityWeighted(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)
	inst := seedInstrument(t, st, "AAPL", 180.50)
	user, pf := seedUser(t, st, "alice", 100_000, time.Hour)

	pushPrice(t, st, inst.ID, 100)
	if _, err := svc.SubmitOrder(ctx, user, OrderRequest{
		Symbol: "AAPL", Direction: model.DirectionBuy, Type: model.TypeMarket, Quantity: 10,
	}); err != nil {
		t.Fatalf("first buy failed: %v", err)
	}

	pushPrice(t, st, inst.ID, 120)
	if _, err := svc.SubmitOrder(ctx, user, OrderRequest{
		Symbol: "AAPL", Direction: model.DirectionBuy, Type: model.TypeMarket, Quantity: 10,
	}); err != nil {
		t.Fatalf("second buy failed: %v", err)
	}

	pos, err := st.GetPosition(ctx, pf.ID, inst.ID)
	if err != nil {
		t.Fatalf("expected position: %v", err)
	}
	if pos.Quantity != 20 {
		t.Errorf("expected 20 shares, got %d", pos.Quantity)
	}
	// (100×10 + 120×10) / 20 = 110, exactly.
	if !pos.AverageCost.Equal(d(110)) {
		t.Errorf("expected average cost 110, got %s", pos.AverageCost)
	}
}

func TestSubmitOrder_SellEntirePositionDeletesIt(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)
	inst := seedInstrument(t, st, "AAPL", 180.50)
	user, pf := seedUser(t, st, "alice", 100_000, time.Hour)
	pushPrice(t, st, inst.ID, 100)

	if _, err := svc.SubmitOrder(ctx, user, OrderRequest{
		Symbol: "AAPL", Direction: model.DirectionBuy, Type: model.TypeMarket, Quantity: 10,
	}); err != nil {
		t.Fatalf("buy failed: %v", err)
	}
	if _, err := svc.SubmitOrder(ctx, user, OrderRequest{
		Symbol: "AAPL", Direction: model.DirectionSell, Type: model.TypeMarket, Quantity: 10,
	}); err != nil {
		t.Fatalf("sell failed: %v", err)
	}

	if _, err := st.GetPosition(ctx, pf.ID, inst.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected position deleted, got err=%v", err)
	}
	got, _ := st.GetPortfolioByUser(ctx, user.ID)
	if !got.Balance.Equal(d(100_000)) {
		t.Errorf("expected balance restored to 100000, got %s", got.Balance)
	}
}

func TestSubmitOrder_PartialSellKeepsAverageCost(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)
	inst := seedInstrument(t, st, "AAPL", 180.50)
	user, pf := seedUser(t, st, "alice", 100_000, time.Hour)
	pushPrice(t, st, inst.ID, 100)

	if _, err := svc.SubmitOrder(ctx, user, OrderRequest{
		Symbol: "AAPL", Direction: model.DirectionBuy, Type: model.TypeMarket, Quantity: 10,
	}); err != nil {
		t.Fatalf("buy failed: %v", err)
	}

	pushPrice(t, st, inst.ID, 130)
	if _, err := svc.SubmitOrder(ctx, user, OrderRequest{
		Symbol: "AAPL", Direction: model.DirectionSell, Type: model.TypeMarket, Quantity: 4,
	}); err != nil {
		t.Fatalf("sell failed: %v", err)
	}

	pos, err := st.GetPosition(ctx, pf.ID, inst.ID)
	if err != nil {
		t.Fatalf("expected position: %v", err)
	}
	if pos.Quantity != 6 {
		t.Errorf("expected 6 shares remaining, got %d", pos.Quantity)
	}
	// Selling never reprices the remainder.
	if !pos.AverageCost.Equal(d(100)) {
		t.Errorf("expected average cost unchanged at 100, got %s", pos.AverageCost)
	}
	got, _ := st.GetPortfolioByUser(ctx, user.ID)
	if !got.Balance.Equal(d(99_520)) {
		t.Errorf("expected balance 99520, got %s", got.Balance)
	}
}

// --- Rejections ---

func TestSubmitOrder_InsufficientFundsLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)
	inst := seedInstrument(t, st, "AAPL", 180.50)
	user, pf := seedUser(t, st, "poor", 500, time.Hour)
	pushPrice(t, st, inst.ID, 100)

	_, err := svc.SubmitOrder(ctx, user, OrderRequest{
		Symbol: "AAPL", Direction: model.DirectionBuy, Type: model.TypeMarket, Quantity: 10,
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	got, _ := st.GetPortfolioByUser(ctx, user.ID)
	if !got.Balance.Equal(d(500)) {
		t.Errorf("expected balance untouched at 500, got %s", got.Balance)
	}
	if _, err := st.GetPosition(ctx, pf.ID, inst.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected no position, got err=%v", err)
	}
	_, total, _ := st.ListOrdersByUser(ctx, user.ID, store.OrderFilter{}, store.Page{Limit: 10})
	if total != 0 {
		t.Errorf("expected no order persisted, got %d", total)
	}
}

func TestSubmitOrder_InsufficientShares(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)
	inst := seedInstrument(t, st, "AAPL", 180.50)
	user, _ := seedUser(t, st, "alice", 100_000, time.Hour)
	pushPrice(t, st, inst.ID, 100)

	_, err := svc.SubmitOrder(ctx, user, OrderRequest{
		Symbol: "AAPL", Direction: model.DirectionSell, Type: model.TypeMarket, Quantity: 1,
	})
	if !errors.Is(err, ErrInsufficientShares) {
		t.Fatalf("expected ErrInsufficientShares, got %v", err)
	}
}

func TestSubmitOrder_UnknownSymbol(t *testing.T) {
	svc, st := newTestService(t)
	user, _ := seedUser(t, st, "alice", 100_000, time.Hour)

	_, err := svc.SubmitOrder(context.Background(), user, OrderRequest{
		Symbol: "NOPE", Direction: model.DirectionBuy, Type: model.TypeMarket, Quantity: 1,
	})
	if !errors.Is(err, ErrInstrumentNotFound) {
		t.Fatalf("expected ErrInstrumentNotFound, got %v", err)
	}
}

func TestCheckRequest(t *testing.T) {
	cases := []struct {
		name string
		req  OrderRequest
		ok   bool
	}{
		{"market buy", OrderRequest{Direction: "BUY", Type: "MARKET", Quantity: 1}, true},
		{"limit sell", OrderRequest{Direction: "SELL", Type: "LIMIT", Quantity: 1, LimitPrice: d(10)}, true},
		{"zero quantity", OrderRequest{Direction: "BUY", Type: "MARKET", Quantity: 0}, false},
		{"negative quantity", OrderRequest{Direction: "BUY", Type: "MARKET", Quantity: -5}, false},
		{"bad direction", OrderRequest{Direction: "HOLD", Type: "MARKET", Quantity: 1}, false},
		{"bad type", OrderRequest{Direction: "BUY", Type: "STOP", Quantity: 1}, false},
		{"limit without price", OrderRequest{Direction: "BUY", Type: "LIMIT", Quantity: 1}, false},
		{"negative limit price", OrderRequest{Direction: "BUY", Type: "LIMIT", Quantity: 1, LimitPrice: d(-1)}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := checkRequest(tc.req)
			if tc.ok && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrInvalidOrder) {
				t.Errorf("expected ErrInvalidOrder, got %v", err)
			}
		})
	}
}

// --- Pending sweep ---

func TestSubmitOrder_LimitStaysPending(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)
	inst := seedInstrument(t, st, "AAPL", 180.50)
	user, _ := seedUser(t, st, "alice", 100_000, time.Hour)
	pushPrice(t, st, inst.ID, 100)

	resp, err := svc.SubmitOrder(ctx, user, OrderRequest{
		Symbol: "AAPL", Direction: model.DirectionBuy, Type: model.TypeLimit, Quantity: 10, LimitPrice: d(95),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != model.StatusPending {
		t.Errorf("expected PENDING, got %s", resp.Status)
	}

	// No funds move until the limit triggers.
	got, _ := st.GetPortfolioByUser(ctx, user.ID)
	if !got.Balance.Equal(d(100_000)) {
		t.Errorf("expected balance untouched, got %s", got.Balance)
	}
}

func TestProcessPendingOrders_BuyTriggersAtOrBelowLimit(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)
	inst := seedInstrument(t, st, "AAPL", 180.50)
	user, pf := seedUser(t, st, "alice", 100_000, time.Hour)
	pushPrice(t, st, inst.ID, 100)

	if _, err := svc.SubmitOrder(ctx, user, OrderRequest{
		Symbol: "AAPL", Direction: model.DirectionBuy, Type: model.TypeLimit, Quantity: 10, LimitPrice: d(95),
	}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	// Price above the limit: untouched.
	svc.ProcessPendingOrders(ctx)
	pending, _ := st.ListPendingOrders(ctx)
	if len(pending) != 1 {
		t.Fatalf("expected order still pending, got %d pending", len(pending))
	}

	// Price falls through the limit: the buy fills at the current price,
	// not the limit price.
	pushPrice(t, st, inst.ID, 94)
	svc.ProcessPendingOrders(ctx)

	pending, _ = st.ListPendingOrders(ctx)
	if len(pending) != 0 {
		t.Fatalf("expected no pending orders, got %d", len(pending))
	}
	pos, err := st.GetPosition(ctx, pf.ID, inst.ID)
	if err != nil {
		t.Fatalf("expected position: %v", err)
	}
	if !pos.AverageCost.Equal(d(94)) {
		t.Errorf("expected fill at 94, got %s", pos.AverageCost)
	}
	got, _ := st.GetPortfolioByUser(ctx, user.ID)
	if !got.Balance.Equal(d(99_060)) {
		t.Errorf("expected balance 99060, got %s", got.Balance)
	}
}

func TestProcessPendingOrders_SellTriggersAtOrAboveLimit(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)
	inst := seedInstrument(t, st, "AAPL", 180.50)
	user, pf := seedUser(t, st, "alice", 100_000, time.Hour)
	pushPrice(t, st, inst.ID, 100)

	if _, err := svc.SubmitOrder(ctx, user, OrderRequest{
		Symbol: "AAPL", Direction: model.DirectionBuy, Type: model.TypeMarket, Quantity: 10,
	}); err != nil {
		t.Fatalf("buy failed: %v", err)
	}
	if _, err := svc.SubmitOrder(ctx, user, OrderRequest{
		Symbol: "AAPL", Direction: model.DirectionSell, Type: model.TypeLimit, Quantity: 10, LimitPrice: d(105),
	}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	svc.ProcessPendingOrders(ctx)
	pending, _ := st.ListPendingOrders(ctx)
	if len(pending) != 1 {
		t.Fatalf("expected order still pending below the limit, got %d pending", len(pending))
	}

	pushPrice(t, st, inst.ID, 106)
	svc.ProcessPendingOrders(ctx)

	if _, err := st.GetPosition(ctx, pf.ID, inst.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected position sold out, got err=%v", err)
	}
	// 100000 − 10×100 + 10×106.
	got, _ := st.GetPortfolioByUser(ctx, user.ID)
	if !got.Balance.Equal(d(100_060)) {
		t.Errorf("expected balance 100060, got %s", got.Balance)
	}
}

func TestProcessPendingOrders_ExpiredUserIsCancelled(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)
	inst := seedInstrument(t, st, "AAPL", 180.50)
	// Session resolution happens in the HTTP middleware, so an account can
	// expire while its limit order is still pending.
	user, _ := seedUser(t, st, "alice", 100_000, -time.Minute)
	pushPrice(t, st, inst.ID, 100)

	if _, err := svc.SubmitOrder(ctx, user, OrderRequest{
		Symbol: "AAPL", Direction: model.DirectionBuy, Type: model.TypeLimit, Quantity: 10, LimitPrice: d(95),
	}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	svc.ProcessPendingOrders(ctx)

	orders, _, _ := st.ListOrdersByUser(ctx, user.ID, store.OrderFilter{}, store.Page{Limit: 10})
	if len(orders) != 1 || orders[0].Status != model.StatusCancelled {
		t.Fatalf("expected order cancelled, got %+v", orders)
	}
	got, _ := st.GetPortfolioByUser(ctx, user.ID)
	if !got.Balance.Equal(d(100_000)) {
		t.Errorf("expected balance untouched, got %s", got.Balance)
	}
}

func TestProcessPendingOrders_FailedValidationCancelsOnlyThatOrder(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)
	inst := seedInstrument(t, st, "AAPL", 180.50)
	pushPrice(t, st, inst.ID, 100)

	alice, _ := seedUser(t, st, "alice", 100_000, time.Hour)
	bob, _ := seedUser(t, st, "bob", 100_000, time.Hour)
	carol, _ := seedUser(t, st, "carol", 100_000, time.Hour)

	for _, u := range []*model.User{alice, carol} {
		if _, err := svc.SubmitOrder(ctx, u, OrderRequest{
			Symbol: "AAPL", Direction: model.DirectionBuy, Type: model.TypeMarket, Quantity: 10,
		}); err != nil {
			t.Fatalf("setup buy failed: %v", err)
		}
		if _, err := svc.SubmitOrder(ctx, u, OrderRequest{
			Symbol: "AAPL", Direction: model.DirectionSell, Type: model.TypeLimit, Quantity: 10, LimitPrice: d(105),
		}); err != nil {
			t.Fatalf("setup limit failed: %v", err)
		}
	}
	// Bob holds no shares, so his sell can no longer pass validation.
	// Seed the stale order directly; a fresh submission would be rejected.
	badOrder := &model.Order{
		ID:           "order-bob",
		UserID:       bob.ID,
		InstrumentID: inst.ID,
		Direction:    model.DirectionSell,
		Type:         model.TypeLimit,
		Quantity:     10,
		LimitPrice:   d(105),
		Status:       model.StatusPending,
		CreatedAt:    time.Now().UTC(),
	}
	if err := st.CreateOrder(ctx, badOrder); err != nil {
		t.Fatalf("seed order failed: %v", err)
	}

	pushPrice(t, st, inst.ID, 106)
	svc.ProcessPendingOrders(ctx)

	if pending, _ := st.ListPendingOrders(ctx); len(pending) != 0 {
		t.Fatalf("expected every order settled or cancelled, got %d pending", len(pending))
	}

	bobOrders, _, _ := st.ListOrdersByUser(ctx, bob.ID, store.OrderFilter{}, store.Page{Limit: 10})
	if len(bobOrders) != 1 || bobOrders[0].Status != model.StatusCancelled {
		t.Errorf("expected bob's order cancelled, got %+v", bobOrders)
	}
	for _, u := range []*model.User{alice, carol} {
		got, _ := st.GetPortfolioByUser(ctx, u.ID)
		if !got.Balance.Equal(d(100_060)) {
			t.Errorf("expected %s settled to 100060, got %s", u.Username, got.Balance)
		}
	}
}

// --- Queries ---

func TestGetOrders_FilterAndPaging(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)
	aapl := seedInstrument(t, st, "AAPL", 180.50)
	msft := seedInstrument(t, st, "MSFT", 380.25)
	user, _ := seedUser(t, st, "alice", 1_000_000, time.Hour)
	pushPrice(t, st, aapl.ID, 100)
	pushPrice(t, st, msft.ID, 200)

	submissions := []OrderRequest{
		{Symbol: "AAPL", Direction: model.DirectionBuy, Type: model.TypeMarket, Quantity: 1},
		{Symbol: "MSFT", Direction: model.DirectionBuy, Type: model.TypeMarket, Quantity: 2},
		{Symbol: "AAPL", Direction: model.DirectionBuy, Type: model.TypeLimit, Quantity: 3, LimitPrice: d(90)},
	}
	for _, req := range submissions {
		if _, err := svc.SubmitOrder(ctx, user, req); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}

	page, err := svc.GetOrders(ctx, user, store.OrderFilter{}, store.Page{Limit: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Total != 3 || len(page.Orders) != 2 {
		t.Errorf("expected total 3 with 2 on page, got total %d with %d", page.Total, len(page.Orders))
	}

	page, err = svc.GetOrders(ctx, user, store.OrderFilter{Status: model.StatusPending}, store.Page{Limit: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Total != 1 || page.Orders[0].Quantity != 3 {
		t.Errorf("expected only the pending limit order, got %+v", page.Orders)
	}

	page, err = svc.GetOrders(ctx, user, store.OrderFilter{Symbol: "MSFT"}, store.Page{Limit: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Total != 1 || page.Orders[0].Symbol != "MSFT" {
		t.Errorf("expected only the MSFT order, got %+v", page.Orders)
	}
}

func TestGetPortfolio_MarksPositionsAtCurrentPrice(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)
	inst := seedInstrument(t, st, "AAPL", 180.50)
	user, _ := seedUser(t, st, "alice", 100_000, time.Hour)
	pushPrice(t, st, inst.ID, 100)

	if _, err := svc.SubmitOrder(ctx, user, OrderRequest{
		Symbol: "AAPL", Direction: model.DirectionBuy, Type: model.TypeMarket, Quantity: 10,
	}); err != nil {
		t.Fatalf("buy failed: %v", err)
	}

	pushPrice(t, st, inst.ID, 125)
	resp, err := svc.GetPortfolio(ctx, user)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(resp.Positions) != 1 {
		t.Fatalf("expected one position, got %d", len(resp.Positions))
	}
	pos := resp.Positions[0]
	if !pos.CurrentPrice.Equal(d(125)) {
		t.Errorf("expected mark at 125, got %s", pos.CurrentPrice)
	}
	if !pos.TotalValue.Equal(d(1250)) {
		t.Errorf("expected total value 1250, got %s", pos.TotalValue)
	}
	if !pos.AverageCost.Equal(d(100)) {
		t.Errorf("expected average cost 100, got %s", pos.AverageCost)
	}
}

// --- HTTP surface ---

func TestHandleSubmitOrder_RequiresSession(t *testing.T) {
	svc, st := newTestService(t)
	authSvc := auth.NewService(st)
	handler := authSvc.Middleware(http.HandlerFunc(svc.HandleSubmitOrder))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without a token, got %d", rec.Code)
	}
}

func TestHandleSubmitOrder_EndToEnd(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)
	inst := seedInstrument(t, st, "AAPL", 180.50)
	pushPrice(t, st, inst.ID, 100)

	authSvc := auth.NewService(st)
	account, err := authSvc.CreateUser(ctx, "alice")
	if err != nil {
		t.Fatalf("account creation failed: %v", err)
	}

	handler := authSvc.Middleware(http.HandlerFunc(svc.HandleSubmitOrder))

	body, _ := json.Marshal(OrderRequest{
		Symbol: "AAPL", Direction: model.DirectionBuy, Type: model.TypeMarket, Quantity: 5,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewBuffer(body))
	req.Header.Set("Authorization", "Bearer "+account.Token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp OrderResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if resp.Status != model.StatusCompleted || !resp.ExecutedPrice.Equal(d(100)) {
		t.Errorf("expected completed fill at 100, got %+v", resp)
	}
}

func TestHandleSubmitOrder_InsufficientFundsIsConflict(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)
	inst := seedInstrument(t, st, "AAPL", 180.50)
	pushPrice(t, st, inst.ID, 100)

	authSvc := auth.NewService(st)
	account, err := authSvc.CreateUser(ctx, "alice")
	if err != nil {
		t.Fatalf("account creation failed: %v", err)
	}

	handler := authSvc.Middleware(http.HandlerFunc(svc.HandleSubmitOrder))

	// 100000 starting balance cannot cover 2000 shares at 100.
	body, _ := json.Marshal(OrderRequest{
		Symbol: "AAPL", Direction: model.DirectionBuy, Type: model.TypeMarket, Quantity: 2000,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewBuffer(body))
	req.Header.Set("Authorization", "Bearer "+account.Token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}
