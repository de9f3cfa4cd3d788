package trade

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/stockx/market-engine/internal/auth"
	"github.com/stockx/market-engine/internal/store"
)

// --- HTTP handlers ---

// HandleSubmitOrder handles POST /api/v1/orders.
func (s *Service) HandleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := s.SubmitOrder(r.Context(), user, req)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(resp)
}

// HandleGetOrders handles GET /api/v1/orders.
// Query params: page, size, sort_by, sort_dir, and the typed filter fields
// symbol, status, direction, type.
func (s *Service) HandleGetOrders(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	q := r.URL.Query()

	page, _ := strconv.Atoi(q.Get("page"))
	size, err := strconv.Atoi(q.Get("size"))
	if err != nil || size <= 0 {
		size = 10
	}

	filter := store.OrderFilter{
		Symbol:    q.Get("symbol"),
		Status:    q.Get("status"),
		Direction: q.Get("direction"),
		Type:      q.Get("type"),
	}
	paging := store.Page{
		Offset: page * size,
		Limit:  size,
		SortBy: q.Get("sort_by"),
		Desc:   q.Get("sort_dir") != "asc",
	}

	resp, err := s.GetOrders(r.Context(), user, filter, paging)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// HandleGetPortfolio handles GET /api/v1/portfolio.
func (s *Service) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	resp, err := s.GetPortfolio(r.Context(), user)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInstrumentNotFound), errors.Is(err, ErrPortfolioNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInsufficientFunds), errors.Is(err, ErrInsufficientShares):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidOrder):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
