package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stockx/market-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
// The price series table is expected to be a TimescaleDB hypertable keyed
// on (instrument_id, time); retention and compression policies are managed
// outside the engine.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func mapNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// --- Instruments ---

func (s *PostgresStore) CreateInstrument(ctx context.Context, inst *model.Instrument) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO instruments (id, symbol, name, base_price, created_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5)`,
		inst.ID, inst.Symbol, inst.Name, inst.BasePrice.String(), inst.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetInstrument(ctx context.Context, id string) (*model.Instrument, error) {
	return s.getInstrument(ctx, `WHERE id = $1`, id)
}

func (s *PostgresStore) GetInstrumentBySymbol(ctx context.Context, symbol string) (*model.Instrument, error) {
	return s.getInstrument(ctx, `WHERE symbol = $1`, symbol)
}

func (s *PostgresStore) getInstrument(ctx context.Context, where string, arg any) (*model.Instrument, error) {
	var inst model.Instrument
	var basePrice string

	err := s.pool.QueryRow(ctx,
		`SELECT id, symbol, name, base_price::TEXT, created_at FROM instruments `+where, arg).
		Scan(&inst.ID, &inst.Symbol, &inst.Name, &basePrice, &inst.CreatedAt)
	if err != nil {
		return nil, mapNoRows(err)
	}

	inst.BasePrice, _ = decimal.NewFromString(basePrice)
	return &inst, nil
}

func (s *PostgresStore) ListInstruments(ctx context.Context) ([]model.Instrument, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, symbol, name, base_price::TEXT, created_at
		 FROM instruments ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instruments []model.Instrument
	for rows.Next() {
		var inst model.Instrument
		var basePrice string
		if err := rows.Scan(&inst.ID, &inst.Symbol, &inst.Name, &basePrice, &inst.CreatedAt); err != nil {
			return nil, err
		}
		inst.BasePrice, _ = decimal.NewFromString(basePrice)
		instruments = append(instruments, inst)
	}
	return instruments, rows.Err()
}

// --- Price series ---

// AppendPricePoints bulk-inserts one generator pass via the COPY protocol.
func (s *PostgresStore) AppendPricePoints(ctx context.Context, points []model.PricePoint) error {
	if len(points) == 0 {
		return nil
	}

	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"price_history"},
		[]string{"instrument_id", "time", "price", "volume"},
		pgx.CopyFromSlice(len(points), func(i int) ([]any, error) {
			p := points[i]
			return []any{p.InstrumentID, p.Time, p.Price.String(), p.Volume}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("append price points: %w", err)
	}
	return nil
}

func (s *PostgresStore) LatestPrice(ctx context.Context, instrumentID string) (decimal.Decimal, error) {
	var price string
	err := s.pool.QueryRow(ctx,
		`SELECT price::TEXT FROM price_history
		 WHERE instrument_id = $1 ORDER BY time DESC LIMIT 1`, instrumentID).
		Scan(&price)
	if err != nil {
		return decimal.Zero, mapNoRows(err)
	}
	return decimal.NewFromString(price)
}

func (s *PostgresStore) PriceRange(ctx context.Context, instrumentID string, from, to time.Time) ([]model.PricePoint, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT instrument_id, time, price::TEXT, volume FROM price_history
		 WHERE instrument_id = $1 AND time BETWEEN $2 AND $3
		 ORDER BY time ASC`, instrumentID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []model.PricePoint
	for rows.Next() {
		var p model.PricePoint
		var price string
		if err := rows.Scan(&p.InstrumentID, &p.Time, &price, &p.Volume); err != nil {
			return nil, err
		}
		p.Price, _ = decimal.NewFromString(price)
		points = append(points, p)
	}
	return points, rows.Err()
}

// --- Orders ---

const orderColumns = `id, user_id, instrument_id, direction, type, quantity,
	limit_price::TEXT, executed_price::TEXT, status, created_at, executed_at`

func (s *PostgresStore) CreateOrder(ctx context.Context, o *model.Order) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO orders (id, user_id, instrument_id, direction, type, quantity,
		                     limit_price, executed_price, status, created_at, executed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::NUMERIC, $8::NUMERIC, $9, $10, $11)`,
		o.ID, o.UserID, o.InstrumentID, o.Direction, o.Type, o.Quantity,
		o.LimitPrice.String(), o.ExecutedPrice.String(), o.Status, o.CreatedAt, o.ExecutedAt,
	)
	return err
}

func (s *PostgresStore) UpdateOrder(ctx context.Context, o *model.Order) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE orders
		 SET status = $2, executed_price = $3::NUMERIC, executed_at = $4
		 WHERE id = $1`,
		o.ID, o.Status, o.ExecutedPrice.String(), o.ExecutedAt,
	)
	return err
}

func (s *PostgresStore) ListPendingOrders(ctx context.Context) ([]model.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE status = $1 ORDER BY created_at ASC`, model.StatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanOrders(rows)
}

// sortColumns whitelists order-by targets to keep user input out of SQL.
var sortColumns = map[string]string{
	"created_at":  "created_at",
	"executed_at": "executed_at",
	"limit_price": "limit_price",
	"quantity":    "quantity",
	"status":      "status",
}

func (s *PostgresStore) ListOrdersByUser(ctx context.Context, userID string, f OrderFilter, p Page) ([]model.Order, int64, error) {
	where := `WHERE o.user_id = $1`
	args := []any{userID}

	if f.Symbol != "" {
		args = append(args, f.Symbol)
		where += fmt.Sprintf(` AND o.instrument_id IN (SELECT id FROM instruments WHERE symbol = $%d)`, len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where += fmt.Sprintf(` AND o.status = $%d`, len(args))
	}
	if f.Direction != "" {
		args = append(args, f.Direction)
		where += fmt.Sprintf(` AND o.direction = $%d`, len(args))
	}
	if f.Type != "" {
		args = append(args, f.Type)
		where += fmt.Sprintf(` AND o.type = $%d`, len(args))
	}

	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders o `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sortBy, ok := sortColumns[p.SortBy]
	if !ok {
		sortBy = "created_at"
	}
	dir := "ASC"
	if p.Desc {
		dir = "DESC"
	}
	limit := p.Limit
	if limit <= 0 {
		limit = 10
	}

	args = append(args, limit, p.Offset)
	rows, err := s.pool.Query(ctx,
		`SELECT o.id, o.user_id, o.instrument_id, o.direction, o.type, o.quantity,
		        o.limit_price::TEXT, o.executed_price::TEXT, o.status, o.created_at, o.executed_at
		 FROM orders o `+where+
			fmt.Sprintf(` ORDER BY o.%s %s LIMIT $%d OFFSET $%d`, sortBy, dir, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	orders, err := scanOrders(rows)
	return orders, total, err
}

func scanOrders(rows pgx.Rows) ([]model.Order, error) {
	var orders []model.Order
	for rows.Next() {
		var o model.Order
		var limitPrice, executedPrice string

		if err := rows.Scan(&o.ID, &o.UserID, &o.InstrumentID, &o.Direction, &o.Type,
			&o.Quantity, &limitPrice, &executedPrice, &o.Status, &o.CreatedAt, &o.ExecutedAt); err != nil {
			return nil, err
		}

		o.LimitPrice, _ = decimal.NewFromString(limitPrice)
		o.ExecutedPrice, _ = decimal.NewFromString(executedPrice)
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// --- Portfolios ---

func (s *PostgresStore) CreatePortfolio(ctx context.Context, pf *model.Portfolio) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO portfolios (id, user_id, balance, created_at)
		 VALUES ($1, $2, $3::NUMERIC, $4)`,
		pf.ID, pf.UserID, pf.Balance.String(), pf.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetPortfolioByUser(ctx context.Context, userID string) (*model.Portfolio, error) {
	var pf model.Portfolio
	var balance string

	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, balance::TEXT, created_at
		 FROM portfolios WHERE user_id = $1`, userID).
		Scan(&pf.ID, &pf.UserID, &balance, &pf.CreatedAt)
	if err != nil {
		return nil, mapNoRows(err)
	}

	pf.Balance, _ = decimal.NewFromString(balance)
	return &pf, nil
}

func (s *PostgresStore) UpdatePortfolioBalance(ctx context.Context, portfolioID string, balance decimal.Decimal) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE portfolios SET balance = $2::NUMERIC WHERE id = $1`,
		portfolioID, balance.String(),
	)
	return err
}

// --- Positions ---

func (s *PostgresStore) GetPosition(ctx context.Context, portfolioID, instrumentID string) (*model.Position, error) {
	var pos model.Position
	var avgCost string

	err := s.pool.QueryRow(ctx,
		`SELECT id, portfolio_id, instrument_id, quantity, average_cost::TEXT
		 FROM positions WHERE portfolio_id = $1 AND instrument_id = $2`,
		portfolioID, instrumentID).
		Scan(&pos.ID, &pos.PortfolioID, &pos.InstrumentID, &pos.Quantity, &avgCost)
	if err != nil {
		return nil, mapNoRows(err)
	}

	pos.AverageCost, _ = decimal.NewFromString(avgCost)
	return &pos, nil
}

func (s *PostgresStore) ListPositions(ctx context.Context, portfolioID string) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, portfolio_id, instrument_id, quantity, average_cost::TEXT
		 FROM positions WHERE portfolio_id = $1`, portfolioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		var pos model.Position
		var avgCost string
		if err := rows.Scan(&pos.ID, &pos.PortfolioID, &pos.InstrumentID, &pos.Quantity, &avgCost); err != nil {
			return nil, err
		}
		pos.AverageCost, _ = decimal.NewFromString(avgCost)
		positions = append(positions, pos)
	}
	return positions, rows.Err()
}

func (s *PostgresStore) SavePosition(ctx context.Context, pos *model.Position) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO positions (id, portfolio_id, instrument_id, quantity, average_cost)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC)
		 ON CONFLICT (portfolio_id, instrument_id)
		 DO UPDATE SET quantity = EXCLUDED.quantity, average_cost = EXCLUDED.average_cost`,
		pos.ID, pos.PortfolioID, pos.InstrumentID, pos.Quantity, pos.AverageCost.String(),
	)
	return err
}

func (s *PostgresStore) DeletePosition(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM positions WHERE id = $1`, id)
	return err
}

// --- Users ---

func (s *PostgresStore) CreateUser(ctx context.Context, u *model.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, username, token, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Username, u.Token, u.ExpiresAt, u.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	return s.getUser(ctx, `WHERE id = $1`, id)
}

func (s *PostgresStore) GetUserByToken(ctx context.Context, token string) (*model.User, error) {
	return s.getUser(ctx, `WHERE token = $1`, token)
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.getUser(ctx, `WHERE LOWER(username) = LOWER($1)`, username)
}

func (s *PostgresStore) getUser(ctx context.Context, where string, arg any) (*model.User, error) {
	var u model.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, token, expires_at, created_at FROM users `+where, arg).
		Scan(&u.ID, &u.Username, &u.Token, &u.ExpiresAt, &u.CreatedAt)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return &u, nil
}
