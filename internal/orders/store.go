package orders

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ADovhal/TeIpsum-Store-sub001/internal/platform/postgres"

	"github.com/lib/pq"
)

// Store persists orders.
type Store interface {
	Create(ctx context.Context, o Order) error
	Get(ctx context.Context, id string) (Order, bool, error)
	// Cancel moves the order to CANCELLED and returns it. ErrAlreadyCancelled when it already was.
	Cancel(ctx context.Context, id string) (Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	// AnonymizeUser anonymizes every order of the user that is not anonymized yet and
	// returns how many changed.
	AnonymizeUser(ctx context.Context, userID string, at time.Time) (int, error)
}

// MemoryStore keeps orders in a map.
type MemoryStore struct {
	mu     sync.RWMutex
	orders map[string]Order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: make(map[string]Order)}
}

func (s *MemoryStore) Create(_ context.Context, o Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return fmt.Errorf("order %s already exists", o.ID)
	}
	o.Items = append([]LineItem(nil), o.Items...)
	s.orders[o.ID] = o
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Order, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	return o, ok, nil
}

func (s *MemoryStore) Cancel(_ context.Context, id string) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return Order{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if o.Status == StatusCancelled {
		return Order{}, fmt.Errorf("%w: %s", ErrAlreadyCancelled, id)
	}
	o.Status = StatusCancelled
	s.orders[id] = o
	return o, nil
}

func (s *MemoryStore) ListByUser(_ context.Context, userID string) ([]Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) AnonymizeUser(_ context.Context, userID string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, o := range s.orders {
		if o.UserID != userID {
			continue
		}
		if o.Anonymize(at) {
			s.orders[id] = o
			n++
		}
	}
	return n, nil
}

// PostgresStore keeps orders in the orders and order_items tables.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const orderColumns = `order_id, user_id, email, shipping_name, shipping_address, phone, status, total_cents, created_at, anonymized_at`

func (s *PostgresStore) Create(ctx context.Context, o Order) error {
	return postgres.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO orders (`+orderColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			o.ID, o.UserID, o.Email, o.ShippingName, o.ShippingAddress, o.Phone, string(o.Status), o.TotalCents, o.CreatedAt, o.AnonymizedAt,
		)
		if err != nil {
			return fmt.Errorf("insert order %s: %w", o.ID, err)
		}
		for i, it := range o.Items {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO order_items (order_id, line_no, product_id, quantity, price_cents) VALUES ($1, $2, $3, $4, $5)`,
				o.ID, i, it.ProductID, it.Quantity, it.PriceCents,
			)
			if err != nil {
				return fmt.Errorf("insert order item %s/%d: %w", o.ID, i, err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Order, bool, error) {
	orders, err := s.query(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_id = $1`, id)
	if err != nil {
		return Order{}, false, err
	}
	if len(orders) == 0 {
		return Order{}, false, nil
	}
	return orders[0], true, nil
}

func (s *PostgresStore) Cancel(ctx context.Context, id string) (Order, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = $2 WHERE order_id = $1 AND status <> $2`, id, string(StatusCancelled))
	if err != nil {
		return Order{}, fmt.Errorf("cancel order %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Order{}, err
	}

	o, found, err := s.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if !found {
		return Order{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if n == 0 {
		return Order{}, fmt.Errorf("%w: %s", ErrAlreadyCancelled, id)
	}
	return o, nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	return s.query(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at`, userID)
}

func (s *PostgresStore) AnonymizeUser(ctx context.Context, userID string, at time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET email = '', shipping_name = '', shipping_address = '', phone = '', anonymized_at = $2
		 WHERE user_id = $1 AND anonymized_at IS NULL`,
		userID, at,
	)
	if err != nil {
		return 0, fmt.Errorf("anonymize orders of %s: %w", userID, err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// query loads orders and then their line items in one round trip.
func (s *PostgresStore) query(ctx context.Context, q string, args ...any) ([]Order, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	index := make(map[string]int)
	for rows.Next() {
		var o Order
		var status string
		var anonymizedAt sql.NullTime
		if err := rows.Scan(&o.ID, &o.UserID, &o.Email, &o.ShippingName, &o.ShippingAddress, &o.Phone,
			&status, &o.TotalCents, &o.CreatedAt, &anonymizedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.Status = Status(status)
		if anonymizedAt.Valid {
			t := anonymizedAt.Time
			o.AnonymizedAt = &t
		}
		index[o.ID] = len(orders)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, nil
	}

	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	itemRows, err := s.db.QueryContext(ctx,
		`SELECT order_id, product_id, quantity, price_cents FROM order_items
		 WHERE order_id = ANY($1) ORDER BY order_id, line_no`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var orderID string
		var it LineItem
		if err := itemRows.Scan(&orderID, &it.ProductID, &it.Quantity, &it.PriceCents); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		if i, ok := index[orderID]; ok {
			orders[i].Items = append(orders[i].Items, it)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

