package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/ADovhal/TeIpsum-Store-sub001/internal/events"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/platform/postgres"
)

// Delta is a signed change to one product's quantity.
type Delta struct {
	ProductID string
	Amount    int
}

// Adjustment is an applied Delta with the quantity before and after it.
type Adjustment struct {
	ProductID string
	Previous  int
	Current   int
}

// Depleted reports a transition into zero.
func (a Adjustment) Depleted() bool {
	return a.Previous != 0 && a.Current == 0
}

// StockStore persists stock records and the order events already applied to them.
type StockStore interface {
	// Provision creates a zero-quantity record if none exists and reports whether it did.
	Provision(ctx context.Context, productID string) (bool, error)
	// Remove deletes the record if present and reports whether one existed.
	Remove(ctx context.Context, productID string) (bool, error)
	Quantity(ctx context.Context, productID string) (int, bool, error)
	// ApplyOrder records (orderID, eventType) and applies deltas in one atomic step.
	// Deltas for unprovisioned products are skipped. applied is false when the pair was
	// already recorded, in which case nothing changes.
	ApplyOrder(ctx context.Context, orderID string, eventType events.EventType, deltas []Delta) (adjustments []Adjustment, applied bool, err error)
}

type appliedKey struct {
	orderID   string
	eventType events.EventType
}

// MemoryStore keeps stock in maps under one mutex.
type MemoryStore struct {
	mu      sync.Mutex
	stock   map[string]int
	applied map[appliedKey]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		stock:   make(map[string]int),
		applied: make(map[appliedKey]struct{}),
	}
}

func (s *MemoryStore) Provision(_ context.Context, productID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stock[productID]; ok {
		return false, nil
	}
	s.stock[productID] = 0
	return true, nil
}

func (s *MemoryStore) Remove(_ context.Context, productID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.stock[productID]
	delete(s.stock, productID)
	return ok, nil
}

func (s *MemoryStore) Quantity(_ context.Context, productID string) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.stock[productID]
	return q, ok, nil
}

func (s *MemoryStore) ApplyOrder(_ context.Context, orderID string, eventType events.EventType, deltas []Delta) ([]Adjustment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := appliedKey{orderID: orderID, eventType: eventType}
	if _, ok := s.applied[key]; ok {
		return nil, false, nil
	}
	s.applied[key] = struct{}{}

	var adjustments []Adjustment
	for _, d := range deltas {
		prev, ok := s.stock[d.ProductID]
		if !ok {
			continue
		}
		s.stock[d.ProductID] = prev + d.Amount
		adjustments = append(adjustments, Adjustment{ProductID: d.ProductID, Previous: prev, Current: prev + d.Amount})
	}
	return adjustments, true, nil
}

// PostgresStore keeps stock in stock_records and the dedup keys in applied_order_events.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Provision(ctx context.Context, productID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO stock_records (product_id, quantity) VALUES ($1, 0) ON CONFLICT (product_id) DO NOTHING`,
		productID,
	)
	if err != nil {
		return false, fmt.Errorf("provision stock %s: %w", productID, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *PostgresStore) Remove(ctx context.Context, productID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM stock_records WHERE product_id = $1`, productID)
	if err != nil {
		return false, fmt.Errorf("remove stock %s: %w", productID, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *PostgresStore) Quantity(ctx context.Context, productID string) (int, bool, error) {
	var q int
	err := s.db.QueryRowContext(ctx, `SELECT quantity FROM stock_records WHERE product_id = $1`, productID).Scan(&q)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("select stock %s: %w", productID, err)
	}
	return q, true, nil
}

func (s *PostgresStore) ApplyOrder(ctx context.Context, orderID string, eventType events.EventType, deltas []Delta) ([]Adjustment, bool, error) {
	var adjustments []Adjustment
	applied := false

	err := postgres.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO applied_order_events (order_id, event_type) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			orderID, string(eventType),
		)
		if err != nil {
			return fmt.Errorf("record applied event: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil || n == 0 {
			return err
		}
		applied = true

		for _, d := range deltas {
			var current int
			err := tx.QueryRowContext(ctx,
				`UPDATE stock_records SET quantity = quantity + $2, updated_at = NOW()
				 WHERE product_id = $1 RETURNING quantity`,
				d.ProductID, d.Amount,
			).Scan(&current)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return fmt.Errorf("adjust stock %s: %w", d.ProductID, err)
			}
			adjustments = append(adjustments, Adjustment{ProductID: d.ProductID, Previous: current - d.Amount, Current: current})
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return adjustments, applied, nil
}
