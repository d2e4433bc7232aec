package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ADovhal/TeIpsum-Store-sub001/internal/events"

	"github.com/lib/pq"
)

// Product is the catalog's local copy of a product.
type Product struct {
	ID          string    `json:"product_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Brand       string    `json:"brand"`
	PriceCents  int64     `json:"price_cents"`
	ImageURLs   []string  `json:"image_urls"`
	Available   bool      `json:"available"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// FromSnapshot builds the local record from a lifecycle event snapshot.
func FromSnapshot(s events.ProductSnapshot) Product {
	return Product{
		ID:          s.ProductID,
		Name:        s.Name,
		Description: s.Description,
		Category:    s.Category,
		Brand:       s.Brand,
		PriceCents:  s.PriceCents,
		ImageURLs:   append([]string(nil), s.ImageURLs...),
		Available:   s.Available,
		UpdatedAt:   time.Now().UTC(),
	}
}

// Store is the keyed derived store the projection mutates.
type Store interface {
	Get(ctx context.Context, id string) (Product, bool, error)
	// CreateIfAbsent reports whether a new record was inserted.
	CreateIfAbsent(ctx context.Context, p Product) (bool, error)
	// Replace overwrites an existing record and reports whether one existed.
	Replace(ctx context.Context, p Product) (bool, error)
	// Delete removes the record if present and reports whether one existed.
	Delete(ctx context.Context, id string) (bool, error)
}

// MemoryStore keeps products in a map.
type MemoryStore struct {
	mu       sync.RWMutex
	products map[string]Product
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{products: make(map[string]Product)}
}

func (s *MemoryStore) Get(_ context.Context, id string) (Product, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	return p, ok, nil
}

func (s *MemoryStore) CreateIfAbsent(_ context.Context, p Product) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[p.ID]; ok {
		return false, nil
	}
	s.products[p.ID] = p
	return true, nil
}

func (s *MemoryStore) Replace(_ context.Context, p Product) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[p.ID]; !ok {
		return false, nil
	}
	s.products[p.ID] = p
	return true, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.products[id]
	delete(s.products, id)
	return ok, nil
}

// PostgresStore keeps products in the catalog_products table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Product, bool, error) {
	var p Product
	err := s.db.QueryRowContext(ctx,
		`SELECT product_id, name, description, category, brand, price_cents, image_urls, available, updated_at
		 FROM catalog_products WHERE product_id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.Brand, &p.PriceCents, pq.Array(&p.ImageURLs), &p.Available, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, false, nil
	}
	if err != nil {
		return Product{}, false, fmt.Errorf("select product %s: %w", id, err)
	}
	return p, true, nil
}

func (s *PostgresStore) CreateIfAbsent(ctx context.Context, p Product) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO catalog_products (product_id, name, description, category, brand, price_cents, image_urls, available, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (product_id) DO NOTHING`,
		p.ID, p.Name, p.Description, p.Category, p.Brand, p.PriceCents, pq.Array(p.ImageURLs), p.Available, p.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert product %s: %w", p.ID, err)
	}
	return affected(res)
}

func (s *PostgresStore) Replace(ctx context.Context, p Product) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE catalog_products
		 SET name = $2, description = $3, category = $4, brand = $5, price_cents = $6, image_urls = $7, available = $8, updated_at = $9
		 WHERE product_id = $1`,
		p.ID, p.Name, p.Description, p.Category, p.Brand, p.PriceCents, pq.Array(p.ImageURLs), p.Available, p.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("update product %s: %w", p.ID, err)
	}
	return affected(res)
}

func (s *PostgresStore) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM catalog_products WHERE product_id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete product %s: %w", id, err)
	}
	return affected(res)
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
