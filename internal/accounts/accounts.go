// Package accounts stores the user-service's profiles, including the deletion-pending marker
// set while an account deletion is in flight.
package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrExists = errors.New("profile already exists")

type Profile struct {
	UserID          string    `json:"user_id"`
	Email           string    `json:"email"`
	Name            string    `json:"name"`
	DeletionPending bool      `json:"deletion_pending"`
	CreatedAt       time.Time `json:"created_at"`
}

type Store interface {
	Create(ctx context.Context, p Profile) error
	Get(ctx context.Context, userID string) (Profile, bool, error)
	// MarkDeletionPending reports whether the profile exists.
	MarkDeletionPending(ctx context.Context, userID string) (bool, error)
	// Delete removes the profile if present and reports whether one existed.
	Delete(ctx context.Context, userID string) (bool, error)
}

type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[string]Profile)}
}

func (s *MemoryStore) Create(_ context.Context, p Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.UserID]; ok {
		return fmt.Errorf("%w: %s", ErrExists, p.UserID)
	}
	s.profiles[p.UserID] = p
	return nil
}

func (s *MemoryStore) Get(_ context.Context, userID string) (Profile, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	return p, ok, nil
}

func (s *MemoryStore) MarkDeletionPending(_ context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return false, nil
	}
	p.DeletionPending = true
	s.profiles[userID] = p
	return true, nil
}

func (s *MemoryStore) Delete(_ context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.profiles[userID]
	delete(s.profiles, userID)
	return ok, nil
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, p Profile) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO user_profiles (user_id, email, name, deletion_pending, created_at)
		 VALUES ($1, $2, $3, $4, $5) ON CONFLICT DO NOTHING`,
		p.UserID, p.Email, p.Name, p.DeletionPending, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert profile %s: %w", p.UserID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrExists, p.UserID)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, userID string) (Profile, bool, error) {
	var p Profile
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, email, name, deletion_pending, created_at FROM user_profiles WHERE user_id = $1`, userID,
	).Scan(&p.UserID, &p.Email, &p.Name, &p.DeletionPending, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, false, nil
	}
	if err != nil {
		return Profile{}, false, fmt.Errorf("select profile %s: %w", userID, err)
	}
	return p, true, nil
}

func (s *PostgresStore) MarkDeletionPending(ctx context.Context, userID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE user_profiles SET deletion_pending = TRUE WHERE user_id = $1`, userID)
	if err != nil {
		return false, fmt.Errorf("mark profile %s: %w", userID, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *PostgresStore) Delete(ctx context.Context, userID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM user_profiles WHERE user_id = $1`, userID)
	if err != nil {
		return false, fmt.Errorf("delete profile %s: %w", userID, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
