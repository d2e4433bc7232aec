package identity

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/ADovhal/TeIpsum-Store-sub001/internal/platform/postgres"
)

// Credential is a user's login record.
type Credential struct {
	UserID       string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Store holds credentials and refresh tokens.
type Store interface {
	// PurgeUser deletes the user's credential and refresh tokens if present.
	PurgeUser(ctx context.Context, userID string) (Purged, error)
}

// Purged counts what PurgeUser removed.
type Purged struct {
	Credential bool
	Tokens     int
}

type MemoryStore struct {
	mu          sync.Mutex
	credentials map[string]Credential
	tokens      map[string]string // token -> user id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		credentials: make(map[string]Credential),
		tokens:      make(map[string]string),
	}
}

func (s *MemoryStore) PutCredential(c Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials[c.UserID] = c
}

func (s *MemoryStore) AddToken(token, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = userID
}

func (s *MemoryStore) HasCredential(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.credentials[userID]
	return ok
}

func (s *MemoryStore) PurgeUser(_ context.Context, userID string) (Purged, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var p Purged
	if _, ok := s.credentials[userID]; ok {
		delete(s.credentials, userID)
		p.Credential = true
	}
	for token, owner := range s.tokens {
		if owner == userID {
			delete(s.tokens, token)
			p.Tokens++
		}
	}
	return p, nil
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) PurgeUser(ctx context.Context, userID string) (Purged, error) {
	var p Purged
	err := postgres.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID)
		if err != nil {
			return fmt.Errorf("delete refresh tokens of %s: %w", userID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		p.Tokens = int(n)

		res, err = tx.ExecContext(ctx, `DELETE FROM credentials WHERE user_id = $1`, userID)
		if err != nil {
			return fmt.Errorf("delete credentials of %s: %w", userID, err)
		}
		n, err = res.RowsAffected()
		if err != nil {
			return err
		}
		p.Credential = n > 0
		return nil
	})
	if err != nil {
		return Purged{}, err
	}
	return p, nil
}
