package accounts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Create(ctx, Profile{UserID: "u1", Email: "u1@example.com"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Create(ctx, Profile{UserID: "u1"}); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if ok, _ := s.MarkDeletionPending(ctx, "u1"); !ok {
		t.Fatal("expected profile to be marked")
	}
	if p, _, _ := s.Get(ctx, "u1"); !p.DeletionPending {
		t.Fatalf("expected deletion pending, got %+v", p)
	}
	if ok, _ := s.Delete(ctx, "u1"); !ok {
		t.Fatal("expected delete to find the profile")
	}
	if ok, _ := s.Delete(ctx, "u1"); ok {
		t.Fatal("expected second delete to be a no-op")
	}
}

func TestPostgresStore_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM user_profiles WHERE user_id").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "email", "name", "deletion_pending", "created_at"}).
			AddRow("u1", "u1@example.com", "Ada", true, now))
	mock.ExpectExec("DELETE FROM user_profiles").
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	s := NewPostgresStore(db)
	p, found, err := s.Get(context.Background(), "u1")
	if err != nil || !found || !p.DeletionPending || p.Email != "u1@example.com" {
		t.Fatalf("unexpected profile %+v found=%v err=%v", p, found, err)
	}
	if ok, err := s.Delete(context.Background(), "u1"); err != nil || !ok {
		t.Fatalf("expected delete, got %v %v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sqlmock expectations: %v", err)
	}
}
