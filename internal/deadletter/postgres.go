package deadletter

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresSink appends records to the dead_letters table.
type PostgresSink struct {
	db *sql.DB
}

func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) Record(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dead_letters (stage, topic, message_key, payload, reason, attempts, failed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(rec.Stage), rec.Topic, rec.Key, rec.Payload, rec.Reason, rec.Attempts, rec.FailedAt,
	)
	if err != nil {
		return fmt.Errorf("insert dead letter: %w", err)
	}
	return nil
}
