// Package deadletter records messages that exhausted publish or consume retries.
package deadletter

import (
	"context"
	"sync"
	"time"
)

// Stage says which side of the bus gave up on a message.
type Stage string

const (
	StagePublish Stage = "publish"
	StageConsume Stage = "consume"
)

// Record is a message that could not be delivered or applied.
type Record struct {
	Stage    Stage     `json:"stage"`
	Topic    string    `json:"topic"`
	Key      string    `json:"key"`
	Payload  []byte    `json:"payload"`
	Reason   string    `json:"reason"`
	Attempts int       `json:"attempts"`
	FailedAt time.Time `json:"failed_at"`
}

// Sink stores dead-letter records durably.
type Sink interface {
	Record(ctx context.Context, rec Record) error
}

// MemorySink keeps records in process memory. It backs tests and services run without a database.
type MemorySink struct {
	mu      sync.Mutex
	records []Record
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Record(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// Records returns a copy of everything recorded so far.
func (s *MemorySink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Fanout writes every record to all sinks. A record counts as stored when at least one
// sink accepted it; otherwise the first error is returned.
type Fanout []Sink

func (f Fanout) Record(ctx context.Context, rec Record) error {
	var firstErr error
	stored := false
	for _, s := range f {
		if err := s.Record(ctx, rec); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		stored = true
	}
	if !stored {
		return firstErr
	}
	return nil
}
