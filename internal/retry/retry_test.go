package retry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ADovhal/TeIpsum-Store-sub001/internal/events"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
)

// instantTimer fires immediately and remembers every requested delay.
type instantTimer struct {
	delays []time.Duration
	c      chan time.Time
}

func newInstantTimer() *instantTimer {
	return &instantTimer{c: make(chan time.Time, 1)}
}

func (t *instantTimer) Start(d time.Duration) {
	t.delays = append(t.delays, d)
	t.c <- time.Now()
}
func (t *instantTimer) Stop()               {}
func (t *instantTimer) C() <-chan time.Time { return t.c }

func TestRetrier_SucceedsAfterTransientFailures(t *testing.T) {
	timer := newInstantTimer()
	r := NewRetrier(PublishPolicy(time.Second), nil, WithTimer(func() backoff.Timer { return timer }))

	calls := 0
	attempts, err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("broker unavailable")
		}
		return nil
	}, nil)

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(timer.delays) != len(want) {
		t.Fatalf("expected delays %v, got %v", want, timer.delays)
	}
	for i := range want {
		if timer.delays[i] < want[i] {
			t.Errorf("delay %d: expected >= %v, got %v", i, want[i], timer.delays[i])
		}
	}
}

func TestRetrier_ExhaustsAttempts(t *testing.T) {
	timer := newInstantTimer()
	r := NewRetrier(PublishPolicy(time.Millisecond), nil, WithTimer(func() backoff.Timer { return timer }))

	sendErr := errors.New("timeout")
	attempts, err := r.Do(context.Background(), func(context.Context) error { return sendErr }, nil)

	if !errors.Is(err, sendErr) {
		t.Fatalf("expected last error, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetrier_DoesNotRetryPermanentErrors(t *testing.T) {
	timer := newInstantTimer()
	r := NewRetrier(PublishPolicy(time.Millisecond), nil, WithTimer(func() backoff.Timer { return timer }))

	attempts, err := r.Do(context.Background(), func(context.Context) error {
		return fmt.Errorf("encode: %w", events.ErrMalformed)
	}, nil)

	if !errors.Is(err, events.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected a single attempt, got %d", attempts)
	}
	if len(timer.delays) != 0 {
		t.Fatalf("expected no backoff, got %v", timer.delays)
	}
}

func TestPublishPolicy_CapsAtTenUnits(t *testing.T) {
	p := PublishPolicy(time.Second)
	p.MaxAttempts = 8
	b := p.backOff()

	var last time.Duration
	for i := 0; i < 7; i++ {
		last = b.NextBackOff()
		if last > 10*time.Second {
			t.Fatalf("backoff %d exceeded cap: %v", i, last)
		}
	}
	if last != 10*time.Second {
		t.Fatalf("expected backoff to settle at the cap, got %v", last)
	}
	if next := b.NextBackOff(); next != backoff.Stop {
		t.Fatalf("expected Stop after max attempts, got %v", next)
	}
}

func TestClassifier(t *testing.T) {
	errPoison := errors.New("poison")
	c := NewClassifier(NonRetryable(errPoison), NonRetryableMessages("Invalid Topic"))

	syntaxErr := &json.SyntaxError{Offset: 1}

	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"transport", errors.New("connection refused"), true},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"permanent", Permanent(errors.New("bad")), false},
		{"malformed", fmt.Errorf("x: %w", events.ErrMalformed), false},
		{"json syntax", fmt.Errorf("decode: %w", syntaxErr), false},
		{"configured sentinel", fmt.Errorf("wrap: %w", errPoison), false},
		{"configured message", errors.New("kafka: Invalid Topic: bad name"), false},
		{"kafka temporary", kafka.LeaderNotAvailable, true},
		{"kafka fatal", kafka.MessageSizeTooLarge, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Retryable(tt.err); got != tt.retryable {
				t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.retryable)
			}
		})
	}
}
