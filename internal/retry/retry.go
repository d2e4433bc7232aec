// Package retry runs operations under a bounded exponential backoff and decides which
// failures are worth another attempt.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds how often and how patiently an operation is retried.
type Policy struct {
	// MaxAttempts counts the first attempt.
	MaxAttempts     int
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration
}

// PublishPolicy is the send-side policy: 3 attempts, backoff 1, 2, 4... units capped at 10 units.
func PublishPolicy(unit time.Duration) Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: unit,
		Multiplier:      2,
		MaxInterval:     10 * unit,
	}
}

// ConsumePolicy is the redelivery policy applied to a failing handler before dead-lettering.
func ConsumePolicy(attempts int, initial time.Duration) Policy {
	return Policy{
		MaxAttempts:     attempts,
		InitialInterval: initial,
		Multiplier:      2,
		MaxInterval:     10 * initial,
	}
}

func (p Policy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.Multiplier = p.Multiplier
	b.MaxInterval = p.MaxInterval
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	retries := 0
	if p.MaxAttempts > 1 {
		retries = p.MaxAttempts - 1
	}
	return backoff.WithMaxRetries(b, uint64(retries))
}

// Retrier executes operations under a Policy.
type Retrier struct {
	policy     Policy
	classifier *Classifier
	newTimer   func() backoff.Timer
}

// RetrierOption configures a Retrier.
type RetrierOption func(*Retrier)

// WithTimer replaces the wall-clock timer used between attempts.
func WithTimer(newTimer func() backoff.Timer) RetrierOption {
	return func(r *Retrier) {
		r.newTimer = newTimer
	}
}

// NewRetrier creates a Retrier. A nil classifier retries every error except permanent ones.
func NewRetrier(policy Policy, classifier *Classifier, opts ...RetrierOption) *Retrier {
	if classifier == nil {
		classifier = NewClassifier()
	}
	r := &Retrier{policy: policy, classifier: classifier}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the policy the retrier runs under.
func (r *Retrier) Policy() Policy { return r.policy }

// Do runs op until it succeeds, fails with a non-retryable error, or attempts run out.
// notify, when set, sees every failure that will be retried with the delay before the next attempt.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error, notify func(err error, next time.Duration)) (attempts int, err error) {
	operation := func() error {
		attempts++
		opErr := op(ctx)
		if opErr != nil && !r.classifier.Retryable(opErr) {
			return backoff.Permanent(opErr)
		}
		return opErr
	}

	var timer backoff.Timer
	if r.newTimer != nil {
		timer = r.newTimer()
	}

	err = backoff.RetryNotifyWithTimer(operation, backoff.WithContext(r.policy.backOff(), ctx), notify, timer)

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}
	return attempts, err
}
