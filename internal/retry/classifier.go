package retry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ADovhal/TeIpsum-Store-sub001/internal/events"

	"github.com/segmentio/kafka-go"
)

// ErrPermanent marks an error that must not be retried.
var ErrPermanent = errors.New("permanent failure")

// Permanent wraps err so every Classifier treats it as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// Classifier separates transient failures from ones that will fail again on every attempt.
// The built-in rules cover malformed payloads; further rules are configuration.
type Classifier struct {
	errs     []error
	messages []string
}

// ClassifierOption extends the non-retryable set.
type ClassifierOption func(*Classifier)

// NonRetryable adds sentinel errors matched with errors.Is.
func NonRetryable(errs ...error) ClassifierOption {
	return func(c *Classifier) {
		c.errs = append(c.errs, errs...)
	}
}

// NonRetryableMessages adds substrings matched against the error text, e.g. kafka error titles.
func NonRetryableMessages(messages ...string) ClassifierOption {
	return func(c *Classifier) {
		for _, m := range messages {
			if m = strings.TrimSpace(m); m != "" {
				c.messages = append(c.messages, m)
			}
		}
	}
}

// NewClassifier creates a Classifier with the built-in rules plus opts.
func NewClassifier(opts ...ClassifierOption) *Classifier {
	c := &Classifier{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Retryable reports whether err is worth another attempt.
func (c *Classifier) Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermanent) || errors.Is(err, events.ErrMalformed) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return false
	}

	var kafkaErr kafka.Error
	if errors.As(err, &kafkaErr) && !kafkaErr.Temporary() {
		return false
	}

	for _, target := range c.errs {
		if errors.Is(err, target) {
			return false
		}
	}
	msg := err.Error()
	for _, m := range c.messages {
		if strings.Contains(msg, m) {
			return false
		}
	}
	return true
}
