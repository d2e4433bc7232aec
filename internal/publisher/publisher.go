// Package publisher delivers events to the bus with bounded retry and a dead-letter fallback.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ADovhal/TeIpsum-Store-sub001/internal/deadletter"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/events"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/platform/kafka"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/platform/observability"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/retry"

	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrDeliveryFailed is matched by every *DeliveryError.
var ErrDeliveryFailed = errors.New("event delivery failed")

// DeliveryError reports an event that was dead-lettered instead of reaching the bus.
// Derived state in other services may be inconsistent until it is reconciled.
type DeliveryError struct {
	Topic    string
	Key      string
	EventID  string
	Attempts int
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s to %s (key %s) failed after %d attempt(s): %v",
		e.EventID, e.Topic, e.Key, e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func (e *DeliveryError) Is(target error) bool { return target == ErrDeliveryFailed }

// Message is an envelope addressed to a topic and partition key.
type Message struct {
	Topic    string
	Key      string
	Envelope events.Envelope
}

// NewMessage addresses env to the topic of its event type.
func NewMessage(key string, env events.Envelope) Message {
	return Message{Topic: env.EventType.Topic(), Key: key, Envelope: env}
}

// Publisher is the Reliable Publisher.
type Publisher struct {
	producer kafka.Producer
	retrier  *retry.Retrier
	sink     deadletter.Sink
	logger   observability.Logger
	tracer   observability.Tracer
	metrics  *observability.Metrics

	inflight sync.WaitGroup
}

// Option configures a Publisher.
type Option func(*Publisher)

func WithTracer(tracer observability.Tracer) Option {
	return func(p *Publisher) { p.tracer = tracer }
}

func WithMetrics(metrics *observability.Metrics) Option {
	return func(p *Publisher) { p.metrics = metrics }
}

// New creates a Publisher. The retrier carries the send-side policy and classifier.
func New(producer kafka.Producer, retrier *retry.Retrier, sink deadletter.Sink, logger observability.Logger, opts ...Option) *Publisher {
	p := &Publisher{
		producer: producer,
		retrier:  retrier,
		sink:     sink,
		logger:   logger,
		tracer:   otel.Tracer("publisher"),
		metrics:  observability.NoopMetrics(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish delivers env to topic and blocks until the bus acknowledges it or the policy gives up.
// Exhausted or non-retryable sends are dead-lettered once and returned as *DeliveryError.
func (p *Publisher) Publish(ctx context.Context, topic, key string, env events.Envelope) error {
	ctx, span := p.tracer.Start(ctx, "publish "+topic, trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()

	span.SetAttributes(
		attribute.String("messaging.destination.name", topic),
		attribute.String("messaging.kafka.message.key", key),
		attribute.String("event.id", env.EventID),
		attribute.String("event.type", string(env.EventType)),
	)
	topicAttr := metric.WithAttributes(attribute.String("topic", topic))

	value, err := json.Marshal(env)
	if err != nil {
		err = fmt.Errorf("%w: encode envelope: %v", events.ErrMalformed, err)
		return p.deadLetter(ctx, span, topic, key, env, env.Data, 0, err)
	}

	msg := kafkago.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Headers: []kafkago.Header{
			{Key: events.HeaderEventID, Value: []byte(env.EventID)},
			{Key: events.HeaderEventType, Value: []byte(env.EventType)},
			{Key: events.HeaderCorrelationID, Value: []byte(env.CorrelationID)},
		},
	}

	send := func(ctx context.Context) error {
		p.metrics.PublishAttempts.Add(ctx, 1, topicAttr)
		return p.producer.WriteMessage(ctx, msg)
	}
	notify := func(err error, next time.Duration) {
		p.logger.Warn("⚠️ Publish failed, retrying",
			zap.Error(err),
			zap.String("topic", topic),
			zap.String("key", key),
			zap.Duration("retry_in", next),
		)
	}

	attempts, err := p.retrier.Do(ctx, send, notify)
	if err != nil {
		return p.deadLetter(ctx, span, topic, key, env, value, attempts, err)
	}

	p.metrics.Published.Add(ctx, 1, topicAttr)
	span.SetAttributes(attribute.Int("publish.attempts", attempts))
	span.SetStatus(codes.Ok, "event published")
	p.logger.Info("📤 Sent event",
		zap.String("topic", topic),
		zap.String("key", key),
		zap.String("event_type", string(env.EventType)),
		zap.String("event_id", env.EventID),
		zap.Int("attempts", attempts),
	)
	return nil
}

func (p *Publisher) deadLetter(ctx context.Context, span trace.Span, topic, key string, env events.Envelope, payload []byte, attempts int, cause error) error {
	rec := deadletter.Record{
		Stage:    deadletter.StagePublish,
		Topic:    topic,
		Key:      key,
		Payload:  payload,
		Reason:   cause.Error(),
		Attempts: attempts,
		FailedAt: time.Now().UTC(),
	}

	// The caller may already be cancelled; the record must still be written.
	if err := p.sink.Record(context.WithoutCancel(ctx), rec); err != nil {
		p.logger.Error("❌ Failed to record dead letter",
			zap.Error(err),
			zap.String("topic", topic),
			zap.String("key", key),
		)
	}
	p.metrics.DeadLettered.Add(ctx, 1, metric.WithAttributes(
		attribute.String("topic", topic),
		attribute.String("stage", string(deadletter.StagePublish)),
	))

	span.RecordError(cause)
	span.SetStatus(codes.Error, "event dead-lettered")
	p.logger.Error("❌ Event dead-lettered, derived state may be inconsistent",
		zap.Error(cause),
		zap.String("topic", topic),
		zap.String("key", key),
		zap.String("event_id", env.EventID),
		zap.Int("attempts", attempts),
	)

	return &DeliveryError{Topic: topic, Key: key, EventID: env.EventID, Attempts: attempts, Err: cause}
}

// PublishAsync delivers msgs in order on a background goroutine that outlives the caller's
// cancellation. The returned channel yields the joined delivery errors once, then closes.
func (p *Publisher) PublishAsync(ctx context.Context, msgs ...Message) <-chan error {
	done := make(chan error, 1)
	ctx = context.WithoutCancel(ctx)

	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		defer close(done)

		var errs []error
		for _, m := range msgs {
			if err := p.Publish(ctx, m.Topic, m.Key, m.Envelope); err != nil {
				errs = append(errs, err)
			}
		}
		done <- errors.Join(errs...)
	}()
	return done
}

// AfterCommit runs the local commit and, only if it succeeds, hands msgs to PublishAsync.
func (p *Publisher) AfterCommit(ctx context.Context, commit func(ctx context.Context) error, msgs ...Message) (<-chan error, error) {
	if err := commit(ctx); err != nil {
		return nil, err
	}
	return p.PublishAsync(ctx, msgs...), nil
}

// WatchDelivery blocks until done yields and logs a warning when the delivery failed. The
// local change that triggered it stands; the failed event is already in the dead-letter sink.
// Callers run it on its own goroutine.
func WatchDelivery(done <-chan error, logger observability.Logger, fields ...zap.Field) {
	if done == nil {
		return
	}
	if err := <-done; err != nil {
		logger.Warn("⚠️ Post-commit event not delivered, reconcile from the dead-letter sink",
			append(fields, zap.Error(err))...,
		)
	}
}

// Wait blocks until every asynchronous delivery has finished.
func (p *Publisher) Wait() {
	p.inflight.Wait()
}
