// Package consumer runs the per-topic worker loops that feed bus messages to handlers.
package consumer

import (
	"context"
	"errors"
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
	"golang.org/x/sync/errgroup"
)

const commitTimeout = 10 * time.Second

// Handler applies one event. Returned errors are retried unless the classifier says otherwise.
type Handler interface {
	Handle(ctx context.Context, env events.Envelope) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, env events.Envelope) error

func (f HandlerFunc) Handle(ctx context.Context, env events.Envelope) error {
	return f(ctx, env)
}

// Subscription binds a handler to a topic.
type Subscription struct {
	Topic   string
	Handler Handler
}

// Runner starts the configured number of workers for every subscription. Workers of one topic
// share a consumer group, so a partition (and therefore a key) is only ever read by one of them.
type Runner struct {
	readers kafka.ReaderFactory
	retrier *retry.Retrier
	sink    deadletter.Sink
	logger  observability.Logger
	tracer  observability.Tracer
	metrics *observability.Metrics
	workers int
}

// Option configures a Runner.
type Option func(*Runner)

func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

func WithTracer(tracer observability.Tracer) Option {
	return func(r *Runner) { r.tracer = tracer }
}

func WithMetrics(metrics *observability.Metrics) Option {
	return func(r *Runner) { r.metrics = metrics }
}

// NewRunner creates a Runner. The retrier carries the consume-side redelivery policy.
func NewRunner(readers kafka.ReaderFactory, retrier *retry.Retrier, sink deadletter.Sink, logger observability.Logger, opts ...Option) *Runner {
	r := &Runner{
		readers: readers,
		retrier: retrier,
		sink:    sink,
		logger:  logger,
		tracer:  otel.Tracer("consumer"),
		metrics: observability.NoopMetrics(),
		workers: 1,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run blocks until ctx is done. Every reader is opened before any worker starts.
func (r *Runner) Run(ctx context.Context, subs ...Subscription) error {
	type worker struct {
		sub    Subscription
		reader kafka.Consumer
		index  int
	}

	var workers []worker
	for _, sub := range subs {
		for i := 0; i < r.workers; i++ {
			reader, err := r.readers(sub.Topic)
			if err != nil {
				r.logger.Error("❌ Failed to open Kafka reader", zap.Error(err), zap.String("topic", sub.Topic))
				for _, w := range workers {
					_ = w.reader.Close()
				}
				return err
			}
			workers = append(workers, worker{sub: sub, reader: reader, index: i})
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		g.Go(func() error {
			defer func() {
				if err := w.reader.Close(); err != nil {
					r.logger.Warn("Error closing Kafka reader", zap.Error(err), zap.String("topic", w.sub.Topic))
				}
			}()
			r.consume(ctx, w.sub, w.reader, w.index)
			return nil
		})
	}
	return g.Wait()
}

func (r *Runner) consume(ctx context.Context, sub Subscription, reader kafka.Consumer, worker int) {
	logger := r.logger.With(zap.String("topic", sub.Topic), zap.Int("worker", worker))
	logger.Info("Kafka consumer started. Waiting for messages...")

	for {
		var msg kafkago.Message
		if err := reader.FetchMessage(ctx, &msg); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				logger.Info("Context done, exiting Kafka read loop.", zap.Error(err))
				break
			}
			logger.Error("❌ Error reading from Kafka", zap.Error(err))
			continue
		}

		if !r.process(ctx, sub, msg, logger) {
			logger.Warn("Shutdown interrupted message processing, leaving it for redelivery",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
			)
			break
		}
		r.commit(ctx, reader, msg, logger)
	}

	logger.Info("Consumer worker finished. Shutting down...")
}

// commit acknowledges msg once it was applied or dead-lettered. The commit outlives shutdown
// so a finished message is not redelivered.
func (r *Runner) commit(ctx context.Context, reader kafka.Consumer, msg kafkago.Message, logger *zap.Logger) {
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()

	if err := reader.CommitMessages(commitCtx, msg); err != nil {
		logger.Error("❌ Failed to commit Kafka offset, message will be redelivered",
			zap.Error(err),
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
		)
	}
}

// process applies one message and reports whether it is finished: applied or dead-lettered.
// It returns false only when shutdown cut the retries short, so the message stays uncommitted.
func (r *Runner) process(ctx context.Context, sub Subscription, msg kafkago.Message, logger *zap.Logger) bool {
	msgCtx := kafka.ExtractTraceContext(ctx, msg.Headers)
	msgCtx, span := r.tracer.Start(msgCtx, "consume "+msg.Topic, trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	span.SetAttributes(
		attribute.String("messaging.destination.name", msg.Topic),
		attribute.String("messaging.kafka.message.key", string(msg.Key)),
		attribute.Int("messaging.kafka.partition", msg.Partition),
		attribute.Int64("messaging.kafka.offset", msg.Offset),
	)

	logger.Debug("📨 Raw Kafka message received",
		zap.ByteString("key", msg.Key),
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
	)

	env, err := events.Parse(msg.Value)
	if err != nil {
		logger.Error("❌ Invalid event envelope", zap.Error(err), zap.ByteString("raw_value", msg.Value))
		r.deadLetter(msgCtx, span, msg, 1, err)
		return true
	}
	span.SetAttributes(
		attribute.String("event.id", env.EventID),
		attribute.String("event.type", string(env.EventType)),
		attribute.String("event.correlation_id", env.CorrelationID),
	)

	// A message is applied as a whole; shutdown only stops further retries.
	apply := func(ctx context.Context) error {
		return sub.Handler.Handle(context.WithoutCancel(ctx), env)
	}
	notify := func(err error, next time.Duration) {
		logger.Warn("⚠️ Handler failed, retrying",
			zap.Error(err),
			zap.String("event_id", env.EventID),
			zap.String("event_type", string(env.EventType)),
			zap.Duration("retry_in", next),
		)
	}

	attempts, err := r.retrier.Do(msgCtx, apply, notify)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "interrupted by shutdown")
		return false
	}
	if err != nil {
		logger.Error("❌ Failed to apply event",
			zap.Error(err),
			zap.String("event_id", env.EventID),
			zap.String("event_type", string(env.EventType)),
			zap.Int("attempts", attempts),
		)
		r.deadLetter(msgCtx, span, msg, attempts, err)
		return true
	}

	r.metrics.Consumed.Add(msgCtx, 1, metric.WithAttributes(
		attribute.String("topic", msg.Topic),
		attribute.String("outcome", "applied"),
	))
	span.SetStatus(codes.Ok, "event applied")
	return true
}

func (r *Runner) deadLetter(ctx context.Context, span trace.Span, msg kafkago.Message, attempts int, cause error) {
	rec := deadletter.Record{
		Stage:    deadletter.StageConsume,
		Topic:    msg.Topic,
		Key:      string(msg.Key),
		Payload:  msg.Value,
		Reason:   cause.Error(),
		Attempts: attempts,
		FailedAt: time.Now().UTC(),
	}
	if err := r.sink.Record(context.WithoutCancel(ctx), rec); err != nil {
		r.logger.Error("❌ Failed to record dead letter", zap.Error(err), zap.String("topic", msg.Topic))
	}

	r.metrics.Consumed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("topic", msg.Topic),
		attribute.String("outcome", "dead_lettered"),
	))
	r.metrics.DeadLettered.Add(ctx, 1, metric.WithAttributes(
		attribute.String("topic", msg.Topic),
		attribute.String("stage", string(deadletter.StageConsume)),
	))

	span.RecordError(cause)
	span.SetStatus(codes.Error, "event dead-lettered")
}
