// Package saga coordinates account deletion across the user, order and auth services.
//
// The info phase asks the order service for a summary of the user's orders and waits a
// bounded time for the correlated answer. The commit phase marks the profile, asks the
// order service to anonymize, and finishes the deletion once anonymization is announced.
package saga

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ADovhal/TeIpsum-Store-sub001/internal/accounts"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/config"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/correlation"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/events"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/platform/observability"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/publisher"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var (
	// ErrInfoUnknown means the order summary is not known yet; the caller should retry.
	ErrInfoUnknown  = errors.New("order information unknown, please retry")
	ErrUserNotFound = errors.New("user not found")
)

// Publisher is the subset of the reliable publisher the coordinator needs.
type Publisher interface {
	PublishAsync(ctx context.Context, msgs ...publisher.Message) <-chan error
	AfterCommit(ctx context.Context, commit func(ctx context.Context) error, msgs ...publisher.Message) (<-chan error, error)
}

// Coordinator drives the deletion saga from the user service.
type Coordinator struct {
	profiles  accounts.Store
	cache     *correlation.Cache[Summary]
	publisher Publisher
	timeout   time.Duration
	logger    observability.Logger
	tracer    observability.Tracer
	metrics   *observability.Metrics

	mu      sync.Mutex
	waiters map[string]chan Summary
}

// Option configures a Coordinator.
type Option func(*Coordinator)

func WithMetrics(metrics *observability.Metrics) Option {
	return func(c *Coordinator) { c.metrics = metrics }
}

func WithTracer(tracer observability.Tracer) Option {
	return func(c *Coordinator) { c.tracer = tracer }
}

// NewCoordinator creates a Coordinator. timeout bounds how long RequestInfo waits for an answer.
func NewCoordinator(profiles accounts.Store, cache *correlation.Cache[Summary], pub Publisher, timeout time.Duration, logger observability.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		profiles:  profiles,
		cache:     cache,
		publisher: pub,
		timeout:   timeout,
		logger:    logger,
		tracer:    otel.Tracer("saga"),
		metrics:   observability.NoopMetrics(),
		waiters:   make(map[string]chan Summary),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Handle dispatches order-info-response and user-orders-anonymized events.
func (c *Coordinator) Handle(ctx context.Context, env events.Envelope) error {
	switch env.EventType {
	case events.OrderInfoResponded:
		return c.HandleInfoResponse(ctx, env)
	case events.UserOrdersAnonymized:
		return c.HandleOrdersAnonymized(ctx, env)
	default:
		c.logger.Debug("Ignoring event", zap.String("event_type", string(env.EventType)))
		return nil
	}
}

// Lookup returns the cached summary without asking anyone.
func (c *Coordinator) Lookup(userID string) InfoResult {
	return fromFact(c.cache.Get(userID))
}

// RequestInfo runs the info phase. It never fails on a missing answer: after the timeout it
// returns the last known summary tagged TimedOut.
func (c *Coordinator) RequestInfo(ctx context.Context, userID, email, requestedBy string) (InfoResult, error) {
	ctx, span := c.tracer.Start(ctx, "saga.request_info")
	defer span.End()

	correlationID := uuid.NewString()
	span.SetAttributes(attribute.String("user.id", userID), attribute.String("correlation.id", correlationID))

	env, err := events.New(events.OrderInfoRequested, config.UserService,
		events.OrderInfoRequest{UserID: userID, Email: email, RequestedBy: requestedBy},
		events.WithCorrelationID(correlationID),
	)
	if err != nil {
		return InfoResult{}, err
	}

	answer := c.await(correlationID)
	defer c.forget(correlationID)

	// The wait is bounded from here; delivery retries run in the background.
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	delivery := c.publisher.PublishAsync(ctx, publisher.NewMessage(userID, env))
	c.logger.Info("📤 Requesting order info", zap.String("user_id", userID), zap.String("correlation_id", correlationID))

	for {
		select {
		case s := <-answer:
			now := time.Now().UTC()
			span.SetStatus(codes.Ok, "order info received")
			return InfoResult{Status: StatusKnown, Summary: s, UpdatedAt: &now}, nil
		case err := <-delivery:
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "info request not delivered")
				return c.timedOut(userID), err
			}
			delivery = nil
		case <-timer.C:
			c.metrics.InfoTimeouts.Add(ctx, 1)
			c.logger.Warn("⏱️ Order info request timed out",
				zap.String("user_id", userID),
				zap.String("correlation_id", correlationID),
				zap.Duration("timeout", c.timeout),
			)
			span.SetAttributes(attribute.Bool("saga.timed_out", true))
			return c.timedOut(userID), nil
		case <-ctx.Done():
			return c.timedOut(userID), ctx.Err()
		}
	}
}

func (c *Coordinator) timedOut(userID string) InfoResult {
	r := c.Lookup(userID)
	r.Status = StatusTimedOut
	return r
}

func (c *Coordinator) await(correlationID string) <-chan Summary {
	ch := make(chan Summary, 1)
	c.mu.Lock()
	c.waiters[correlationID] = ch
	c.mu.Unlock()
	return ch
}

func (c *Coordinator) forget(correlationID string) {
	c.mu.Lock()
	delete(c.waiters, correlationID)
	c.mu.Unlock()
}

// HandleInfoResponse caches the summary and wakes the matching waiter, if any.
// Only the first response for a correlation id reaches the waiter.
func (c *Coordinator) HandleInfoResponse(_ context.Context, env events.Envelope) error {
	var resp events.OrderInfoResponse
	if err := env.Decode(&resp); err != nil {
		return err
	}
	summary := summaryFrom(resp)
	c.cache.Put(resp.UserID, summary)

	c.mu.Lock()
	ch, waiting := c.waiters[env.CorrelationID]
	delete(c.waiters, env.CorrelationID)
	c.mu.Unlock()

	if waiting {
		ch <- summary
	}

	c.logger.Info("📨 Order info received",
		zap.String("user_id", resp.UserID),
		zap.String("correlation_id", env.CorrelationID),
		zap.Int("order_count", resp.OrderCount),
		zap.Bool("has_active_orders", resp.HasActiveOrders),
		zap.Bool("waiter", waiting),
	)
	return nil
}

// ConfirmDeletion runs the commit phase. It needs a known order summary and returns
// ErrInfoUnknown otherwise. Users without orders are removed straight away.
func (c *Coordinator) ConfirmDeletion(ctx context.Context, userID, requestedBy string) (InfoResult, error) {
	ctx, span := c.tracer.Start(ctx, "saga.confirm_deletion")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	profile, found, err := c.profiles.Get(ctx, userID)
	if err != nil {
		return InfoResult{}, err
	}
	if !found {
		return InfoResult{}, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}

	info := c.Lookup(userID)
	if info.Status != StatusKnown {
		return info, ErrInfoUnknown
	}

	env, err := events.New(events.UserDeletionRequested, config.UserService, events.UserDeletionRequest{
		UserID:      userID,
		Email:       profile.Email,
		HasOrders:   info.Summary.HasOrders,
		OrderCount:  info.Summary.OrderCount,
		RequestedBy: requestedBy,
	})
	if err != nil {
		return InfoResult{}, err
	}

	markPending := func(ctx context.Context) error {
		ok, err := c.profiles.MarkDeletionPending(ctx, userID)
		if err == nil && !ok {
			err = fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		}
		return err
	}
	delivery, err := c.publisher.AfterCommit(ctx, markPending, publisher.NewMessage(userID, env))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "deletion not started")
		return InfoResult{}, err
	}
	go publisher.WatchDelivery(delivery, c.logger, zap.String("user_id", userID), zap.String("event_type", string(env.EventType)))
	c.logger.Info("🗑️ User deletion requested",
		zap.String("user_id", userID),
		zap.Int("order_count", info.Summary.OrderCount),
		zap.Bool("has_active_orders", info.Summary.HasActiveOrders),
	)

	if !info.Summary.HasOrders {
		if err := c.finalize(ctx, profile, env); err != nil {
			return info, err
		}
	}
	span.SetStatus(codes.Ok, "deletion requested")
	return info, nil
}

// HandleOrdersAnonymized completes a pending deletion. Repeats and unknown users are no-ops.
func (c *Coordinator) HandleOrdersAnonymized(ctx context.Context, env events.Envelope) error {
	var done events.OrdersAnonymized
	if err := env.Decode(&done); err != nil {
		return err
	}

	profile, found, err := c.profiles.Get(ctx, done.UserID)
	if err != nil {
		return err
	}
	if !found || !profile.DeletionPending {
		c.logger.Info("No pending deletion, anonymization notice ignored",
			zap.String("user_id", done.UserID),
			zap.Bool("profile_found", found),
		)
		return nil
	}
	return c.finalize(ctx, profile, env)
}

// finalize removes the profile and announces user-deletion-completed.
func (c *Coordinator) finalize(ctx context.Context, profile accounts.Profile, cause events.Envelope) error {
	completed, err := events.New(events.UserDeletionCompleted, config.UserService,
		events.DeletionCompleted{UserID: profile.UserID, Email: profile.Email},
		events.CausedBy(cause),
	)
	if err != nil {
		return err
	}

	remove := func(ctx context.Context) error {
		_, err := c.profiles.Delete(ctx, profile.UserID)
		return err
	}
	delivery, err := c.publisher.AfterCommit(ctx, remove, publisher.NewMessage(profile.UserID, completed))
	if err != nil {
		return err
	}
	go publisher.WatchDelivery(delivery, c.logger, zap.String("user_id", profile.UserID), zap.String("event_type", string(completed.EventType)))
	c.cache.Evict(profile.UserID)

	c.logger.Info("✅ User deletion completed", zap.String("user_id", profile.UserID))
	return nil
}
