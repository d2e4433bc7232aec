package orders

import (
	"context"
	"time"

	"github.com/ADovhal/TeIpsum-Store-sub001/internal/config"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/events"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/platform/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Responder is the order service's participant in the deletion saga.
type Responder struct {
	store     Store
	publisher Publisher
	logger    observability.Logger
	tracer    observability.Tracer
	now       func() time.Time
}

func NewResponder(store Store, publisher Publisher, logger observability.Logger) *Responder {
	return &Responder{
		store:     store,
		publisher: publisher,
		logger:    logger,
		tracer:    otel.Tracer("orders"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Handle dispatches order-info-request and user-deletion-requested events.
func (r *Responder) Handle(ctx context.Context, env events.Envelope) error {
	switch env.EventType {
	case events.OrderInfoRequested:
		return r.HandleInfoRequest(ctx, env)
	case events.UserDeletionRequested:
		return r.HandleDeletionRequested(ctx, env)
	default:
		r.logger.Debug("Ignoring event", zap.String("event_type", string(env.EventType)))
		return nil
	}
}

// HandleInfoRequest answers with the user's order summary under the request's correlation id.
func (r *Responder) HandleInfoRequest(ctx context.Context, env events.Envelope) error {
	var req events.OrderInfoRequest
	if err := env.Decode(&req); err != nil {
		return err
	}

	ctx, span := r.tracer.Start(ctx, "orders.info_request")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", req.UserID), attribute.String("correlation.id", env.CorrelationID))

	orders, err := r.store.ListByUser(ctx, req.UserID)
	if err != nil {
		return err
	}
	summary := Summarize(req.UserID, req.Email, orders)

	resp, err := events.New(events.OrderInfoResponded, config.OrderService, summary, events.CausedBy(env))
	if err != nil {
		return err
	}
	if err := r.publisher.Publish(ctx, events.TopicOrderInfoResponse, req.UserID, resp); err != nil {
		r.logger.Error("❌ Failed to answer order info request", zap.Error(err), zap.String("user_id", req.UserID))
		return nil
	}

	r.logger.Info("📤 Answered order info request",
		zap.String("user_id", req.UserID),
		zap.String("requested_by", req.RequestedBy),
		zap.Int("order_count", summary.OrderCount),
		zap.Bool("has_active_orders", summary.HasActiveOrders),
	)
	return nil
}

// HandleDeletionRequested anonymizes the user's orders and announces user-orders-anonymized.
// Orders already anonymized are left alone, so a redelivered request anonymizes nothing new.
func (r *Responder) HandleDeletionRequested(ctx context.Context, env events.Envelope) error {
	var req events.UserDeletionRequest
	if err := env.Decode(&req); err != nil {
		return err
	}

	ctx, span := r.tracer.Start(ctx, "orders.anonymize")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", req.UserID))

	n, err := r.store.AnonymizeUser(ctx, req.UserID, r.now())
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.Int("orders.anonymized", n))
	r.logger.Info("🕶️ Orders anonymized", zap.String("user_id", req.UserID), zap.Int("anonymized", n))

	done, err := events.New(events.UserOrdersAnonymized, config.OrderService,
		events.OrdersAnonymized{UserID: req.UserID, AnonymizedCount: n},
		events.CausedBy(env),
	)
	if err != nil {
		return err
	}
	if err := r.publisher.Publish(ctx, events.TopicUserOrdersAnonymized, req.UserID, done); err != nil {
		r.logger.Error("❌ Failed to announce anonymization", zap.Error(err), zap.String("user_id", req.UserID))
	}
	return nil
}
