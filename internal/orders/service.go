package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/ADovhal/TeIpsum-Store-sub001/internal/config"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/events"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/platform/observability"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/publisher"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Publisher is the subset of the reliable publisher the order side needs.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, env events.Envelope) error
	AfterCommit(ctx context.Context, commit func(ctx context.Context) error, msgs ...publisher.Message) (<-chan error, error)
}

// PlaceOrderRequest is what a customer submits.
type PlaceOrderRequest struct {
	UserID          string     `json:"user_id"`
	Email           string     `json:"email"`
	ShippingName    string     `json:"shipping_name"`
	ShippingAddress string     `json:"shipping_address"`
	Phone           string     `json:"phone"`
	Items           []LineItem `json:"items"`
}

// Service is the order write path. Every change is committed locally first and announced after.
type Service struct {
	store     Store
	publisher Publisher
	logger    observability.Logger
	tracer    observability.Tracer
}

func NewService(store Store, publisher Publisher, logger observability.Logger) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		logger:    logger,
		tracer:    otel.Tracer("orders"),
	}
}

// PlaceOrder records a pending order and publishes order-created once it is stored.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (Order, error) {
	ctx, span := s.tracer.Start(ctx, "orders.place")
	defer span.End()

	if req.UserID == "" || len(req.Items) == 0 {
		return Order{}, fmt.Errorf("%w: user and at least one item are required", ErrInvalidOrder)
	}

	o := Order{
		ID:              uuid.NewString(),
		UserID:          req.UserID,
		Email:           req.Email,
		ShippingName:    req.ShippingName,
		ShippingAddress: req.ShippingAddress,
		Phone:           req.Phone,
		Status:          StatusPending,
		CreatedAt:       time.Now().UTC(),
	}
	for _, it := range req.Items {
		if it.ProductID == "" || it.Quantity <= 0 || it.PriceCents < 0 {
			return Order{}, fmt.Errorf("%w: bad line item %+v", ErrInvalidOrder, it)
		}
		o.Items = append(o.Items, it)
		o.TotalCents += int64(it.Quantity) * it.PriceCents
	}
	span.SetAttributes(attribute.String("order.id", o.ID), attribute.String("user.id", o.UserID))

	env, err := events.New(events.OrderCreated, config.OrderService, o.Snapshot())
	if err != nil {
		return Order{}, err
	}

	delivery, err := s.publisher.AfterCommit(ctx,
		func(ctx context.Context) error { return s.store.Create(ctx, o) },
		publisher.NewMessage(o.ID, env),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "order not stored")
		return Order{}, err
	}
	go publisher.WatchDelivery(delivery, s.logger, zap.String("order_id", o.ID), zap.String("event_type", string(env.EventType)))

	s.logger.Info("🛒 Order placed", zap.String("order_id", o.ID), zap.String("user_id", o.UserID), zap.Int64("total_cents", o.TotalCents))
	span.SetStatus(codes.Ok, "order placed")
	return o, nil
}

// CancelOrder cancels the order and publishes order-cancelled with the original line items.
func (s *Service) CancelOrder(ctx context.Context, orderID string) (Order, error) {
	ctx, span := s.tracer.Start(ctx, "orders.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	o, err := s.Get(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if o.Status == StatusCancelled {
		return Order{}, fmt.Errorf("%w: %s", ErrAlreadyCancelled, orderID)
	}
	o.Status = StatusCancelled

	env, err := events.New(events.OrderCancelled, config.OrderService, o.Snapshot())
	if err != nil {
		return Order{}, err
	}

	delivery, err := s.publisher.AfterCommit(ctx,
		func(ctx context.Context) error {
			_, err := s.store.Cancel(ctx, orderID)
			return err
		},
		publisher.NewMessage(o.ID, env),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "order not cancelled")
		return Order{}, err
	}
	go publisher.WatchDelivery(delivery, s.logger, zap.String("order_id", o.ID), zap.String("event_type", string(env.EventType)))

	s.logger.Info("🚫 Order cancelled", zap.String("order_id", o.ID), zap.String("user_id", o.UserID))
	span.SetStatus(codes.Ok, "order cancelled")
	return o, nil
}

// Get returns a stored order.
func (s *Service) Get(ctx context.Context, orderID string) (Order, error) {
	o, found, err := s.store.Get(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if !found {
		return Order{}, fmt.Errorf("%w: %s", ErrNotFound, orderID)
	}
	return o, nil
}
