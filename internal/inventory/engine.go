// Package inventory keeps the stock ledger in step with product and order lifecycle events.
package inventory

import (
	"context"
	"fmt"

	"github.com/ADovhal/TeIpsum-Store-sub001/internal/config"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/events"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/platform/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Publisher sends derived events after the store step has committed.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, env events.Envelope) error
}

// Engine is the inventory adjustment engine.
type Engine struct {
	store     StockStore
	publisher Publisher
	logger    observability.Logger
	tracer    observability.Tracer
	metrics   *observability.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

func WithTracer(tracer observability.Tracer) Option {
	return func(e *Engine) { e.tracer = tracer }
}

func WithMetrics(metrics *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = metrics }
}

// NewEngine creates an Engine with explicit dependencies.
func NewEngine(store StockStore, publisher Publisher, logger observability.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		publisher: publisher,
		logger:    logger,
		tracer:    otel.Tracer("inventory"),
		metrics:   observability.NoopMetrics(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Quantity returns the current stock for a product.
func (e *Engine) Quantity(ctx context.Context, productID string) (int, bool, error) {
	return e.store.Quantity(ctx, productID)
}

// Handle applies product-created, product-deleted, order-created and order-cancelled events.
func (e *Engine) Handle(ctx context.Context, env events.Envelope) error {
	switch env.EventType {
	case events.ProductCreated:
		return e.productCreated(ctx, env)
	case events.ProductDeleted:
		return e.productDeleted(ctx, env)
	case events.OrderCreated:
		return e.adjust(ctx, env, -1)
	case events.OrderCancelled:
		return e.adjust(ctx, env, +1)
	default:
		e.logger.Debug("Ignoring event", zap.String("event_type", string(env.EventType)))
		return nil
	}
}

func (e *Engine) productCreated(ctx context.Context, env events.Envelope) error {
	var snap events.ProductSnapshot
	if err := env.Decode(&snap); err != nil {
		return err
	}
	created, err := e.store.Provision(ctx, snap.ProductID)
	if err != nil {
		return err
	}
	e.logger.Info("📦 Stock record provisioned",
		zap.String("product_id", snap.ProductID),
		zap.Bool("created", created),
	)
	return nil
}

func (e *Engine) productDeleted(ctx context.Context, env events.Envelope) error {
	var payload events.ProductDeletedPayload
	if err := env.Decode(&payload); err != nil {
		return err
	}
	removed, err := e.store.Remove(ctx, payload.ProductID)
	if err != nil {
		return err
	}
	e.logger.Info("🗑️ Stock record removed",
		zap.String("product_id", payload.ProductID),
		zap.Bool("was_present", removed),
	)
	return nil
}

// adjust applies an order event with sign -1 for created and +1 for cancelled.
func (e *Engine) adjust(ctx context.Context, env events.Envelope, sign int) error {
	var order events.OrderSnapshot
	if err := env.Decode(&order); err != nil {
		return err
	}

	ctx, span := e.tracer.Start(ctx, "inventory.adjust")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", order.OrderID),
		attribute.String("event.type", string(env.EventType)),
		attribute.Int("order.items", len(order.Items)),
	)

	if order.OrderID == "" {
		return fmt.Errorf("%w: %s event %s has no order id", events.ErrMalformed, env.EventType, env.EventID)
	}
	// One delta per product, so a split line item cannot pass through zero midway.
	deltas := make([]Delta, 0, len(order.Items))
	index := make(map[string]int, len(order.Items))
	for _, item := range order.Items {
		if item.ProductID == "" || item.Quantity <= 0 {
			return fmt.Errorf("%w: order %s has invalid line item %+v", events.ErrMalformed, order.OrderID, item)
		}
		if i, seen := index[item.ProductID]; seen {
			deltas[i].Amount += sign * item.Quantity
			continue
		}
		index[item.ProductID] = len(deltas)
		deltas = append(deltas, Delta{ProductID: item.ProductID, Amount: sign * item.Quantity})
	}

	adjustments, applied, err := e.store.ApplyOrder(ctx, order.OrderID, env.EventType, deltas)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stock adjustment failed")
		return err
	}
	if !applied {
		e.logger.Info("Order event already applied, skipping",
			zap.String("order_id", order.OrderID),
			zap.String("event_type", string(env.EventType)),
		)
		span.SetAttributes(attribute.Bool("inventory.duplicate", true))
		return nil
	}
	if skipped := len(deltas) - len(adjustments); skipped > 0 {
		e.logger.Info("Skipped line items for unprovisioned products",
			zap.String("order_id", order.OrderID),
			zap.Int("skipped", skipped),
		)
	}

	for _, adj := range adjustments {
		e.logger.Info("✅ Stock adjusted",
			zap.String("order_id", order.OrderID),
			zap.String("product_id", adj.ProductID),
			zap.Int("previous", adj.Previous),
			zap.Int("quantity", adj.Current),
		)
		e.emit(ctx, env, adj)
	}

	span.SetStatus(codes.Ok, "stock adjusted")
	return nil
}

// emit publishes the derived events for one adjustment. Delivery failures are already
// dead-lettered by the publisher; the adjustment itself stands.
func (e *Engine) emit(ctx context.Context, cause events.Envelope, adj Adjustment) {
	adjusted, err := events.New(events.StockAdjusted, config.InventoryService,
		events.StockAdjustedPayload{ProductID: adj.ProductID, NewQuantity: adj.Current},
		events.CausedBy(cause),
	)
	if err == nil {
		err = e.publisher.Publish(ctx, events.TopicStockAdjusted, adj.ProductID, adjusted)
	}
	if err != nil {
		e.logger.Error("❌ Failed to publish StockAdjusted", zap.Error(err), zap.String("product_id", adj.ProductID))
	}

	if !adj.Depleted() {
		return
	}

	e.metrics.Depletions.Add(ctx, 1, metric.WithAttributes(attribute.String("product.id", adj.ProductID)))
	depleted, err := events.New(events.StockDepleted, config.InventoryService,
		events.StockDepletedPayload{ProductID: adj.ProductID},
		events.CausedBy(cause),
	)
	if err == nil {
		err = e.publisher.Publish(ctx, events.TopicStockDepleted, adj.ProductID, depleted)
	}
	if err != nil {
		e.logger.Error("❌ Failed to publish StockDepleted", zap.Error(err), zap.String("product_id", adj.ProductID))
		return
	}
	e.logger.Warn("⚠️ Stock depleted", zap.String("product_id", adj.ProductID))
}
