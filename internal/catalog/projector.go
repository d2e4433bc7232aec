package catalog

import (
	"context"
	"fmt"

	"github.com/ADovhal/TeIpsum-Store-sub001/internal/events"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/platform/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Projector applies product lifecycle events to the catalog.
type Projector struct {
	catalog *Catalog
	logger  observability.Logger
	tracer  observability.Tracer
}

func NewProjector(catalog *Catalog, logger observability.Logger) *Projector {
	return &Projector{
		catalog: catalog,
		logger:  logger,
		tracer:  otel.Tracer("catalog"),
	}
}

// Handle applies one product-created, product-updated or product-deleted event.
func (p *Projector) Handle(ctx context.Context, env events.Envelope) error {
	ctx, span := p.tracer.Start(ctx, "catalog.apply")
	defer span.End()
	span.SetAttributes(attribute.String("event.type", string(env.EventType)))

	var err error
	switch env.EventType {
	case events.ProductCreated:
		err = p.created(ctx, env)
	case events.ProductUpdated:
		err = p.updated(ctx, env)
	case events.ProductDeleted:
		err = p.deleted(ctx, env)
	default:
		p.logger.Debug("Ignoring event", zap.String("event_type", string(env.EventType)))
		return nil
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "catalog updated")
	return nil
}

func (p *Projector) created(ctx context.Context, env events.Envelope) error {
	var snap events.ProductSnapshot
	if err := env.Decode(&snap); err != nil {
		return err
	}
	product := FromSnapshot(snap)

	var created bool
	err := p.catalog.mutate(ctx, product.ID, func(ctx context.Context) error {
		var err error
		created, err = p.catalog.store.CreateIfAbsent(ctx, product)
		return err
	})
	if err != nil {
		return err
	}

	if created {
		p.logger.Info("✅ Product added to catalog", zap.String("product_id", product.ID))
	} else {
		p.logger.Info("Product already in catalog, create ignored", zap.String("product_id", product.ID))
	}
	return nil
}

func (p *Projector) updated(ctx context.Context, env events.Envelope) error {
	var snap events.ProductSnapshot
	if err := env.Decode(&snap); err != nil {
		return err
	}
	product := FromSnapshot(snap)

	var found bool
	err := p.catalog.mutate(ctx, product.ID, func(ctx context.Context) error {
		var err error
		found, err = p.catalog.store.Replace(ctx, product)
		return err
	})
	if err != nil {
		return err
	}

	if !found {
		p.logger.Error("❌ Update for product never created",
			zap.String("product_id", product.ID),
			zap.String("event_id", env.EventID),
		)
		return fmt.Errorf("%w: product %s", ErrMissingUpstream, product.ID)
	}
	p.logger.Info("✅ Product updated in catalog", zap.String("product_id", product.ID))
	return nil
}

func (p *Projector) deleted(ctx context.Context, env events.Envelope) error {
	var payload events.ProductDeletedPayload
	if err := env.Decode(&payload); err != nil {
		return err
	}

	var removed bool
	err := p.catalog.mutate(ctx, payload.ProductID, func(ctx context.Context) error {
		var err error
		removed, err = p.catalog.store.Delete(ctx, payload.ProductID)
		return err
	})
	if err != nil {
		return err
	}

	p.logger.Info("🗑️ Product removed from catalog",
		zap.String("product_id", payload.ProductID),
		zap.Bool("was_present", removed),
	)
	return nil
}
