// Package identity removes a user's credentials once their account deletion has completed.
package identity

import (
	"context"

	"github.com/ADovhal/TeIpsum-Store-sub001/internal/events"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/platform/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Purger consumes user-deletion-completed.
type Purger struct {
	store  Store
	logger observability.Logger
	tracer observability.Tracer
}

func NewPurger(store Store, logger observability.Logger) *Purger {
	return &Purger{store: store, logger: logger, tracer: otel.Tracer("identity")}
}

// Handle purges credentials on user-deletion-completed. Repeats purge nothing and succeed.
func (p *Purger) Handle(ctx context.Context, env events.Envelope) error {
	if env.EventType != events.UserDeletionCompleted {
		p.logger.Debug("Ignoring event", zap.String("event_type", string(env.EventType)))
		return nil
	}

	var done events.DeletionCompleted
	if err := env.Decode(&done); err != nil {
		return err
	}

	ctx, span := p.tracer.Start(ctx, "identity.purge")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", done.UserID))

	purged, err := p.store.PurgeUser(ctx, done.UserID)
	if err != nil {
		return err
	}
	p.logger.Info("🔐 Credentials purged",
		zap.String("user_id", done.UserID),
		zap.Bool("credential", purged.Credential),
		zap.Int("refresh_tokens", purged.Tokens),
	)
	return nil
}
