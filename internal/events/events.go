// Package events defines the cross-service event contracts: topics, the envelope every
// message travels in, and the payloads carried by each topic.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrMalformed marks an event that can never be applied, however often it is redelivered.
var ErrMalformed = errors.New("malformed event")

// EventType represents the type of domain event.
type EventType string

const (
	ProductCreated EventType = "ProductCreated"
	ProductUpdated EventType = "ProductUpdated"
	ProductDeleted EventType = "ProductDeleted"

	OrderCreated   EventType = "OrderCreated"
	OrderCancelled EventType = "OrderCancelled"

	StockAdjusted EventType = "StockAdjusted"
	StockDepleted EventType = "StockDepleted"

	OrderInfoRequested    EventType = "DeletionInfoRequested"
	OrderInfoResponded    EventType = "DeletionInfoResponded"
	UserDeletionRequested EventType = "UserDeletionRequested"
	UserOrdersAnonymized  EventType = "UserOrdersAnonymized"
	UserDeletionCompleted EventType = "UserDeletionCompleted"
)

// Topics. Every topic is partitioned by the key noted beside it.
const (
	TopicProductCreated = "product-created" // product id
	TopicProductUpdated = "product-updated" // product id
	TopicProductDeleted = "product-deleted" // product id

	TopicOrderCreated   = "order-created"   // order id
	TopicOrderCancelled = "order-cancelled" // order id

	TopicStockAdjusted = "stock-adjusted" // product id
	TopicStockDepleted = "stock-depleted" // product id

	TopicOrderInfoRequest      = "order-info-request"      // user id
	TopicOrderInfoResponse     = "order-info-response"     // user id
	TopicUserDeletionRequested = "user-deletion-requested" // user id
	TopicUserOrdersAnonymized  = "user-orders-anonymized"  // user id
	TopicUserDeletionCompleted = "user-deletion-completed" // user id

	TopicDeadLetter = "dead-letter"
)

var topics = map[EventType]string{
	ProductCreated:        TopicProductCreated,
	ProductUpdated:        TopicProductUpdated,
	ProductDeleted:        TopicProductDeleted,
	OrderCreated:          TopicOrderCreated,
	OrderCancelled:        TopicOrderCancelled,
	StockAdjusted:         TopicStockAdjusted,
	StockDepleted:         TopicStockDepleted,
	OrderInfoRequested:    TopicOrderInfoRequest,
	OrderInfoResponded:    TopicOrderInfoResponse,
	UserDeletionRequested: TopicUserDeletionRequested,
	UserOrdersAnonymized:  TopicUserOrdersAnonymized,
	UserDeletionCompleted: TopicUserDeletionCompleted,
}

// Topic returns the topic events of this type are published on.
func (t EventType) Topic() string {
	return topics[t]
}

// Kafka header keys set on every published message.
const (
	HeaderEventID       = "event-id"
	HeaderEventType     = "event-type"
	HeaderCorrelationID = "correlation-id"
)

// Envelope wraps every payload published on the bus. Envelopes are immutable once published.
type Envelope struct {
	EventID       string          `json:"event_id"`
	CorrelationID string          `json:"correlation_id"`
	CausationID   string          `json:"causation_id,omitempty"`
	EventType     EventType       `json:"event_type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	Data          json.RawMessage `json:"data"`
}

// Option customizes an envelope built by New.
type Option func(*Envelope)

// WithCorrelationID sets the correlation id instead of generating one.
func WithCorrelationID(id string) Option {
	return func(e *Envelope) {
		if id != "" {
			e.CorrelationID = id
		}
	}
}

// CausedBy links the new envelope to the event that triggered it.
func CausedBy(parent Envelope) Option {
	return func(e *Envelope) {
		e.CausationID = parent.EventID
		if parent.CorrelationID != "" {
			e.CorrelationID = parent.CorrelationID
		}
	}
}

// New builds an envelope around data.
func New(typ EventType, source string, data any, opts ...Option) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: encode %s payload: %v", ErrMalformed, typ, err)
	}

	id := uuid.NewString()
	env := Envelope{
		EventID:       id,
		CorrelationID: id,
		EventType:     typ,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		Data:          raw,
	}
	for _, opt := range opts {
		opt(&env)
	}
	return env, nil
}

// Parse decodes an envelope from a message value.
func Parse(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.EventID == "" || env.EventType == "" {
		return Envelope{}, fmt.Errorf("%w: missing event_id or event_type", ErrMalformed)
	}
	return env, nil
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%w: %s event %s has no data", ErrMalformed, e.EventType, e.EventID)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%w: %s event %s: %v", ErrMalformed, e.EventType, e.EventID, err)
	}
	return nil
}

// Is returns true if the envelope is one of the passed types.
func (e Envelope) Is(types ...EventType) bool {
	for _, t := range types {
		if e.EventType == t {
			return true
		}
	}
	return false
}
