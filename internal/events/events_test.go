package events

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestEventTypeTopics(t *testing.T) {
	tests := []struct {
		et       EventType
		expected string
	}{
		{ProductCreated, "product-created"},
		{ProductUpdated, "product-updated"},
		{ProductDeleted, "product-deleted"},
		{OrderCreated, "order-created"},
		{OrderCancelled, "order-cancelled"},
		{StockAdjusted, "stock-adjusted"},
		{StockDepleted, "stock-depleted"},
		{OrderInfoRequested, "order-info-request"},
		{OrderInfoResponded, "order-info-response"},
		{UserDeletionRequested, "user-deletion-requested"},
		{UserOrdersAnonymized, "user-orders-anonymized"},
		{UserDeletionCompleted, "user-deletion-completed"},
	}

	for _, tt := range tests {
		t.Run(string(tt.et), func(t *testing.T) {
			if got := tt.et.Topic(); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestNewAndParse(t *testing.T) {
	env, err := New(StockAdjusted, "inventory-service", StockAdjustedPayload{ProductID: "p1", NewQuantity: -5})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if env.EventID == "" || env.CorrelationID != env.EventID {
		t.Fatalf("expected generated event id to seed the correlation id, got %+v", env)
	}

	raw := mustJSON(t, env)
	parsed, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	var payload StockAdjustedPayload
	if err := parsed.Decode(&payload); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if payload.ProductID != "p1" || payload.NewQuantity != -5 {
		t.Errorf("unexpected payload: %+v", payload)
	}
}

func TestCausedBy(t *testing.T) {
	parent, _ := New(OrderInfoRequested, "user-service", OrderInfoRequest{UserID: "u1"}, WithCorrelationID("corr-1"))
	child, err := New(OrderInfoResponded, "order-service", OrderInfoResponse{UserID: "u1"}, CausedBy(parent))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if child.CorrelationID != "corr-1" {
		t.Errorf("expected correlation id corr-1, got %q", child.CorrelationID)
	}
	if child.CausationID != parent.EventID {
		t.Errorf("expected causation id %q, got %q", parent.EventID, child.CausationID)
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"invalid json", "{invalid"},
		{"missing id", `{"event_type":"ProductCreated"}`},
		{"missing type", `{"event_id":"e1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestDecode_TypeMismatch(t *testing.T) {
	env := Envelope{EventID: "e1", EventType: OrderCreated, Data: []byte(`{"items":"nope"}`)}
	var snap OrderSnapshot
	if err := env.Decode(&snap); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}
