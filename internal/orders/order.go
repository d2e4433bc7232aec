// Package orders is the order-owning side of the store: it records orders, announces their
// lifecycle and answers the deletion saga's questions about a user's orders.
package orders

import (
	"errors"
	"time"

	"github.com/ADovhal/TeIpsum-Store-sub001/internal/events"
)

var (
	ErrNotFound         = errors.New("order not found")
	ErrAlreadyCancelled = errors.New("order already cancelled")
	ErrInvalidOrder     = errors.New("invalid order")
)

// Status is the order's position in its lifecycle.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusPaid       Status = "PAID"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
)

// Active reports whether the order still has work outstanding.
func (s Status) Active() bool {
	switch s {
	case StatusPending, StatusPaid, StatusProcessing, StatusShipped:
		return true
	default:
		return false
	}
}

// LineItem carries the price at the time the order was placed.
type LineItem struct {
	ProductID  string `json:"product_id"`
	Quantity   int    `json:"quantity"`
	PriceCents int64  `json:"price_cents"`
}

type Order struct {
	ID              string     `json:"order_id"`
	UserID          string     `json:"user_id"`
	Email           string     `json:"email"`
	ShippingName    string     `json:"shipping_name"`
	ShippingAddress string     `json:"shipping_address"`
	Phone           string     `json:"phone"`
	Status          Status     `json:"status"`
	Items           []LineItem `json:"items"`
	TotalCents      int64      `json:"total_cents"`
	CreatedAt       time.Time  `json:"created_at"`
	AnonymizedAt    *time.Time `json:"anonymized_at,omitempty"`
}

func (o Order) Anonymized() bool {
	return o.AnonymizedAt != nil
}

// Anonymize clears personal fields and keeps the financial record. It reports false when the
// order was already anonymized, leaving it untouched.
func (o *Order) Anonymize(at time.Time) bool {
	if o.Anonymized() {
		return false
	}
	o.Email = ""
	o.ShippingName = ""
	o.ShippingAddress = ""
	o.Phone = ""
	o.AnonymizedAt = &at
	return true
}

// Snapshot is the self-sufficient lifecycle event payload for the order.
func (o Order) Snapshot() events.OrderSnapshot {
	items := make([]events.OrderLineItem, len(o.Items))
	for i, it := range o.Items {
		items[i] = events.OrderLineItem{ProductID: it.ProductID, Quantity: it.Quantity, PriceCents: it.PriceCents}
	}
	return events.OrderSnapshot{
		OrderID:    o.ID,
		UserID:     o.UserID,
		Status:     string(o.Status),
		Items:      items,
		TotalCents: o.TotalCents,
	}
}

// Summarize answers the deletion info question for a user's orders.
func Summarize(userID, email string, orders []Order) events.OrderInfoResponse {
	resp := events.OrderInfoResponse{UserID: userID, Email: email, OrderCount: len(orders)}
	resp.HasOrders = resp.OrderCount > 0
	for _, o := range orders {
		if o.Status.Active() {
			resp.HasActiveOrders = true
			break
		}
	}
	return resp
}
