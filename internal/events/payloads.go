package events

// ProductSnapshot is the full current state of a product. Lifecycle events carry the whole
// snapshot so consumers never need to fetch anything else.
type ProductSnapshot struct {
	ProductID   string   `json:"product_id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Brand       string   `json:"brand"`
	PriceCents  int64    `json:"price_cents"`
	ImageURLs   []string `json:"image_urls,omitempty"`
	Available   bool     `json:"available"`
}

// ProductDeletedPayload carries only the key of the removed product.
type ProductDeletedPayload struct {
	ProductID string `json:"product_id"`
}

// OrderLineItem is one line of an order. PriceCents is the price when the order was placed
// and never follows later catalog changes.
type OrderLineItem struct {
	ProductID  string `json:"product_id"`
	Quantity   int    `json:"quantity"`
	PriceCents int64  `json:"price_cents"`
}

// OrderSnapshot is carried by order-created and order-cancelled.
type OrderSnapshot struct {
	OrderID    string          `json:"order_id"`
	UserID     string          `json:"user_id"`
	Status     string          `json:"status"`
	Items      []OrderLineItem `json:"items"`
	TotalCents int64           `json:"total_cents"`
}

// StockAdjustedPayload is emitted after every stock mutation.
type StockAdjustedPayload struct {
	ProductID   string `json:"product_id"`
	NewQuantity int    `json:"new_quantity"`
}

// StockDepletedPayload is emitted when a stock record transitions into zero.
type StockDepletedPayload struct {
	ProductID string `json:"product_id"`
}

// OrderInfoRequest asks the order-owning service for a user's order summary.
type OrderInfoRequest struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	RequestedBy string `json:"requested_by"`
}

// OrderInfoResponse answers an OrderInfoRequest; it travels with the request's correlation id.
type OrderInfoResponse struct {
	UserID          string `json:"user_id"`
	Email           string `json:"email"`
	OrderCount      int    `json:"order_count"`
	HasOrders       bool   `json:"has_orders"`
	HasActiveOrders bool   `json:"has_active_orders"`
}

// UserDeletionRequest starts the commit phase of an account deletion.
type UserDeletionRequest struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	HasOrders   bool   `json:"has_orders"`
	OrderCount  int    `json:"order_count"`
	RequestedBy string `json:"requested_by"`
}

// OrdersAnonymized reports that the order-owning service anonymized a user's orders.
type OrdersAnonymized struct {
	UserID          string `json:"user_id"`
	AnonymizedCount int    `json:"anonymized_count"`
}

// DeletionCompleted is the terminal broadcast of an account deletion.
type DeletionCompleted struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}
