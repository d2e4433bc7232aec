package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/ADovhal/TeIpsum-Store-sub001/internal/orders"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/platform/observability"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type OrderService interface {
	PlaceOrder(ctx context.Context, req orders.PlaceOrderRequest) (orders.Order, error)
	CancelOrder(ctx context.Context, orderID string) (orders.Order, error)
	Get(ctx context.Context, orderID string) (orders.Order, error)
}

type OrderHandler struct {
	orders OrderService
	logger observability.Logger
}

func NewOrderHandler(svc OrderService, logger observability.Logger) *OrderHandler {
	return &OrderHandler{orders: svc, logger: logger}
}

func (h *OrderHandler) Register(r gin.IRouter) {
	r.POST("/orders", h.PlaceOrder)
	r.GET("/orders/:id", h.GetOrder)
	r.POST("/orders/:id/cancel", h.CancelOrder)
}

func (h *OrderHandler) PlaceOrder(c *gin.Context) {
	var req orders.PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}

	o, err := h.orders.PlaceOrder(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err, "")
		return
	}
	c.JSON(http.StatusCreated, o)
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	o, err := h.orders.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *OrderHandler) CancelOrder(c *gin.Context) {
	o, err := h.orders.CancelOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *OrderHandler) fail(c *gin.Context, err error, orderID string) {
	switch {
	case errors.Is(err, orders.ErrInvalidOrder):
		errorJSON(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, orders.ErrNotFound):
		errorJSON(c, http.StatusNotFound, "order not found")
	case errors.Is(err, orders.ErrAlreadyCancelled):
		errorJSON(c, http.StatusConflict, "order already cancelled")
	default:
		h.logger.Error("❌ Order request failed", zap.Error(err), zap.String("order_id", orderID))
		errorJSON(c, http.StatusInternalServerError, "order request failed, please retry")
	}
}
