package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/ADovhal/TeIpsum-Store-sub001/internal/catalog"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/platform/observability"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ProductReader interface {
	Get(ctx context.Context, id string) (catalog.Product, error)
}

type StockReader interface {
	Quantity(ctx context.Context, productID string) (int, bool, error)
}

type CatalogHandler struct {
	products ProductReader
	logger   observability.Logger
}

func NewCatalogHandler(products ProductReader, logger observability.Logger) *CatalogHandler {
	return &CatalogHandler{products: products, logger: logger}
}

func (h *CatalogHandler) Register(r gin.IRouter) {
	r.GET("/products/:id", h.GetProduct)
}

func (h *CatalogHandler) GetProduct(c *gin.Context) {
	p, err := h.products.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, catalog.ErrNotFound) {
		errorJSON(c, http.StatusNotFound, "product not found")
		return
	}
	if err != nil {
		h.logger.Error("❌ Failed to load product", zap.Error(err), zap.String("product_id", c.Param("id")))
		errorJSON(c, http.StatusInternalServerError, "failed to load product")
		return
	}
	c.JSON(http.StatusOK, p)
}

type StockHandler struct {
	stock  StockReader
	logger observability.Logger
}

func NewStockHandler(stock StockReader, logger observability.Logger) *StockHandler {
	return &StockHandler{stock: stock, logger: logger}
}

func (h *StockHandler) Register(r gin.IRouter) {
	r.GET("/stock/:id", h.GetStock)
}

func (h *StockHandler) GetStock(c *gin.Context) {
	id := c.Param("id")
	q, found, err := h.stock.Quantity(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("❌ Failed to load stock", zap.Error(err), zap.String("product_id", id))
		errorJSON(c, http.StatusInternalServerError, "failed to load stock")
		return
	}
	if !found {
		errorJSON(c, http.StatusNotFound, "product not tracked")
		return
	}
	c.JSON(http.StatusOK, gin.H{"product_id": id, "quantity": q, "depleted": q <= 0})
}
