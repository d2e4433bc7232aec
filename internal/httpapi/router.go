// Package httpapi exposes the services' user-facing HTTP endpoints.
package httpapi

import (
	"net/http"

	"github.com/ADovhal/TeIpsum-Store-sub001/internal/platform/observability"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Routes registers a service's endpoints on the router.
type Routes interface {
	Register(r gin.IRouter)
}

// NewRouter creates the Gin router with the shared middleware, /health and the given routes.
func NewRouter(logger observability.Logger, routes ...Routes) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), Correlate(), RequestLogger(logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	for _, rt := range routes {
		rt.Register(r)
	}
	return r
}

// Instrument wraps the router so every request gets a server span.
func Instrument(h http.Handler, serviceName string) http.Handler {
	return otelhttp.NewHandler(h, serviceName)
}

func errorJSON(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg, "correlation_id": requestID(c)})
}
