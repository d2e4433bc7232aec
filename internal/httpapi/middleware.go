package httpapi

import (
	"time"

	"github.com/ADovhal/TeIpsum-Store-sub001/internal/platform/observability"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// CorrelationIDHeader carries the request's correlation id in both directions.
const CorrelationIDHeader = "X-Correlation-ID"

const correlationKey = "httpapi.correlation_id"

// Correlate assigns every request one correlation id, taken from the inbound header when
// present, and echoes it on the response and the active span.
func Correlate() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := requestID(c)
		c.Header(CorrelationIDHeader, id)
		trace.SpanFromContext(c.Request.Context()).SetAttributes(attribute.String("correlation.id", id))
		c.Next()
	}
}

// requestID returns the id stored on c, assigning one on first use.
func requestID(c *gin.Context) string {
	if id := c.GetString(correlationKey); id != "" {
		return id
	}
	id := c.GetHeader(CorrelationIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(correlationKey, id)
	return id
}

// RequestLogger logs one structured line per request.
func RequestLogger(logger observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("correlation_id", requestID(c)),
		)
	}
}
