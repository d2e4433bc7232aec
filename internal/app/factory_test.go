package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
	"time"

	"github.com/ADovhal/TeIpsum-Store-sub001/internal/config"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/deadletter"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/httpapi"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/platform/observability"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/publisher"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/retry"

	"github.com/gin-gonic/gin"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

type discardProducer struct{}

func (discardProducer) WriteMessage(context.Context, kafkago.Message) error { return nil }
func (discardProducer) Close() error                                         { return nil }

func testContainer(t *testing.T, service string) *Container {
	t.Helper()
	t.Setenv("KAFKA_BROKERS", "localhost:9092")
	cfg, err := config.LoadConfig(service)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	logger := zap.NewNop()
	sink := deadletter.NewMemorySink()
	return &Container{
		config:  cfg,
		logger:  logger,
		tracer:  otel.Tracer("test"),
		metrics: observability.NoopMetrics(),
		sink:    sink,
		publisher: publisher.New(discardProducer{},
			retry.NewRetrier(retry.PublishPolicy(time.Millisecond), nil),
			sink,
			logger,
		),
	}
}

func TestServiceFactory_Create(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		service string
		topics  []string
		route   string
	}{
		{config.CatalogService, []string{"product-created", "product-updated", "product-deleted"}, "/products/p1"},
		{config.InventoryService, []string{"product-created", "product-deleted", "order-created", "order-cancelled"}, "/stock/p1"},
		{config.OrderService, []string{"order-info-request", "user-deletion-requested"}, "/orders/o1"},
		{config.UserService, []string{"order-info-response", "user-orders-anonymized"}, "/users/u1"},
		{config.AuthService, []string{"user-deletion-completed"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.service, func(t *testing.T) {
			svc, err := NewServiceFactory(testContainer(t, tt.service)).Create()
			if err != nil {
				t.Fatalf("Create: %v", err)
			}

			var topics []string
			for _, sub := range svc.Subscriptions {
				if sub.Handler == nil {
					t.Errorf("subscription %s has no handler", sub.Topic)
				}
				topics = append(topics, sub.Topic)
			}
			if !slices.Equal(topics, tt.topics) {
				t.Errorf("expected topics %v, got %v", tt.topics, topics)
			}

			if tt.route == "" {
				return
			}
			router := httpapi.NewRouter(zap.NewNop(), svc.Routes...)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.route, nil))
			if w.Code != http.StatusNotFound {
				t.Errorf("expected the empty store to answer 404 on %s, got %d", tt.route, w.Code)
			}
		})
	}
}

func TestServiceFactory_UnknownService(t *testing.T) {
	c := testContainer(t, "shipping-service")
	if _, err := NewServiceFactory(c).Create(); err == nil {
		t.Fatal("expected an error for an unknown service")
	}
}
