package app

import (
	"fmt"

	"github.com/ADovhal/TeIpsum-Store-sub001/internal/accounts"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/catalog"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/config"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/consumer"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/correlation"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/events"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/httpapi"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/identity"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/inventory"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/orders"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/saga"
)

// Service is one binary's business wiring: the topics it consumes and the endpoints it serves.
type Service struct {
	Subscriptions []consumer.Subscription
	Routes        []httpapi.Routes
}

func subscribe(h consumer.Handler, topics ...string) []consumer.Subscription {
	subs := make([]consumer.Subscription, 0, len(topics))
	for _, t := range topics {
		subs = append(subs, consumer.Subscription{Topic: t, Handler: h})
	}
	return subs
}

// ServiceFactory creates business logic services with their dependencies
type ServiceFactory struct {
	c *Container
}

// NewServiceFactory creates a new service factory
func NewServiceFactory(c *Container) *ServiceFactory {
	return &ServiceFactory{c: c}
}

// Create builds the service named in the configuration.
func (f *ServiceFactory) Create() (*Service, error) {
	switch name := f.c.config.ServiceName; name {
	case config.CatalogService:
		return f.CreateCatalogService(), nil
	case config.InventoryService:
		return f.CreateInventoryService(), nil
	case config.OrderService:
		return f.CreateOrderService(), nil
	case config.UserService:
		return f.CreateUserService(), nil
	case config.AuthService:
		return f.CreateAuthService(), nil
	default:
		return nil, fmt.Errorf("unknown service %q", name)
	}
}

func (f *ServiceFactory) CreateCatalogService() *Service {
	var store catalog.Store = catalog.NewMemoryStore()
	if db := f.c.db; db != nil {
		store = catalog.NewPostgresStore(db)
	}

	cat := catalog.New(store, f.c.config.CacheSize, f.c.config.CacheTTL, f.c.logger)
	projector := catalog.NewProjector(cat, f.c.logger)

	return &Service{
		Subscriptions: subscribe(projector,
			events.TopicProductCreated,
			events.TopicProductUpdated,
			events.TopicProductDeleted,
		),
		Routes: []httpapi.Routes{httpapi.NewCatalogHandler(cat, f.c.logger)},
	}
}

func (f *ServiceFactory) CreateInventoryService() *Service {
	var store inventory.StockStore = inventory.NewMemoryStore()
	if db := f.c.db; db != nil {
		store = inventory.NewPostgresStore(db)
	}

	engine := inventory.NewEngine(store, f.c.publisher, f.c.logger,
		inventory.WithTracer(f.c.tracer),
		inventory.WithMetrics(f.c.metrics),
	)

	return &Service{
		Subscriptions: subscribe(engine,
			events.TopicProductCreated,
			events.TopicProductDeleted,
			events.TopicOrderCreated,
			events.TopicOrderCancelled,
		),
		Routes: []httpapi.Routes{httpapi.NewStockHandler(engine, f.c.logger)},
	}
}

func (f *ServiceFactory) CreateOrderService() *Service {
	var store orders.Store = orders.NewMemoryStore()
	if db := f.c.db; db != nil {
		store = orders.NewPostgresStore(db)
	}

	svc := orders.NewService(store, f.c.publisher, f.c.logger)
	responder := orders.NewResponder(store, f.c.publisher, f.c.logger)

	return &Service{
		Subscriptions: subscribe(responder,
			events.TopicOrderInfoRequest,
			events.TopicUserDeletionRequested,
		),
		Routes: []httpapi.Routes{httpapi.NewOrderHandler(svc, f.c.logger)},
	}
}

func (f *ServiceFactory) CreateUserService() *Service {
	var profiles accounts.Store = accounts.NewMemoryStore()
	if db := f.c.db; db != nil {
		profiles = accounts.NewPostgresStore(db)
	}

	cache := correlation.New[saga.Summary](0, f.c.config.CorrelationTTL)
	coordinator := saga.NewCoordinator(profiles, cache, f.c.publisher, f.c.config.SagaInfoTimeout, f.c.logger,
		saga.WithTracer(f.c.tracer),
		saga.WithMetrics(f.c.metrics),
	)

	return &Service{
		Subscriptions: subscribe(coordinator,
			events.TopicOrderInfoResponse,
			events.TopicUserOrdersAnonymized,
		),
		Routes: []httpapi.Routes{httpapi.NewUserHandler(profiles, coordinator, f.c.logger)},
	}
}

func (f *ServiceFactory) CreateAuthService() *Service {
	var store identity.Store = identity.NewMemoryStore()
	if db := f.c.db; db != nil {
		store = identity.NewPostgresStore(db)
	}

	return &Service{
		Subscriptions: subscribe(identity.NewPurger(store, f.c.logger), events.TopicUserDeletionCompleted),
	}
}
