package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ADovhal/TeIpsum-Store-sub001/internal/config"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/consumer"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/deadletter"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/platform/kafka"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/platform/observability"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/platform/postgres"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/publisher"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/retry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Container holds expensive-to-create singleton resources and dependencies
type Container struct {
	config    *config.Config
	logger    observability.Logger
	tracer    observability.Tracer
	metrics   *observability.Metrics
	producer  kafka.Producer
	readers   kafka.ReaderFactory
	db        *sql.DB
	sink      deadletter.Sink
	publisher *publisher.Publisher
	runner    *consumer.Runner
	shutdowns []func(context.Context) error
}

// NewContainer creates and initializes all infrastructure components for the named service
func NewContainer(ctx context.Context, service string) (*Container, error) {
	cfg, err := config.LoadConfig(service)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return newContainer(ctx, cfg)
}

func newContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	c := &Container{config: cfg}

	// Start with basic logger
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	c.logger = logger

	tp, err := c.setupObservability(ctx)
	if err != nil {
		return nil, err
	}

	if err := c.setupStorage(ctx); err != nil {
		c.Shutdown(context.Background())
		return nil, err
	}

	if err := c.setupMessaging(tp); err != nil {
		c.Shutdown(context.Background())
		return nil, err
	}

	return c, nil
}

// setupObservability configures OpenTelemetry logging, tracing and metrics, then re-initializes
// the logger with the OTel bridge. Without a collector the global no-op providers stay in place.
func (c *Container) setupObservability(ctx context.Context) (trace.TracerProvider, error) {
	observability.SetupPropagation()

	if c.config.TelemetryEnabled() {
		otelLogShutdown, err := observability.SetupLoggingSDK(ctx, c.config)
		if err != nil {
			c.logger.Error("Failed to setup OpenTelemetry logging", zap.Error(err))
		}
		c.addShutdown(otelLogShutdown)

		_, otelTraceShutdown, err := observability.SetupTracingSDK(ctx, c.config)
		if err != nil {
			c.logger.Error("Failed to setup OpenTelemetry tracing", zap.Error(err))
		}
		c.addShutdown(otelTraceShutdown)

		otelMetricShutdown, err := observability.SetupMetricsSDK(ctx, c.config)
		if err != nil {
			c.logger.Error("Failed to setup OpenTelemetry metrics", zap.Error(err))
		}
		c.addShutdown(otelMetricShutdown)
	}

	c.logger = observability.NewLogger(c.config.ServiceName)
	c.logger.Info("Logger re-initialized with OpenTelemetry bridge",
		zap.Bool("telemetry_enabled", c.config.TelemetryEnabled()),
	)

	c.tracer = otel.Tracer(c.config.ServiceName)

	metrics, err := observability.NewMetrics(otel.Meter(c.config.ServiceName))
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	c.metrics = metrics

	return otel.GetTracerProvider(), nil
}

// setupStorage connects to Postgres when DATABASE_URL is set. Otherwise the service runs on in-memory stores.
func (c *Container) setupStorage(ctx context.Context) error {
	if c.config.DatabaseURL == "" {
		c.logger.Warn("DATABASE_URL not set, using in-memory stores")
		return nil
	}

	db, err := postgres.Connect(ctx, c.config.DatabaseURL, c.logger)
	if err != nil {
		return err
	}
	c.db = db
	c.addShutdown(func(context.Context) error { return db.Close() })

	return postgres.RunMigrations(ctx, db, c.config.ServiceName, c.logger)
}

// setupMessaging initializes the Kafka writer, the reader factory and the components built on them
func (c *Container) setupMessaging(tp trace.TracerProvider) error {
	producer, err := kafka.NewWriter(c.config, tp)
	if err != nil {
		return fmt.Errorf("failed to create kafka writer: %w", err)
	}
	c.producer = producer
	c.readers = kafka.NewReaderFactory(c.config, tp)

	var store deadletter.Sink = deadletter.NewMemorySink()
	if c.db != nil {
		store = deadletter.NewPostgresSink(c.db)
	}
	c.sink = deadletter.Fanout{deadletter.NewKafkaSink(producer), store}

	classifier := retry.NewClassifier(retry.NonRetryableMessages(c.config.NonRetryableErrors...))

	c.publisher = publisher.New(producer,
		retry.NewRetrier(retry.PublishPolicy(c.config.PublishBackoffUnit), classifier),
		c.sink,
		c.logger,
		publisher.WithTracer(c.tracer),
		publisher.WithMetrics(c.metrics),
	)

	c.runner = consumer.NewRunner(c.readers,
		retry.NewRetrier(retry.ConsumePolicy(c.config.ConsumeMaxAttempts, c.config.ConsumeBackoff), classifier),
		c.sink,
		c.logger,
		consumer.WithWorkers(c.config.ConsumerWorkers),
		consumer.WithTracer(c.tracer),
		consumer.WithMetrics(c.metrics),
	)
	return nil
}

func (c *Container) addShutdown(fn func(context.Context) error) {
	if fn != nil {
		c.shutdowns = append(c.shutdowns, fn)
	}
}

// Shutdown gracefully shuts down all infrastructure components
func (c *Container) Shutdown(ctx context.Context) {
	c.logger.Info("Shutting down infrastructure...")

	// Pending post-commit publishes must reach the writer before it closes.
	if c.publisher != nil {
		c.publisher.Wait()
	}

	if c.producer != nil {
		if err := c.producer.Close(); err != nil {
			c.logger.Error("Failed to close message producer", zap.Error(err))
		}
	}

	for i := len(c.shutdowns) - 1; i >= 0; i-- {
		if err := c.shutdowns[i](ctx); err != nil {
			c.logger.Error("Failed to shutdown component", zap.Error(err))
		}
	}
	c.shutdowns = nil

	c.logger.Info("Infrastructure shutdown complete")

	if err := c.logger.Sync(); err != nil {
		// Can't log this error since logger might be closed
		fmt.Printf("Failed to sync logger: %v\n", err)
	}
}

// Getters for accessing infrastructure components
func (c *Container) Config() *config.Config          { return c.config }
func (c *Container) Logger() observability.Logger    { return c.logger }
func (c *Container) Tracer() observability.Tracer    { return c.tracer }
func (c *Container) Metrics() *observability.Metrics { return c.metrics }
func (c *Container) DB() *sql.DB                     { return c.db }
func (c *Container) Publisher() *publisher.Publisher { return c.publisher }
func (c *Container) Runner() *consumer.Runner        { return c.runner }
func (c *Container) DeadLetterSink() deadletter.Sink { return c.sink }
