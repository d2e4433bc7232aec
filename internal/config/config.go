package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Service configuration constants
const (
	ServiceVersion = "0.1.0"

	CatalogService   = "catalog-service"
	InventoryService = "inventory-service"
	OrderService     = "order-service"
	UserService      = "user-service"
	AuthService      = "auth-service"
)

// Kafka configuration constants
const (
	BatchTimeout = 10 * time.Millisecond
	BatchSize    = 100
	WriteTimeout = 10 * time.Second
)

// OpenTelemetry configuration constants
const (
	LogsPath        = "/otlp/v1/logs"    // Grafana Cloud OTLP path
	TracesPath      = "/otlp/v1/traces"  // Grafana Cloud OTLP path
	MetricsPath     = "/otlp/v1/metrics" // Grafana Cloud OTLP path
	ExportTimeout   = 30 * time.Second
	MaxQueueSize    = 2048
	MetricsInterval = 15 * time.Second
)

// Config holds environment-specific configuration
type Config struct {
	ServiceName string

	KafkaBrokers    []string
	GroupID         string
	ConsumerWorkers int

	// Empty DatabaseURL selects the in-memory stores.
	DatabaseURL string
	HTTPAddr    string

	OtelEndpoint     string
	OtelAuthHeader   string
	OtelLogsProtocol string

	PublishBackoffUnit time.Duration
	ConsumeMaxAttempts int
	ConsumeBackoff     time.Duration
	NonRetryableErrors []string

	SagaInfoTimeout time.Duration
	CorrelationTTL  time.Duration

	CacheSize int
	CacheTTL  time.Duration
}

// LoadConfig loads configuration for the named service from environment variables with sensible defaults
func LoadConfig(service string) (*Config, error) {
	config := &Config{
		ServiceName:        service,
		KafkaBrokers:       splitList(getEnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		GroupID:            getEnvOrDefault("KAFKA_GROUP_ID", service+"-group"),
		ConsumerWorkers:    getIntOrDefault("CONSUMER_WORKERS", 1),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		HTTPAddr:           getEnvOrDefault("HTTP_ADDR", ":8080"),
		OtelEndpoint:       os.Getenv("OTEL_ENDPOINT"),
		OtelAuthHeader:     os.Getenv("OTEL_AUTH_HEADER"),
		OtelLogsProtocol:   getEnvOrDefault("OTEL_LOGS_PROTOCOL", "http"),
		PublishBackoffUnit: getDurationOrDefault("PUBLISH_BACKOFF_UNIT", time.Second),
		ConsumeMaxAttempts: getIntOrDefault("CONSUME_MAX_ATTEMPTS", 3),
		ConsumeBackoff:     getDurationOrDefault("CONSUME_BACKOFF", 200*time.Millisecond),
		NonRetryableErrors: splitList(os.Getenv("NON_RETRYABLE_ERRORS")),
		SagaInfoTimeout:    getDurationOrDefault("SAGA_INFO_TIMEOUT", 5*time.Second),
		CorrelationTTL:     getDurationOrDefault("CORRELATION_TTL", 0),
		CacheSize:          getIntOrDefault("CACHE_SIZE", 1024),
		CacheTTL:           getDurationOrDefault("CACHE_TTL", 5*time.Minute),
	}

	// Basic validation
	if config.ServiceName == "" {
		return nil, fmt.Errorf("service name cannot be empty")
	}
	if len(config.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS cannot be empty")
	}
	if config.ConsumerWorkers < 1 {
		return nil, fmt.Errorf("CONSUMER_WORKERS must be at least 1, got %d", config.ConsumerWorkers)
	}
	if config.ConsumeMaxAttempts < 1 {
		return nil, fmt.Errorf("CONSUME_MAX_ATTEMPTS must be at least 1, got %d", config.ConsumeMaxAttempts)
	}
	if config.PublishBackoffUnit <= 0 {
		return nil, fmt.Errorf("PUBLISH_BACKOFF_UNIT must be positive")
	}
	if config.SagaInfoTimeout <= 0 {
		return nil, fmt.Errorf("SAGA_INFO_TIMEOUT must be positive")
	}
	switch config.OtelLogsProtocol {
	case "http", "grpc":
	default:
		return nil, fmt.Errorf("OTEL_LOGS_PROTOCOL must be http or grpc, got %q", config.OtelLogsProtocol)
	}
	if config.OtelEndpoint != "" && config.OtelAuthHeader == "" {
		return nil, fmt.Errorf("OTEL_AUTH_HEADER is required when OTEL_ENDPOINT is set")
	}

	return config, nil
}

// TelemetryEnabled reports whether an OTLP collector is configured.
func (c *Config) TelemetryEnabled() bool {
	return c.OtelEndpoint != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}

// getDurationOrDefault accepts Go duration strings ("250ms", "2s").
func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
