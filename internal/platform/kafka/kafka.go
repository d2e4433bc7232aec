package kafka

import (
	"context"

	"github.com/ADovhal/TeIpsum-Store-sub001/internal/config"

	otelkafka "github.com/Trendyol/otel-kafka-konsumer"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// newBaseWriter configures the kafka-go writer. The Hash balancer maps every key to a fixed
// partition, which is what gives per-key ordering. MaxAttempts is 1: the writer makes a single
// attempt per call and retries belong to the publisher's policy.
func newBaseWriter(cfg *config.Config) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.KafkaBrokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            1,
		BatchTimeout:           config.BatchTimeout,
		BatchSize:              config.BatchSize,
		WriteTimeout:           config.WriteTimeout,
		AllowAutoTopicCreation: true,
	}
}

// NewWriter creates an instrumented writer.
func NewWriter(cfg *config.Config, tp trace.TracerProvider) (Producer, error) {
	writer, err := otelkafka.NewWriter(newBaseWriter(cfg),
		otelkafka.WithTracerProvider(tp),
		otelkafka.WithPropagator(propagation.TraceContext{}),
		otelkafka.WithAttributes(
			[]attribute.KeyValue{
				semconv.MessagingSystemKafka,
				attribute.String("messaging.kafka.client_id", cfg.ServiceName),
			},
		),
	)
	if err != nil {
		return nil, err
	}
	return writer, nil
}

// NewReaderFactory returns a factory of instrumented group readers.
func NewReaderFactory(cfg *config.Config, tp trace.TracerProvider) ReaderFactory {
	return func(topic string) (Consumer, error) {
		baseReader := kafka.NewReader(kafka.ReaderConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   topic,
			GroupID: cfg.GroupID,
		})

		reader, err := otelkafka.NewReader(baseReader,
			otelkafka.WithTracerProvider(tp),
			otelkafka.WithPropagator(propagation.TraceContext{}),
			otelkafka.WithAttributes(
				[]attribute.KeyValue{
					semconv.MessagingDestinationNameKey.String(topic),
					attribute.String("messaging.kafka.consumer_group", cfg.GroupID),
				},
			),
		)
		if err != nil {
			_ = baseReader.Close()
			return nil, err
		}
		return reader, nil
	}
}

// ExtractTraceContext extracts OpenTelemetry trace context from Kafka message headers
func ExtractTraceContext(ctx context.Context, headers []kafka.Header) context.Context {
	carrier := propagation.MapCarrier{}
	for _, header := range headers {
		carrier[string(header.Key)] = string(header.Value)
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// HeaderValue returns the value of the first header named key.
func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
