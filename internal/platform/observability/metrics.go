package observability

import (
	"errors"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics groups the counters shared by the messaging components.
type Metrics struct {
	Published       metric.Int64Counter
	PublishAttempts metric.Int64Counter
	DeadLettered    metric.Int64Counter
	Consumed        metric.Int64Counter
	Depletions      metric.Int64Counter
	InfoTimeouts    metric.Int64Counter
}

// NewMetrics registers the counters on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var m Metrics
	var errs []error

	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit("{event}"))
		errs = append(errs, err)
		return c
	}

	m.Published = counter("events.published", "Events acknowledged by the bus")
	m.PublishAttempts = counter("events.publish_attempts", "Send attempts including retries")
	m.DeadLettered = counter("events.dead_lettered", "Events recorded to the dead-letter sink")
	m.Consumed = counter("events.consumed", "Messages handled by consumer workers")
	m.Depletions = counter("inventory.depletions", "Stock records that reached zero")
	m.InfoTimeouts = counter("saga.info_timeouts", "Deletion info requests that timed out")

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &m, nil
}

// NoopMetrics returns counters that record nothing.
func NoopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter(""))
	return m
}
