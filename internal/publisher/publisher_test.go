package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ADovhal/TeIpsum-Store-sub001/internal/deadletter"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/events"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/platform/kafka"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/retry"

	"github.com/cenkalti/backoff/v4"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// flakyProducer fails the first failures writes, then accepts.
type flakyProducer struct {
	mu       sync.Mutex
	failures int
	err      error
	calls    int
	written  []kafkago.Message
}

func (p *flakyProducer) WriteMessage(_ context.Context, msg kafkago.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls <= p.failures {
		return p.err
	}
	p.written = append(p.written, msg)
	return nil
}

func (p *flakyProducer) Close() error { return nil }

func (p *flakyProducer) snapshot() (int, []kafkago.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls, append([]kafkago.Message(nil), p.written...)
}

type recordingTimer struct {
	mu     sync.Mutex
	delays []time.Duration
	c      chan time.Time
}

func (t *recordingTimer) Start(d time.Duration) {
	t.mu.Lock()
	t.delays = append(t.delays, d)
	t.mu.Unlock()
	t.c <- time.Now()
}
func (t *recordingTimer) Stop()               {}
func (t *recordingTimer) C() <-chan time.Time { return t.c }

func newTestPublisher(producer kafka.Producer) (*Publisher, *deadletter.MemorySink, *recordingTimer) {
	timer := &recordingTimer{c: make(chan time.Time, 1)}
	retrier := retry.NewRetrier(retry.PublishPolicy(time.Second), retry.NewClassifier(),
		retry.WithTimer(func() backoff.Timer { return timer }))
	sink := deadletter.NewMemorySink()
	return New(producer, retrier, sink, zap.NewNop()), sink, timer
}

func stockAdjusted(t *testing.T) events.Envelope {
	t.Helper()
	env, err := events.New(events.StockAdjusted, "inventory-service", events.StockAdjustedPayload{ProductID: "p1", NewQuantity: 4})
	if err != nil {
		t.Fatalf("events.New: %v", err)
	}
	return env
}

func TestPublish_SucceedsOnThirdAttempt(t *testing.T) {
	producer := &flakyProducer{failures: 2, err: errors.New("connection reset")}
	p, sink, timer := newTestPublisher(producer)
	env := stockAdjusted(t)

	if err := p.Publish(context.Background(), events.TopicStockAdjusted, "p1", env); err != nil {
		t.Fatalf("expected delivery, got %v", err)
	}

	calls, written := producer.snapshot()
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if len(written) != 1 {
		t.Fatalf("expected the event on the bus, got %d messages", len(written))
	}
	if len(timer.delays) != 2 || timer.delays[0] < time.Second || timer.delays[1] < 2*time.Second {
		t.Errorf("expected delays >= 1s, >= 2s, got %v", timer.delays)
	}
	if n := len(sink.Records()); n != 0 {
		t.Errorf("expected no dead letters, got %d", n)
	}

	msg := written[0]
	if msg.Topic != events.TopicStockAdjusted || string(msg.Key) != "p1" {
		t.Errorf("unexpected addressing: topic=%q key=%q", msg.Topic, msg.Key)
	}
	if got := kafka.HeaderValue(msg.Headers, events.HeaderEventID); got != env.EventID {
		t.Errorf("expected event-id header %q, got %q", env.EventID, got)
	}
	var decoded events.Envelope
	if err := json.Unmarshal(msg.Value, &decoded); err != nil || decoded.EventID != env.EventID {
		t.Errorf("expected envelope in value, got %s (%v)", msg.Value, err)
	}
}

func TestPublish_DeadLettersOnceAfterExhaustion(t *testing.T) {
	producer := &flakyProducer{failures: 100, err: errors.New("timeout")}
	p, sink, _ := newTestPublisher(producer)

	err := p.Publish(context.Background(), events.TopicStockAdjusted, "p1", stockAdjusted(t))

	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}
	var de *DeliveryError
	if !errors.As(err, &de) || de.Attempts != 3 {
		t.Fatalf("expected DeliveryError with 3 attempts, got %#v", err)
	}
	if calls, _ := producer.snapshot(); calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}

	records := sink.Records()
	if len(records) != 1 {
		t.Fatalf("expected exactly one dead letter, got %d", len(records))
	}
	rec := records[0]
	if rec.Stage != deadletter.StagePublish || rec.Topic != events.TopicStockAdjusted || rec.Key != "p1" {
		t.Errorf("unexpected dead letter: %+v", rec)
	}
	if rec.Reason != "timeout" || len(rec.Payload) == 0 || rec.FailedAt.IsZero() {
		t.Errorf("dead letter missing details: %+v", rec)
	}
}

func TestPublish_MalformedIsNotRetried(t *testing.T) {
	tests := []struct {
		name     string
		producer *flakyProducer
		env      func(t *testing.T) events.Envelope
		calls    int
	}{
		{
			name:     "unencodable envelope",
			producer: &flakyProducer{},
			env: func(t *testing.T) events.Envelope {
				env := stockAdjusted(t)
				env.Data = json.RawMessage("{broken")
				return env
			},
			calls: 0,
		},
		{
			name:     "message too large",
			producer: &flakyProducer{failures: 100, err: kafkago.MessageSizeTooLarge},
			env:      stockAdjusted,
			calls:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, sink, timer := newTestPublisher(tt.producer)

			err := p.Publish(context.Background(), events.TopicStockAdjusted, "p1", tt.env(t))
			if !errors.Is(err, ErrDeliveryFailed) {
				t.Fatalf("expected ErrDeliveryFailed, got %v", err)
			}
			if calls, _ := tt.producer.snapshot(); calls != tt.calls {
				t.Errorf("expected %d send(s), got %d", tt.calls, calls)
			}
			if len(timer.delays) != 0 {
				t.Errorf("expected no backoff, got %v", timer.delays)
			}
			if n := len(sink.Records()); n != 1 {
				t.Errorf("expected one dead letter, got %d", n)
			}
		})
	}
}

func TestAfterCommit_FailedCommitPublishesNothing(t *testing.T) {
	producer := &flakyProducer{}
	p, _, _ := newTestPublisher(producer)
	commitErr := errors.New("constraint violation")

	done, err := p.AfterCommit(context.Background(),
		func(context.Context) error { return commitErr },
		NewMessage("p1", stockAdjusted(t)),
	)

	if !errors.Is(err, commitErr) {
		t.Fatalf("expected commit error, got %v", err)
	}
	if done != nil {
		t.Fatal("expected no delivery channel")
	}
	p.Wait()
	if calls, _ := producer.snapshot(); calls != 0 {
		t.Fatalf("expected no sends, got %d", calls)
	}
}

func TestAfterCommit_PublishesAfterCallerCancels(t *testing.T) {
	producer := &flakyProducer{}
	p, _, _ := newTestPublisher(producer)

	ctx, cancel := context.WithCancel(context.Background())
	committed := false
	done, err := p.AfterCommit(ctx,
		func(context.Context) error { committed = true; return nil },
		NewMessage("p1", stockAdjusted(t)),
		NewMessage("p1", stockAdjusted(t)),
	)
	cancel()

	if err != nil || !committed {
		t.Fatalf("expected commit to run, err=%v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("expected async delivery, got %v", err)
	}
	if _, written := producer.snapshot(); len(written) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(written))
	}
}

func TestWatchDelivery_WarnsOnFailedDelivery(t *testing.T) {
	producer := &flakyProducer{failures: 100, err: errors.New("broker down")}
	p, sink, _ := newTestPublisher(producer)
	core, logs := observer.New(zapcore.WarnLevel)

	done, err := p.AfterCommit(context.Background(),
		func(context.Context) error { return nil },
		NewMessage("o1", stockAdjusted(t)),
	)
	if err != nil {
		t.Fatalf("AfterCommit: %v", err)
	}
	WatchDelivery(done, zap.New(core), zap.String("order_id", "o1"))

	warnings := logs.FilterMessageSnippet("not delivered").All()
	if len(warnings) != 1 {
		t.Fatalf("expected one delivery warning, got %d", len(warnings))
	}
	if got := warnings[0].ContextMap()["order_id"]; got != "o1" {
		t.Errorf("expected order_id field, got %v", got)
	}
	if len(sink.Records()) != 1 {
		t.Errorf("expected the event dead-lettered, got %d records", len(sink.Records()))
	}
}

func TestWatchDelivery_QuietOnSuccess(t *testing.T) {
	p, _, _ := newTestPublisher(&flakyProducer{})
	core, logs := observer.New(zapcore.WarnLevel)

	WatchDelivery(p.PublishAsync(context.Background(), NewMessage("p1", stockAdjusted(t))), zap.New(core))
	WatchDelivery(nil, zap.New(core))

	if logs.Len() != 0 {
		t.Fatalf("expected no warnings, got %v", logs.All())
	}
}
