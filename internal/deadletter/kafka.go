package deadletter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ADovhal/TeIpsum-Store-sub001/internal/events"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/platform/kafka"

	kafkago "github.com/segmentio/kafka-go"
)

// KafkaSink publishes records to the dead-letter topic, keyed by the original message key.
type KafkaSink struct {
	producer kafka.Producer
}

func NewKafkaSink(producer kafka.Producer) *KafkaSink {
	return &KafkaSink{producer: producer}
}

func (s *KafkaSink) Record(ctx context.Context, rec Record) error {
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode dead letter: %w", err)
	}

	msg := kafkago.Message{
		Topic: events.TopicDeadLetter,
		Key:   []byte(rec.Key),
		Value: value,
		Headers: []kafkago.Header{
			{Key: "dlq-original-topic", Value: []byte(rec.Topic)},
			{Key: "dlq-stage", Value: []byte(rec.Stage)},
		},
	}
	if err := s.producer.WriteMessage(ctx, msg); err != nil {
		return fmt.Errorf("write dead letter: %w", err)
	}
	return nil
}
