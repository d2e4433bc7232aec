package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// Producer publishes messages to the bus. Messages carry their own topic.
type Producer interface {
	WriteMessage(ctx context.Context, msg kafka.Message) error
	Close() error
}

// Consumer reads messages of one topic on behalf of a consumer group. Fetched messages
// are not committed until CommitMessages is called.
type Consumer interface {
	FetchMessage(ctx context.Context, msg *kafka.Message) error
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ReaderFactory opens a Consumer for a topic.
type ReaderFactory func(topic string) (Consumer, error)
