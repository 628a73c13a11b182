// Package broker defines the publish/subscribe contracts the producer and
// consumer loops are written against. Implementations live in the kafka and
// mqtt subpackages.
package broker

import (
	"context"
	"errors"
	"fmt"

	"weatherstream/internal/weather"
)

// ErrClosed is returned by a Subscriber after Close and wrapped in the
// FatalFailure outcome of a closed Publisher.
var ErrClosed = errors.New("broker: closed")

// Message is one delivery pulled from a topic.
type Message struct {
	// ID identifies the delivery in logs: the message-id header on Kafka,
	// the packet id on MQTT.
	ID        string
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
}

// Identity renders the message for log lines.
func (m Message) Identity() string {
	if m.ID != "" {
		return fmt.Sprintf("%s/%d@%d id=%s", m.Topic, m.Partition, m.Offset, m.ID)
	}
	return fmt.Sprintf("%s/%d@%d", m.Topic, m.Partition, m.Offset)
}

type Publisher interface {
	// Publish encodes r and blocks until the broker acknowledged it or the
	// attempts were exhausted.
	Publish(ctx context.Context, topic string, r weather.Reading) weather.Outcome
	// Close flushes pending writes and releases the connection. Idempotent.
	Close() error
}

type Subscriber interface {
	// Next blocks until a message is available, ctx is done, or the
	// subscriber is closed (ErrClosed).
	Next(ctx context.Context) (Message, error)
	Close() error
}
