package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"weatherstream/internal/broker"
	"weatherstream/internal/weather"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

type Publisher struct {
	writer  messageWriter
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
}

var _ broker.Publisher = (*Publisher)(nil)

// NewPublisher checks that topic is reachable, then builds a synchronous
// writer that waits for all in-sync replicas and sends one message per
// request.
func NewPublisher(ctx context.Context, opts Options, topic string, logger *slog.Logger) (*Publisher, error) {
	if len(opts.Brokers) == 0 {
		return nil, errors.New("kafka: no bootstrap servers")
	}
	if err := probe(ctx, opts, topic); err != nil {
		return nil, err
	}
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	timeout := opts.PublishTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(opts.Brokers...),
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		MaxAttempts:  attempts,
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: timeout,
		Async:        false,
		Transport:    opts.transport(),
	}
	return newPublisher(w, timeout, logger), nil
}

func newPublisher(w messageWriter, timeout time.Duration, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{writer: w, timeout: timeout, logger: logger}
}

func (p *Publisher) Publish(ctx context.Context, topic string, r weather.Reading) weather.Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return weather.FatalFailure(broker.ErrClosed)
	}

	payload, err := weather.Encode(r)
	if err != nil {
		return weather.RetriableFailure(fmt.Errorf("encode reading: %w", err))
	}

	id := uuid.NewString()
	msg := kafkago.Message{
		Topic:   topic,
		Key:     []byte(r.City),
		Value:   payload,
		Headers: []kafkago.Header{{Key: headerMessageID, Value: []byte(id)}},
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Warn("kafka publish failed", "topic", topic, "city", r.City, "message_id", id, "error", err)
		return weather.RetriableFailure(fmt.Errorf("kafka publish: %w", err))
	}

	p.logger.Debug("published reading", "topic", topic, "city", r.City, "message_id", id)
	return weather.Delivered()
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("close kafka writer: %w", err)
	}
	return nil
}
