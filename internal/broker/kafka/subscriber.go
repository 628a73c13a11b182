package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"weatherstream/internal/broker"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

const closeCommitTimeout = 5 * time.Second

type Subscriber struct {
	reader messageReader
	topic  string
	logger *slog.Logger

	// pending is the last message handed out and not yet committed.
	mu      sync.Mutex
	pending *kafkago.Message

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

var _ broker.Subscriber = (*Subscriber)(nil)

// NewSubscriber checks that the bootstrap server answers and the topic has
// partitions, then joins the consumer group. New groups start from the
// earliest offset. A message's offset is committed on the following Next
// call, or on Close, so a crash before then redelivers it.
func NewSubscriber(ctx context.Context, opts Options, topic string, logger *slog.Logger) (*Subscriber, error) {
	if len(opts.Brokers) == 0 {
		return nil, errors.New("kafka: no bootstrap servers")
	}
	if opts.Group == "" {
		return nil, errors.New("kafka: consumer group is required")
	}
	if err := probe(ctx, opts, topic); err != nil {
		return nil, err
	}

	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:        opts.Brokers,
		GroupID:        opts.Group,
		Topic:          topic,
		StartOffset:    kafkago.FirstOffset,
		CommitInterval: 0,
		MinBytes:       1,
		MaxBytes:       10e6,
		Dialer:         opts.dialer(),
	})
	return newSubscriber(r, topic, logger), nil
}

func newSubscriber(r messageReader, topic string, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{reader: r, topic: topic, logger: logger}
}

func probe(ctx context.Context, opts Options, topic string) error {
	conn, err := opts.dialer().DialContext(ctx, "tcp", opts.Brokers[0])
	if err != nil {
		return fmt.Errorf("kafka: dial %s: %w", opts.Brokers[0], err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions(topic)
	if err != nil {
		return fmt.Errorf("kafka: read partitions of %q: %w", topic, err)
	}
	if len(partitions) == 0 {
		return fmt.Errorf("kafka: topic %q has no partitions", topic)
	}
	return nil
}

func (s *Subscriber) Next(ctx context.Context) (broker.Message, error) {
	if s.closed.Load() {
		return broker.Message{}, broker.ErrClosed
	}
	if err := s.commitPending(ctx); err != nil {
		if s.closed.Load() {
			return broker.Message{}, broker.ErrClosed
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return broker.Message{}, ctxErr
		}
		return broker.Message{}, fmt.Errorf("kafka commit: %w", err)
	}

	m, err := s.reader.FetchMessage(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) || s.closed.Load() {
			return broker.Message{}, broker.ErrClosed
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return broker.Message{}, ctxErr
		}
		return broker.Message{}, fmt.Errorf("kafka read: %w", err)
	}

	s.mu.Lock()
	s.pending = &m
	s.mu.Unlock()

	msg := broker.Message{
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Key:       m.Key,
		Value:     m.Value,
	}
	for _, h := range m.Headers {
		if h.Key == headerMessageID {
			msg.ID = string(h.Value)
			break
		}
	}
	return msg, nil
}

// commitPending commits the previously handed-out message. On failure the
// message stays pending and the commit is retried by the next call.
func (s *Subscriber) commitPending(ctx context.Context) error {
	s.mu.Lock()
	m := s.pending
	s.mu.Unlock()
	if m == nil {
		return nil
	}
	if err := s.reader.CommitMessages(ctx, *m); err != nil {
		return err
	}
	s.mu.Lock()
	if s.pending == m {
		s.pending = nil
	}
	s.mu.Unlock()
	return nil
}

func (s *Subscriber) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		ctx, cancel := context.WithTimeout(context.Background(), closeCommitTimeout)
		commitErr := s.commitPending(ctx)
		cancel()
		if commitErr != nil {
			s.logger.Warn("kafka final commit failed, last message will be redelivered",
				"topic", s.topic, "error", commitErr)
		}
		if err := s.reader.Close(); err != nil {
			s.closeErr = fmt.Errorf("close kafka reader: %w", err)
		}
		s.logger.Info("kafka subscriber closed", "topic", s.topic)
	})
	return s.closeErr
}
