package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"weatherstream/internal/broker"
	"weatherstream/internal/weather"
)

type Publisher struct {
	*conn
	timeout  time.Duration
	attempts int
	backoff  time.Duration

	mu sync.Mutex
}

var _ broker.Publisher = (*Publisher)(nil)

// NewPublisher connects to the broker and returns once the first
// connection succeeded.
func NewPublisher(ctx context.Context, o Options, logger *slog.Logger) (*Publisher, error) {
	c := newConn(logger)
	c.client = mqtt.NewClient(c.clientOptions(o, true))
	p := newPublisher(c, o)
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func newPublisher(c *conn, o Options) *Publisher {
	timeout := o.PublishTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	attempts := o.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	return &Publisher{conn: c, timeout: timeout, attempts: attempts, backoff: 500 * time.Millisecond}
}

// Publish sends r with QoS 1 and waits for PUBACK. Each attempt is bounded
// by the publish timeout.
func (p *Publisher) Publish(ctx context.Context, topic string, r weather.Reading) weather.Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped() {
		return weather.FatalFailure(broker.ErrClosed)
	}

	payload, err := weather.Encode(r)
	if err != nil {
		return weather.RetriableFailure(fmt.Errorf("encode reading: %w", err))
	}

	var errs []error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		err := p.publishOnce(topic, payload)
		if err == nil {
			p.logger.Debug("published reading", "topic", topic, "city", r.City, "attempt", attempt)
			return weather.Delivered()
		}
		errs = append(errs, fmt.Errorf("attempt %d: %w", attempt, err))
		p.logger.Warn("mqtt publish attempt failed", "topic", topic, "city", r.City, "attempt", attempt, "error", err)

		if attempt == p.attempts {
			break
		}
		select {
		case <-ctx.Done():
			errs = append(errs, ctx.Err())
			return weather.RetriableFailure(fmt.Errorf("mqtt publish: %w", errors.Join(errs...)))
		case <-p.stopCh:
			return weather.FatalFailure(broker.ErrClosed)
		case <-time.After(p.backoff):
		}
	}
	return weather.RetriableFailure(fmt.Errorf("mqtt publish: %w", errors.Join(errs...)))
}

func (p *Publisher) publishOnce(topic string, payload []byte) error {
	if !p.isConnected() {
		return errors.New("not connected")
	}
	return waitToken(p.client.Publish(topic, qos, false, payload), p.timeout)
}

func (p *Publisher) Close() error {
	p.disconnect()
	return nil
}
