package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"weatherstream/internal/broker"
)

const subscribeTimeout = 5 * time.Second

// Subscriber turns paho's callback delivery into a pull API. Each message
// is acknowledged only after Next has taken it.
type Subscriber struct {
	*conn
	topic  string
	filter string
	msgs   chan mqtt.Message
}

var _ broker.Subscriber = (*Subscriber)(nil)

// NewSubscriber connects with a persistent session and subscribes to topic.
// A refused subscription fails construction.
func NewSubscriber(ctx context.Context, o Options, topic string, logger *slog.Logger) (*Subscriber, error) {
	c := newConn(logger)
	opts := c.clientOptions(o, false)
	opts.SetAutoAckDisabled(true)
	opts.SetOrderMatters(true)
	c.client = mqtt.NewClient(opts)

	s := newSubscriber(c, topic, o.Group)
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	if err := s.subscribe(); err != nil {
		c.disconnect()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	return s, nil
}

func newSubscriber(c *conn, topic, group string) *Subscriber {
	filter := topic
	if group != "" {
		filter = fmt.Sprintf("$share/%s/%s", group, topic)
	}
	return &Subscriber{conn: c, topic: topic, filter: filter, msgs: make(chan mqtt.Message)}
}

func (s *Subscriber) subscribe() error {
	token := s.client.Subscribe(s.filter, qos, s.handle)
	if err := waitToken(token, subscribeTimeout); err != nil {
		return fmt.Errorf("subscribe to %s: %w", s.filter, err)
	}
	if st, ok := token.(*mqtt.SubscribeToken); ok {
		for filter, code := range st.Result() {
			if code == 0x80 {
				return fmt.Errorf("broker refused subscription to %s", filter)
			}
		}
	}
	s.logger.Info("subscribed to mqtt topic", "filter", s.filter, "qos", qos)
	return nil
}

// handle runs on paho's router goroutine. A message that was never handed
// off stays unacknowledged and is redelivered when the session resumes.
func (s *Subscriber) handle(_ mqtt.Client, m mqtt.Message) {
	select {
	case s.msgs <- m:
		m.Ack()
	case <-s.stopCh:
	}
}

func (s *Subscriber) Next(ctx context.Context) (broker.Message, error) {
	if s.stopped() {
		return broker.Message{}, broker.ErrClosed
	}
	select {
	case m := <-s.msgs:
		return broker.Message{
			ID:    strconv.Itoa(int(m.MessageID())),
			Topic: m.Topic(),
			Value: m.Payload(),
		}, nil
	case <-ctx.Done():
		return broker.Message{}, ctx.Err()
	case <-s.stopCh:
		return broker.Message{}, broker.ErrClosed
	}
}

// Close disconnects without unsubscribing so the broker keeps queueing for
// the session.
func (s *Subscriber) Close() error {
	s.disconnect()
	return nil
}

