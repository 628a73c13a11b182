// Package kafka implements the broker contracts on top of segmentio/kafka-go.
package kafka

import (
	"crypto/tls"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
)

const headerMessageID = "message-id"

// Options configure both the publisher and the subscriber.
type Options struct {
	Brokers []string
	// Group is the consumer group id. Unused by the publisher.
	Group string

	// SASL/PLAIN over TLS is enabled when both are set.
	Username string
	Password string

	// PublishTimeout bounds a single Publish including its internal retries.
	PublishTimeout time.Duration
	// MaxAttempts is the writer's transport attempt budget per message.
	MaxAttempts int

	DialTimeout time.Duration
}

func (o Options) mechanism() sasl.Mechanism {
	if o.Username == "" || o.Password == "" {
		return nil
	}
	return plain.Mechanism{Username: o.Username, Password: o.Password}
}

func (o Options) tlsConfig() *tls.Config {
	if o.mechanism() == nil {
		return nil
	}
	return &tls.Config{MinVersion: tls.VersionTLS12}
}

func (o Options) dialer() *kafkago.Dialer {
	timeout := o.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &kafkago.Dialer{
		Timeout:       timeout,
		DualStack:     true,
		SASLMechanism: o.mechanism(),
		TLS:           o.tlsConfig(),
	}
}

func (o Options) transport() *kafkago.Transport {
	return &kafkago.Transport{
		SASL: o.mechanism(),
		TLS:  o.tlsConfig(),
	}
}
