// Package mqtt implements the broker contracts on an MQTT broker with
// QoS 1 delivery.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const qos = byte(1)

var errStopped = errors.New("mqtt client stopped")

type Options struct {
	Broker   string
	Port     int
	ClientID string
	// Group turns the subscription into a shared one ($share/<group>/<topic>).
	Group string

	PublishTimeout time.Duration
	MaxAttempts    int
}

func (o Options) brokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", o.Broker, o.Port)
}

// conn tracks the connection state of one paho client.
type conn struct {
	client    mqtt.Client
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

func newConn(logger *slog.Logger) *conn {
	if logger == nil {
		logger = slog.Default()
	}
	return &conn{logger: logger, stopCh: make(chan struct{})}
}

// clientOptions returns the settings shared by publisher and subscriber.
// cleanSession is false for subscribers so QoS 1 messages queue on the
// broker while the consumer is away.
func (c *conn) clientOptions(o Options, cleanSession bool) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(o.brokerURL())
	opts.SetClientID(o.ClientID)
	opts.SetCleanSession(cleanSession)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		c.setConnected(true)
		c.logger.Info("mqtt connected", "broker", o.Broker, "port", o.Port, "client_id", o.ClientID)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.setConnected(false)
		c.logger.Warn("mqtt connection lost", "error", err)
	})
	return opts
}

// connect waits for the initial connection, honoring ctx and stop.
func (c *conn) connect(ctx context.Context) error {
	select {
	case <-c.stopCh:
		return errStopped
	default:
	}
	if c.isConnected() {
		return nil
	}

	token := c.client.Connect()
	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			c.setConnected(true)
			return nil
		}
		select {
		case <-ctx.Done():
			c.client.Disconnect(0)
			return ctx.Err()
		case <-c.stopCh:
			c.client.Disconnect(0)
			return errStopped
		default:
		}
	}
}

func (c *conn) isConnected() bool {
	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()
	return connected && c.client.IsConnected()
}

func (c *conn) stopped() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

// disconnect is idempotent. Paho quiesces in-flight work for 250ms.
func (c *conn) disconnect() {
	first := false
	c.stopOnce.Do(func() {
		close(c.stopCh)
		first = true
	})
	if !first {
		return
	}
	if c.client != nil {
		c.client.Disconnect(250)
	}
	c.setConnected(false)
	c.logger.Info("mqtt disconnected")
}

func (c *conn) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

// waitToken waits for a paho token, giving up after timeout.
func waitToken(t mqtt.Token, timeout time.Duration) error {
	if !t.WaitTimeout(timeout) {
		return fmt.Errorf("timed out after %v", timeout)
	}
	return t.Error()
}
