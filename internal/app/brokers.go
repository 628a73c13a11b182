package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"weatherstream/internal/broker"
	"weatherstream/internal/broker/kafka"
	"weatherstream/internal/broker/mqtt"
	"weatherstream/internal/config"
)

const connectTimeout = 15 * time.Second

func kafkaOptions(cfg config.Config) kafka.Options {
	return kafka.Options{
		Brokers:        cfg.KafkaBrokers,
		Group:          cfg.KafkaConsumerGroup,
		Username:       cfg.KafkaSASLUsername,
		Password:       cfg.KafkaSASLPassword,
		PublishTimeout: cfg.PublishTimeout,
		MaxAttempts:    cfg.PublishMaxAttempts,
		DialTimeout:    connectTimeout,
	}
}

// mqttOptions picks the client id: MQTT_CLIENT_ID (or "weatherstream") plus
// the role, so both roles can share one env file. Producers get a unique
// suffix; the consumer id must stay stable to resume its persistent session.
func mqttOptions(cfg config.Config, role string) mqtt.Options {
	prefix := cfg.MQTTClientID
	if prefix == "" {
		prefix = "weatherstream"
	}
	clientID := prefix + "-" + role
	if role == roleProducer {
		clientID += "-" + uuid.NewString()[:8]
	}
	return mqtt.Options{
		Broker:         cfg.MQTTBroker,
		Port:           cfg.MQTTPort,
		ClientID:       clientID,
		Group:          cfg.KafkaConsumerGroup,
		PublishTimeout: cfg.PublishTimeout,
		MaxAttempts:    cfg.PublishMaxAttempts,
	}
}

func newPublisher(ctx context.Context, cfg config.Config, logger *slog.Logger) (broker.Publisher, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	switch cfg.BrokerKind {
	case config.BrokerKafka:
		return kafka.NewPublisher(ctx, kafkaOptions(cfg), cfg.KafkaTopic, logger)
	case config.BrokerMQTT:
		return mqtt.NewPublisher(ctx, mqttOptions(cfg, roleProducer), logger)
	default:
		return nil, fmt.Errorf("unsupported broker kind %q", cfg.BrokerKind)
	}
}

func newSubscriber(ctx context.Context, cfg config.Config, logger *slog.Logger) (broker.Subscriber, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	switch cfg.BrokerKind {
	case config.BrokerKafka:
		return kafka.NewSubscriber(ctx, kafkaOptions(cfg), cfg.KafkaTopic, logger)
	case config.BrokerMQTT:
		return mqtt.NewSubscriber(ctx, mqttOptions(cfg, roleConsumer), cfg.KafkaTopic, logger)
	default:
		return nil, fmt.Errorf("unsupported broker kind %q", cfg.BrokerKind)
	}
}
