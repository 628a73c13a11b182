package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	BrokerKafka = "kafka"
	BrokerMQTT  = "mqtt"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level

	BrokerKind string

	KafkaBrokers       []string
	KafkaTopic         string
	KafkaConsumerGroup string
	KafkaSASLUsername  string
	KafkaSASLPassword  string

	MQTTBroker   string
	MQTTPort     int
	MQTTClientID string

	PublishTimeout     time.Duration
	PublishMaxAttempts int

	WeatherKey             string
	WeatherBaseURL         string
	WeatherHTTPTimeout     time.Duration
	WeatherBreakerFailures int
	LocationsPath          string
	ProducerInterval       time.Duration

	DBDriver        string
	DBDSN           string
	SQLitePath      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogSQL          bool
	StoreTimeout    time.Duration

	FetchErrorBackoff time.Duration

	// HTTPAddr is where the consumer serves /healthz and /readings. Empty disables it.
	HTTPAddr string
}

func LoadFromEnv() (Config, error) {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(envDefault("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}

	brokerKind := strings.ToLower(envDefault("BROKER_KIND", BrokerKafka))
	switch brokerKind {
	case BrokerKafka, BrokerMQTT:
	default:
		return Config{}, fmt.Errorf("invalid BROKER_KIND %q (allowed: kafka, mqtt)", brokerKind)
	}

	mqttPort, err := envInt("MQTT_PORT", 1883)
	if err != nil {
		return Config{}, err
	}
	publishTimeout, err := envDuration("PUBLISH_TIMEOUT", "10s")
	if err != nil {
		return Config{}, err
	}
	publishMaxAttempts, err := envInt("PUBLISH_MAX_ATTEMPTS", 3)
	if err != nil {
		return Config{}, err
	}
	weatherHTTPTimeout, err := envDuration("WEATHER_HTTP_TIMEOUT", "10s")
	if err != nil {
		return Config{}, err
	}
	breakerFailures, err := envInt("WEATHER_BREAKER_FAILURES", 5)
	if err != nil {
		return Config{}, err
	}
	producerInterval, err := envDuration("PRODUCER_INTERVAL", "300s")
	if err != nil {
		return Config{}, err
	}
	maxOpenConns, err := envInt("DB_MAX_OPEN_CONNS", 10)
	if err != nil {
		return Config{}, err
	}
	maxIdleConns, err := envInt("DB_MAX_IDLE_CONNS", 1)
	if err != nil {
		return Config{}, err
	}
	connMaxLifetime, err := envDuration("DB_CONN_MAX_LIFETIME", "0s")
	if err != nil {
		return Config{}, err
	}
	logSQL, err := envBool("DB_LOG_SQL", false)
	if err != nil {
		return Config{}, err
	}
	storeTimeout, err := envDuration("STORE_TIMEOUT", "5s")
	if err != nil {
		return Config{}, err
	}
	fetchErrorBackoff, err := envDuration("FETCH_ERROR_BACKOFF", "1s")
	if err != nil {
		return Config{}, err
	}

	httpAddr := ":8080"
	if v, ok := os.LookupEnv("HTTP_ADDR"); ok {
		httpAddr = strings.TrimSpace(v)
	}

	return Config{
		AppEnv:     appEnv,
		LogLevel:   level,
		BrokerKind: brokerKind,

		KafkaBrokers:       splitList(os.Getenv("KAFKA_BOOTSTRAP_SERVERS")),
		KafkaTopic:         envDefault("KAFKA_TOPIC", "raw_data"),
		KafkaConsumerGroup: envDefault("KAFKA_CONSUMER_GROUP", "weather-consumer-group"),
		KafkaSASLUsername:  strings.TrimSpace(os.Getenv("KAFKA_SASL_USERNAME")),
		KafkaSASLPassword:  os.Getenv("KAFKA_SASL_PASSWORD"),

		MQTTBroker:   envDefault("MQTT_BROKER", "localhost"),
		MQTTPort:     mqttPort,
		MQTTClientID: strings.TrimSpace(os.Getenv("MQTT_CLIENT_ID")),

		PublishTimeout:     publishTimeout,
		PublishMaxAttempts: publishMaxAttempts,

		WeatherKey:             strings.TrimSpace(os.Getenv("WEATHER_KEY")),
		WeatherBaseURL:         envDefault("WEATHER_BASE_URL", "http://api.openweathermap.org/data/2.5/weather"),
		WeatherHTTPTimeout:     weatherHTTPTimeout,
		WeatherBreakerFailures: breakerFailures,
		LocationsPath:          envDefault("LOCATIONS_PATH", "config/locations.json"),
		ProducerInterval:       producerInterval,

		DBDriver:        envDefault("DB_DRIVER", "sqlite3"),
		DBDSN:           strings.TrimSpace(os.Getenv("DB_DSN")),
		SQLitePath:      envDefault("SQLITE_PATH", "data/weather.db"),
		MaxOpenConns:    maxOpenConns,
		MaxIdleConns:    maxIdleConns,
		ConnMaxLifetime: connMaxLifetime,
		LogSQL:          logSQL,
		StoreTimeout:    storeTimeout,

		FetchErrorBackoff: fetchErrorBackoff,
		HTTPAddr:          httpAddr,
	}, nil
}

// ValidateProducer checks the settings the producer cannot start without.
func (c Config) ValidateProducer() error {
	var errs []error
	if c.WeatherKey == "" {
		errs = append(errs, errors.New("WEATHER_KEY is required"))
	}
	if c.ProducerInterval <= 0 {
		errs = append(errs, fmt.Errorf("PRODUCER_INTERVAL must be positive, got %v", c.ProducerInterval))
	}
	if c.WeatherHTTPTimeout <= 0 {
		errs = append(errs, fmt.Errorf("WEATHER_HTTP_TIMEOUT must be positive, got %v", c.WeatherHTTPTimeout))
	}
	if c.WeatherBreakerFailures < 0 {
		errs = append(errs, fmt.Errorf("WEATHER_BREAKER_FAILURES must be >= 0, got %d", c.WeatherBreakerFailures))
	}
	if c.PublishTimeout <= 0 {
		errs = append(errs, fmt.Errorf("PUBLISH_TIMEOUT must be positive, got %v", c.PublishTimeout))
	}
	if c.PublishMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("PUBLISH_MAX_ATTEMPTS must be >= 1, got %d", c.PublishMaxAttempts))
	}
	errs = append(errs, c.validateBroker()...)
	return errors.Join(errs...)
}

// ValidateConsumer checks the settings the consumer cannot start without.
func (c Config) ValidateConsumer() error {
	var errs []error
	if c.KafkaConsumerGroup == "" {
		errs = append(errs, errors.New("KAFKA_CONSUMER_GROUP is required"))
	}
	if c.MaxOpenConns < 1 || c.MaxOpenConns > 10 {
		errs = append(errs, fmt.Errorf("DB_MAX_OPEN_CONNS must be between 1 and 10, got %d", c.MaxOpenConns))
	}
	if c.MaxIdleConns < 0 || c.MaxIdleConns > c.MaxOpenConns {
		errs = append(errs, fmt.Errorf("DB_MAX_IDLE_CONNS must be between 0 and DB_MAX_OPEN_CONNS, got %d", c.MaxIdleConns))
	}
	if c.StoreTimeout <= 0 {
		errs = append(errs, fmt.Errorf("STORE_TIMEOUT must be positive, got %v", c.StoreTimeout))
	}
	if c.FetchErrorBackoff <= 0 {
		errs = append(errs, fmt.Errorf("FETCH_ERROR_BACKOFF must be positive, got %v", c.FetchErrorBackoff))
	}
	if c.DBDSN == "" && c.SQLitePath == "" {
		errs = append(errs, errors.New("one of DB_DSN or SQLITE_PATH is required"))
	}
	errs = append(errs, c.validateBroker()...)
	return errors.Join(errs...)
}

func (c Config) validateBroker() []error {
	var errs []error
	if c.KafkaTopic == "" {
		errs = append(errs, errors.New("KAFKA_TOPIC is required"))
	}
	switch c.BrokerKind {
	case BrokerKafka:
		if len(c.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("KAFKA_BOOTSTRAP_SERVERS is required"))
		}
		if (c.KafkaSASLUsername == "") != (c.KafkaSASLPassword == "") {
			errs = append(errs, errors.New("KAFKA_SASL_USERNAME and KAFKA_SASL_PASSWORD must be set together"))
		}
	case BrokerMQTT:
		if c.MQTTBroker == "" {
			errs = append(errs, errors.New("MQTT_BROKER is required"))
		}
		if c.MQTTPort <= 0 || c.MQTTPort > 65535 {
			errs = append(errs, fmt.Errorf("MQTT_PORT out of range: %d", c.MQTTPort))
		}
	}
	return errs
}

func envDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return n, nil
}

func envDuration(key, def string) (time.Duration, error) {
	s := envDefault(key, def)
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return d, nil
}

func envBool(key string, def bool) (bool, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return b, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
