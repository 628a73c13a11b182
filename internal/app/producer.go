// Package app wires configuration into the producer and consumer processes.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"weatherstream/internal/config"
	"weatherstream/internal/producer"
	"weatherstream/internal/provider/openweather"
)

const (
	roleProducer = "producer"
	roleConsumer = "consumer"
)

// RunProducer runs the producer until ctx is done or the publisher fails
// for good.
func RunProducer(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if err := cfg.ValidateProducer(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	locations, err := config.LoadLocations(cfg.LocationsPath)
	if err != nil {
		return err
	}
	logger.Info("config loaded",
		"topic", cfg.KafkaTopic,
		"locations", len(locations),
		"locationsPath", cfg.LocationsPath,
		"interval", cfg.ProducerInterval,
		"weatherBaseURL", cfg.WeatherBaseURL,
		"publishTimeout", cfg.PublishTimeout,
		"publishMaxAttempts", cfg.PublishMaxAttempts,
	)

	client, err := openweather.NewClient(openweather.Options{
		BaseURL:         cfg.WeatherBaseURL,
		APIKey:          cfg.WeatherKey,
		Timeout:         cfg.WeatherHTTPTimeout,
		BreakerFailures: cfg.WeatherBreakerFailures,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	pub, err := newPublisher(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("connect broker: %w", err)
	}

	loop, err := producer.New(client, pub, locations, producer.Options{
		Topic:       cfg.KafkaTopic,
		Interval:    cfg.ProducerInterval,
		UnitTimeout: cfg.WeatherHTTPTimeout + cfg.PublishTimeout*time.Duration(cfg.PublishMaxAttempts),
		Logger:      logger,
	})
	if err != nil {
		_ = pub.Close()
		return err
	}
	return loop.Run(ctx)
}
