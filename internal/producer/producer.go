// Package producer runs the collect-publish-sleep cycle over the configured
// locations.
package producer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"weatherstream/internal/broker"
	"weatherstream/internal/provider/openweather"
	"weatherstream/internal/weather"
)

// Fetcher is the provider side of the loop.
type Fetcher interface {
	Fetch(ctx context.Context, lat, lon float64) (weather.Observation, error)
}

type Options struct {
	Topic    string
	Interval time.Duration
	// UnitTimeout bounds each Fetch and each Publish. In-flight calls are not
	// canceled by an interrupt; the loop stops at the next unit boundary.
	UnitTimeout time.Duration
	Logger      *slog.Logger
	// Sleep replaces the interruptible wait between iterations in tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Summary counts one iteration's results.
type Summary struct {
	Iteration int
	Success   int
	Errors    int
}

// Loop owns the publisher it is given and closes it when Run returns.
type Loop struct {
	fetcher   Fetcher
	publisher broker.Publisher
	locations []weather.Location
	opts      Options
	logger    *slog.Logger

	iteration int
	closeOnce sync.Once
}

func New(f Fetcher, p broker.Publisher, locations []weather.Location, opts Options) (*Loop, error) {
	if len(locations) == 0 {
		return nil, errors.New("producer: no locations configured")
	}
	if opts.Topic == "" {
		return nil, errors.New("producer: topic is required")
	}
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("producer: interval must be positive, got %v", opts.Interval)
	}
	if opts.UnitTimeout <= 0 {
		opts.UnitTimeout = 30 * time.Second
	}
	if opts.Sleep == nil {
		opts.Sleep = sleep
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		fetcher:   f,
		publisher: p,
		locations: append([]weather.Location(nil), locations...),
		opts:      opts,
		logger:    logger,
	}, nil
}

// Run collects and sleeps until ctx is done or the publisher reports a
// fatal failure. It returns ctx.Err() on interrupt.
func (l *Loop) Run(ctx context.Context) error {
	defer l.closePublisher()

	l.logger.Info("producer started",
		"topic", l.opts.Topic,
		"locations", len(l.locations),
		"interval", l.opts.Interval,
	)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		sum, err := l.RunOnce(ctx)
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		l.logger.Info("iteration complete",
			"iteration", sum.Iteration,
			"success", sum.Success,
			"errors", sum.Errors,
			"next_run_in", l.opts.Interval,
		)
		if err := l.opts.Sleep(ctx, l.opts.Interval); err != nil {
			return err
		}
	}
}

// RunOnce walks every location in order once. Per-location failures are
// logged and counted; only a fatal publish outcome or an interrupt between
// locations ends it early with an error.
func (l *Loop) RunOnce(ctx context.Context) (Summary, error) {
	l.iteration++
	sum := Summary{Iteration: l.iteration}
	l.logger.Info("iteration started", "iteration", sum.Iteration, "locations", len(l.locations))

	for _, loc := range l.locations {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		ok, err := l.collect(ctx, loc)
		if err != nil {
			return sum, err
		}
		if ok {
			sum.Success++
		} else {
			sum.Errors++
		}
	}
	return sum, nil
}

func (l *Loop) collect(ctx context.Context, loc weather.Location) (bool, error) {
	unitCtx := context.WithoutCancel(ctx)

	fetchCtx, cancel := context.WithTimeout(unitCtx, l.opts.UnitTimeout)
	obs, err := l.fetcher.Fetch(fetchCtx, loc.Lat, loc.Lon)
	cancel()
	if err != nil {
		attrs := []any{"location", loc.Name, "error", err}
		var perr *openweather.Error
		if errors.As(err, &perr) {
			attrs = append(attrs, "kind", perr.Kind)
		}
		l.logger.Warn("fetch failed", attrs...)
		return false, nil
	}

	r, err := weather.NewReading(loc, obs)
	if err != nil {
		l.logger.Warn("invalid reading", "location", loc.Name, "error", err)
		return false, nil
	}

	pubCtx, cancel := context.WithTimeout(unitCtx, l.opts.UnitTimeout)
	out := l.publisher.Publish(pubCtx, l.opts.Topic, r)
	cancel()

	switch out.Status {
	case weather.StatusDelivered:
		l.logger.Info("reading published",
			"city", r.City,
			"temperature_celsius", r.TemperatureCelsius,
			"timestamp_unix", r.ObservedAt(),
		)
		return true, nil
	case weather.StatusRetriable:
		l.logger.Warn("publish failed, reading dropped", "location", loc.Name, "city", r.City, "error", out.Err)
		return false, nil
	default:
		l.logger.Error("publisher unusable", "location", loc.Name, "error", out.Err)
		return false, fmt.Errorf("publish %s: %w", loc.Name, out.Err)
	}
}

func (l *Loop) closePublisher() {
	l.closeOnce.Do(func() {
		if err := l.publisher.Close(); err != nil {
			l.logger.Error("close publisher", "error", err)
			return
		}
		l.logger.Info("publisher closed")
	})
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
