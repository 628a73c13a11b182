// Package consumer pulls readings off the broker and writes them to the store.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"weatherstream/internal/broker"
	"weatherstream/internal/weather"
)

// Writer is the store side of the loop.
type Writer interface {
	Insert(ctx context.Context, r weather.Reading) weather.Outcome
	Close() error
}

type Options struct {
	// StoreTimeout bounds each Insert. Inserts are not canceled by an interrupt.
	StoreTimeout time.Duration
	// Backoff is the wait after a transient Next error.
	Backoff time.Duration
	// StatsEvery logs the counters after this many messages.
	StatsEvery int
	Logger     *slog.Logger
}

// Stats are the running counters of a Loop.
type Stats struct {
	Consumed int
	Stored   int
	Skipped  int
	Failed   int
}

// Loop owns the subscriber and the store and closes both, in that order,
// when Run returns.
type Loop struct {
	sub    broker.Subscriber
	store  Writer
	opts   Options
	logger *slog.Logger

	mu    sync.Mutex
	stats Stats

	closeOnce sync.Once
}

func New(sub broker.Subscriber, store Writer, opts Options) *Loop {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	if opts.Backoff <= 0 {
		opts.Backoff = time.Second
	}
	if opts.StatsEvery <= 0 {
		opts.StatsEvery = 100
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{sub: sub, store: store, opts: opts, logger: logger}
}

// Run consumes until ctx is done, the subscriber is closed, or the store
// reports a fatal failure. It returns ctx.Err() on interrupt.
func (l *Loop) Run(ctx context.Context) error {
	defer func() {
		l.close()
		st := l.Stats()
		l.logger.Info("consumer stopped",
			"consumed", st.Consumed,
			"stored", st.Stored,
			"skipped", st.Skipped,
			"failed", st.Failed,
		)
	}()

	l.logger.Info("consumer started")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg, err := l.sub.Next(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if errors.Is(err, broker.ErrClosed) {
				return err
			}
			l.logger.Warn("fetch from broker failed", "error", err, "backoff", l.opts.Backoff)
			if err := wait(ctx, l.opts.Backoff); err != nil {
				return err
			}
			continue
		}
		if err := l.Handle(ctx, msg); err != nil {
			return err
		}
	}
}

// Handle decodes and stores one message. Only a fatal store outcome is
// returned as an error.
func (l *Loop) Handle(ctx context.Context, msg broker.Message) error {
	l.count(func(s *Stats) { s.Consumed++ })
	defer l.maybeLogStats()

	r, err := weather.Decode(msg.Value)
	if err != nil {
		l.logger.Warn("skipping undecodable message", "message", msg.Identity(), "error", err)
		l.count(func(s *Stats) { s.Skipped++ })
		return nil
	}

	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.opts.StoreTimeout)
	out := l.store.Insert(storeCtx, r)
	cancel()

	switch out.Status {
	case weather.StatusDelivered:
		l.count(func(s *Stats) { s.Stored++ })
		l.logger.Info("reading stored",
			"reading", fmt.Sprintf("%s - %g", r.City, r.TemperatureCelsius),
			"message", msg.Identity(),
		)
		return nil
	case weather.StatusRetriable:
		// The offset already moved past this message.
		l.count(func(s *Stats) { s.Failed++ })
		l.logger.Error("store write failed, message dropped", "message", msg.Identity(), "city", r.City, "error", out.Err)
		return nil
	default:
		l.count(func(s *Stats) { s.Failed++ })
		l.logger.Error("store unusable", "message", msg.Identity(), "error", out.Err)
		return fmt.Errorf("store: %w", out.Err)
	}
}

func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

func (l *Loop) count(f func(*Stats)) {
	l.mu.Lock()
	f(&l.stats)
	l.mu.Unlock()
}

func (l *Loop) maybeLogStats() {
	st := l.Stats()
	if st.Consumed%l.opts.StatsEvery != 0 {
		return
	}
	l.logger.Info("consumer stats",
		"consumed", st.Consumed,
		"stored", st.Stored,
		"skipped", st.Skipped,
		"failed", st.Failed,
	)
}

func (l *Loop) close() {
	l.closeOnce.Do(func() {
		if err := l.sub.Close(); err != nil {
			l.logger.Error("close subscriber", "error", err)
		}
		if err := l.store.Close(); err != nil {
			l.logger.Error("close store", "error", err)
		}
	})
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
