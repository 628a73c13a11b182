// Package store persists readings into the weather_metrics table and
// serves the read-side queries over the same pool.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"weatherstream/internal/weather"
)

//go:embed sql/insert-reading.sql
var insertReadingSQL string

// ErrClosed is the reason carried by the FatalFailure of an Insert after Close.
var ErrClosed = errors.New("store: closed")

type Store struct {
	db     *sql.DB
	logger *slog.Logger

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New takes ownership of db; Close closes it.
func New(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// Insert writes r in its own transaction on one pooled connection. A
// redelivered observation already on disk counts as delivered.
func (s *Store) Insert(ctx context.Context, r weather.Reading) weather.Outcome {
	if s.closed.Load() {
		return weather.FatalFailure(ErrClosed)
	}
	inserted, err := s.insert(ctx, r)
	if err != nil {
		if s.closed.Load() {
			return weather.FatalFailure(fmt.Errorf("%w: %v", ErrClosed, err))
		}
		return weather.RetriableFailure(err)
	}
	if !inserted {
		s.logger.Debug("duplicate reading ignored", "city", r.City, "timestamp_unix", r.ObservedAt())
	}
	return weather.Delivered()
}

func (s *Store) insert(ctx context.Context, r weather.Reading) (inserted bool, err error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("release connection: %w", cerr)
		}
	}()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	res, err := tx.ExecContext(ctx, insertReadingSQL,
		r.City,
		r.Latitude,
		r.Longitude,
		r.TemperatureCelsius,
		r.Humidity,
		r.Pressure,
		r.WindSpeed,
		nullableUnix(r.ObservedAtUnix),
	)
	if err != nil {
		_ = tx.Rollback()
		return false, fmt.Errorf("insert reading: %w", err)
	}
	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return false, fmt.Errorf("commit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return true, nil
	}
	return n > 0, nil
}

func nullableUnix(ts *int64) sql.NullInt64 {
	if ts == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *ts, Valid: true}
}

// Close closes the pool once. Later calls return the first result.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if err := s.db.Close(); err != nil {
			s.closeErr = fmt.Errorf("close pool: %w", err)
		}
		s.logger.Info("store closed")
	})
	return s.closeErr
}

// Ping checks that the pool can still reach the database.
func (s *Store) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.db.PingContext(ctx)
}

// Stats exposes pool usage for logs and tests.
func (s *Store) Stats() sql.DBStats { return s.db.Stats() }
