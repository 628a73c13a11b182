package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"weatherstream/internal/weather"
)

//go:embed sql/latest-readings.sql
var latestReadingsSQL string

//go:embed sql/count-readings.sql
var countReadingsSQL string

//go:embed sql/cities.sql
var citiesSQL string

// StoredReading is a persisted Reading with its row metadata.
type StoredReading struct {
	ID int64 `json:"id"`
	weather.Reading
	CreatedAt time.Time `json:"created_at"`
}

type CitySummary struct {
	City     string `json:"city"`
	Readings int    `json:"readings"`
	LatestID int64  `json:"latest_id"`
}

// LatestReadings returns up to limit rows, newest first. An empty city
// matches all cities.
func (s *Store) LatestReadings(ctx context.Context, city string, limit int) ([]StoredReading, error) {
	rows, err := s.db.QueryContext(ctx, latestReadingsSQL, city, city, limit)
	if err != nil {
		return nil, fmt.Errorf("query latest readings: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Error("close latest readings rows", "error", err)
		}
	}()

	var out []StoredReading
	for rows.Next() {
		var (
			rec       StoredReading
			ts        sql.NullInt64
			createdAt string
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.City,
			&rec.Latitude,
			&rec.Longitude,
			&rec.TemperatureCelsius,
			&rec.Humidity,
			&rec.Pressure,
			&rec.WindSpeed,
			&ts,
			&createdAt,
		); err != nil {
			return nil, err
		}
		if ts.Valid {
			v := ts.Int64
			rec.ObservedAtUnix = &v
		}
		rec.CreatedAt, err = parseTime(createdAt)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) CountReadings(ctx context.Context, city string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, countReadingsSQL, city, city).Scan(&n); err != nil {
		return 0, fmt.Errorf("count readings: %w", err)
	}
	return n, nil
}

// Cities lists every city with stored readings.
func (s *Store) Cities(ctx context.Context) ([]CitySummary, error) {
	rows, err := s.db.QueryContext(ctx, citiesSQL)
	if err != nil {
		return nil, fmt.Errorf("query cities: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Error("close cities rows", "error", err)
		}
	}()

	var out []CitySummary
	for rows.Next() {
		var c CitySummary
		if err := rows.Scan(&c.City, &c.Readings, &c.LatestID); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse created_at %q: %w", s, err)
	}
	return t, nil
}
