// Package db opens the sqlite connection pool shared by the consumer's
// store writer and its HTTP read surface.
package db

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// MaxPoolSize is the upper bound on open connections.
const MaxPoolSize = 10

type Options struct {
	Driver string
	// DSN wins over Path when set.
	DSN  string
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// LogSQL routes every statement through the tracing connector at debug level.
	LogSQL bool
}

// Open builds the pool and pings it once.
func Open(opts Options, logger *slog.Logger) (*sql.DB, error) {
	if opts.MaxOpenConns < 1 || opts.MaxOpenConns > MaxPoolSize {
		return nil, fmt.Errorf("db: pool size %d outside 1..%d", opts.MaxOpenConns, MaxPoolSize)
	}
	dsn, err := buildDSN(opts)
	if err != nil {
		return nil, err
	}

	var db *sql.DB
	if opts.LogSQL {
		db = sql.OpenDB(NewTracingConnector(dsn, logger))
	} else {
		driver := opts.Driver
		if driver == "" {
			driver = "sqlite3"
		}
		db, err = sql.Open(driver, dsn)
		if err != nil {
			return nil, fmt.Errorf("db open: %w", err)
		}
	}

	db.SetMaxOpenConns(opts.MaxOpenConns)
	if opts.MaxIdleConns >= 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func buildDSN(opts Options) (string, error) {
	if opts.DSN != "" {
		return opts.DSN, nil
	}
	path := opts.Path
	if path == "" {
		return "", fmt.Errorf("db: neither DSN nor path set")
	}
	if dir := filepath.Dir(strings.TrimPrefix(path, "file:")); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	// WAL lets the HTTP readers run while the consumer writes; busy_timeout
	// covers the remaining writer/writer contention inside the pool.
	params := "_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"
	if strings.HasPrefix(path, "file:") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + params, nil
	}
	return "file:" + path + "?" + params, nil
}
