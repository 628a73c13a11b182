// Package httpapi is the consumer's read-only HTTP surface over the store.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"weatherstream/internal/store"
)

// Store is the read side the handlers need.
type Store interface {
	Ping(ctx context.Context) error
	LatestReadings(ctx context.Context, city string, limit int) ([]store.StoredReading, error)
	CountReadings(ctx context.Context, city string) (int, error)
	Cities(ctx context.Context) ([]store.CitySummary, error)
}

func NewMux(s Store, logger *slog.Logger) *http.ServeMux {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handlers{store: s, logger: logger}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.healthz)
	mux.HandleFunc("GET /readings", h.readings)
	mux.HandleFunc("GET /cities", h.cities)
	return mux
}

func NewServer(addr string, s Store, logger *slog.Logger) *http.Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &http.Server{
		Addr:              addr,
		Handler:           requestLogger(logger, NewMux(s, logger)),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sr, r)
		logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sr.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
