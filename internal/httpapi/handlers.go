package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"weatherstream/internal/store"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

type handlers struct {
	store  Store
	logger *slog.Logger
}

type readingsResponse struct {
	City     string                `json:"city,omitempty"`
	Total    int                   `json:"total"`
	Readings []store.StoredReading `json:"readings"`
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Error("failed to check database connectivity", "error", err)
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) readings(w http.ResponseWriter, r *http.Request) {
	city := strings.TrimSpace(r.URL.Query().Get("city"))
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	total, err := h.store.CountReadings(r.Context(), city)
	if err != nil {
		h.logger.Error("count readings failed", "city", city, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load readings")
		return
	}
	rows, err := h.store.LatestReadings(r.Context(), city, limit)
	if err != nil {
		h.logger.Error("latest readings failed", "city", city, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load readings")
		return
	}
	if rows == nil {
		rows = []store.StoredReading{}
	}
	writeJSON(w, http.StatusOK, readingsResponse{City: city, Total: total, Readings: rows})
}

func (h *handlers) cities(w http.ResponseWriter, r *http.Request) {
	cities, err := h.store.Cities(r.Context())
	if err != nil {
		h.logger.Error("list cities failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load cities")
		return
	}
	if cities == nil {
		cities = []store.CitySummary{}
	}
	writeJSON(w, http.StatusOK, cities)
}

func parseLimit(r *http.Request) (int, error) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.New("invalid 'limit' (expected integer)")
	}
	if n <= 0 {
		return 0, errors.New("'limit' must be > 0")
	}
	if n > maxLimit {
		return 0, errors.New("'limit' must be <= 1000")
	}
	return n, nil
}
