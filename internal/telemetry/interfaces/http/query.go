package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	telemetry "farm-host/internal/telemetry/domain"
)

const (
	defaultSeriesLimit = 500
	maxSeriesLimit     = 5000
)

var errInvalidLimit = errors.New("limit must be a positive integer")

// SnapshotReader serves the current latest-event slot.
type SnapshotReader interface {
	Latest() json.RawMessage
}

// LatestHandler serves the current snapshot.
type LatestHandler struct {
	reader SnapshotReader
}

// NewLatestHandler constructs a latest handler.
func NewLatestHandler(reader SnapshotReader) *LatestHandler {
	return &LatestHandler{reader: reader}
}

// ServeHTTP handles GET /api/v1/latest. "No data yet" is a normal
// response, not an error.
func (h *LatestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.reader == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	latest := h.reader.Latest()
	if latest == nil {
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "detail": "no data received yet"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(latest)
}

// SeriesReader builds chart series from recent events.
type SeriesReader interface {
	Series(ctx context.Context, limit int) (*telemetry.Series, error)
}

// SeriesHandler serves recent events as parallel time-series arrays.
type SeriesHandler struct {
	reader SeriesReader
}

// NewSeriesHandler constructs a series handler.
func NewSeriesHandler(reader SeriesReader) *SeriesHandler {
	return &SeriesHandler{reader: reader}
}

// ServeHTTP handles GET /api/v1/series?limit=N.
func (h *SeriesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.reader == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	limit, err := parseLimit(r, defaultSeriesLimit, maxSeriesLimit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	series, err := h.reader.Series(r.Context(), limit)
	if err != nil {
		http.Error(w, "query series error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

func parseLimit(r *http.Request, fallback, max int) (int, error) {
	value := r.URL.Query().Get("limit")
	if value == "" {
		return fallback, nil
	}
	limit, err := strconv.Atoi(value)
	if err != nil || limit <= 0 {
		return 0, errInvalidLimit
	}
	if limit > max {
		limit = max
	}
	return limit, nil
}
