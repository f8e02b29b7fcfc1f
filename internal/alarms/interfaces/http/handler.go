// Package http serves the alert read boundary.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	alarms "farm-host/internal/alarms/domain"
)

const (
	defaultAlertsLimit = 50
	maxAlertsLimit     = 1000
)

// AlertReader lists recent alerts.
type AlertReader interface {
	RecentAlerts(ctx context.Context, limit int) ([]alarms.Alert, error)
}

// AlertsHandler serves recent alerts, most-recent-first.
type AlertsHandler struct {
	reader AlertReader
}

// NewAlertsHandler constructs an alerts handler.
func NewAlertsHandler(reader AlertReader) (*AlertsHandler, error) {
	if reader == nil {
		return nil, errors.New("alerts handler: nil reader")
	}
	return &AlertsHandler{reader: reader}, nil
}

// ServeHTTP handles GET /api/v1/alerts?limit=N.
func (h *AlertsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := defaultAlertsLimit
	if value := r.URL.Query().Get("limit"); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
		if limit > maxAlertsLimit {
			limit = maxAlertsLimit
		}
	}

	alerts, err := h.reader.RecentAlerts(r.Context(), limit)
	if err != nil {
		http.Error(w, "query alerts error", http.StatusInternalServerError)
		return
	}
	if alerts == nil {
		alerts = []alarms.Alert{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "alerts": alerts})
}
