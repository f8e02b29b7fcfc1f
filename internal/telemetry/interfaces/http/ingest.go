// Package http exposes the ingestion and read boundaries of the
// telemetry pipeline.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"farm-host/internal/telemetry/application"
)

// Ingestor is the gateway surface the handler needs.
type Ingestor interface {
	Ingest(ctx context.Context, raw []byte) (application.Result, error)
}

// IngestHandler accepts one sensor event per POST and reports one of the
// three outcomes: accepted, ignored (stale/duplicate) or rejected
// (malformed).
type IngestHandler struct {
	gateway Ingestor
	logger  *log.Logger
}

// NewIngestHandler constructs an ingest handler.
func NewIngestHandler(gateway Ingestor, logger *log.Logger) (*IngestHandler, error) {
	if gateway == nil {
		return nil, errors.New("ingest handler: nil gateway")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &IngestHandler{gateway: gateway, logger: logger}, nil
}

// ServeHTTP handles POST /ingest.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Printf("telemetry ingest: read body error: %v", err)
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "read body error"})
		return
	}
	defer r.Body.Close()

	result, err := h.gateway.Ingest(r.Context(), body)
	if err != nil {
		// Storage failure: retryable, nothing was mutated.
		h.logger.Printf("telemetry ingest: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": "storage unavailable, retry"})
		return
	}

	switch result.Outcome {
	case application.OutcomeRejected:
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": result.Reason})
	case application.OutcomeIgnored:
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "ignored": true})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
