package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	alarms "farm-host/internal/alarms/domain"
)

type stubAlertReader struct {
	alerts    []alarms.Alert
	err       error
	lastLimit int
}

func (s *stubAlertReader) RecentAlerts(_ context.Context, limit int) ([]alarms.Alert, error) {
	s.lastLimit = limit
	return s.alerts, s.err
}

func sampleAlerts() []alarms.Alert {
	return []alarms.Alert{
		{
			ID: 2, Type: alarms.EventTypeAlert, TS: "2026-02-01T10:00:05Z",
			Device: "dev-1", Severity: alarms.SeverityCrit,
			Code: alarms.CodeWaterLow, Message: "Reservoir level is LOW (float=0).",
		},
		{
			ID: 1, Type: alarms.EventTypeAlert, TS: "2026-02-01T10:00:00Z",
			Device: "dev-1", Severity: alarms.SeverityWarn,
			Code: alarms.CodePHLow, Message: "pH is low: 5.20 (< 5.50).",
		},
	}
}

func TestAlertsList(t *testing.T) {
	stub := &stubAlertReader{alerts: sampleAlerts()}
	h, err := NewAlertsHandler(stub)
	if err != nil {
		t.Fatalf("NewAlertsHandler: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if stub.lastLimit != defaultAlertsLimit {
		t.Fatalf("limit = %d, want default %d", stub.lastLimit, defaultAlertsLimit)
	}

	var body struct {
		OK     bool           `json:"ok"`
		Alerts []alarms.Alert `json:"alerts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if !body.OK || len(body.Alerts) != 2 {
		t.Fatalf("body = %s", rec.Body.String())
	}
	if body.Alerts[0].Code != alarms.CodeWaterLow || body.Alerts[1].Code != alarms.CodePHLow {
		t.Fatalf("order = %s, %s, want most-recent-first", body.Alerts[0].Code, body.Alerts[1].Code)
	}
}

func TestAlertsEmptyListIsArray(t *testing.T) {
	h, _ := NewAlertsHandler(&stubAlertReader{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if !bytes.Contains(rec.Body.Bytes(), []byte(`"alerts":[]`)) {
		t.Fatalf("body = %s, want empty array not null", rec.Body.String())
	}
}

func TestAlertsLimit(t *testing.T) {
	stub := &stubAlertReader{}
	h, _ := NewAlertsHandler(stub)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts?limit=10", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if stub.lastLimit != 10 {
		t.Fatalf("limit = %d, want 10", stub.lastLimit)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/alerts?limit=99999", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if stub.lastLimit != maxAlertsLimit {
		t.Fatalf("limit = %d, want cap %d", stub.lastLimit, maxAlertsLimit)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/alerts?limit=zero", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAlertsQueryError(t *testing.T) {
	h, _ := NewAlertsHandler(&stubAlertReader{err: errors.New("db down")})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestBuildAlertsPDF(t *testing.T) {
	report, err := BuildAlertsPDF(sampleAlerts(), time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("BuildAlertsPDF: %v", err)
	}
	if !bytes.HasPrefix(report, []byte("%PDF")) {
		t.Fatal("report is not a PDF")
	}
}

func TestExportAlertsPDF(t *testing.T) {
	h := NewExportAlertsPDFHandler(&stubAlertReader{alerts: sampleAlerts()})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/exports/alerts.pdf", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/pdf" {
		t.Fatalf("content type = %q", got)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Fatal("body is not a PDF")
	}
}
