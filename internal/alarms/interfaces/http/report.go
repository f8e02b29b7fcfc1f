package http

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/jung-kurt/gofpdf"

	alarms "farm-host/internal/alarms/domain"
)

// BuildAlertsPDF renders a minimal PDF report of recent alerts.
func BuildAlertsPDF(alerts []alarms.Alert, generatedAt time.Time) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Alert Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", generatedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Alerts: %d", len(alerts)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(45, 6, "Time", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Device", "1", 0, "C", false, 0, "")
	pdf.CellFormat(15, 6, "Sev", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Code", "1", 0, "C", false, 0, "")
	pdf.CellFormat(70, 6, "Message", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, alert := range alerts {
		pdf.CellFormat(45, 6, alert.TS, "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 6, alert.Device, "1", 0, "L", false, 0, "")
		pdf.CellFormat(15, 6, alert.Severity, "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, alert.Code, "1", 0, "L", false, 0, "")
		pdf.CellFormat(70, 6, alert.Message, "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ExportAlertsPDFHandler renders recent alerts as a PDF report.
type ExportAlertsPDFHandler struct {
	reader AlertReader
}

// NewExportAlertsPDFHandler constructs the PDF export handler.
func NewExportAlertsPDFHandler(reader AlertReader) *ExportAlertsPDFHandler {
	return &ExportAlertsPDFHandler{reader: reader}
}

// ServeHTTP handles GET /api/v1/exports/alerts.pdf.
func (h *ExportAlertsPDFHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.reader == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	alerts, err := h.reader.RecentAlerts(r.Context(), maxAlertsLimit)
	if err != nil {
		http.Error(w, "query alerts error", http.StatusInternalServerError)
		return
	}
	report, err := BuildAlertsPDF(alerts, time.Now().UTC())
	if err != nil {
		http.Error(w, "render report error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="alerts.pdf"`)
	_, _ = w.Write(report)
}
