package http

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"

	"github.com/xuri/excelize/v2"

	eventstore "farm-host/internal/telemetry/infrastructure/postgres"
)

const (
	defaultExportLimit = 1000
	maxExportLimit     = 20000
)

var exportHeader = []string{
	"id", "ts", "device", "seq",
	"air_t_c", "air_rh_pct", "air_p_hpa",
	"water_t_c", "water_ph", "water_ec_ms_cm",
	"light_lux", "level_float",
}

// ExportEventsCSVHandler streams recent events as CSV.
type ExportEventsCSVHandler struct {
	repo *eventstore.EventRepository
}

// NewExportEventsCSVHandler constructs the CSV export handler.
func NewExportEventsCSVHandler(repo *eventstore.EventRepository) *ExportEventsCSVHandler {
	return &ExportEventsCSVHandler{repo: repo}
}

// ServeHTTP handles GET /api/v1/exports/events.csv.
func (h *ExportEventsCSVHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.repo == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	limit, err := parseLimit(r, defaultExportLimit, maxExportLimit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rows, err := h.repo.RecentEventRows(r.Context(), limit)
	if err != nil {
		http.Error(w, "query events error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="events.csv"`)
	writer := csv.NewWriter(w)
	_ = writer.Write(exportHeader)
	for _, row := range rows {
		_ = writer.Write(eventRowRecord(row))
	}
	writer.Flush()
}

// ExportEventsXLSXHandler renders recent events as a workbook.
type ExportEventsXLSXHandler struct {
	repo *eventstore.EventRepository
}

// NewExportEventsXLSXHandler constructs the XLSX export handler.
func NewExportEventsXLSXHandler(repo *eventstore.EventRepository) *ExportEventsXLSXHandler {
	return &ExportEventsXLSXHandler{repo: repo}
}

// ServeHTTP handles GET /api/v1/exports/events.xlsx.
func (h *ExportEventsXLSXHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.repo == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	limit, err := parseLimit(r, defaultExportLimit, maxExportLimit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rows, err := h.repo.RecentEventRows(r.Context(), limit)
	if err != nil {
		http.Error(w, "query events error", http.StatusInternalServerError)
		return
	}

	f := excelize.NewFile()
	sheet := "events"
	f.SetSheetName("Sheet1", sheet)
	for col, name := range exportHeader {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		_ = f.SetCellValue(sheet, cell, name)
	}
	for i, row := range rows {
		record := eventRowRecord(row)
		for col, value := range record {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			_ = f.SetCellValue(sheet, cell, value)
		}
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="events.xlsx"`)
	if err := f.Write(w); err != nil {
		http.Error(w, "render workbook error", http.StatusInternalServerError)
	}
}

func eventRowRecord(row eventstore.EventRow) []string {
	return []string{
		strconv.FormatInt(row.ID, 10),
		row.TS,
		row.Device,
		strconv.FormatInt(row.Seq, 10),
		formatNullFloat(row.AirTempC),
		formatNullFloat(row.AirRHPct),
		formatNullFloat(row.AirPHPa),
		formatNullFloat(row.WaterTempC),
		formatNullFloat(row.WaterPH),
		formatNullFloat(row.WaterEC),
		formatNullFloat(row.LightLux),
		formatNullFloat(row.LevelFloat),
	}
}

func formatNullFloat(value sql.NullFloat64) string {
	if !value.Valid {
		return ""
	}
	return fmt.Sprintf("%g", value.Float64)
}
