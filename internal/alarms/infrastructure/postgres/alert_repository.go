package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	alarms "farm-host/internal/alarms/domain"
)

const defaultAlertsTable = "alerts"

// AlertRepository is a Postgres store for fired alerts. Append-only.
type AlertRepository struct {
	db    *sql.DB
	table string
}

// NewAlertRepository constructs a repository.
func NewAlertRepository(db *sql.DB) *AlertRepository {
	return &AlertRepository{db: db, table: defaultAlertsTable}
}

// EnsureSchema creates the alerts relation and its index when missing.
func (r *AlertRepository) EnsureSchema(ctx context.Context) error {
	if r == nil || r.db == nil {
		return errors.New("alert repo: nil db")
	}
	statements := []string{
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	ts TEXT NOT NULL,
	device TEXT,
	severity TEXT NOT NULL,
	code TEXT NOT NULL,
	message TEXT NOT NULL,
	raw_json JSONB
)`, r.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_ts ON %[1]s (ts)`, r.table),
	}
	for _, stmt := range statements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("alert repo: ensure schema: %w", err)
		}
	}
	return nil
}

// InsertAlert appends one alert.
func (r *AlertRepository) InsertAlert(ctx context.Context, alert *alarms.Alert) error {
	if r == nil || r.db == nil {
		return errors.New("alert repo: nil db")
	}
	if alert == nil {
		return errors.New("alert repo: nil alert")
	}
	if alert.Severity == "" || alert.Code == "" || alert.Message == "" {
		return errors.New("alert repo: missing fields")
	}

	var raw any
	if len(alert.Raw) > 0 {
		raw = []byte(alert.Raw)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (ts, device, severity, code, message, raw_json)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`, r.table)
	return r.db.QueryRowContext(ctx, query,
		alert.TS, alert.Device, alert.Severity, alert.Code, alert.Message, raw,
	).Scan(&alert.ID)
}

// RecentAlerts returns up to limit alerts, most-recent-first. The raw
// audit payload stays in storage.
func (r *AlertRepository) RecentAlerts(ctx context.Context, limit int) ([]alarms.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	if limit <= 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
SELECT id, ts, device, severity, code, message
FROM %s
ORDER BY id DESC
LIMIT $1`, r.table)
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []alarms.Alert
	for rows.Next() {
		var alert alarms.Alert
		var device sql.NullString
		if err := rows.Scan(&alert.ID, &alert.TS, &device, &alert.Severity, &alert.Code, &alert.Message); err != nil {
			return nil, err
		}
		alert.Type = alarms.EventTypeAlert
		alert.Device = device.String
		out = append(out, alert)
	}
	return out, rows.Err()
}
