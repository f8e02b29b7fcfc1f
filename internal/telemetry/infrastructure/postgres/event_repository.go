package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	telemetry "farm-host/internal/telemetry/domain"
)

const defaultEventsTable = "sensor_events"

// EventRepository is a Postgres store for sensor events. The relation is
// append-only: rows are never updated or deleted, and insertion order
// (the serial id) is the authoritative "most recent" order.
type EventRepository struct {
	db    *sql.DB
	table string
}

// RepositoryOption configures the repository.
type RepositoryOption func(*EventRepository)

// WithTable overrides the default table name.
func WithTable(table string) RepositoryOption {
	return func(repo *EventRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewEventRepository constructs a repository with the default table name.
func NewEventRepository(db *sql.DB, opts ...RepositoryOption) *EventRepository {
	repo := &EventRepository{db: db, table: defaultEventsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// EnsureSchema creates the events relation and its indexes when missing.
func (r *EventRepository) EnsureSchema(ctx context.Context) error {
	if r == nil || r.db == nil {
		return errors.New("event repo: nil db")
	}
	statements := []string{
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	ts TEXT NOT NULL,
	device TEXT NOT NULL,
	seq BIGINT NOT NULL,

	air_t_c DOUBLE PRECISION,
	air_rh_pct DOUBLE PRECISION,
	air_p_hpa DOUBLE PRECISION,

	water_t_c DOUBLE PRECISION,
	water_ph DOUBLE PRECISION,
	water_ec_ms_cm DOUBLE PRECISION,

	light_lux DOUBLE PRECISION,
	level_float DOUBLE PRECISION,

	raw_json JSONB NOT NULL
)`, r.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_device_seq ON %[1]s (device, seq)`, r.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_ts ON %[1]s (ts)`, r.table),
	}
	for _, stmt := range statements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("event repo: ensure schema: %w", err)
		}
	}
	return nil
}

// InsertEvent appends one validated event: the verbatim raw payload for
// audit/replay plus extracted scalar columns for indexed queries. Never
// overwrites; structurally-valid events are never rejected here.
func (r *EventRepository) InsertEvent(ctx context.Context, evt *telemetry.SensorEvent, raw []byte) error {
	if r == nil || r.db == nil {
		return errors.New("event repo: nil db")
	}
	if evt == nil || len(raw) == 0 {
		return errors.New("event repo: nil event")
	}

	var airT, airRH, airP, waterT, waterPH, waterEC, lux, level sql.NullFloat64
	if evt.Air != nil {
		airT = nullFloat(evt.Air.TempC)
		airRH = nullFloat(evt.Air.HumidityPct)
		airP = nullFloat(evt.Air.PressureHPa)
	}
	if evt.Water != nil {
		waterT = nullFloat(evt.Water.TempC)
		waterPH = nullFloat(evt.Water.PH)
		waterEC = nullFloat(evt.Water.ECmScm)
	}
	if evt.Light != nil {
		lux = nullFloat(evt.Light.Lux)
	}
	if evt.Level != nil {
		level = nullFloat(evt.Level.Float)
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	ts, device, seq,
	air_t_c, air_rh_pct, air_p_hpa,
	water_t_c, water_ph, water_ec_ms_cm,
	light_lux, level_float,
	raw_json
) VALUES (
	$1, $2, $3,
	$4, $5, $6,
	$7, $8, $9,
	$10, $11,
	$12
)`, r.table)

	_, err := r.db.ExecContext(ctx, query,
		evt.TS, evt.Device, evt.Seq,
		airT, airRH, airP,
		waterT, waterPH, waterEC,
		lux, level,
		raw,
	)
	return err
}

// LatestEvent returns the raw payload of the most recently inserted event
// across all devices, or nil when the relation is empty. Used only for
// restart snapshot recovery.
func (r *EventRepository) LatestEvent(ctx context.Context) (json.RawMessage, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("event repo: nil db")
	}
	query := fmt.Sprintf(`SELECT raw_json FROM %s ORDER BY id DESC LIMIT 1`, r.table)
	var raw []byte
	err := r.db.QueryRowContext(ctx, query).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// LatestEventsPerDevice returns the most recently inserted raw payload of
// every device, for cursor recovery after a restart.
func (r *EventRepository) LatestEventsPerDevice(ctx context.Context) ([]json.RawMessage, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("event repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT DISTINCT ON (device) raw_json
FROM %s
ORDER BY device, id DESC`, r.table)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payloads []json.RawMessage
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		payloads = append(payloads, raw)
	}
	return payloads, rows.Err()
}

// RecentEvents returns up to limit raw payloads, most-recent-first.
func (r *EventRepository) RecentEvents(ctx context.Context, limit int) ([]json.RawMessage, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("event repo: nil db")
	}
	if limit <= 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT raw_json FROM %s ORDER BY id DESC LIMIT $1`, r.table)
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payloads []json.RawMessage
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		payloads = append(payloads, raw)
	}
	return payloads, rows.Err()
}

// EventRow is one stored event with its extracted scalar columns, used by
// the export surface.
type EventRow struct {
	ID     int64
	TS     string
	Device string
	Seq    int64

	AirTempC   sql.NullFloat64
	AirRHPct   sql.NullFloat64
	AirPHPa    sql.NullFloat64
	WaterTempC sql.NullFloat64
	WaterPH    sql.NullFloat64
	WaterEC    sql.NullFloat64
	LightLux   sql.NullFloat64
	LevelFloat sql.NullFloat64
}

// RecentEventRows returns up to limit extracted rows, most-recent-first.
func (r *EventRepository) RecentEventRows(ctx context.Context, limit int) ([]EventRow, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("event repo: nil db")
	}
	if limit <= 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
SELECT id, ts, device, seq,
	air_t_c, air_rh_pct, air_p_hpa,
	water_t_c, water_ph, water_ec_ms_cm,
	light_lux, level_float
FROM %s
ORDER BY id DESC
LIMIT $1`, r.table)
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var row EventRow
		if err := rows.Scan(
			&row.ID, &row.TS, &row.Device, &row.Seq,
			&row.AirTempC, &row.AirRHPct, &row.AirPHPa,
			&row.WaterTempC, &row.WaterPH, &row.WaterEC,
			&row.LightLux, &row.LevelFloat,
		); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func nullFloat(value *float64) sql.NullFloat64 {
	if value == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *value, Valid: true}
}
