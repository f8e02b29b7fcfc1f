package alarms

import "encoding/json"

// EventTypeAlert is the discriminator carried by broadcast alert payloads.
const EventTypeAlert = "alert"

// Severity levels, ordered by urgency.
const (
	SeverityInfo = "INFO"
	SeverityWarn = "WARN"
	SeverityCrit = "CRIT"
)

// Stable rule identifiers.
const (
	CodeWaterLow      = "WATER_LOW"
	CodePHLow         = "PH_LOW"
	CodePHHigh        = "PH_HIGH"
	CodeECLow         = "EC_LOW"
	CodeECHigh        = "EC_HIGH"
	CodeWaterTempHigh = "WATER_TEMP_HIGH"
)

// Alert is one rule firing. Immutable once persisted; the alerts relation
// is append-only.
type Alert struct {
	ID       int64  `json:"id,omitempty"`
	Type     string `json:"type"`
	TS       string `json:"ts"`
	Device   string `json:"device"`
	Severity string `json:"severity"`
	Code     string `json:"code"`
	Message  string `json:"message"`

	// Raw is the audit payload: the triggering event plus the alert
	// itself. Persisted, never broadcast.
	Raw json.RawMessage `json:"-"`
}
