package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventTypeSensor is the discriminator carried by every sensor payload.
const EventTypeSensor = "sensor"

// ErrMalformed marks payloads that fail structural validation.
var ErrMalformed = errors.New("malformed sensor event")

// SensorEvent is one telemetry sample reported by a field device.
// Once persisted it is immutable; the raw payload travels alongside the
// parsed form so storage and broadcast stay byte-faithful to the producer.
type SensorEvent struct {
	Type   string `json:"type"`
	TS     string `json:"ts"`
	Device string `json:"device"`
	Seq    int64  `json:"seq"`
	Air    *Air   `json:"air,omitempty"`
	Water  *Water `json:"water,omitempty"`
	Light  *Light `json:"light,omitempty"`
	Level  *Level `json:"level,omitempty"`
}

// Air groups ambient readings. Any field may be absent.
type Air struct {
	TempC       *float64 `json:"t_c"`
	HumidityPct *float64 `json:"rh_pct"`
	PressureHPa *float64 `json:"p_hpa"`
}

// Water groups reservoir readings.
type Water struct {
	TempC  *float64 `json:"t_c"`
	PH     *float64 `json:"ph"`
	ECmScm *float64 `json:"ec_ms_cm"`
}

// Light carries the lux reading.
type Light struct {
	Lux *float64 `json:"lux"`
}

// Level carries the float switch state (0 = low, 1 = high).
type Level struct {
	Float *float64 `json:"float"`
}

type wireEvent struct {
	Type   string       `json:"type"`
	TS     *string      `json:"ts"`
	Device *string      `json:"device"`
	Seq    *json.Number `json:"seq"`
	Air    *Air         `json:"air"`
	Water  *Water       `json:"water"`
	Light  *Light       `json:"light"`
	Level  *Level       `json:"level"`
}

// ParseSensorEvent decodes and structurally validates a raw payload.
// Validation requires type=="sensor", ts/device/seq present and seq an
// integer >= 0. Errors wrap ErrMalformed.
func ParseSensorEvent(raw []byte) (*SensorEvent, error) {
	var wire wireEvent
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("%w: invalid json: %v", ErrMalformed, err)
	}
	if wire.Type != EventTypeSensor {
		return nil, fmt.Errorf("%w: unsupported event type %q (expected %q)", ErrMalformed, wire.Type, EventTypeSensor)
	}
	if wire.TS == nil || wire.Device == nil || wire.Seq == nil {
		return nil, fmt.Errorf("%w: missing required fields ts, device, seq", ErrMalformed)
	}
	if *wire.Device == "" {
		return nil, fmt.Errorf("%w: device must be non-empty", ErrMalformed)
	}
	seq, err := wire.Seq.Int64()
	if err != nil {
		return nil, fmt.Errorf("%w: seq must be an integer", ErrMalformed)
	}
	if seq < 0 {
		return nil, fmt.Errorf("%w: seq must be non-negative", ErrMalformed)
	}
	return &SensorEvent{
		Type:   wire.Type,
		TS:     *wire.TS,
		Device: *wire.Device,
		Seq:    seq,
		Air:    wire.Air,
		Water:  wire.Water,
		Light:  wire.Light,
		Level:  wire.Level,
	}, nil
}

// ParseTS parses a producer timestamp (ISO-8601 with offset).
func ParseTS(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, value)
}
