package telemetry

import (
	"errors"
	"testing"
	"time"
)

func TestParseSensorEvent(t *testing.T) {
	raw := []byte(`{
		"type": "sensor",
		"ts": "2026-02-01T10:00:00.123456+00:00",
		"device": "farm-esp32-1",
		"seq": 42,
		"air": {"t_c": 24.1, "rh_pct": 55.2, "p_hpa": 1007.4},
		"water": {"t_c": 20.3, "ph": 6.1, "ec_ms_cm": 1.4},
		"light": {"lux": 512},
		"level": {"float": 1}
	}`)

	evt, err := ParseSensorEvent(raw)
	if err != nil {
		t.Fatalf("ParseSensorEvent: %v", err)
	}
	if evt.Device != "farm-esp32-1" || evt.Seq != 42 {
		t.Fatalf("device/seq = %q/%d", evt.Device, evt.Seq)
	}
	if evt.Water == nil || evt.Water.PH == nil || *evt.Water.PH != 6.1 {
		t.Fatal("water.ph not decoded")
	}
	if evt.Level == nil || evt.Level.Float == nil || *evt.Level.Float != 1 {
		t.Fatal("level.float not decoded")
	}
	if evt.Light == nil || evt.Light.Lux == nil || *evt.Light.Lux != 512 {
		t.Fatal("light.lux not decoded")
	}
}

func TestParseSensorEventPartialSections(t *testing.T) {
	raw := []byte(`{"type":"sensor","ts":"2026-02-01T10:00:00Z","device":"d1","seq":1,"water":{"ph":5.9}}`)
	evt, err := ParseSensorEvent(raw)
	if err != nil {
		t.Fatalf("ParseSensorEvent: %v", err)
	}
	if evt.Air != nil || evt.Light != nil || evt.Level != nil {
		t.Fatal("absent sections must stay nil")
	}
	if evt.Water.TempC != nil || evt.Water.ECmScm != nil {
		t.Fatal("absent water fields must stay nil")
	}
}

func TestParseSensorEventRejections(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"invalid json", `{"type":"sensor",`},
		{"wrong type", `{"type":"heartbeat","ts":"2026-02-01T10:00:00Z","device":"d1","seq":1}`},
		{"missing ts", `{"type":"sensor","device":"d1","seq":1}`},
		{"missing device", `{"type":"sensor","ts":"2026-02-01T10:00:00Z","seq":1}`},
		{"missing seq", `{"type":"sensor","ts":"2026-02-01T10:00:00Z","device":"d1"}`},
		{"empty device", `{"type":"sensor","ts":"2026-02-01T10:00:00Z","device":"","seq":1}`},
		{"fractional seq", `{"type":"sensor","ts":"2026-02-01T10:00:00Z","device":"d1","seq":1.5}`},
		{"negative seq", `{"type":"sensor","ts":"2026-02-01T10:00:00Z","device":"d1","seq":-1}`},
		{"string seq", `{"type":"sensor","ts":"2026-02-01T10:00:00Z","device":"d1","seq":"7"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseSensorEvent([]byte(tc.raw)); !errors.Is(err, ErrMalformed) {
				t.Fatalf("err = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestParseTS(t *testing.T) {
	got, err := ParseTS("2026-02-01T10:00:00.123456+02:00")
	if err != nil {
		t.Fatalf("ParseTS fractional: %v", err)
	}
	want := time.Date(2026, 2, 1, 10, 0, 0, 123456000, time.FixedZone("", 2*3600))
	if !got.Equal(want) {
		t.Fatalf("ParseTS = %v, want %v", got, want)
	}

	if _, err := ParseTS("2026-02-01T10:00:00Z"); err != nil {
		t.Fatalf("ParseTS whole-second: %v", err)
	}
	if _, err := ParseTS(""); err == nil {
		t.Fatal("empty timestamp must fail")
	}
	if _, err := ParseTS("yesterday"); err == nil {
		t.Fatal("non-ISO timestamp must fail")
	}
}
