package main

import (
	"testing"
	"time"

	telemetry "farm-host/internal/telemetry/domain"
)

func TestGeneratorSequenceAndBounds(t *testing.T) {
	for _, mode := range []string{"uniform", "normal", "flagged"} {
		t.Run(mode, func(t *testing.T) {
			gen := newGenerator("dev-1", mode)
			for i := 1; i <= 100; i++ {
				msg := gen.generate()
				if msg.Seq != int64(i) {
					t.Fatalf("seq = %d, want %d", msg.Seq, i)
				}
				if msg.Type != "sensor" || msg.Device != "dev-1" {
					t.Fatalf("identity fields wrong: %+v", msg)
				}
				if _, err := telemetry.ParseTS(msg.TS); err != nil {
					t.Fatalf("ts %q unparseable: %v", msg.TS, err)
				}

				ph := msg.Water["ph"].(float64)
				if ph < 4.0 || ph > 8.5 {
					t.Fatalf("ph %v out of generator range", ph)
				}
				ec := msg.Water["ec_ms_cm"].(float64)
				if ec < 0.5 || ec > 3.2 {
					t.Fatalf("ec %v out of generator range", ec)
				}
				level := msg.Level["float"].(int)
				if level != 0 && level != 1 {
					t.Fatalf("level %v not a switch state", level)
				}
			}
		})
	}
}

func TestFlaggedModeEventuallyCrossesThresholds(t *testing.T) {
	gen := newGenerator("dev-1", "flagged")
	crossed := false
	for i := 0; i < 200 && !crossed; i++ {
		msg := gen.generate()
		ph := msg.Water["ph"].(float64)
		ec := msg.Water["ec_ms_cm"].(float64)
		waterT := msg.Water["t_c"].(float64)
		level := msg.Level["float"].(int)
		if ph < 5.5 || ec > 2.2 || waterT > 26.0 || level == 0 {
			crossed = true
		}
	}
	if !crossed {
		t.Fatal("flagged mode never produced an out-of-bounds reading")
	}
}

func TestClamp(t *testing.T) {
	if got := clamp(5, 0, 1); got != 1 {
		t.Fatalf("clamp high = %v", got)
	}
	if got := clamp(-5, 0, 1); got != 0 {
		t.Fatalf("clamp low = %v", got)
	}
	if got := clamp(0.5, 0, 1); got != 0.5 {
		t.Fatalf("clamp mid = %v", got)
	}
}

func TestGetenvDuration(t *testing.T) {
	t.Setenv("MOCK_PERIOD", "250ms")
	if got := getenvDuration("MOCK_PERIOD", time.Second); got != 250*time.Millisecond {
		t.Fatalf("duration form = %v", got)
	}
	t.Setenv("MOCK_PERIOD", "1.5")
	if got := getenvDuration("MOCK_PERIOD", time.Second); got != 1500*time.Millisecond {
		t.Fatalf("seconds form = %v", got)
	}
	t.Setenv("MOCK_PERIOD", "soon")
	if got := getenvDuration("MOCK_PERIOD", time.Second); got != time.Second {
		t.Fatalf("fallback = %v", got)
	}
}
