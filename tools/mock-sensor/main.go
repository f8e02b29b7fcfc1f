// mock-sensor simulates an ESP32 field unit: it generates sensor events
// and POSTs them to the host's ingest endpoint at a fixed period,
// backing off exponentially while the host is unreachable.
package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"time"
)

type generator struct {
	deviceID string
	mode     string
	seq      int64
	rng      *rand.Rand

	// flagged mode cycles 30 normal packets then 10 out-of-bounds.
	packetsInCycle int
	alertSensor    string
}

type event struct {
	Type   string         `json:"type"`
	TS     string         `json:"ts"`
	Device string         `json:"device"`
	Seq    int64          `json:"seq"`
	Air    map[string]any `json:"air"`
	Water  map[string]any `json:"water"`
	Light  map[string]any `json:"light"`
	Level  map[string]any `json:"level"`
}

func newGenerator(deviceID, mode string) *generator {
	return &generator{
		deviceID: deviceID,
		mode:     mode,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (g *generator) gauss(mean, stddev, min, max float64) float64 {
	return clamp(g.rng.NormFloat64()*stddev+mean, min, max)
}

func (g *generator) uniform(min, max float64) float64 {
	return min + g.rng.Float64()*(max-min)
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func round2(value float64) float64 {
	return float64(int(value*100+0.5)) / 100
}

func (g *generator) generate() event {
	g.seq++

	var airT, airRH, airP, waterT, waterPH, waterEC, lux float64
	switch g.mode {
	case "uniform":
		airT = g.uniform(22.0, 26.0)
		airRH = g.uniform(45.0, 65.0)
		airP = g.uniform(1000.0, 1015.0)
		waterT = g.uniform(18.0, 22.0)
		waterPH = g.uniform(5.8, 6.8)
		waterEC = g.uniform(1.0, 1.8)
		lux = float64(200 + g.rng.Intn(601))
	default:
		airT = g.gauss(24.0, 1.5, 18.0, 30.0)
		airRH = g.gauss(55.0, 7.0, 30.0, 90.0)
		airP = g.gauss(1007.5, 3.5, 990.0, 1030.0)
		waterT = g.gauss(20.0, 1.2, 15.0, 28.0)
		waterPH = g.gauss(6.3, 0.25, 4.5, 8.5)
		waterEC = g.gauss(1.4, 0.18, 0.5, 3.0)
		lux = float64(int(g.gauss(500, 100, 50, 1500)))
	}

	level := g.rng.Intn(2)

	if g.mode == "flagged" {
		g.packetsInCycle++
		switch {
		case g.packetsInCycle <= 30:
			// normal stretch
		case g.packetsInCycle <= 40:
			if g.alertSensor == "" {
				sensors := []string{"ph", "ec", "water_temp", "level"}
				g.alertSensor = sensors[g.rng.Intn(len(sensors))]
			}
			switch g.alertSensor {
			case "ph":
				waterPH = g.uniform(4.0, 5.0)
			case "ec":
				waterEC = g.uniform(2.5, 3.2)
			case "water_temp":
				waterT = g.uniform(27.0, 30.0)
			case "level":
				level = 0
			}
		default:
			g.packetsInCycle = 0
			g.alertSensor = ""
		}
	}

	return event{
		Type:   "sensor",
		TS:     time.Now().Format(time.RFC3339Nano),
		Device: g.deviceID,
		Seq:    g.seq,
		Air: map[string]any{
			"t_c":    round2(airT),
			"rh_pct": round2(airRH),
			"p_hpa":  round2(airP),
		},
		Water: map[string]any{
			"t_c":      round2(waterT),
			"ph":       round2(waterPH),
			"ec_ms_cm": round2(waterEC),
		},
		Light: map[string]any{"lux": int(lux)},
		Level: map[string]any{"float": level},
	}
}

func postJSON(client *http.Client, url string, payload any) (int, string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, "", err
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return resp.StatusCode, string(detail), nil
}

func main() {
	ingestURL := getenvDefault("INGEST_URL", "http://127.0.0.1:8000/ingest")
	deviceID := getenvDefault("DEVICE_ID", "farm-esp32-1")
	mode := getenvDefault("MODE", "normal") // uniform | normal | flagged
	period := getenvDuration("PERIOD", time.Second)
	timeout := getenvDuration("HTTP_TIMEOUT", 3*time.Second)

	const maxBackoff = 8 * time.Second
	backoff := 500 * time.Millisecond

	gen := newGenerator(deviceID, mode)
	client := &http.Client{Timeout: timeout}

	log.Printf("mock-sensor: sending to %s device=%s mode=%s period=%s", ingestURL, deviceID, mode, period)

	for {
		msg := gen.generate()
		status, detail, err := postJSON(client, ingestURL, msg)
		if err != nil {
			log.Printf("mock-sensor: seq=%d unreachable: %v", msg.Seq, err)
		} else if status == http.StatusOK {
			log.Printf("mock-sensor: ok seq=%d lux=%v ph=%v ec=%v", msg.Seq, msg.Light["lux"], msg.Water["ph"], msg.Water["ec_ms_cm"])
			backoff = 500 * time.Millisecond
			time.Sleep(period)
			continue
		} else {
			log.Printf("mock-sensor: seq=%d status=%d detail=%s", msg.Seq, status, detail)
		}
		time.Sleep(backoff)
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(seconds * float64(time.Second))
	}
	return fallback
}
