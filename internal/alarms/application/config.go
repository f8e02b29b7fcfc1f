package application

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Thresholds defines the fixed rule thresholds and the per-(device,code)
// cooldown. Values are process-wide, not per-device.
type Thresholds struct {
	PHLow           float64 `yaml:"ph_low"`
	PHHigh          float64 `yaml:"ph_high"`
	ECLow           float64 `yaml:"ec_low"`
	ECHigh          float64 `yaml:"ec_high"`
	WaterTempHighC  float64 `yaml:"water_temp_high_c"`
	CooldownSeconds float64 `yaml:"cooldown_seconds"`
}

// DefaultThresholds returns the stock rule configuration.
func DefaultThresholds() Thresholds {
	return Thresholds{
		PHLow:           5.5,
		PHHigh:          6.8,
		ECLow:           0.8,
		ECHigh:          2.2,
		WaterTempHighC:  26.0,
		CooldownSeconds: 10.0,
	}
}

// LoadThresholds returns the defaults, overlaid from the YAML file named
// by ALERTS_CONFIG when set. Zero values in the file keep the default.
func LoadThresholds() (Thresholds, error) {
	cfg := DefaultThresholds()

	path := os.Getenv("ALERTS_CONFIG")
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	var override Thresholds
	if err := yaml.Unmarshal(data, &override); err != nil {
		return cfg, err
	}
	return mergeThresholds(cfg, override), nil
}

// Cooldown returns the cooldown window as a duration.
func (t Thresholds) Cooldown() time.Duration {
	return time.Duration(t.CooldownSeconds * float64(time.Second))
}

func mergeThresholds(base, override Thresholds) Thresholds {
	if override.PHLow != 0 {
		base.PHLow = override.PHLow
	}
	if override.PHHigh != 0 {
		base.PHHigh = override.PHHigh
	}
	if override.ECLow != 0 {
		base.ECLow = override.ECLow
	}
	if override.ECHigh != 0 {
		base.ECHigh = override.ECHigh
	}
	if override.WaterTempHighC != 0 {
		base.WaterTempHighC = override.WaterTempHighC
	}
	if override.CooldownSeconds != 0 {
		base.CooldownSeconds = override.CooldownSeconds
	}
	return base
}
