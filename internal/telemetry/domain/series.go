package telemetry

// Series holds recent events as parallel per-field arrays, oldest-first,
// shaped for charting clients. Absent readings appear as nulls so the
// arrays stay aligned with TS.
type Series struct {
	TS         []string   `json:"ts"`
	Device     []string   `json:"device"`
	Seq        []int64    `json:"seq"`
	AirTempC   []*float64 `json:"air_t_c"`
	AirRHPct   []*float64 `json:"air_rh_pct"`
	AirPHPa    []*float64 `json:"air_p_hpa"`
	WaterTempC []*float64 `json:"water_t_c"`
	WaterPH    []*float64 `json:"water_ph"`
	WaterEC    []*float64 `json:"water_ec_ms_cm"`
	LightLux   []*float64 `json:"light_lux"`
	LevelFloat []*float64 `json:"level_float"`
}

// Add appends one event to every column.
func (s *Series) Add(evt *SensorEvent) {
	if evt == nil {
		return
	}
	s.TS = append(s.TS, evt.TS)
	s.Device = append(s.Device, evt.Device)
	s.Seq = append(s.Seq, evt.Seq)

	var airT, airRH, airP *float64
	if evt.Air != nil {
		airT, airRH, airP = evt.Air.TempC, evt.Air.HumidityPct, evt.Air.PressureHPa
	}
	s.AirTempC = append(s.AirTempC, airT)
	s.AirRHPct = append(s.AirRHPct, airRH)
	s.AirPHPa = append(s.AirPHPa, airP)

	var waterT, waterPH, waterEC *float64
	if evt.Water != nil {
		waterT, waterPH, waterEC = evt.Water.TempC, evt.Water.PH, evt.Water.ECmScm
	}
	s.WaterTempC = append(s.WaterTempC, waterT)
	s.WaterPH = append(s.WaterPH, waterPH)
	s.WaterEC = append(s.WaterEC, waterEC)

	var lux *float64
	if evt.Light != nil {
		lux = evt.Light.Lux
	}
	s.LightLux = append(s.LightLux, lux)

	var level *float64
	if evt.Level != nil {
		level = evt.Level.Float
	}
	s.LevelFloat = append(s.LevelFloat, level)
}

// Len returns the number of samples in the series.
func (s *Series) Len() int {
	return len(s.TS)
}
