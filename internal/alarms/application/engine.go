package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	alarms "farm-host/internal/alarms/domain"
	"farm-host/internal/observability/metrics"
	telemetry "farm-host/internal/telemetry/domain"
)

// AlertRepository persists fired alerts.
type AlertRepository interface {
	InsertAlert(ctx context.Context, alert *alarms.Alert) error
}

// AlertNotifier pushes fired alerts to external channels. Implementations
// must not block; the pipeline fires and forgets.
type AlertNotifier interface {
	Notify(ctx context.Context, alert alarms.Alert)
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Engine evaluates threshold rules over accepted sensor events. Rules are
// independent; all may fire on the same event. Each firing is gated by a
// per-(device,code) cooldown so replays of a sustained condition do not
// spam the alert log.
type Engine struct {
	repo       AlertRepository
	thresholds Thresholds
	clock      Clock
	logger     *log.Logger
	notifier   AlertNotifier

	mu        sync.Mutex
	lastFired map[string]time.Time
}

// EngineOption customizes the engine.
type EngineOption func(*Engine)

// WithClock assigns a clock.
func WithClock(clock Clock) EngineOption {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithNotifier assigns an external notification sink.
func WithNotifier(notifier AlertNotifier) EngineOption {
	return func(e *Engine) {
		e.notifier = notifier
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *log.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine constructs a rule engine.
func NewEngine(repo AlertRepository, thresholds Thresholds, opts ...EngineOption) (*Engine, error) {
	if repo == nil {
		return nil, errors.New("alarms: nil alert repository")
	}
	engine := &Engine{
		repo:       repo,
		thresholds: thresholds,
		clock:      systemClock{},
		logger:     log.Default(),
		lastFired:  make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine, nil
}

// Evaluate runs every rule against the event and persists each alert
// before returning it. A single rule's failure (cooldown aside) never
// blocks the remaining rules; persistence errors are logged and that
// alert is dropped from the result. The engine never broadcasts — that
// is the caller's concern.
func (e *Engine) Evaluate(ctx context.Context, evt *telemetry.SensorEvent, raw json.RawMessage) []alarms.Alert {
	if e == nil || evt == nil {
		return nil
	}

	candidates := e.candidates(evt)
	if len(candidates) == 0 {
		return nil
	}

	fired := make([]alarms.Alert, 0, len(candidates))
	for _, alert := range candidates {
		// The stamp lands before the insert: a failed insert keeps the
		// window closed until it expires.
		if !e.cooldownOK(evt.Device + ":" + alert.Code) {
			continue
		}
		audit, err := json.Marshal(map[string]any{"event": json.RawMessage(raw), "alert": alert})
		if err != nil {
			e.logger.Printf("alarms: audit payload for %s: %v", alert.Code, err)
		} else {
			alert.Raw = audit
		}
		if err := e.repo.InsertAlert(ctx, &alert); err != nil {
			e.logger.Printf("alarms: insert %s for %s: %v", alert.Code, evt.Device, err)
			continue
		}
		metrics.IncAlertFired(alert.Code, alert.Severity)
		if e.notifier != nil {
			e.notifier.Notify(ctx, alert)
		}
		fired = append(fired, alert)
	}
	return fired
}

// candidates returns the alerts whose conditions hold for the event,
// ignoring cooldown state. Missing or absent readings silently skip the
// corresponding rule.
func (e *Engine) candidates(evt *telemetry.SensorEvent) []alarms.Alert {
	thr := e.thresholds
	var out []alarms.Alert

	emit := func(severity, code, message string) {
		out = append(out, alarms.Alert{
			Type:     alarms.EventTypeAlert,
			TS:       evt.TS,
			Device:   evt.Device,
			Severity: severity,
			Code:     code,
			Message:  message,
		})
	}

	if evt.Level != nil && evt.Level.Float != nil && *evt.Level.Float == 0 {
		emit(alarms.SeverityCrit, alarms.CodeWaterLow, "Reservoir level is LOW (float=0).")
	}

	if evt.Water != nil {
		if ph := evt.Water.PH; ph != nil {
			if *ph < thr.PHLow {
				emit(alarms.SeverityWarn, alarms.CodePHLow, fmt.Sprintf("pH is low: %.2f (< %.2f).", *ph, thr.PHLow))
			}
			if *ph > thr.PHHigh {
				emit(alarms.SeverityWarn, alarms.CodePHHigh, fmt.Sprintf("pH is high: %.2f (> %.2f).", *ph, thr.PHHigh))
			}
		}
		if ec := evt.Water.ECmScm; ec != nil {
			if *ec < thr.ECLow {
				emit(alarms.SeverityWarn, alarms.CodeECLow, fmt.Sprintf("EC is low: %.2f mS/cm (< %.2f).", *ec, thr.ECLow))
			}
			if *ec > thr.ECHigh {
				emit(alarms.SeverityWarn, alarms.CodeECHigh, fmt.Sprintf("EC is high: %.2f mS/cm (> %.2f).", *ec, thr.ECHigh))
			}
		}
		if t := evt.Water.TempC; t != nil && *t > thr.WaterTempHighC {
			emit(alarms.SeverityWarn, alarms.CodeWaterTempHigh, fmt.Sprintf("Water temp is high: %.2f C (> %.2f).", *t, thr.WaterTempHighC))
		}
	}

	return out
}

// cooldownOK atomically checks and stamps the cooldown for a device:code
// key, so two concurrent evaluations cannot both see an expired window.
func (e *Engine) cooldownOK(key string) bool {
	now := e.clock.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	if last, ok := e.lastFired[key]; ok && now.Sub(last) < e.thresholds.Cooldown() {
		return false
	}
	e.lastFired[key] = now
	return true
}

// restoreScanLimit bounds how many persisted alerts startup recovery
// reads back. Only alerts younger than the cooldown matter; anything a
// fleet fires inside one window fits well under this.
const restoreScanLimit = 256

// AlertLister reads back recently fired alerts, most-recent-first.
type AlertLister interface {
	RecentAlerts(ctx context.Context, limit int) ([]alarms.Alert, error)
}

// RestoreCooldowns seeds cooldown stamps from persisted alerts during
// startup recovery, so a restart does not re-fire a rule whose window is
// still open.
func (e *Engine) RestoreCooldowns(ctx context.Context, reader AlertLister) error {
	if reader == nil {
		return errors.New("alarms: nil alert reader")
	}
	recent, err := reader.RecentAlerts(ctx, restoreScanLimit)
	if err != nil {
		return fmt.Errorf("alarms: restore cooldowns: %w", err)
	}
	now := e.clock.Now()
	restored := 0
	for _, alert := range recent {
		firedAt, err := telemetry.ParseTS(alert.TS)
		if err != nil {
			continue
		}
		if now.Sub(firedAt) >= e.thresholds.Cooldown() {
			continue
		}
		key := alert.Device + ":" + alert.Code
		e.mu.Lock()
		if last, ok := e.lastFired[key]; !ok || firedAt.After(last) {
			e.lastFired[key] = firedAt
			restored++
		}
		e.mu.Unlock()
	}
	e.logger.Printf("alarms: restored %d cooldown stamp(s)", restored)
	return nil
}
