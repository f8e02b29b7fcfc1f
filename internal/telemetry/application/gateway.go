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
	"farm-host/internal/telemetry/acceptance"
	telemetry "farm-host/internal/telemetry/domain"
)

// EventStore persists validated sensor events.
type EventStore interface {
	InsertEvent(ctx context.Context, evt *telemetry.SensorEvent, raw []byte) error
	LatestEvent(ctx context.Context) (json.RawMessage, error)
	LatestEventsPerDevice(ctx context.Context) ([]json.RawMessage, error)
	RecentEvents(ctx context.Context, limit int) ([]json.RawMessage, error)
}

// AlertEngine evaluates rules over an accepted event, persisting the
// alerts it returns.
type AlertEngine interface {
	Evaluate(ctx context.Context, evt *telemetry.SensorEvent, raw json.RawMessage) []alarms.Alert
}

// Broadcaster pushes serialized payloads to live subscribers.
type Broadcaster interface {
	Broadcast(payload []byte)
}

// SnapshotCache mirrors the latest accepted payload into a hot store for
// external dashboards. Failures are logged, never fatal.
type SnapshotCache interface {
	StoreLatest(ctx context.Context, device string, raw []byte) error
}

// Outcome classifies one ingest submission.
type Outcome string

// The three producer-visible outcomes. Ignored is not an error: it marks
// a stale or duplicate event the filter refused.
const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeIgnored  Outcome = "ignored"
	OutcomeRejected Outcome = "rejected"
)

// Result reports what happened to one submission.
type Result struct {
	Outcome Outcome
	Reason  string
	Alerts  []alarms.Alert
}

// Gateway orchestrates the ingestion pipeline: validate, accept, persist,
// snapshot, broadcast, evaluate alerts, broadcast alerts. It owns the
// process-wide latest-event slot.
type Gateway struct {
	store  EventStore
	filter *acceptance.Filter
	engine AlertEngine
	broker Broadcaster
	cache  SnapshotCache
	logger *log.Logger

	mu     sync.RWMutex
	latest json.RawMessage
}

// GatewayOption customizes the gateway.
type GatewayOption func(*Gateway)

// WithSnapshotCache assigns the hot-cache mirror.
func WithSnapshotCache(cache SnapshotCache) GatewayOption {
	return func(g *Gateway) {
		g.cache = cache
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *log.Logger) GatewayOption {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGateway constructs a gateway.
func NewGateway(store EventStore, filter *acceptance.Filter, engine AlertEngine, broker Broadcaster, opts ...GatewayOption) (*Gateway, error) {
	if store == nil {
		return nil, errors.New("gateway: nil event store")
	}
	if filter == nil {
		return nil, errors.New("gateway: nil acceptance filter")
	}
	if engine == nil {
		return nil, errors.New("gateway: nil alert engine")
	}
	if broker == nil {
		return nil, errors.New("gateway: nil broadcaster")
	}
	gateway := &Gateway{
		store:  store,
		filter: filter,
		engine: engine,
		broker: broker,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(gateway)
	}
	return gateway, nil
}

// Ingest runs one raw payload through the pipeline. The returned error is
// non-nil only for storage failures, which are retryable: acceptance
// state and the snapshot are untouched, so the producer may resubmit the
// same event. Malformed and stale submissions come back as Rejected and
// Ignored results with a nil error.
func (g *Gateway) Ingest(ctx context.Context, raw []byte) (Result, error) {
	start := time.Now()

	evt, err := telemetry.ParseSensorEvent(raw)
	if err != nil {
		metrics.ObserveIngest(metrics.OutcomeRejected, time.Since(start))
		return Result{Outcome: OutcomeRejected, Reason: err.Error()}, nil
	}

	// The admission holds this device's cursor until Commit, so accepted
	// events persist and broadcast in acceptance order per device.
	adm := g.filter.Begin(evt.Device, evt.Seq, evt.TS)
	if !adm.Accepted() {
		adm.Abort()
		metrics.ObserveIngest(metrics.OutcomeIgnored, time.Since(start))
		return Result{Outcome: OutcomeIgnored}, nil
	}

	if err := g.store.InsertEvent(ctx, evt, raw); err != nil {
		adm.Abort()
		metrics.ObserveIngest(metrics.OutcomeError, time.Since(start))
		return Result{}, fmt.Errorf("gateway: store event: %w", err)
	}

	g.setLatest(evt.Device, raw)
	g.broker.Broadcast(raw)

	alerts := g.engine.Evaluate(ctx, evt, raw)
	for _, alert := range alerts {
		payload, err := json.Marshal(alert)
		if err != nil {
			g.logger.Printf("gateway: marshal alert %s: %v", alert.Code, err)
			continue
		}
		g.broker.Broadcast(payload)
	}

	adm.Commit()
	metrics.ObserveIngest(metrics.OutcomeAccepted, time.Since(start))
	return Result{Outcome: OutcomeAccepted, Alerts: alerts}, nil
}

func (g *Gateway) setLatest(device string, raw []byte) {
	snapshot := make([]byte, len(raw))
	copy(snapshot, raw)
	g.mu.Lock()
	g.latest = snapshot
	g.mu.Unlock()

	if g.cache != nil {
		if err := g.cache.StoreLatest(context.Background(), device, snapshot); err != nil {
			g.logger.Printf("gateway: snapshot cache: %v", err)
		}
	}
}

// Latest returns the most recently accepted payload across all devices,
// or nil when nothing has been accepted yet.
func (g *Gateway) Latest() json.RawMessage {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.latest
}

// SnapshotPayload implements the broadcaster's greeting source.
func (g *Gateway) SnapshotPayload() []byte {
	return g.Latest()
}

// Series returns up to limit recent events as parallel per-field arrays,
// oldest-first. Rows whose stored payload no longer parses are skipped.
func (g *Gateway) Series(ctx context.Context, limit int) (*telemetry.Series, error) {
	payloads, err := g.store.RecentEvents(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("gateway: recent events: %w", err)
	}

	series := &telemetry.Series{}
	for i := len(payloads) - 1; i >= 0; i-- {
		evt, err := telemetry.ParseSensorEvent(payloads[i])
		if err != nil {
			g.logger.Printf("gateway: stored event unparseable: %v", err)
			continue
		}
		series.Add(evt)
	}
	return series, nil
}

// Restore rehydrates process state from the store after a restart: one
// acceptance cursor per device, and the globally most recent payload into
// the snapshot slot. Without this a restart would regress every device to
// "first event ever" and re-accept duplicates.
func (g *Gateway) Restore(ctx context.Context) error {
	perDevice, err := g.store.LatestEventsPerDevice(ctx)
	if err != nil {
		return fmt.Errorf("gateway: restore cursors: %w", err)
	}
	restored := 0
	for _, raw := range perDevice {
		evt, err := telemetry.ParseSensorEvent(raw)
		if err != nil {
			g.logger.Printf("gateway: restore: skipping unparseable row: %v", err)
			continue
		}
		g.filter.Restore(evt.Device, evt.Seq, evt.TS)
		restored++
	}

	latest, err := g.store.LatestEvent(ctx)
	if err != nil {
		return fmt.Errorf("gateway: restore snapshot: %w", err)
	}
	if latest != nil {
		if evt, err := telemetry.ParseSensorEvent(latest); err == nil {
			g.setLatest(evt.Device, latest)
		}
	}
	g.logger.Printf("gateway: restored %d device cursor(s)", restored)
	return nil
}
