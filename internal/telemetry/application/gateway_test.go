package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"

	alarms "farm-host/internal/alarms/domain"
	"farm-host/internal/telemetry/acceptance"
	telemetry "farm-host/internal/telemetry/domain"
)

type memStore struct {
	mu     sync.Mutex
	events [][]byte
	fail   bool
}

func (m *memStore) InsertEvent(_ context.Context, _ *telemetry.SensorEvent, raw []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("connection refused")
	}
	stored := make([]byte, len(raw))
	copy(stored, raw)
	m.events = append(m.events, stored)
	return nil
}

func (m *memStore) LatestEvent(_ context.Context) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == 0 {
		return nil, nil
	}
	return m.events[len(m.events)-1], nil
}

func (m *memStore) LatestEventsPerDevice(_ context.Context) ([]json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	latest := map[string]json.RawMessage{}
	for _, raw := range m.events {
		evt, err := telemetry.ParseSensorEvent(raw)
		if err != nil {
			continue
		}
		latest[evt.Device] = raw
	}
	out := make([]json.RawMessage, 0, len(latest))
	for _, raw := range latest {
		out = append(out, raw)
	}
	return out, nil
}

func (m *memStore) RecentEvents(_ context.Context, limit int) ([]json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []json.RawMessage{}
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.events[i])
	}
	return out, nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

type recordingBroker struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (b *recordingBroker) Broadcast(payload []byte) {
	b.mu.Lock()
	b.payloads = append(b.payloads, payload)
	b.mu.Unlock()
}

func (b *recordingBroker) all() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]byte{}, b.payloads...)
}

type stubEngine struct {
	alerts []alarms.Alert
}

func (s *stubEngine) Evaluate(context.Context, *telemetry.SensorEvent, json.RawMessage) []alarms.Alert {
	return s.alerts
}

func payload(device string, seq int64, ts string) []byte {
	return []byte(fmt.Sprintf(`{"type":"sensor","ts":%q,"device":%q,"seq":%d,"water":{"ph":6.1}}`, ts, device, seq))
}

func newTestGateway(t *testing.T, store EventStore, engine AlertEngine, broker Broadcaster) *Gateway {
	t.Helper()
	g, err := NewGateway(store, acceptance.NewFilter(), engine, broker,
		WithLogger(log.New(io.Discard, "", 0)))
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}
	return g
}

func TestIngestOutcomes(t *testing.T) {
	store := &memStore{}
	broker := &recordingBroker{}
	g := newTestGateway(t, store, &stubEngine{}, broker)
	ctx := context.Background()

	res, err := g.Ingest(ctx, payload("dev-1", 1, "2026-02-01T10:00:00Z"))
	if err != nil || res.Outcome != OutcomeAccepted {
		t.Fatalf("first ingest = %+v, %v", res, err)
	}

	res, err = g.Ingest(ctx, payload("dev-1", 1, "2026-02-01T10:00:00Z"))
	if err != nil || res.Outcome != OutcomeIgnored {
		t.Fatalf("duplicate ingest = %+v, %v", res, err)
	}
	if store.count() != 1 {
		t.Fatalf("store has %d events after duplicate, want 1", store.count())
	}

	res, err = g.Ingest(ctx, []byte(`{"type":"sensor"}`))
	if err != nil || res.Outcome != OutcomeRejected || res.Reason == "" {
		t.Fatalf("malformed ingest = %+v, %v", res, err)
	}
	if store.count() != 1 {
		t.Fatalf("store has %d events after rejection, want 1", store.count())
	}
}

func TestIngestBroadcastsEventThenAlerts(t *testing.T) {
	store := &memStore{}
	broker := &recordingBroker{}
	engine := &stubEngine{alerts: []alarms.Alert{{
		Type: alarms.EventTypeAlert, TS: "2026-02-01T10:00:00Z",
		Device: "dev-1", Severity: alarms.SeverityWarn,
		Code: alarms.CodePHLow, Message: "pH is low: 5.00 (< 5.50).",
	}}}
	g := newTestGateway(t, store, engine, broker)

	res, err := g.Ingest(context.Background(), payload("dev-1", 1, "2026-02-01T10:00:00Z"))
	if err != nil || res.Outcome != OutcomeAccepted {
		t.Fatalf("ingest = %+v, %v", res, err)
	}
	if len(res.Alerts) != 1 {
		t.Fatalf("result carries %d alerts, want 1", len(res.Alerts))
	}

	sent := broker.all()
	if len(sent) != 2 {
		t.Fatalf("broadcast %d payloads, want event then alert", len(sent))
	}
	var first map[string]any
	if err := json.Unmarshal(sent[0], &first); err != nil || first["type"] != "sensor" {
		t.Fatalf("first broadcast = %s", sent[0])
	}
	var second alarms.Alert
	if err := json.Unmarshal(sent[1], &second); err != nil || second.Code != alarms.CodePHLow {
		t.Fatalf("second broadcast = %s", sent[1])
	}
}

func TestStorageFailureIsRetryable(t *testing.T) {
	store := &memStore{fail: true}
	broker := &recordingBroker{}
	g := newTestGateway(t, store, &stubEngine{}, broker)
	ctx := context.Background()

	raw := payload("dev-1", 1, "2026-02-01T10:00:00Z")
	if _, err := g.Ingest(ctx, raw); err == nil {
		t.Fatal("storage failure must surface as an error")
	}
	if len(broker.all()) != 0 {
		t.Fatal("nothing may be broadcast when storage fails")
	}
	if g.Latest() != nil {
		t.Fatal("snapshot must stay empty when storage fails")
	}

	// Cursor untouched: the same event resubmits cleanly once storage is back.
	store.mu.Lock()
	store.fail = false
	store.mu.Unlock()
	res, err := g.Ingest(ctx, raw)
	if err != nil || res.Outcome != OutcomeAccepted {
		t.Fatalf("resubmission = %+v, %v", res, err)
	}
}

func TestLatestTracksMostRecentAccepted(t *testing.T) {
	store := &memStore{}
	g := newTestGateway(t, store, &stubEngine{}, &recordingBroker{})
	ctx := context.Background()

	if g.Latest() != nil {
		t.Fatal("latest must be nil before any event")
	}
	g.Ingest(ctx, payload("dev-1", 1, "2026-02-01T10:00:00Z"))
	g.Ingest(ctx, payload("dev-2", 5, "2026-02-01T10:00:01Z"))

	evt, err := telemetry.ParseSensorEvent(g.Latest())
	if err != nil {
		t.Fatalf("latest unparseable: %v", err)
	}
	if evt.Device != "dev-2" || evt.Seq != 5 {
		t.Fatalf("latest = %s/%d", evt.Device, evt.Seq)
	}
	if string(g.SnapshotPayload()) != string(g.Latest()) {
		t.Fatal("snapshot payload must mirror latest")
	}
}

func TestSeriesOldestFirst(t *testing.T) {
	store := &memStore{}
	g := newTestGateway(t, store, &stubEngine{}, &recordingBroker{})
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		g.Ingest(ctx, payload("dev-1", int64(i), fmt.Sprintf("2026-02-01T10:00:0%dZ", i)))
	}

	series, err := g.Series(ctx, 2)
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if series.Len() != 2 {
		t.Fatalf("series has %d points, want 2", series.Len())
	}
	if series.Seq[0] != 2 || series.Seq[1] != 3 {
		t.Fatalf("series seqs = %v, want oldest-first [2 3]", series.Seq)
	}
}

func TestRestoreSeedsCursorsAndSnapshot(t *testing.T) {
	store := &memStore{}
	seed := newTestGateway(t, store, &stubEngine{}, &recordingBroker{})
	ctx := context.Background()
	seed.Ingest(ctx, payload("dev-1", 3, "2026-02-01T10:00:00Z"))
	seed.Ingest(ctx, payload("dev-2", 8, "2026-02-01T10:00:01Z"))

	// Fresh process over the same store.
	g := newTestGateway(t, store, &stubEngine{}, &recordingBroker{})
	if err := g.Restore(ctx); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	// Redelivery of either device's last event is ignored, not re-accepted.
	res, err := g.Ingest(ctx, payload("dev-1", 3, "2026-02-01T10:00:00Z"))
	if err != nil || res.Outcome != OutcomeIgnored {
		t.Fatalf("dev-1 redelivery = %+v, %v", res, err)
	}
	res, err = g.Ingest(ctx, payload("dev-2", 8, "2026-02-01T10:00:01Z"))
	if err != nil || res.Outcome != OutcomeIgnored {
		t.Fatalf("dev-2 redelivery = %+v, %v", res, err)
	}

	// New events still advance.
	res, err = g.Ingest(ctx, payload("dev-1", 4, "2026-02-01T10:00:02Z"))
	if err != nil || res.Outcome != OutcomeAccepted {
		t.Fatalf("dev-1 next = %+v, %v", res, err)
	}

	evt, err := telemetry.ParseSensorEvent(g.Latest())
	if err != nil {
		t.Fatalf("restored snapshot unparseable: %v", err)
	}
	if evt.Seq != 4 {
		t.Fatalf("latest seq = %d, want 4", evt.Seq)
	}
}

func TestRestoreEmptyStore(t *testing.T) {
	g := newTestGateway(t, &memStore{}, &stubEngine{}, &recordingBroker{})
	if err := g.Restore(context.Background()); err != nil {
		t.Fatalf("Restore on empty store: %v", err)
	}
	if g.Latest() != nil {
		t.Fatal("latest must stay nil after empty restore")
	}
}
