// Package stream fans accepted events and fired alerts out to live
// subscribers (WebSocket and SSE connections).
package stream

import (
	"errors"
	"sync"

	"farm-host/internal/observability/metrics"
)

// Subscriber receives serialized payloads. Send returns an error when the
// subscriber can no longer accept delivery; the broker prunes it.
type Subscriber interface {
	Send(payload []byte) error
}

// SnapshotSource supplies the current latest-event payload for greeting
// new subscribers, or nil when no event has been accepted yet.
type SnapshotSource interface {
	SnapshotPayload() []byte
}

// Broker maintains the live subscriber set. Subscribe, Unsubscribe and
// Broadcast are safe to call concurrently; delivery within one broadcast
// pass is serialized so every subscriber sees payloads in the order they
// were broadcast.
type Broker struct {
	mu       sync.Mutex
	subs     map[Subscriber]struct{}
	snapshot SnapshotSource
}

// BrokerOption customizes the broker.
type BrokerOption func(*Broker)

// WithSnapshotSource assigns the greeting source.
func WithSnapshotSource(src SnapshotSource) BrokerOption {
	return func(b *Broker) {
		b.snapshot = src
	}
}

// NewBroker constructs an empty broker.
func NewBroker(opts ...BrokerOption) *Broker {
	broker := &Broker{subs: make(map[Subscriber]struct{})}
	for _, opt := range opts {
		opt(broker)
	}
	return broker
}

// SetSnapshotSource assigns the greeting source after construction; the
// broker and the snapshot owner reference each other, so one of them has
// to be wired late.
func (b *Broker) SetSnapshotSource(src SnapshotSource) {
	b.mu.Lock()
	b.snapshot = src
	b.mu.Unlock()
}

// Subscribe greets the subscriber with the current snapshot, if any, and
// registers it. The greeting and the registration happen under the same
// lock as Broadcast, so the subscriber never misses an event between its
// greeting and its first live delivery.
func (b *Broker) Subscribe(sub Subscriber) error {
	if b == nil || sub == nil {
		return errors.New("stream: nil subscriber")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.snapshot != nil {
		if payload := b.snapshot.SnapshotPayload(); payload != nil {
			if err := sub.Send(payload); err != nil {
				return err
			}
		}
	}
	b.subs[sub] = struct{}{}
	metrics.SetSubscribers(len(b.subs))
	return nil
}

// Unsubscribe removes a subscriber. Safe to call for an already-pruned
// subscriber.
func (b *Broker) Unsubscribe(sub Subscriber) {
	if b == nil || sub == nil {
		return
	}
	b.mu.Lock()
	delete(b.subs, sub)
	metrics.SetSubscribers(len(b.subs))
	b.mu.Unlock()
}

// Broadcast attempts delivery of one payload to every current subscriber.
// A failed subscriber is pruned in the same pass; pruning never aborts
// delivery to the rest.
func (b *Broker) Broadcast(payload []byte) {
	if b == nil || len(payload) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		if err := sub.Send(payload); err != nil {
			delete(b.subs, sub)
			metrics.IncSubscriberPruned()
		}
	}
	metrics.SetSubscribers(len(b.subs))
}

// Len returns the current subscriber count.
func (b *Broker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
