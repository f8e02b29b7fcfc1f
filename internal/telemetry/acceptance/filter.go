// Package acceptance decides whether an incoming event is newer than
// anything previously accepted for its device. It is the single source
// of truth for per-device ordering and dedup.
package acceptance

import (
	"sync"

	telemetry "farm-host/internal/telemetry/domain"
)

type deviceCursor struct {
	mu   sync.Mutex
	seen bool
	seq  int64
	ts   string
}

// Filter tracks one cursor per device. Cursors are created lazily on the
// first event from a device and never removed for the process lifetime;
// the population is bounded by the fleet size.
type Filter struct {
	mu      sync.Mutex
	devices map[string]*deviceCursor
}

// NewFilter constructs an empty filter.
func NewFilter() *Filter {
	return &Filter{devices: make(map[string]*deviceCursor)}
}

func (f *Filter) cursor(device string) *deviceCursor {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.devices[device]
	if !ok {
		cur = &deviceCursor{}
		f.devices[device] = cur
	}
	return cur
}

// Admission is a held acceptance decision for one device. The device
// cursor stays locked until Commit or Abort, so concurrent ingestion of
// the same device cannot race the check-and-update, and everything the
// caller does between Begin and Commit happens in acceptance order for
// that device. Unrelated devices are not blocked.
type Admission struct {
	cur      *deviceCursor
	seq      int64
	ts       string
	accepted bool
	done     bool
}

// Begin locks the device cursor and evaluates the event against it.
// The caller must call exactly one of Commit or Abort.
//
// Accepted when the device has no prior state, when seq advances, or
// when seq fell back but the timestamp is strictly later (device reboot
// with a reset counter). Unparseable timestamps on the fallback path
// reject the event.
func (f *Filter) Begin(device string, seq int64, ts string) *Admission {
	cur := f.cursor(device)
	cur.mu.Lock()

	adm := &Admission{cur: cur, seq: seq, ts: ts}
	switch {
	case !cur.seen:
		adm.accepted = true
	case seq > cur.seq:
		adm.accepted = true
	default:
		incoming, errIn := telemetry.ParseTS(ts)
		previous, errPrev := telemetry.ParseTS(cur.ts)
		adm.accepted = errIn == nil && errPrev == nil && incoming.After(previous)
	}
	return adm
}

// Accepted reports the decision made at Begin.
func (a *Admission) Accepted() bool {
	return a.accepted
}

// Commit advances the cursor to the admitted event and releases the
// device. Call only after the event has been durably stored.
func (a *Admission) Commit() {
	if a.done {
		return
	}
	a.done = true
	if a.accepted {
		a.cur.seen = true
		a.cur.seq = a.seq
		a.cur.ts = a.ts
	}
	a.cur.mu.Unlock()
}

// Abort releases the device without touching the cursor, leaving
// acceptance state exactly as it was before Begin.
func (a *Admission) Abort() {
	if a.done {
		return
	}
	a.done = true
	a.cur.mu.Unlock()
}

// Restore seeds a device cursor from storage during startup recovery,
// bypassing the acceptance checks.
func (f *Filter) Restore(device string, seq int64, ts string) {
	cur := f.cursor(device)
	cur.mu.Lock()
	cur.seen = true
	cur.seq = seq
	cur.ts = ts
	cur.mu.Unlock()
}

// Cursor returns the last accepted (seq, ts) for a device, with ok=false
// when the device has never been seen.
func (f *Filter) Cursor(device string) (seq int64, ts string, ok bool) {
	f.mu.Lock()
	cur, exists := f.devices[device]
	f.mu.Unlock()
	if !exists {
		return 0, "", false
	}
	cur.mu.Lock()
	defer cur.mu.Unlock()
	if !cur.seen {
		return 0, "", false
	}
	return cur.seq, cur.ts, true
}
