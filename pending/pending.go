// Package pending implements the correlation-id → continuation table
// that ties an outbound RPC dispatch to its eventual reply or timeout.
//
// Ownership is explicit: a Table always owns the full lifecycle of an
// entry, from Dispatch through exactly one of End or expiry, and
// nothing is reclaimed by the GC behind the table's back. A Chord
// RPC's continuation is never "forgotten" by the caller the way a
// one-off promise can be.
package pending

import (
	"time"

	"github.com/meshring/chordnode/eventloop"
)

// ReportCode is the outcome recorded against a pending RPC's
// termination.
type ReportCode int

const (
	Normal ReportCode = iota
	Timeout
	PeerUnreachable
	MalformedResponse
	Cancelled
)

func (c ReportCode) String() string {
	switch c {
	case Normal:
		return "Normal"
	case Timeout:
		return "Timeout"
	case PeerUnreachable:
		return "PeerUnreachable"
	case MalformedResponse:
		return "MalformedResponse"
	case Cancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Report is the terminal outcome delivered to OnEnd exactly once per
// dispatched RPC.
type Report struct {
	Code ReportCode
}

// EndFunc finalizes a pending RPC. The user continuation holds the
// right to call it; a second call (including one synthesized by a
// timeout that has already fired) is a no-op.
type EndFunc func(Report)

// HopCallback is invoked for every inbound reply matching a
// dispatched correlation id. end is the EndFunc for this entry —
// iterative RPCs (Query, Route, Keys) may receive several hops before
// the continuation finally calls end.
type HopCallback func(payload []byte, end EndFunc)

// EndCallback is invoked exactly once, when an entry terminates —
// either via an explicit EndFunc call or a synthesized timeout.
type EndCallback func(Report)

type entryState uint8

const (
	stateLive entryState = iota
	stateEnded
)

type entry struct {
	onHop HopCallback
	onEnd EndCallback
	state entryState
	timer *eventloop.Entry
}

// Table correlates RPC dispatches with their continuations. All
// methods must be called from the owning Loop's goroutine — the table
// does no locking of its own, matching every other single-threaded
// component in this module.
type Table struct {
	loop    *eventloop.Loop
	entries map[uint64]*entry
	nextID  uint64
}

// NewTable constructs a Table bound to loop, whose timer facility
// backs every entry's deadline.
func NewTable(loop *eventloop.Loop) *Table {
	return &Table{
		loop:    loop,
		entries: make(map[uint64]*entry),
		nextID:  1,
	}
}

// Dispatch allocates a new correlation id, installs its continuation,
// and arms a deadline of timeout. The caller is responsible for
// transmitting a message carrying the returned id.
func (t *Table) Dispatch(timeout time.Duration, onHop HopCallback, onEnd EndCallback) (uint64, error) {
	id := t.nextID
	t.nextID++

	e := &entry{onHop: onHop, onEnd: onEnd, state: stateLive}
	t.entries[id] = e

	timer, err := t.loop.AddTimer(timeout, false, func(*eventloop.Loop, *eventloop.Entry) {
		t.expire(id)
	})
	if err != nil {
		delete(t.entries, id)
		return 0, err
	}
	e.timer = timer
	return id, nil
}

// Hop delivers an inbound reply to the entry matching id. It reports
// false if no live entry matches (the id is unknown, or it already
// ended) — the caller should treat that as a stray/duplicate reply.
func (t *Table) Hop(id uint64, payload []byte) bool {
	e, ok := t.entries[id]
	if !ok || e.state == stateEnded {
		return false
	}
	if e.onHop == nil {
		return true
	}
	e.onHop(payload, func(r Report) { t.End(id, r) })
	return true
}

// End finalizes the entry matching id with report, removing it and
// invoking its OnEnd exactly once. A second End (or one following a
// synthesized timeout) for the same id is a no-op.
func (t *Table) End(id uint64, report Report) {
	e, ok := t.entries[id]
	if !ok || e.state == stateEnded {
		return
	}
	e.state = stateEnded
	delete(t.entries, id)
	if e.timer != nil {
		_ = t.loop.Remove(e.timer)
	}
	if e.onEnd != nil {
		e.onEnd(report)
	}
}

func (t *Table) expire(id uint64) {
	e, ok := t.entries[id]
	if !ok || e.state == stateEnded {
		return
	}
	e.state = stateEnded
	delete(t.entries, id)
	if e.onEnd != nil {
		e.onEnd(Report{Code: Timeout})
	}
}

// EndAll terminates every still-live entry with code, for use during
// shutdown or when a connection carrying many in-flight RPCs is lost
// (PeerUnreachable).
func (t *Table) EndAll(code ReportCode) {
	ids := make([]uint64, 0, len(t.entries))
	for id := range t.entries {
		ids = append(ids, id)
	}
	for _, id := range ids {
		t.End(id, Report{Code: code})
	}
}

// Len returns the number of still-live entries.
func (t *Table) Len() int { return len(t.entries) }
