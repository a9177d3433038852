package dht

import (
	"github.com/meshring/chordnode/chord"
	"github.com/meshring/chordnode/eventloop"
	"github.com/meshring/chordnode/key"
	"github.com/meshring/chordnode/pending"
	"github.com/meshring/chordnode/wire"
)

// overlayTransport implements chord.RPC over the Runner's wire
// transport and pending table, kept as a distinct type so its Ping
// method doesn't collide with the Runner's own user-facing Ping
// (which takes a hop callback, not the bare chord.RPC signature the
// overlay engine calls with).
type overlayTransport struct {
	r *Runner
}

func (t *overlayTransport) FindSuccessor(remote chord.Node, k key.Key, cb func(chord.Node, error)) {
	t.r.doFindSuccessor(remote, k, cb)
}

func (t *overlayTransport) GetPredecessor(remote chord.Node, cb func(chord.Node, bool, error)) {
	t.r.doGetPredecessor(remote, cb)
}

func (t *overlayTransport) Notify(remote chord.Node, self chord.Node, cb func(error)) {
	t.r.doNotify(remote, self, func(err error) {
		if err != nil {
			t.r.reportTransportError(err)
		}
		cb(err)
	})
}

func (t *overlayTransport) Ping(remote chord.Node, cb func(bool)) {
	t.r.doPing(remote, cb)
}

// sendRequest dispatches a correlated request to target and transmits
// it, ending the pending entry with PeerUnreachable immediately if the
// send itself fails (no point waiting out the full RPCTimeout for a
// send we already know didn't go anywhere).
func (r *Runner) sendRequest(target chord.Node, op wire.Opcode, payload []byte, onHop pending.HopCallback, onEnd pending.EndCallback) {
	id, err := r.table.Dispatch(r.settings.RPCTimeout, onHop, onEnd)
	if err != nil {
		onEnd(pending.Report{Code: pending.PeerUnreachable})
		return
	}
	buf, err := wire.Encode(wire.Message{
		Opcode:        op,
		CorrelationID: id,
		SenderID:      r.self.ID.Bytes(),
		Payload:       payload,
	})
	if err != nil {
		r.table.End(id, pending.Report{Code: pending.MalformedResponse})
		return
	}
	if err := r.sendMessage(target.Endpoint, buf); err != nil {
		r.table.End(id, pending.Report{Code: pending.PeerUnreachable})
	}
}

// doFindSuccessor asks remote to resolve FindSuccessor(k): used both
// by the overlay engine (forwarding a lookup to a closer node) and by
// the public Query operation (the caller names the node to ask
// directly rather than letting the local overlay pick one).
func (r *Runner) doFindSuccessor(remote chord.Node, k key.Key, cb func(chord.Node, error)) {
	var answer chord.Node
	r.sendRequest(remote, wire.OpQuery, k.Bytes(),
		func(payload []byte, end pending.EndFunc) {
			n, err := decodeNode(r.space, payload)
			if err != nil {
				end(pending.Report{Code: pending.MalformedResponse})
				return
			}
			answer = n
			end(pending.Report{Code: pending.Normal})
		},
		func(report pending.Report) {
			if report.Code == pending.Normal {
				cb(answer, nil)
				return
			}
			cb(chord.Node{}, reportError(report.Code))
		},
	)
}

func (r *Runner) doGetPredecessor(remote chord.Node, cb func(chord.Node, bool, error)) {
	var pred chord.Node
	var hasPred bool
	r.sendRequest(remote, wire.OpPredecessor, nil,
		func(payload []byte, end pending.EndFunc) {
			p, has, err := decodePredecessorReply(r.space, payload)
			if err != nil {
				end(pending.Report{Code: pending.MalformedResponse})
				return
			}
			pred, hasPred = p, has
			end(pending.Report{Code: pending.Normal})
		},
		func(report pending.Report) {
			if report.Code == pending.Normal {
				cb(pred, hasPred, nil)
				return
			}
			cb(chord.Node{}, false, reportError(report.Code))
		},
	)
}

// doNotify is one-way: every other wire opcode pairs a request with a
// reply except Notify, so there is nothing to wait for beyond the
// send itself succeeding.
func (r *Runner) doNotify(remote chord.Node, self chord.Node, cb func(error)) {
	buf, err := wire.Encode(wire.Message{
		Opcode:   wire.OpNotify,
		SenderID: self.ID.Bytes(),
		Payload:  encodeNode(self),
	})
	if err != nil {
		cb(err)
		return
	}
	err = r.sendMessage(remote.Endpoint, buf)
	cb(err)
}

func (r *Runner) doPing(remote chord.Node, cb func(alive bool)) {
	r.sendRequest(remote, wire.OpPing, nil,
		func(_ []byte, end pending.EndFunc) { end(pending.Report{Code: pending.Normal}) },
		func(report pending.Report) { cb(report.Code == pending.Normal) },
	)
}

// submit runs fn on the Loop's own goroutine. Every public Runner
// method is called from whatever goroutine is running the REPL, never
// the loop goroutine itself, so each must cross that boundary exactly
// once via Loop.Submit before touching the overlay, table, or socket.
func (r *Runner) submit(fn func()) {
	_ = r.loop.Submit(eventloop.Task{Runnable: fn})
}
