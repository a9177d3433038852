package dht

import (
	"time"

	"github.com/meshring/chordnode/chord"
	"github.com/meshring/chordnode/key"
	"github.com/meshring/chordnode/pending"
	"github.com/meshring/chordnode/wire"
)

func endOrDefault(end EndFunc) EndFunc {
	if end == nil {
		return noEnd
	}
	done := false
	return func(r Report) {
		if done {
			return
		}
		done = true
		end(r)
	}
}

// Ping probes target's liveness. hop, if non-nil, fires once a Pong
// arrives and holds the right to finalize via end; if hop is nil the
// entry finalizes itself as soon as the reply (or timeout) arrives.
func (r *Runner) Ping(target chord.Node, hop PingHop, end EndFunc) {
	end = endOrDefault(end)
	r.submit(func() {
		start := time.Now()
		r.doPing(target, func(alive bool) {
			if !alive {
				end(Report{Code: Timeout})
				return
			}
			if hop != nil {
				hop(time.Since(start), end)
				return
			}
			end(Report{Code: Normal})
		})
	})
}

// Query asks target to resolve FindSuccessor(k) — a direct request to
// a named node, unlike Route below which starts from the local
// overlay and may recurse across several peers before answering.
func (r *Runner) Query(target chord.Node, k key.Key, hop QueryHop, end EndFunc) {
	end = endOrDefault(end)
	r.submit(func() {
		r.doFindSuccessor(target, k, func(n chord.Node, err error) {
			if err != nil {
				end(Report{Code: reportCodeForError(err)})
				return
			}
			if hop != nil {
				hop(n, end)
				return
			}
			end(Report{Code: Normal})
		})
	})
}

// Route resolves k starting from this node's own overlay state: the
// local FindSuccessor implementation transparently forwards to
// whatever remote node is closest-preceding, so the caller here only
// ever observes the final answer, even though resolving it may have
// taken several peer-to-peer hops behind the scenes.
func (r *Runner) Route(k key.Key, hop RouteHop, end EndFunc) {
	end = endOrDefault(end)
	r.submit(func() {
		r.overlay.FindSuccessor(k, func(n chord.Node, err error) {
			if err != nil {
				end(Report{Code: reportCodeForError(err)})
				return
			}
			if hop != nil {
				hop(n, end)
				return
			}
			end(Report{Code: Normal})
		})
	})
}

// Bootstrap joins the ring known is already part of, per
// chord.Overlay.Join.
func (r *Runner) Bootstrap(known chord.Node, end EndFunc) {
	end = endOrDefault(end)
	r.submit(func() {
		r.overlay.Join(known, func(err error) {
			if err != nil {
				end(Report{Code: reportCodeForError(err)})
				return
			}
			end(Report{Code: Normal})
		})
	})
}

// Keys asks target which keys it currently holds. Unlike Set/Get,
// Keys always addresses a specific node directly — it is a diagnostic
// query about that node's local store, not a DHT lookup.
func (r *Runner) Keys(target chord.Node, hop KeysHop, end EndFunc) {
	end = endOrDefault(end)
	r.submit(func() {
		var keys []key.Key
		r.sendRequest(target, wire.OpKeys, nil,
			func(payload []byte, pe pending.EndFunc) {
				ks, err := decodeKeyList(r.space, payload)
				if err != nil {
					pe(pending.Report{Code: pending.MalformedResponse})
					return
				}
				keys = ks
				pe(pending.Report{Code: pending.Normal})
			},
			func(report pending.Report) {
				if report.Code != pending.Normal {
					end(Report{Code: report.Code})
					return
				}
				if hop != nil {
					hop(keys, end)
					return
				}
				end(Report{Code: Normal})
			},
		)
	})
}

// Set stores data at k on the node currently responsible for it,
// resolved via the local overlay first (a pure in-process call when
// this node happens to be the owner, a single wire round trip
// otherwise).
func (r *Runner) Set(k key.Key, data []byte, end EndFunc) {
	end = endOrDefault(end)
	r.submit(func() {
		r.overlay.FindSuccessor(k, func(owner chord.Node, err error) {
			if err != nil {
				end(Report{Code: reportCodeForError(err)})
				return
			}
			if owner.Equal(r.self) {
				r.applySet(k, data)
				end(Report{Code: Normal})
				return
			}
			width := len(k.Bytes())
			payload := make([]byte, width+len(data))
			copy(payload, k.Bytes())
			copy(payload[width:], data)
			r.sendRequest(owner, wire.OpSet, payload,
				func(_ []byte, pe pending.EndFunc) { pe(pending.Report{Code: pending.Normal}) },
				func(report pending.Report) { end(Report{Code: report.Code}) },
			)
		})
	})
}

// Get retrieves the value at k from its owning node, delivering it to
// hop and then terminating.
func (r *Runner) Get(k key.Key, hop GetHop, end EndFunc) {
	end = endOrDefault(end)
	r.submit(func() {
		r.overlay.FindSuccessor(k, func(owner chord.Node, err error) {
			if err != nil {
				end(Report{Code: reportCodeForError(err)})
				return
			}
			if owner.Equal(r.self) {
				data, ok := r.applyGet(k)
				if !ok {
					end(Report{Code: MalformedResponse})
					return
				}
				if hop != nil {
					hop(data, end)
					return
				}
				end(Report{Code: Normal})
				return
			}
			var data []byte
			r.sendRequest(owner, wire.OpGet, k.Bytes(),
				func(payload []byte, pe pending.EndFunc) {
					d, ok, derr := decodeOptionalBytes(payload)
					if derr != nil {
						pe(pending.Report{Code: pending.MalformedResponse})
						return
					}
					if !ok {
						pe(pending.Report{Code: pending.MalformedResponse})
						return
					}
					data = d
					pe(pending.Report{Code: pending.Normal})
				},
				func(report pending.Report) {
					if report.Code != pending.Normal {
						end(Report{Code: report.Code})
						return
					}
					if hop != nil {
						hop(data, end)
						return
					}
					end(Report{Code: Normal})
				},
			)
		})
	})
}

// SendTo transmits an opaque payload to target with no reply expected.
func (r *Runner) SendTo(target chord.Node, payload []byte) {
	r.submit(func() {
		buf, err := wire.Encode(wire.Message{
			Opcode:   wire.OpData,
			SenderID: r.self.ID.Bytes(),
			Payload:  payload,
		})
		if err != nil {
			r.reportTransportError(err)
			return
		}
		if err := r.sendMessage(target.Endpoint, buf); err != nil {
			r.reportTransportError(err)
		}
	})
}

func (r *Runner) reportTransportError(err error) {
	if r.OnTransportError != nil {
		r.OnTransportError(err)
	}
}

func (r *Runner) applySet(k key.Key, data []byte) {
	if r.OnSet != nil {
		r.OnSet(k, data)
		return
	}
	r.store.set(k, data)
}

func (r *Runner) applyGet(k key.Key) ([]byte, bool) {
	if r.OnGet != nil {
		return r.OnGet(k)
	}
	return r.store.get(k)
}

func (r *Runner) listKeys(requester chord.Node) []key.Key {
	if r.OnKeys != nil {
		return r.OnKeys(requester)
	}
	return r.store.keys(r.space)
}
