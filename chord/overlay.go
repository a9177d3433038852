package chord

import "github.com/meshring/chordnode/key"

// RPC is the network side of the overlay engine: every operation that
// requires talking to another node is expressed as a non-blocking
// call taking a continuation, since the engine runs on a single
// cooperative event loop and may never block waiting on I/O. The DHT
// runner implements RPC over the wire protocol and the pending-request
// table.
type RPC interface {
	// FindSuccessor asks remote to resolve FindSuccessor(k), invoking cb
	// with the answer (or a non-nil err on failure, e.g. PeerUnreachable).
	FindSuccessor(remote Node, k key.Key, cb func(Node, error))
	// GetPredecessor asks remote for its current predecessor. hasPred is
	// false if remote reports it has none.
	GetPredecessor(remote Node, cb func(pred Node, hasPred bool, err error))
	// Notify informs remote that self believes it may be its predecessor.
	Notify(remote Node, self Node, cb func(error))
	// Ping probes remote's liveness within an implementation-chosen
	// deadline, reporting alive=false on timeout or transport error.
	Ping(remote Node, cb func(alive bool))
}

// Overlay holds one node's Chord ring state and implements its routing
// operations. Every exported method must be called from the owning
// event loop's goroutine; none of them block.
type Overlay struct {
	Self Node

	predecessor     Node
	fingers         []FingerEntry
	nextFingerToFix int

	rpc RPC
}

// NewOverlay constructs an Overlay for self over an N-bit ring
// (N = space.Bits()). Every finger starts pointing at self, so when
// the ring consists solely of Self, every FindSuccessor answer is Self
// as a natural consequence of this initial state, not a special case
// handled separately.
func NewOverlay(self Node, space *key.Space, rpc RPC) *Overlay {
	bits := space.Bits()
	fingers := make([]FingerEntry, bits)
	for i := range fingers {
		fingers[i] = FingerEntry{Start: self.ID.Add2Pow(uint(i)), Node: self}
	}
	return &Overlay{Self: self, fingers: fingers, rpc: rpc}
}

// Successor returns the node currently believed to be self's
// immediate ring successor (Fingers[0].Node).
func (o *Overlay) Successor() Node { return o.fingers[0].Node }

// Predecessor returns self's current predecessor, and whether one is
// known (false until the first Notify).
func (o *Overlay) Predecessor() (Node, bool) {
	return o.predecessor, !o.predecessor.IsZero()
}

// Fingers returns a copy of the finger table, safe for the caller to
// retain past the next mutating call.
func (o *Overlay) Fingers() []FingerEntry {
	out := make([]FingerEntry, len(o.fingers))
	copy(out, o.fingers)
	return out
}

// NextFingerToFix returns the rotating cursor FixFingers will advance
// past on its next call.
func (o *Overlay) NextFingerToFix() int { return o.nextFingerToFix }

// FindSuccessor resolves k to the node responsible for it. If k falls
// within (Self.Id, Successor.Id] the answer is local; otherwise the
// lookup is forwarded to the closest preceding node known locally,
// recursively, via RPC. A lookup that would otherwise cycle through
// the same node terminates by falling back to Self as the answer,
// since ClosestPrecedingNode always falls back to Self.
func (o *Overlay) FindSuccessor(k key.Key, cb func(Node, error)) {
	succ := o.Successor()
	if succ.IsZero() || succ.Equal(o.Self) {
		cb(o.Self, nil)
		return
	}
	if key.InHalfOpenInterval(k, o.Self.ID, succ.ID) {
		cb(succ, nil)
		return
	}

	n := o.ClosestPrecedingNode(k)
	if n.Equal(o.Self) {
		cb(o.Self, nil)
		return
	}
	o.rpc.FindSuccessor(n, k, cb)
}

// ClosestPrecedingNode scans the finger table from the widest span
// down to the narrowest, returning the first finger whose node lies
// strictly between Self and k; Self is the fallback when no finger
// qualifies (including when the table is empty or every entry still
// points at Self). Distinct node Ids can never tie on ring distance
// (N is fixed and Ids are unique), so no further tie-break is needed
// beyond scan order.
func (o *Overlay) ClosestPrecedingNode(k key.Key) Node {
	for i := len(o.fingers) - 1; i >= 0; i-- {
		n := o.fingers[i].Node
		if n.IsZero() || n.Equal(o.Self) {
			continue
		}
		if key.InOpenInterval(n.ID, o.Self.ID, k) {
			return n
		}
	}
	return o.Self
}

// Stabilize asks the current successor for its predecessor; if that
// predecessor lies strictly between Self and the successor, it is
// adopted as the new successor. Either way, the (possibly updated)
// successor is then notified of Self's existence.
//
// When the successor is Self (alone on the ring, or not yet caught up
// after a remote Notify), the predecessor is read directly rather than
// round-tripped over RPC — this is how a lone node discovers a new
// joiner: B's Notify sets A.predecessor = B, and A's own next
// Stabilize (asking "itself", i.e. its successor which is itself, for
// its predecessor) finds B there and adopts it as the new successor.
func (o *Overlay) Stabilize() {
	succ := o.Successor()

	apply := func(p Node, hasPred bool) {
		target := succ
		if hasPred && key.InOpenInterval(p.ID, o.Self.ID, succ.ID) {
			target = p
			o.fingers[0].Node = p
		}
		if !target.Equal(o.Self) {
			o.rpc.Notify(target, o.Self, func(error) {})
		}
	}

	if succ.Equal(o.Self) {
		p, hasPred := o.Predecessor()
		apply(p, hasPred)
		return
	}

	o.rpc.GetPredecessor(succ, func(p Node, hasPred bool, err error) {
		if err != nil {
			return // successor unreachable: this round changes nothing
		}
		apply(p, hasPred)
	})
}

// Notify considers n as a candidate predecessor: adopted if Self has
// none yet, or if n lies strictly between the current predecessor and
// Self.
func (o *Overlay) Notify(n Node) {
	if o.predecessor.IsZero() || key.InOpenInterval(n.ID, o.predecessor.ID, o.Self.ID) {
		o.predecessor = n
	}
}

// FixFingers advances the rotating cursor and refreshes exactly one
// finger entry's Node via FindSuccessor(Fingers[i].Start). Start never
// changes — only Node is overwritten in place by stabilization; no
// finger entry is ever destroyed individually.
func (o *Overlay) FixFingers() {
	i := o.nextFingerToFix
	o.nextFingerToFix = (o.nextFingerToFix + 1) % len(o.fingers)

	start := o.fingers[i].Start
	o.FindSuccessor(start, func(n Node, err error) {
		if err == nil {
			o.fingers[i].Node = n
		}
	})
}

// CheckPredecessor probes the current predecessor's liveness; if it
// fails to respond, the predecessor is cleared so the next Notify can
// install a fresh one.
func (o *Overlay) CheckPredecessor() {
	if o.predecessor.IsZero() {
		return
	}
	pred := o.predecessor
	o.rpc.Ping(pred, func(alive bool) {
		if !alive && o.predecessor.Equal(pred) {
			o.predecessor = Node{}
		}
	})
}

// Join resets Predecessor and asks known to resolve FindSuccessor on
// Self's own Id, installing the answer as the initial successor.
func (o *Overlay) Join(known Node, cb func(error)) {
	o.predecessor = Node{}
	o.rpc.FindSuccessor(known, o.Self.ID, func(n Node, err error) {
		if err != nil {
			cb(err)
			return
		}
		o.fingers[0].Node = n
		cb(nil)
	})
}
