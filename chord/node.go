// Package chord implements the overlay routing engine: finger table
// maintenance, FindSuccessor/ClosestPrecedingNode, and the
// stabilize/notify/fix-fingers/check-predecessor maintenance cycle of
// a Chord ring.
package chord

import (
	"github.com/meshring/chordnode/endpoint"
	"github.com/meshring/chordnode/key"
)

// Node is a peer's identity: its ring Id plus the address it is
// reachable at. Two nodes compare equal iff their Ids are equal.
type Node struct {
	ID       key.Key
	Endpoint endpoint.Endpoint
}

// Equal reports whether n and other share the same Id.
func (n Node) Equal(other Node) bool { return n.ID.Equal(other.ID) }

// IsZero reports whether n is the unset Node value.
func (n Node) IsZero() bool { return !n.Endpoint.IsValid() }

// FingerEntry is one row of the finger table: Start is a pure function
// of Self.Id and the row index; Node is the best known successor of
// Start and may be stale but is never arbitrary.
type FingerEntry struct {
	Start key.Key
	Node  Node
}
