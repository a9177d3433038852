package chord_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meshring/chordnode/chord"
	"github.com/meshring/chordnode/endpoint"
	"github.com/meshring/chordnode/key"
)

func mustEndpoint(t *testing.T, s string) endpoint.Endpoint {
	t.Helper()
	e, err := endpoint.Parse(s)
	require.NoError(t, err)
	return e
}

func node(t *testing.T, space *key.Space, id uint64, addr string) chord.Node {
	t.Helper()
	return chord.Node{ID: space.FromUint64(id), Endpoint: mustEndpoint(t, addr)}
}

// stubRPC is an in-process ring: calls resolve synchronously against a
// map of overlays keyed by node Id, standing in for the wire/transport
// layer that would otherwise carry these RPCs between processes.
type stubRPC struct {
	ring map[uint64]*chord.Overlay
	bits *key.Space
}

func (r *stubRPC) overlayFor(n chord.Node) *chord.Overlay {
	return r.ring[idUint(n)]
}

func idUint(n chord.Node) uint64 {
	b := n.ID.Bytes()
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}

func (r *stubRPC) FindSuccessor(remote chord.Node, k key.Key, cb func(chord.Node, error)) {
	r.overlayFor(remote).FindSuccessor(k, cb)
}

func (r *stubRPC) GetPredecessor(remote chord.Node, cb func(chord.Node, bool, error)) {
	p, ok := r.overlayFor(remote).Predecessor()
	cb(p, ok, nil)
}

func (r *stubRPC) Notify(remote chord.Node, self chord.Node, cb func(error)) {
	r.overlayFor(remote).Notify(self)
	cb(nil)
}

func (r *stubRPC) Ping(remote chord.Node, cb func(bool)) {
	_, ok := r.ring[idUint(remote)]
	cb(ok)
}

func TestAloneOnRingAnswersSelf(t *testing.T) {
	space := key.NewSpace(8)
	rpc := &stubRPC{ring: map[uint64]*chord.Overlay{}, bits: space}
	self := node(t, space, 10, "127.0.0.1:9001")
	o := chord.NewOverlay(self, space, rpc)
	rpc.ring[10] = o

	var got chord.Node
	o.FindSuccessor(space.FromUint64(200), func(n chord.Node, err error) {
		require.NoError(t, err)
		got = n
	})
	require.True(t, got.Equal(self))
}

func TestTwoNodeRingStabilizes(t *testing.T) {
	space := key.NewSpace(8)
	rpc := &stubRPC{ring: map[uint64]*chord.Overlay{}, bits: space}

	a := node(t, space, 10, "127.0.0.1:9001")
	b := node(t, space, 200, "127.0.0.1:9002")

	oa := chord.NewOverlay(a, space, rpc)
	ob := chord.NewOverlay(b, space, rpc)
	rpc.ring[10] = oa
	rpc.ring[200] = ob

	var joinErr error
	ob.Join(a, func(err error) { joinErr = err })
	require.NoError(t, joinErr)

	for i := 0; i < 3; i++ {
		oa.Stabilize()
		ob.Stabilize()
	}

	require.True(t, oa.Successor().Equal(b))
	require.True(t, ob.Successor().Equal(a))

	pa, ok := oa.Predecessor()
	require.True(t, ok)
	require.True(t, pa.Equal(b))

	pb, ok := ob.Predecessor()
	require.True(t, ok)
	require.True(t, pb.Equal(a))
}

func TestFixFingersConvergesOnTwoNodeRing(t *testing.T) {
	space := key.NewSpace(8)
	rpc := &stubRPC{ring: map[uint64]*chord.Overlay{}, bits: space}

	a := node(t, space, 10, "127.0.0.1:9001")
	b := node(t, space, 200, "127.0.0.1:9002")

	oa := chord.NewOverlay(a, space, rpc)
	ob := chord.NewOverlay(b, space, rpc)
	rpc.ring[10] = oa
	rpc.ring[200] = ob

	var joinErr error
	ob.Join(a, func(err error) { joinErr = err })
	require.NoError(t, joinErr)

	for round := 0; round < 16; round++ {
		oa.Stabilize()
		ob.Stabilize()
		for i := 0; i < space.Bits(); i++ {
			oa.FixFingers()
			ob.FixFingers()
		}
	}

	for i, f := range oa.Fingers() {
		succ := bruteForceRingSuccessor(t, space, f.Start, []chord.Node{a, b})
		require.True(t, f.Node.Equal(succ), "A finger %d: start=%s want=%s got=%s", i, f.Start, succ.ID, f.Node.ID)
	}
	for i, f := range ob.Fingers() {
		succ := bruteForceRingSuccessor(t, space, f.Start, []chord.Node{a, b})
		require.True(t, f.Node.Equal(succ), "B finger %d: start=%s want=%s got=%s", i, f.Start, succ.ID, f.Node.ID)
	}
}

func TestCheckPredecessorClearsDeadPredecessor(t *testing.T) {
	space := key.NewSpace(8)
	rpc := &stubRPC{ring: map[uint64]*chord.Overlay{}, bits: space}

	a := node(t, space, 10, "127.0.0.1:9001")
	b := node(t, space, 200, "127.0.0.1:9002")

	oa := chord.NewOverlay(a, space, rpc)
	rpc.ring[10] = oa
	oa.Notify(b) // adopt b as predecessor directly, without registering it in the ring

	_, ok := oa.Predecessor()
	require.True(t, ok)

	oa.CheckPredecessor()

	_, ok = oa.Predecessor()
	require.False(t, ok)
}

func bruteForceRingSuccessor(t *testing.T, space *key.Space, from key.Key, nodes []chord.Node) chord.Node {
	t.Helper()
	var best chord.Node
	var bestSet bool
	for _, n := range nodes {
		if !bestSet || key.RingLess(from, n.ID, best.ID) {
			best = n
			bestSet = true
		}
		if n.ID.Equal(from) {
			return n
		}
	}
	return best
}
