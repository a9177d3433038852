package dht_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meshring/chordnode/chord"
	"github.com/meshring/chordnode/dht"
	"github.com/meshring/chordnode/endpoint"
	"github.com/meshring/chordnode/eventloop"
	"github.com/meshring/chordnode/key"
)

func mustEndpoint(t *testing.T, s string) endpoint.Endpoint {
	t.Helper()
	e, err := endpoint.Parse(s)
	require.NoError(t, err)
	return e
}

// newNode constructs a Runner bound to its own Loop and identity,
// starting both; t.Cleanup tears it down.
func newNode(t *testing.T, space *key.Space, id uint64, addr string) *dht.Runner {
	t.Helper()
	loop, err := eventloop.New()
	require.NoError(t, err)

	self := chord.Node{ID: space.FromUint64(id), Endpoint: mustEndpoint(t, addr)}
	settings := dht.DefaultSettings()
	settings.MaintenancePeriod = 50 * time.Millisecond
	settings.RPCTimeout = time.Second

	r, err := dht.New(loop, self, space, settings)
	require.NoError(t, err)
	require.NoError(t, r.Run())
	t.Cleanup(r.Stop)
	return r
}

// S1: a lone node pinging itself.
func TestLoneNodePingsItself(t *testing.T) {
	space := key.NewSpace(key.Bits32)
	a := newNode(t, space, 1, "127.0.0.1:18881")

	done := make(chan dht.Report, 1)
	start := time.Now()
	a.Ping(a.Self(), nil, func(r dht.Report) { done <- r })

	select {
	case r := <-done:
		require.Equal(t, dht.Normal, r.Code)
		require.Less(t, time.Since(start), 50*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("ping never completed")
	}
}

// S2: two nodes, B bootstrapping off A, converge to a 2-node ring.
func TestTwoNodeRingConverges(t *testing.T) {
	space := key.NewSpace(key.Bits32)
	a := newNode(t, space, 100, "127.0.0.1:18882")
	b := newNode(t, space, 200, "127.0.0.1:18883")

	done := make(chan dht.Report, 1)
	b.Bootstrap(a.Self(), func(r dht.Report) { done <- r })
	select {
	case r := <-done:
		require.Equal(t, dht.Normal, r.Code)
	case <-time.After(time.Second):
		t.Fatal("bootstrap never completed")
	}

	require.Eventually(t, func() bool {
		aSucc := a.Overlay().Successor()
		bSucc := b.Overlay().Successor()
		aPred, aHasPred := a.Overlay().Predecessor()
		bPred, bHasPred := b.Overlay().Predecessor()
		return aSucc.Equal(b.Self()) && bSucc.Equal(a.Self()) &&
			aHasPred && aPred.Equal(b.Self()) &&
			bHasPred && bPred.Equal(a.Self())
	}, 2*time.Second, 20*time.Millisecond)
}

// S4: Set on one node, Get from either, delivers the stored value.
func TestSetThenGetAcrossTwoNodes(t *testing.T) {
	space := key.NewSpace(key.Bits32)
	a := newNode(t, space, 10, "127.0.0.1:18884")
	b := newNode(t, space, 20, "127.0.0.1:18885")

	bootstrapped := make(chan struct{})
	b.Bootstrap(a.Self(), func(dht.Report) { close(bootstrapped) })
	<-bootstrapped

	require.Eventually(t, func() bool {
		return a.Overlay().Successor().Equal(b.Self()) && b.Overlay().Successor().Equal(a.Self())
	}, 2*time.Second, 20*time.Millisecond)

	k := space.FromUint64(15)
	setDone := make(chan dht.Report, 1)
	a.Set(k, []byte("Hello there"), func(r dht.Report) { setDone <- r })
	select {
	case r := <-setDone:
		require.Equal(t, dht.Normal, r.Code)
	case <-time.After(time.Second):
		t.Fatal("set never completed")
	}

	var got string
	getDone := make(chan dht.Report, 1)
	b.Get(k, func(data []byte, end dht.EndFunc) {
		got = string(data)
		end(dht.Report{Code: dht.Normal})
	}, func(r dht.Report) { getDone <- r })

	select {
	case r := <-getDone:
		require.Equal(t, dht.Normal, r.Code)
		require.Equal(t, "Hello there", got)
	case <-time.After(time.Second):
		t.Fatal("get never completed")
	}
}

// S5: pinging an address nothing listens on times out exactly once.
func TestPingUnresponsiveTargetTimesOut(t *testing.T) {
	space := key.NewSpace(key.Bits32)
	a := newNode(t, space, 1, "127.0.0.1:18886")

	// Nothing is bound to this address: sends succeed (UDP has no
	// connection handshake to fail) but no reply ever arrives.
	unresponsive := chord.Node{ID: space.FromUint64(999), Endpoint: mustEndpoint(t, "127.0.0.1:18887")}

	var calls int
	done := make(chan dht.Report, 1)
	a.Ping(unresponsive, nil, func(r dht.Report) {
		calls++
		done <- r
	})

	select {
	case r := <-done:
		require.Equal(t, dht.Timeout, r.Code)
	case <-time.After(5 * time.Second):
		t.Fatal("ping never timed out")
	}
	require.Equal(t, 1, calls)
}

func TestSendToDeliversToOnData(t *testing.T) {
	space := key.NewSpace(key.Bits32)
	a := newNode(t, space, 1, "127.0.0.1:18888")
	b := newNode(t, space, 2, "127.0.0.1:18889")

	received := make(chan string, 1)
	b.OnData = func(_ chord.Node, payload []byte) {
		received <- string(payload)
	}

	a.SendTo(b.Self(), []byte("hello b"))

	select {
	case got := <-received:
		require.Equal(t, "hello b", got)
	case <-time.After(time.Second):
		t.Fatal("data never delivered")
	}
}
