package main

import (
	"bufio"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meshring/chordnode/chord"
	"github.com/meshring/chordnode/dht"
	"github.com/meshring/chordnode/endpoint"
	"github.com/meshring/chordnode/eventloop"
	"github.com/meshring/chordnode/httpserver"
	"github.com/meshring/chordnode/key"
)

func mustEndpoint(t *testing.T, s string) endpoint.Endpoint {
	t.Helper()
	e, err := endpoint.Parse(s)
	require.NoError(t, err)
	return e
}

func newTestNode(t *testing.T, addr string) *dht.Runner {
	t.Helper()
	loop, err := eventloop.New()
	require.NoError(t, err)

	space := key.NewSpace(key.Bits32)
	self := chord.Node{ID: space.FromUint64(1), Endpoint: mustEndpoint(t, addr)}
	r, err := dht.New(loop, self, space, dht.DefaultSettings())
	require.NoError(t, err)
	require.NoError(t, r.Run())
	t.Cleanup(r.Stop)
	return r
}

func TestHTTPStatusReportsIdentityAndRingState(t *testing.T) {
	node := newTestNode(t, "127.0.0.1:19991")

	handler := httpStatus(node)
	resp := handler("", httpserver.Request{Version: httpserver.HTTP11}, nil)

	require.Equal(t, 200, resp.Status)
	body := string(resp.Body)
	require.Contains(t, body, node.Self().ID.Hex())
	require.Contains(t, body, "successor=")
	require.Contains(t, body, "predecessor=none")
	ct, ok := resp.Headers.Get("Content-Type")
	require.True(t, ok)
	require.Contains(t, ct, "text/plain")
}

func TestDispatchDefaultSendsRawPayload(t *testing.T) {
	a := newTestNode(t, "127.0.0.1:19992")
	b := newTestNode(t, "127.0.0.1:19993")

	received := make(chan string, 1)
	b.OnData = func(_ chord.Node, payload []byte) { received <- string(payload) }

	stdin := bufio.NewScanner(strings.NewReader(""))
	dispatch(a, key.NewSpace(key.Bits32), b.Self(), "hello from repl", stdin)

	select {
	case got := <-received:
		require.Equal(t, "hello from repl", got)
	case <-time.After(time.Second):
		t.Fatal("payload never delivered")
	}
}

func TestDispatchDataReadsOneLineAndSends(t *testing.T) {
	a := newTestNode(t, "127.0.0.1:19994")
	b := newTestNode(t, "127.0.0.1:19995")

	received := make(chan string, 1)
	b.OnData = func(_ chord.Node, payload []byte) { received <- string(payload) }

	stdin := bufio.NewScanner(strings.NewReader("typed payload\n"))
	dispatch(a, key.NewSpace(key.Bits32), b.Self(), "data", stdin)

	select {
	case got := <-received:
		require.Equal(t, "typed payload", got)
	case <-time.After(time.Second):
		t.Fatal("payload never delivered")
	}
}
