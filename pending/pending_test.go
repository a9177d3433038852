package pending_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meshring/chordnode/eventloop"
	"github.com/meshring/chordnode/pending"
)

func newLoop(t *testing.T) *eventloop.Loop {
	t.Helper()
	l, err := eventloop.New()
	require.NoError(t, err)
	return l
}

func TestDispatchHopEnd(t *testing.T) {
	l := newLoop(t)
	table := pending.NewTable(l)

	var gotPayload []byte
	var report pending.Report
	ended := make(chan struct{})

	_, err := table.Dispatch(time.Second, func(payload []byte, end pending.EndFunc) {
		gotPayload = payload
		end(pending.Report{Code: pending.Normal})
	}, func(r pending.Report) {
		report = r
		close(ended)
	})
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	go func() {
		_ = l.Submit(eventloop.Task{Runnable: func() {
			ok := table.Hop(1, []byte("pong"))
			require.True(t, ok)
		}})
	}()
	go func() { _ = l.Run(ctx) }()

	select {
	case <-ended:
	case <-time.After(time.Second):
		t.Fatal("end callback never fired")
	}

	require.Equal(t, "pong", string(gotPayload))
	require.Equal(t, pending.Normal, report.Code)
	require.Equal(t, 0, table.Len())
}

func TestTimeoutSynthesizesEnd(t *testing.T) {
	l := newLoop(t)
	table := pending.NewTable(l)

	ended := make(chan pending.Report, 1)
	_, err := table.Dispatch(30*time.Millisecond, nil, func(r pending.Report) {
		ended <- r
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	go func() { _ = l.Run(ctx) }()

	select {
	case r := <-ended:
		require.Equal(t, pending.Timeout, r.Code)
	case <-time.After(time.Second):
		t.Fatal("timeout never synthesized")
	}
	require.Equal(t, 0, table.Len())
}

func TestLateEndAfterTimeoutIsNoOp(t *testing.T) {
	l := newLoop(t)
	table := pending.NewTable(l)

	callCount := 0
	id, err := table.Dispatch(20*time.Millisecond, nil, func(pending.Report) {
		callCount++
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = l.Run(ctx)
		close(done)
	}()
	<-done

	// A reply arriving after the timeout has already fired must be a no-op.
	table.End(id, pending.Report{Code: pending.Normal})
	require.Equal(t, 1, callCount)
}

func TestHopOnUnknownIDReturnsFalse(t *testing.T) {
	l := newLoop(t)
	table := pending.NewTable(l)
	require.False(t, table.Hop(999, nil))
}

func TestEndAllTerminatesEveryLiveEntry(t *testing.T) {
	l := newLoop(t)
	table := pending.NewTable(l)

	var codes []pending.ReportCode
	for i := 0; i < 3; i++ {
		_, err := table.Dispatch(time.Hour, nil, func(r pending.Report) {
			codes = append(codes, r.Code)
		})
		require.NoError(t, err)
	}
	require.Equal(t, 3, table.Len())

	table.EndAll(pending.PeerUnreachable)
	require.Equal(t, 0, table.Len())
	require.Len(t, codes, 3)
	for _, c := range codes {
		require.Equal(t, pending.PeerUnreachable, c)
	}
}
