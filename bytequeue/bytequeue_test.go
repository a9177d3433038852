package bytequeue_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meshring/chordnode/bytequeue"
)

func TestAddTakeRoundTrip(t *testing.T) {
	q := bytequeue.New(4)
	require.NoError(t, q.Add([]byte("hello")))
	require.Equal(t, 5, q.Len())

	out := make([]byte, 5)
	n := q.TakeN(out)
	require.Equal(t, 5, n)
	require.Equal(t, "hello", string(out))
	require.True(t, q.IsEmpty())
}

func TestWraparoundHalves(t *testing.T) {
	q := bytequeue.New(8)
	require.NoError(t, q.Add([]byte("ABCDEF")))

	out := make([]byte, 4)
	require.Equal(t, 4, q.TakeN(out))
	require.Equal(t, "ABCD", string(out))

	// Remaining "EF" sits near the end of an 8-byte ring; appending more
	// wraps the write around to the front.
	require.NoError(t, q.Add([]byte("GHIJ")))

	first, second := q.Halves()
	got := append(append([]byte{}, first...), second...)
	require.Equal(t, "EFGHIJ", string(got))
}

func TestFixedCapacityExceeded(t *testing.T) {
	q := bytequeue.NewFixed(4)
	require.NoError(t, q.Add([]byte("ab")))
	err := q.Add([]byte("cde"))
	require.ErrorIs(t, err, bytequeue.ErrCapacityExceeded)
}

func TestGrowablePreservesOrderAcrossWrap(t *testing.T) {
	q := bytequeue.New(4)
	require.NoError(t, q.Add([]byte("ab")))
	out := make([]byte, 1)
	q.TakeN(out) // head now at index 1, length 1 ("b")
	require.NoError(t, q.Add([]byte("cdefgh")))

	rest := make([]byte, q.Len())
	q.TakeN(rest)
	require.Equal(t, "bcdefgh", string(rest))
}

func TestFirstLast(t *testing.T) {
	q := bytequeue.New(4)
	_, ok := q.First()
	require.False(t, ok)

	require.NoError(t, q.Add([]byte("xyz")))
	first, ok := q.First()
	require.True(t, ok)
	require.Equal(t, byte('x'), first)

	last, ok := q.Last()
	require.True(t, ok)
	require.Equal(t, byte('z'), last)
}

func TestDropAfterVectoredWrite(t *testing.T) {
	q := bytequeue.New(8)
	require.NoError(t, q.Add([]byte("payload!")))

	first, second := q.Halves()
	sent := len(first) + len(second)
	q.Drop(sent)
	require.True(t, q.IsEmpty())
}

func TestResizeRejectsShrinkBelowLength(t *testing.T) {
	q := bytequeue.New(8)
	require.NoError(t, q.Add([]byte("abcdef")))
	require.Error(t, q.Resize(2))
	require.NoError(t, q.Resize(16))
	require.Equal(t, 16, q.Cap())
}
