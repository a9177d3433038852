package endpoint_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/meshring/chordnode/endpoint"
)

func TestParseIPv4(t *testing.T) {
	e, err := endpoint.Parse("127.0.0.1:8888")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:8888", e.String())

	sa, err := e.Sockaddr()
	require.NoError(t, err)
	in4, ok := sa.(*unix.SockaddrInet4)
	require.True(t, ok)
	require.Equal(t, 8888, in4.Port)
	require.Equal(t, [4]byte{127, 0, 0, 1}, in4.Addr)
}

func TestParseIPv6Bracketed(t *testing.T) {
	e, err := endpoint.Parse("[::1]:53")
	require.NoError(t, err)

	sa, err := e.Sockaddr()
	require.NoError(t, err)
	in6, ok := sa.(*unix.SockaddrInet6)
	require.True(t, ok)
	require.Equal(t, 53, in6.Port)
}

func TestParseInvalid(t *testing.T) {
	_, err := endpoint.Parse("not-an-endpoint")
	require.Error(t, err)
}

func TestEqual(t *testing.T) {
	a, err := endpoint.Parse("10.0.0.1:1234")
	require.NoError(t, err)
	b, err := endpoint.Parse("10.0.0.1:1234")
	require.NoError(t, err)
	c, err := endpoint.Parse("10.0.0.2:1234")
	require.NoError(t, err)

	require.True(t, a.Equal(b))
	require.False(t, a.Equal(c))
}
