package wire_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meshring/chordnode/wire"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := wire.Message{
		Opcode:        wire.OpQuery,
		CorrelationID: 42,
		SenderID:      []byte{1, 2, 3, 4},
		Payload:       []byte("find successor of k"),
	}

	buf, err := wire.Encode(in)
	require.NoError(t, err)

	out, n, ok, err := wire.Decode(buf)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, len(buf), n)
	require.Equal(t, in.Opcode, out.Opcode)
	require.Equal(t, in.CorrelationID, out.CorrelationID)
	require.Equal(t, in.SenderID, out.SenderID)
	require.Equal(t, in.Payload, out.Payload)
}

func TestDecodeIncompleteReturnsNotOK(t *testing.T) {
	in := wire.Message{Opcode: wire.OpPing, CorrelationID: 1, SenderID: []byte{9}, Payload: []byte("x")}
	buf, err := wire.Encode(in)
	require.NoError(t, err)

	_, _, ok, err := wire.Decode(buf[:len(buf)-1])
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDecodeRejectsOversizedPayload(t *testing.T) {
	buf := make([]byte, 15)
	buf[0] = byte(wire.OpPing)
	// Claim a payload far beyond MaxPayloadSize in the length field.
	buf[11], buf[12], buf[13], buf[14] = 0x7f, 0xff, 0xff, 0xff

	_, _, ok, err := wire.Decode(buf)
	require.True(t, ok)
	require.ErrorIs(t, err, wire.ErrPayloadTooLarge)
}

func TestDecodeConsumesExactlyOneMessageFromAStream(t *testing.T) {
	a := wire.Message{Opcode: wire.OpPing, CorrelationID: 1, SenderID: []byte{1}, Payload: nil}
	b := wire.Message{Opcode: wire.OpPong, CorrelationID: 1, SenderID: []byte{2}, Payload: []byte("pong")}

	bufA, err := wire.Encode(a)
	require.NoError(t, err)
	bufB, err := wire.Encode(b)
	require.NoError(t, err)

	stream := append(append([]byte{}, bufA...), bufB...)

	first, n1, ok, err := wire.Decode(stream)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, wire.OpPing, first.Opcode)

	second, n2, ok, err := wire.Decode(stream[n1:])
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, wire.OpPong, second.Opcode)
	require.Equal(t, len(stream), n1+n2)
}

func TestOpcodeStringKnownAndUnknown(t *testing.T) {
	require.Equal(t, "Query", wire.OpQuery.String())
	require.Contains(t, wire.Opcode(99).String(), "99")
}
