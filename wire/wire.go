// Package wire defines the DHT peer protocol's message framing:
// opcode, correlation id, sender id, and a raw payload, encoded with a
// fixed binary header ahead of the payload bytes.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Opcode identifies the kind of DHT message carried by a Message.
type Opcode uint8

const (
	OpPing Opcode = iota + 1
	OpPong
	OpQuery
	OpQueryReply
	OpRoute
	OpRouteReply
	OpNotify
	OpPredecessor
	OpPredecessorReply
	OpKeys
	OpKeysReply
	OpGet
	OpGetReply
	OpSet
	OpSetAck
	OpData
)

func (o Opcode) String() string {
	switch o {
	case OpPing:
		return "Ping"
	case OpPong:
		return "Pong"
	case OpQuery:
		return "Query"
	case OpQueryReply:
		return "QueryReply"
	case OpRoute:
		return "Route"
	case OpRouteReply:
		return "RouteReply"
	case OpNotify:
		return "Notify"
	case OpPredecessor:
		return "Predecessor"
	case OpPredecessorReply:
		return "PredecessorReply"
	case OpKeys:
		return "Keys"
	case OpKeysReply:
		return "KeysReply"
	case OpGet:
		return "Get"
	case OpGetReply:
		return "GetReply"
	case OpSet:
		return "Set"
	case OpSetAck:
		return "SetAck"
	case OpData:
		return "Data"
	default:
		return fmt.Sprintf("Opcode(%d)", uint8(o))
	}
}

// Message is one DHT wire message: an opcode, a correlation id pairing
// a request with its reply, the sender's ring identity, and a payload
// whose interpretation depends on Opcode.
type Message struct {
	Opcode        Opcode
	CorrelationID uint64
	SenderID      []byte // big-endian key bytes, width is Space-dependent
	Payload       []byte
}

// headerSize is the fixed portion ahead of SenderID+Payload:
// 1 (opcode) + 8 (correlation id) + 2 (sender id length) + 4 (payload length).
const headerSize = 1 + 8 + 2 + 4

var (
	// ErrTruncated names a buffer shorter than its header or length
	// fields claim. Decode does not return it: it reports that case as
	// ok=false with a nil error.
	ErrTruncated = errors.New("wire: truncated message")
	// ErrSenderIDTooLarge is returned when SenderID exceeds the 16-bit
	// length field's range.
	ErrSenderIDTooLarge = errors.New("wire: sender id too large")
	// ErrPayloadTooLarge is returned when Payload exceeds the configured maximum.
	ErrPayloadTooLarge = errors.New("wire: payload too large")
)

// MaxPayloadSize bounds a single message's payload, guarding the
// parser against an attacker-controlled length field driving an
// unbounded allocation.
const MaxPayloadSize = 16 << 20

// Encode renders m to its wire form: header, sender id, payload.
func Encode(m Message) ([]byte, error) {
	if len(m.SenderID) > 0xFFFF {
		return nil, ErrSenderIDTooLarge
	}
	if len(m.Payload) > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}

	buf := make([]byte, headerSize+len(m.SenderID)+len(m.Payload))
	buf[0] = byte(m.Opcode)
	binary.BigEndian.PutUint64(buf[1:9], m.CorrelationID)
	binary.BigEndian.PutUint16(buf[9:11], uint16(len(m.SenderID)))
	binary.BigEndian.PutUint32(buf[11:15], uint32(len(m.Payload)))
	n := copy(buf[headerSize:], m.SenderID)
	copy(buf[headerSize+n:], m.Payload)
	return buf, nil
}

// Decode parses a single message from buf, returning the number of
// bytes consumed. ok is false if buf does not yet hold a complete
// message (the caller should wait for more ingress, not treat it as
// malformed).
func Decode(buf []byte) (m Message, consumed int, ok bool, err error) {
	if len(buf) < headerSize {
		return Message{}, 0, false, nil
	}

	senderLen := int(binary.BigEndian.Uint16(buf[9:11]))
	payloadLen := int(binary.BigEndian.Uint32(buf[11:15]))
	if payloadLen > MaxPayloadSize {
		return Message{}, 0, true, ErrPayloadTooLarge
	}

	total := headerSize + senderLen + payloadLen
	if len(buf) < total {
		return Message{}, 0, false, nil
	}

	m.Opcode = Opcode(buf[0])
	m.CorrelationID = binary.BigEndian.Uint64(buf[1:9])
	m.SenderID = append([]byte(nil), buf[headerSize:headerSize+senderLen]...)
	m.Payload = append([]byte(nil), buf[headerSize+senderLen:total]...)
	return m, total, true, nil
}
