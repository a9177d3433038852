package dht

import (
	"encoding/binary"
	"fmt"

	"github.com/meshring/chordnode/chord"
	"github.com/meshring/chordnode/endpoint"
	"github.com/meshring/chordnode/key"
)

// Wire payload encodings for the opcodes that carry more than a bare
// key or a bare byte string: a chord.Node (id + reachable address) and
// a list of keys (the reply to a Keys request). Every other opcode's
// payload is either a raw key.Bytes() or an opaque byte string and
// needs no codec of its own.

func encodeNode(n chord.Node) []byte {
	idBytes := n.ID.Bytes()
	epBytes := []byte(n.Endpoint.String())

	buf := make([]byte, 2+len(idBytes)+2+len(epBytes))
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(idBytes)))
	copy(buf[2:], idBytes)
	off := 2 + len(idBytes)
	binary.BigEndian.PutUint16(buf[off:off+2], uint16(len(epBytes)))
	copy(buf[off+2:], epBytes)
	return buf
}

func decodeNode(space *key.Space, buf []byte) (chord.Node, error) {
	if len(buf) < 2 {
		return chord.Node{}, fmt.Errorf("dht: truncated node (id length)")
	}
	idLen := int(binary.BigEndian.Uint16(buf[0:2]))
	if len(buf) < 2+idLen+2 {
		return chord.Node{}, fmt.Errorf("dht: truncated node (id body)")
	}
	idBytes := buf[2 : 2+idLen]
	off := 2 + idLen
	epLen := int(binary.BigEndian.Uint16(buf[off : off+2]))
	if len(buf) < off+2+epLen {
		return chord.Node{}, fmt.Errorf("dht: truncated node (endpoint)")
	}
	epBytes := buf[off+2 : off+2+epLen]

	ep, err := endpoint.Parse(string(epBytes))
	if err != nil {
		return chord.Node{}, fmt.Errorf("dht: decode node endpoint: %w", err)
	}
	return chord.Node{ID: space.FromBytes(idBytes), Endpoint: ep}, nil
}

func encodePredecessorReply(has bool, pred chord.Node) []byte {
	if !has {
		return []byte{0}
	}
	return append([]byte{1}, encodeNode(pred)...)
}

func decodePredecessorReply(space *key.Space, buf []byte) (pred chord.Node, hasPred bool, err error) {
	if len(buf) == 0 {
		return chord.Node{}, false, fmt.Errorf("dht: empty predecessor reply")
	}
	if buf[0] == 0 {
		return chord.Node{}, false, nil
	}
	n, err := decodeNode(space, buf[1:])
	if err != nil {
		return chord.Node{}, false, err
	}
	return n, true, nil
}

// encodeKeyList renders a slice of keys as a length-prefixed
// concatenation, every entry the ring's fixed Bytes() width so no
// per-entry length prefix is needed.
func encodeKeyList(keys []key.Key) []byte {
	if len(keys) == 0 {
		return nil
	}
	width := len(keys[0].Bytes())
	buf := make([]byte, 2+len(keys)*width)
	binary.BigEndian.PutUint16(buf[0:2], uint16(width))
	for i, k := range keys {
		copy(buf[2+i*width:], k.Bytes())
	}
	return buf
}

func decodeKeyList(space *key.Space, buf []byte) ([]key.Key, error) {
	if len(buf) == 0 {
		return nil, nil
	}
	if len(buf) < 2 {
		return nil, fmt.Errorf("dht: truncated key list")
	}
	width := int(binary.BigEndian.Uint16(buf[0:2]))
	if width == 0 {
		return nil, fmt.Errorf("dht: zero-width key list")
	}
	body := buf[2:]
	if len(body)%width != 0 {
		return nil, fmt.Errorf("dht: key list not a multiple of entry width")
	}
	out := make([]key.Key, 0, len(body)/width)
	for off := 0; off < len(body); off += width {
		out = append(out, space.FromBytes(body[off:off+width]))
	}
	return out, nil
}

// encodeOptionalBytes and decodeOptionalBytes share the single
// present/absent leading byte convention used by GetReply (a key may
// not be present on the node asked) and PredecessorReply.
func encodeOptionalBytes(ok bool, data []byte) []byte {
	if !ok {
		return []byte{0}
	}
	return append([]byte{1}, data...)
}

func decodeOptionalBytes(buf []byte) (data []byte, ok bool, err error) {
	if len(buf) == 0 {
		return nil, false, fmt.Errorf("dht: empty optional-bytes payload")
	}
	if buf[0] == 0 {
		return nil, false, nil
	}
	return append([]byte(nil), buf[1:]...), true, nil
}
