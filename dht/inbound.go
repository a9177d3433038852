package dht

import (
	"github.com/meshring/chordnode/chord"
	"github.com/meshring/chordnode/endpoint"
	"github.com/meshring/chordnode/wire"
)

// handleDatagram decodes one inbound UDP datagram and either routes
// it to the pending table (it is a reply to one of our own dispatches)
// or serves it directly (it is a fresh request from a peer).
func (r *Runner) handleDatagram(peer endpoint.Endpoint, buf []byte) {
	m, consumed, ok, err := wire.Decode(buf)
	if err != nil || !ok || consumed != len(buf) {
		return // malformed or partial datagram: UDP delivers whole messages or not at all
	}

	switch m.Opcode {
	case wire.OpQuery:
		r.handleQuery(peer, m)
	case wire.OpQueryReply, wire.OpPredecessorReply, wire.OpPong, wire.OpKeysReply, wire.OpGetReply, wire.OpSetAck:
		r.table.Hop(m.CorrelationID, m.Payload)
	case wire.OpPredecessor:
		pred, has := r.overlay.Predecessor()
		r.reply(peer, wire.OpPredecessorReply, m.CorrelationID, encodePredecessorReply(has, pred))
	case wire.OpNotify:
		if n, err := decodeNode(r.space, m.Payload); err == nil {
			r.overlay.Notify(n)
		}
	case wire.OpPing:
		r.reply(peer, wire.OpPong, m.CorrelationID, nil)
	case wire.OpKeys:
		r.handleKeys(peer, m)
	case wire.OpGet:
		r.handleGet(peer, m)
	case wire.OpSet:
		r.handleSet(peer, m)
	case wire.OpData:
		if r.OnData != nil {
			r.OnData(r.peerNode(m, peer), m.Payload)
		}
	default:
		// OpRoute/OpRouteReply are reserved by the wire format but unused:
		// Route resolves against the local overlay, which already
		// recurses over OpQuery when forwarding is needed (see ops.go).
	}
}

func (r *Runner) peerNode(m wire.Message, peer endpoint.Endpoint) chord.Node {
	return chord.Node{ID: r.space.FromBytes(m.SenderID), Endpoint: peer}
}

func (r *Runner) reply(peer endpoint.Endpoint, op wire.Opcode, correlationID uint64, payload []byte) {
	buf, err := wire.Encode(wire.Message{
		Opcode:        op,
		CorrelationID: correlationID,
		SenderID:      r.self.ID.Bytes(),
		Payload:       payload,
	})
	if err != nil {
		return
	}
	_ = r.sendMessage(peer, buf)
}

func (r *Runner) handleQuery(peer endpoint.Endpoint, m wire.Message) {
	k := r.space.FromBytes(m.Payload)
	r.overlay.FindSuccessor(k, func(n chord.Node, err error) {
		if err != nil {
			return
		}
		r.reply(peer, wire.OpQueryReply, m.CorrelationID, encodeNode(n))
	})
}

func (r *Runner) handleKeys(peer endpoint.Endpoint, m wire.Message) {
	requester := r.peerNode(m, peer)
	r.reply(peer, wire.OpKeysReply, m.CorrelationID, encodeKeyList(r.listKeys(requester)))
}

func (r *Runner) handleGet(peer endpoint.Endpoint, m wire.Message) {
	k := r.space.FromBytes(m.Payload)
	data, ok := r.applyGet(k)
	r.reply(peer, wire.OpGetReply, m.CorrelationID, encodeOptionalBytes(ok, data))
}

func (r *Runner) handleSet(peer endpoint.Endpoint, m wire.Message) {
	width := int(r.space.Bits()+7) / 8
	if len(m.Payload) >= width {
		k := r.space.FromBytes(m.Payload[:width])
		r.applySet(k, m.Payload[width:])
	}
	r.reply(peer, wire.OpSetAck, m.CorrelationID, nil)
}
