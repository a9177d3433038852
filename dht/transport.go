package dht

import (
	"golang.org/x/sys/unix"

	"github.com/meshring/chordnode/endpoint"
	"github.com/meshring/chordnode/eventloop"
)

// bindSocket creates the single nonblocking UDP socket every Runner
// sends and receives DHT wire messages on: both client requests (this
// node asking a peer something) and server replies/requests (a peer
// asking this node something) share it.
func bindSocket(local endpoint.Endpoint) (int, error) {
	sa, err := local.Sockaddr()
	if err != nil {
		return -1, err
	}

	domain := unix.AF_INET
	if local.AddrPort().Addr().Is6() {
		domain = unix.AF_INET6
	}

	fd, err := unix.Socket(domain, unix.SOCK_DGRAM, 0)
	if err != nil {
		return -1, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// sendMessage encodes m and writes it as one datagram to target's
// address. UDP's message boundaries make wire.Decode's incremental
// buffering unnecessary on the send side — every message is exactly
// one syscall.
func (r *Runner) sendMessage(target endpoint.Endpoint, buf []byte) error {
	sa, err := target.Sockaddr()
	if err != nil {
		return err
	}
	return unix.Sendto(r.fd, buf, 0, sa)
}

// recvBufSize bounds a single inbound datagram at 64KiB. That is far
// below wire.MaxPayloadSize, so on this transport the receive buffer,
// not MaxPayloadSize, caps the size of a message that can be decoded.
const recvBufSize = 64 << 10

func (r *Runner) readDatagrams() {
	buf := make([]byte, recvBufSize)
	for {
		n, from, err := unix.Recvfrom(r.fd, buf, 0)
		if err != nil {
			return // EAGAIN: drained for this readiness notification
		}
		if n == 0 {
			continue
		}
		peer, ok := endpoint.FromSockaddr(from)
		if !ok {
			continue
		}
		r.handleDatagram(peer, append([]byte(nil), buf[:n]...))
	}
}

func (r *Runner) onSocketEvent(_ *eventloop.Loop, _ *eventloop.Entry, events eventloop.IOEvents) {
	if events.Has(eventloop.EventRead) {
		r.readDatagrams()
	}
}
