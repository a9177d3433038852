package httpserver

import (
	"golang.org/x/sys/unix"

	"github.com/meshring/chordnode/endpoint"
	"github.com/meshring/chordnode/eventloop"
	"github.com/meshring/chordnode/ratelimit"
)

// Listener accepts TCP connections on one bound socket and attaches a
// ConnectionHandler to each, all on the owning Loop's goroutine —
// accept() itself is just another readiness callback, not a separate
// accept thread.
type Listener struct {
	fd       int
	local    endpoint.Endpoint
	settings *Settings
	onRequest OnRequest
	accept   *ratelimit.Limiter

	loop  *eventloop.Loop
	entry *eventloop.Entry
}

// Listen binds and listens on local, registering the accept loop with
// loop. accept, if non-nil, rate-limits accepted connections per
// source address.
func Listen(loop *eventloop.Loop, local endpoint.Endpoint, settings *Settings, onRequest OnRequest, accept *ratelimit.Limiter) (*Listener, error) {
	sa, err := local.Sockaddr()
	if err != nil {
		return nil, err
	}

	domain := unix.AF_INET
	if local.AddrPort().Addr().Is6() {
		domain = unix.AF_INET6
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)

	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	if err := unix.Listen(fd, 128); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	l := &Listener{fd: fd, local: local, settings: settings, onRequest: onRequest, accept: accept}
	entry, err := loop.Add(fd, eventloop.EventRead, 0, l.onEvent)
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	l.loop = loop
	l.entry = entry
	return l, nil
}

func (l *Listener) onEvent(loopRef *eventloop.Loop, e *eventloop.Entry, events eventloop.IOEvents) {
	if !events.Has(eventloop.EventRead) {
		return
	}
	for {
		connFD, sa, err := unix.Accept(l.fd)
		if err != nil {
			return // EAGAIN, or a transient accept error: try again next readiness
		}

		source := sourceEndpoint(sa)
		if l.accept != nil && !l.accept.Allow(source) {
			_ = unix.Close(connFD)
			continue
		}

		if err := unix.SetNonblock(connFD, true); err != nil {
			_ = unix.Close(connFD)
			continue
		}

		target := l.local
		if ep, ok := endpoint.FromSockaddr(sa); ok {
			target = ep
		}

		if _, err := Attach(loopRef, connFD, target, l.settings, l.onRequest); err != nil {
			if l.settings.Logger != nil {
				l.settings.Logger.Err(err).Str("target", target.String()).Log("attach")
			}
			_ = unix.Close(connFD)
		}
	}
}

// Close stops accepting and releases the listening socket.
func (l *Listener) Close() error {
	_ = l.loop.Remove(l.entry)
	return unix.Close(l.fd)
}
