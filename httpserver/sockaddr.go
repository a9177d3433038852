package httpserver

import (
	"golang.org/x/sys/unix"

	"github.com/meshring/chordnode/endpoint"
)

// sourceEndpoint extracts just the source address (no port) as a rate
// limiter category — many ephemeral client ports from behind one NAT
// should share one budget.
func sourceEndpoint(sa unix.Sockaddr) string {
	ep, ok := endpoint.FromSockaddr(sa)
	if !ok {
		return "unknown"
	}
	return ep.AddrPort().Addr().String()
}
