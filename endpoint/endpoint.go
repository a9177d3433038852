// Package endpoint wraps network addresses as used by both the DHT
// wire protocol and the HTTP connection handler: an IPv4 or IPv6
// address, a port, and (for v6) the zone Go's netip tracks in place
// of separate flow/scope fields.
package endpoint

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"

	"golang.org/x/sys/unix"
)

// Endpoint is a resolved address+port pair. The zero value is invalid;
// construct with Parse or New.
type Endpoint struct {
	addrPort netip.AddrPort
}

// New wraps an already-parsed netip.AddrPort.
func New(ap netip.AddrPort) Endpoint { return Endpoint{addrPort: ap} }

// Parse accepts "host:port" — dotted-quad IPv4, or bracketed
// hex-group IPv6 optionally carrying a zone ("[fe80::1%eth0]:53").
func Parse(s string) (Endpoint, error) {
	ap, err := netip.ParseAddrPort(s)
	if err != nil {
		host, port, splitErr := net.SplitHostPort(s)
		if splitErr != nil {
			return Endpoint{}, fmt.Errorf("endpoint: parse %q: %w", s, err)
		}
		addr, addrErr := netip.ParseAddr(host)
		if addrErr != nil {
			return Endpoint{}, fmt.Errorf("endpoint: parse %q: %w", s, addrErr)
		}
		var p uint16
		if _, scanErr := fmt.Sscanf(port, "%d", &p); scanErr != nil {
			return Endpoint{}, fmt.Errorf("endpoint: parse %q: invalid port %q", s, port)
		}
		ap = netip.AddrPortFrom(addr, p)
	}
	return Endpoint{addrPort: ap}, nil
}

// AddrPort returns the underlying address and port.
func (e Endpoint) AddrPort() netip.AddrPort { return e.addrPort }

// IsValid reports whether e holds a parsed address.
func (e Endpoint) IsValid() bool { return e.addrPort.IsValid() }

// String renders "host:port", bracketing IPv6 and including the zone
// when present.
func (e Endpoint) String() string { return e.addrPort.String() }

// Equal reports whether e and other denote the same address and port.
func (e Endpoint) Equal(other Endpoint) bool { return e.addrPort == other.addrPort }

// Sockaddr converts e to the flat, family-tagged socket address
// structure the syscall layer expects: unix.SockaddrInet4 for IPv4,
// unix.SockaddrInet6 (carrying the zone as a numeric scope id) for
// IPv6.
func (e Endpoint) Sockaddr() (unix.Sockaddr, error) {
	if !e.addrPort.IsValid() {
		return nil, fmt.Errorf("endpoint: invalid endpoint")
	}
	addr := e.addrPort.Addr()
	port := int(e.addrPort.Port())

	if addr.Is4() || addr.Is4In6() {
		a4 := addr.As4()
		return &unix.SockaddrInet4{Port: port, Addr: a4}, nil
	}

	a16 := addr.As16()
	zoneID := uint32(0)
	if zone := addr.Zone(); zone != "" {
		if iface, err := net.InterfaceByName(zone); err == nil {
			zoneID = uint32(iface.Index)
		}
	}
	return &unix.SockaddrInet6{Port: port, ZoneId: zoneID, Addr: a16}, nil
}

func zoneName(index uint32) string {
	if iface, err := net.InterfaceByIndex(int(index)); err == nil {
		return iface.Name
	}
	return strconv.FormatUint(uint64(index), 10)
}

// FromSockaddr is Sockaddr's inverse: it converts a unix.Sockaddr
// returned by Accept/Recvfrom back into an Endpoint, resolving an IPv6
// scope id back to an interface name the way Sockaddr resolved it
// forward. Reports false for any address family other than IPv4/IPv6.
func FromSockaddr(sa unix.Sockaddr) (Endpoint, bool) {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return New(netip.AddrPortFrom(netip.AddrFrom4(a.Addr), uint16(a.Port))), true
	case *unix.SockaddrInet6:
		addr := netip.AddrFrom16(a.Addr)
		if a.ZoneId != 0 {
			addr = addr.WithZone(zoneName(a.ZoneId))
		}
		return New(netip.AddrPortFrom(addr, uint16(a.Port))), true
	default:
		return Endpoint{}, false
	}
}
