// Package ratelimit adapts go-catrate's sliding-window Limiter to
// per-category backpressure (many categories, each with independent
// per-window budgets). It provides default rate tables for outbound
// RPC dispatch per remote peer and for inbound HTTP connection
// acceptance per source address; within this module only the HTTP
// Listener's accept path applies a Limiter.
package ratelimit

import (
	"time"

	"github.com/joeycumines/go-catrate"
)

// Limiter rate-limits events keyed by an arbitrary category (a remote
// node Id, a source IP, anything comparable).
type Limiter struct {
	inner *catrate.Limiter
}

// New constructs a Limiter with one or more sliding windows. rates
// maps a window duration to the maximum event count permitted within
// it; longer windows must allow at least as many events as shorter
// ones (go-catrate's own monotonicity requirement).
func New(rates map[time.Duration]int) *Limiter {
	return &Limiter{inner: catrate.NewLimiter(rates)}
}

// Allow reports whether one more event for category is permitted
// under every configured window, recording it if so.
func (l *Limiter) Allow(category any) bool {
	_, ok := l.inner.Allow(category)
	return ok
}

// DefaultRPCDispatchRates bounds how many RPCs this node will dispatch
// to a single remote peer: a burst allowance over one second, and a
// steadier ceiling over one minute.
var DefaultRPCDispatchRates = map[time.Duration]int{
	time.Second: 20,
	time.Minute: 600,
}

// DefaultAcceptRates bounds how many HTTP connections this node will
// accept from a single source address.
var DefaultAcceptRates = map[time.Duration]int{
	time.Second: 10,
	time.Minute: 200,
}
