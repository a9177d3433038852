// Package eventloop implements the single-threaded, cooperative, timed
// event loop that backs both the Chord DHT runner and the HTTP
// connection handler: readiness-based I/O multiplexing (epoll on
// Linux, kqueue on Darwin/BSD), a deadline min-heap shared by every
// registered entry, and a plain task queue for cross-goroutine
// submission.
//
// All callbacks registered with a Loop run on the loop's own
// goroutine, one at a time, run-to-completion. Nothing registered
// here may block on I/O; long-running work must be handed off and the
// result delivered back in via Submit.
package eventloop

// IOEvents is a bitmask of readiness conditions a registered file
// descriptor may be interested in, or may have observed.
type IOEvents uint32

const (
	// EventRead indicates the fd is ready for reading (or the peer half-closed).
	EventRead IOEvents = 1 << iota
	// EventWrite indicates the fd is ready for writing.
	EventWrite
	// EventError indicates an error condition on the fd.
	EventError
	// EventHangup indicates the peer closed its end of the connection.
	EventHangup
)

// Has reports whether the mask contains every bit in other.
func (e IOEvents) Has(other IOEvents) bool { return e&other == other }

// poller is the platform-specific readiness multiplexer. Implementations
// live in poller_linux.go (epoll) and poller_darwin.go (kqueue).
type poller interface {
	Init() error
	Close() error
	RegisterFD(fd int, events IOEvents, cb func(IOEvents)) error
	ModifyFD(fd int, events IOEvents) error
	UnregisterFD(fd int) error
	// Poll blocks for up to timeoutMs milliseconds (negative blocks
	// indefinitely, zero polls once without blocking) dispatching ready
	// callbacks inline. It returns the number of fds made ready.
	Poll(timeoutMs int) (int, error)
}
