// Package dht glues identity, the UDP wire transport, the Chord
// overlay engine, and the pending-request table into a single
// cooperative-event-loop node. Operations that expect replies (Ping,
// Query, Route, Keys, Get) take a hop callback first, then an end
// callback; Bootstrap and Set take only an end callback, and SendTo
// takes neither. Inbound opcodes are handled through an OnXxx field
// the caller can override.
package dht

import (
	"context"
	"fmt"
	"time"

	"github.com/meshring/chordnode/chord"
	"github.com/meshring/chordnode/eventloop"
	"github.com/meshring/chordnode/key"
	"github.com/meshring/chordnode/pending"
	"golang.org/x/sys/unix"
)

// Settings configures a Runner's timing. Mirrors httpserver.Settings'
// defaulting pattern.
type Settings struct {
	RPCTimeout        time.Duration
	MaintenancePeriod time.Duration
}

// DefaultSettings returns a conservative end-to-end RPC deadline and
// the package's default maintenance period.
func DefaultSettings() Settings {
	return Settings{
		RPCTimeout:        2 * time.Second,
		MaintenancePeriod: chord.DefaultMaintenancePeriod,
	}
}

// Hop callback shapes for the Runner's iterative/single-reply
// operations, named after their payload rather than shared under one
// generic type.
type (
	PingHop  func(rtt time.Duration, end EndFunc)
	QueryHop func(answer chord.Node, end EndFunc)
	RouteHop func(answer chord.Node, end EndFunc)
	KeysHop  func(keys []key.Key, end EndFunc)
	GetHop   func(data []byte, end EndFunc)
)

// Runner binds one node's identity to a Loop, a Chord overlay, a
// pending-request table, and a UDP transport, and exposes the
// user-facing DHT operations: ping, query, route, join, and the
// key/value store.
type Runner struct {
	self    chord.Node
	space   *key.Space
	fd      int
	loop    *eventloop.Loop
	overlay *chord.Overlay
	table   *pending.Table
	store   *store

	settings Settings

	entry     *eventloop.Entry
	runCancel context.CancelFunc

	// OnKeys, OnSet, OnGet, and OnData handle inbound requests from
	// peers. Left unset, each falls back to the Runner's own in-memory
	// store (or, for OnData, a no-op).
	OnKeys func(requester chord.Node) []key.Key
	OnSet  func(k key.Key, data []byte)
	OnGet  func(k key.Key) (data []byte, ok bool)
	OnData func(sender chord.Node, payload []byte)

	// OnTransportError reports a send failure from a fire-and-forget
	// path (SendTo, Notify) that has no end continuation to deliver a
	// terminal report to.
	OnTransportError func(error)
}

// New constructs a Runner bound to self and registers its UDP socket
// with loop. The Runner does not start running maintenance or
// accepting datagrams until Run is called.
func New(loop *eventloop.Loop, self chord.Node, space *key.Space, settings Settings) (*Runner, error) {
	if settings.RPCTimeout <= 0 {
		settings.RPCTimeout = DefaultSettings().RPCTimeout
	}
	if settings.MaintenancePeriod <= 0 {
		settings.MaintenancePeriod = chord.DefaultMaintenancePeriod
	}

	fd, err := bindSocket(self.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("dht: bind %s: %w", self.Endpoint, err)
	}

	r := &Runner{
		self:     self,
		space:    space,
		fd:       fd,
		loop:     loop,
		table:    pending.NewTable(loop),
		store:    newStore(),
		settings: settings,
	}
	r.overlay = chord.NewOverlay(self, space, &overlayTransport{r: r})

	entry, err := loop.Add(fd, eventloop.EventRead, 0, r.onSocketEvent)
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	r.entry = entry

	// The overlay engine is this node's single shared mutable state,
	// reachable from every callback the loop invokes through the
	// Loop's Storage field rather than a package-level service locator.
	loop.Storage = r.overlay

	return r, nil
}

// Self returns the node's own identity.
func (r *Runner) Self() chord.Node { return r.self }

// Overlay exposes the underlying Chord engine, e.g. for tests and the
// REPL's status commands that inspect Successor()/Predecessor()/Fingers().
func (r *Runner) Overlay() *chord.Overlay { return r.overlay }

// Run starts the Chord maintenance timers and begins running the
// owning Loop on a background goroutine, returning immediately so the
// caller can go on to do its own work — read REPL commands, serve
// other requests — on the calling goroutine.
func (r *Runner) Run() error {
	if err := chord.StartMaintenance(r.loop, r.overlay, r.settings.MaintenancePeriod); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.runCancel = cancel
	go func() { _ = r.loop.Run(ctx) }()
	return nil
}

// Stop cancels the Loop and waits for it to fully unwind.
func (r *Runner) Stop() {
	if r.runCancel != nil {
		r.runCancel()
	}
	<-r.loop.Done()
}

func noEnd(Report) {}
