package eventloop

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// EntryID identifies an Entry registered with a Loop; it is the handle
// a Loop keys its Entries map by.
type EntryID uint64

// Callback is invoked on the loop goroutine when an Entry becomes
// ready (events holds the readiness bits) or, for a deadline expiry,
// with events == EventHangup and no further readiness implied.
type Callback func(l *Loop, e *Entry, events IOEvents)

// Entry is the loop's record for one registered file descriptor (a
// connection) or one bare timer (fd == NoFD). UserState lets callers
// stash small per-entry context without a side map; the DHT runner
// instead uses Loop.Storage, since its state is shared across every
// entry rather than scoped to one.
type Entry struct {
	id        EntryID
	fd        int
	interest  IOEvents
	timeout   time.Duration
	deadline  time.Time
	recurring bool
	callback  Callback
	UserState any
	removed   bool
}

// NoFD marks an Entry that tracks only a deadline, with no associated
// file descriptor — used for the Chord maintenance timers (stabilize,
// fix_fingers, check_predecessor).
const NoFD = -1

// ID returns the entry's handle.
func (e *Entry) ID() EntryID { return e.id }

// timeoutNode is one position in the loop's timeout min-heap. Deadline
// is snapshotted at push time: Reschedule pushes a fresh node without
// disturbing the old one, so a popped node whose Deadline no longer
// matches its Entry's current deadline is stale and is discarded
// rather than acted on (lazy invalidation, avoiding a heap-wide
// search-and-fix on every reschedule).
type timeoutNode struct {
	deadline time.Time
	entry    *Entry
}

type timeoutHeap []*timeoutNode

func (h timeoutHeap) Len() int            { return len(h) }
func (h timeoutHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h timeoutHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timeoutHeap) Push(x any)         { *h = append(*h, x.(*timeoutNode)) }
func (h *timeoutHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return x
}

// Loop is a single-threaded, cooperative, timed event loop: readiness
// multiplexing (epoll/kqueue) plus a deadline min-heap shared by every
// registered Entry.
type Loop struct {
	state atomicState

	poller poller

	entries     map[EntryID]*Entry
	nextEntryID atomic.Uint64
	timeouts    timeoutHeap

	wakeReadFD, wakeWriteFD int

	extMu    sync.Mutex
	extTasks []Task

	loopGoroutine atomic.Uint64

	// Storage is shared by reference with every callback invoked by this
	// Loop. It must only be mutated from the loop goroutine. The DHT
	// runner stores its overlay engine here: an explicit, per-Loop
	// field threaded through every callback invocation as an ordinary
	// parameter, rather than a package-level service locator.
	Storage any

	// OnOverload, if set, is invoked when Submit's caller-side queue
	// crosses a high-water mark between ticks, giving a caller a chance
	// to apply backpressure before the queue grows unbounded.
	OnOverload func(pending int)

	doneCh chan struct{}
}

// New creates a Loop. The returned Loop must be started with Run.
func New() (*Loop, error) {
	l := &Loop{
		poller:  newPoller(),
		entries: make(map[EntryID]*Entry),
		doneCh:  make(chan struct{}),
	}
	l.nextEntryID.Store(0)

	if err := l.poller.Init(); err != nil {
		return nil, err
	}

	rfd, wfd, err := newWakePipe()
	if err != nil {
		_ = l.poller.Close()
		return nil, err
	}
	l.wakeReadFD, l.wakeWriteFD = rfd, wfd

	if err := l.poller.RegisterFD(rfd, EventRead, func(IOEvents) { l.drainWakePipe() }); err != nil {
		_ = l.poller.Close()
		_ = unix.Close(rfd)
		_ = unix.Close(wfd)
		return nil, err
	}

	return l, nil
}

func (l *Loop) drainWakePipe() {
	var buf [64]byte
	for {
		_, err := unix.Read(l.wakeReadFD, buf[:])
		if err != nil {
			return
		}
	}
}

func (l *Loop) wake() {
	_, _ = unix.Write(l.wakeWriteFD, []byte{1})
}

// isLoopThread reports whether the caller is running on the loop's own
// goroutine. Run uses it to reject a reentrant call from inside the
// loop with ErrReentrantRun.
func (l *Loop) isLoopThread(goroutineID uint64) bool {
	id := l.loopGoroutine.Load()
	return id != 0 && id == goroutineID
}

// Add registers fd for I/O readiness notification with an idle
// timeout. A zero timeout disables deadline tracking for this entry.
func (l *Loop) Add(fd int, interest IOEvents, timeout time.Duration, cb Callback) (*Entry, error) {
	id := EntryID(l.nextEntryID.Add(1))
	e := &Entry{id: id, fd: fd, interest: interest, timeout: timeout, callback: cb}

	if fd != NoFD {
		if err := l.poller.RegisterFD(fd, interest, func(events IOEvents) { l.dispatch(e, events) }); err != nil {
			return nil, err
		}
	}

	l.entries[id] = e
	l.armDeadline(e)
	return e, nil
}

// AddTimer registers a bare deadline with no associated file
// descriptor. If recurring, the callback is re-armed for `every`
// after each firing (used by the Chord maintenance tasks); otherwise
// it fires once and the entry is then removed automatically.
func (l *Loop) AddTimer(every time.Duration, recurring bool, cb func(l *Loop, e *Entry)) (*Entry, error) {
	e, err := l.Add(NoFD, 0, every, func(l *Loop, e *Entry, _ IOEvents) { cb(l, e) })
	if err != nil {
		return nil, err
	}
	e.recurring = recurring
	return e, nil
}

// Modify changes the I/O interest mask for e without disturbing its deadline.
func (l *Loop) Modify(e *Entry, interest IOEvents) error {
	if e.removed {
		return ErrEntryRemoved
	}
	e.interest = interest
	if e.fd == NoFD {
		return nil
	}
	return l.poller.ModifyFD(e.fd, interest)
}

// Reschedule resets e's deadline to now + timeout.
func (l *Loop) Reschedule(e *Entry, timeout time.Duration) error {
	if e.removed {
		return ErrEntryRemoved
	}
	e.timeout = timeout
	l.armDeadline(e)
	return nil
}

func (l *Loop) armDeadline(e *Entry) {
	if e.timeout <= 0 {
		e.deadline = time.Time{}
		return
	}
	e.deadline = time.Now().Add(e.timeout)
	heap.Push(&l.timeouts, &timeoutNode{deadline: e.deadline, entry: e})
}

// Remove removes e from the loop. Idempotent: removing an
// already-removed Entry is a no-op, and does not disturb other
// entries' deadlines.
func (l *Loop) Remove(e *Entry) error {
	if e == nil || e.removed {
		return nil
	}
	e.removed = true
	delete(l.entries, e.id)
	if e.fd != NoFD {
		_ = l.poller.UnregisterFD(e.fd)
	}
	return nil
}

func (l *Loop) dispatch(e *Entry, events IOEvents) {
	if e.removed {
		return
	}
	e.callback(l, e, events)
}

// Submit queues a task for execution on the loop goroutine from any
// other goroutine. Safe for concurrent use.
func (l *Loop) Submit(t Task) error {
	if l.state.Load() == StateTerminated {
		return ErrLoopTerminated
	}
	l.extMu.Lock()
	l.extTasks = append(l.extTasks, t)
	n := len(l.extTasks)
	l.extMu.Unlock()
	l.wake()
	if l.OnOverload != nil && n > 4096 {
		l.OnOverload(n)
	}
	return nil
}

func (l *Loop) drainExternalTasks() {
	l.extMu.Lock()
	tasks := l.extTasks
	l.extTasks = nil
	l.extMu.Unlock()

	for _, t := range tasks {
		if t.Runnable != nil {
			t.Runnable()
		}
	}
}

// runExpiredTimeouts fires every Entry whose deadline has passed as of
// now. For a recurring Entry (Chord maintenance timers) it re-arms
// after firing; for a one-shot Entry (connection idle timeout) firing
// is treated as equivalent to a hangup and is followed by forced
// removal unless the callback already removed the entry itself.
func (l *Loop) runExpiredTimeouts(now time.Time) {
	for len(l.timeouts) > 0 {
		top := l.timeouts[0]
		if top.deadline.After(now) {
			return
		}
		heap.Pop(&l.timeouts)

		if top.entry.removed || !top.deadline.Equal(top.entry.deadline) {
			continue // stale: entry gone, or superseded by a later Reschedule
		}

		e := top.entry
		e.callback(l, e, EventHangup)
		if !e.removed {
			if e.recurring {
				l.armDeadline(e)
			} else {
				_ = l.Remove(e)
			}
		}
	}
}

func (l *Loop) nextPollTimeout(now time.Time) int {
	const maxWaitMs = 5000
	if len(l.timeouts) == 0 {
		return maxWaitMs
	}
	d := l.timeouts[0].deadline.Sub(now)
	if d <= 0 {
		return 0
	}
	ms := int(d / time.Millisecond)
	if ms > maxWaitMs {
		return maxWaitMs
	}
	if ms == 0 {
		return 1
	}
	return ms
}

// Run blocks, dispatching readiness and timeout callbacks, until ctx
// is cancelled or Stop is called. Run must not be called re-entrantly
// from within the loop itself.
func (l *Loop) Run(ctx context.Context) error {
	if l.isLoopThread(currentGoroutineID()) {
		return ErrReentrantRun
	}
	if !l.state.CAS(StateAwake, StateRunning) {
		return ErrLoopAlreadyRunning
	}
	defer close(l.doneCh)

	l.loopGoroutine.Store(currentGoroutineID())
	defer l.loopGoroutine.Store(0)

	stopCh := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			l.wake()
		case <-stopCh:
		}
	}()
	defer close(stopCh)

	for {
		select {
		case <-ctx.Done():
			l.state.Store(StateTerminated)
			l.closeFDs()
			return ctx.Err()
		default:
		}

		if l.state.Load() == StateTerminating {
			l.drainExternalTasks()
			l.runExpiredTimeouts(time.Now())
			if len(l.extTasksSnapshot()) == 0 {
				l.state.Store(StateTerminated)
				l.closeFDs()
				return nil
			}
		}

		l.drainExternalTasks()
		l.runExpiredTimeouts(time.Now())

		timeout := l.nextPollTimeout(time.Now())
		if _, err := l.poller.Poll(timeout); err != nil {
			l.state.Store(StateTerminated)
			l.closeFDs()
			return err
		}
	}
}

func (l *Loop) extTasksSnapshot() []Task {
	l.extMu.Lock()
	defer l.extMu.Unlock()
	return l.extTasks
}

// Stop requests a graceful shutdown: queued tasks and due timeouts are
// drained before Run returns.
func (l *Loop) Stop() {
	l.state.CAS(StateRunning, StateTerminating)
	l.state.CAS(StateAwake, StateTerminated)
	l.wake()
}

// Close immediately terminates the loop, closing the poller and wake
// pipe without waiting for Run to observe it.
func (l *Loop) Close() error {
	l.state.Store(StateTerminated)
	return l.closeFDs()
}

// Done returns a channel closed once Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.doneCh }

// State returns the loop's current lifecycle state.
func (l *Loop) State() State { return l.state.Load() }

func (l *Loop) closeFDs() error {
	err := l.poller.Close()
	_ = unix.Close(l.wakeReadFD)
	_ = unix.Close(l.wakeWriteFD)
	return err
}
