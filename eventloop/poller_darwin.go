//go:build darwin

package eventloop

import (
	"sync"

	"golang.org/x/sys/unix"
)

const maxFDs = 65536

type fdInfo struct {
	callback func(IOEvents)
	events   IOEvents
	active   bool
}

// kqueuePoller is the Darwin/BSD readiness multiplexer, backing Loop's
// I/O registration with kqueue via golang.org/x/sys/unix.
type kqueuePoller struct {
	kq       int
	eventBuf [256]unix.Kevent_t
	fds      [maxFDs]fdInfo
	mu       sync.RWMutex
	closed   bool
}

func newPoller() poller { return &kqueuePoller{} }

func (p *kqueuePoller) Init() error {
	kq, err := unix.Kqueue()
	if err != nil {
		return err
	}
	unix.CloseOnExec(kq)
	p.kq = kq
	return nil
}

func (p *kqueuePoller) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return unix.Close(p.kq)
}

func (p *kqueuePoller) changeFilters(fd int, events IOEvents, flags uint16) error {
	var changes []unix.Kevent_t
	if events.Has(EventRead) {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: flags})
	}
	if events.Has(EventWrite) {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: flags})
	}
	if len(changes) == 0 {
		return nil
	}
	_, err := unix.Kevent(p.kq, changes, nil, nil)
	return err
}

func (p *kqueuePoller) RegisterFD(fd int, events IOEvents, cb func(IOEvents)) error {
	if fd < 0 || fd >= maxFDs {
		return ErrFDOutOfRange
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPollerClosed
	}
	if p.fds[fd].active {
		p.mu.Unlock()
		return ErrFDAlreadyRegistered
	}
	p.fds[fd] = fdInfo{callback: cb, events: events, active: true}
	p.mu.Unlock()

	if err := p.changeFilters(fd, events, unix.EV_ADD|unix.EV_CLEAR); err != nil {
		p.mu.Lock()
		p.fds[fd] = fdInfo{}
		p.mu.Unlock()
		return err
	}
	return nil
}

func (p *kqueuePoller) ModifyFD(fd int, events IOEvents) error {
	if fd < 0 || fd >= maxFDs {
		return ErrFDOutOfRange
	}
	p.mu.Lock()
	if !p.fds[fd].active {
		p.mu.Unlock()
		return ErrFDNotRegistered
	}
	old := p.fds[fd].events
	p.fds[fd].events = events
	p.mu.Unlock()

	// Remove filters no longer wanted, add newly wanted ones.
	if old.Has(EventRead) && !events.Has(EventRead) {
		_ = p.changeFilters(fd, EventRead, unix.EV_DELETE)
	}
	if old.Has(EventWrite) && !events.Has(EventWrite) {
		_ = p.changeFilters(fd, EventWrite, unix.EV_DELETE)
	}
	var toAdd IOEvents
	if events.Has(EventRead) && !old.Has(EventRead) {
		toAdd |= EventRead
	}
	if events.Has(EventWrite) && !old.Has(EventWrite) {
		toAdd |= EventWrite
	}
	if toAdd != 0 {
		return p.changeFilters(fd, toAdd, unix.EV_ADD|unix.EV_CLEAR)
	}
	return nil
}

func (p *kqueuePoller) UnregisterFD(fd int) error {
	if fd < 0 || fd >= maxFDs {
		return ErrFDOutOfRange
	}
	p.mu.Lock()
	if !p.fds[fd].active {
		p.mu.Unlock()
		return ErrFDNotRegistered
	}
	events := p.fds[fd].events
	p.fds[fd] = fdInfo{}
	p.mu.Unlock()

	return p.changeFilters(fd, events, unix.EV_DELETE)
}

// newWakePipe creates a non-blocking self-pipe used to wake the loop
// from a blocking Poll when a task is Submit'd from another goroutine.
func newWakePipe() (readFD, writeFD int, err error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return 0, 0, err
	}
	for _, fd := range fds {
		if err := unix.SetNonblock(fd, true); err != nil {
			_ = unix.Close(fds[0])
			_ = unix.Close(fds[1])
			return 0, 0, err
		}
	}
	return fds[0], fds[1], nil
}

func (p *kqueuePoller) Poll(timeoutMs int) (int, error) {
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		t := unix.NsecToTimespec(int64(timeoutMs) * int64(1e6))
		ts = &t
	}

	n, err := unix.Kevent(p.kq, nil, p.eventBuf[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}

	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Ident)
		p.mu.RLock()
		info := p.fds[fd]
		p.mu.RUnlock()
		if !info.active || info.callback == nil {
			continue
		}

		var e IOEvents
		switch p.eventBuf[i].Filter {
		case unix.EVFILT_READ:
			e = EventRead
		case unix.EVFILT_WRITE:
			e = EventWrite
		}
		if p.eventBuf[i].Flags&unix.EV_EOF != 0 {
			e |= EventHangup
		}
		if p.eventBuf[i].Flags&unix.EV_ERROR != 0 {
			e |= EventError
		}
		info.callback(e)
	}
	return n, nil
}
