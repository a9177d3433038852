//go:build linux

package eventloop

import (
	"sync"

	"golang.org/x/sys/unix"
)

// maxFDs bounds the direct-indexed fd table; beyond this RegisterFD fails
// with ErrFDOutOfRange rather than growing unbounded.
const maxFDs = 65536

type fdInfo struct {
	callback func(IOEvents)
	events   IOEvents
	active   bool
}

// epollPoller is the Linux readiness multiplexer, backing Loop's I/O
// registration with epoll via golang.org/x/sys/unix.
type epollPoller struct {
	epfd     int
	eventBuf [256]unix.EpollEvent
	fds      [maxFDs]fdInfo
	mu       sync.RWMutex
	closed   bool
}

func newPoller() poller { return &epollPoller{} }

func (p *epollPoller) Init() error {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return err
	}
	p.epfd = epfd
	return nil
}

func (p *epollPoller) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return unix.Close(p.epfd)
}

func eventsToEpoll(e IOEvents) uint32 {
	var m uint32
	if e.Has(EventRead) {
		m |= unix.EPOLLIN
	}
	if e.Has(EventWrite) {
		m |= unix.EPOLLOUT
	}
	return m
}

func epollToEvents(m uint32) IOEvents {
	var e IOEvents
	if m&unix.EPOLLIN != 0 {
		e |= EventRead
	}
	if m&unix.EPOLLOUT != 0 {
		e |= EventWrite
	}
	if m&(unix.EPOLLERR) != 0 {
		e |= EventError
	}
	if m&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		e |= EventHangup
	}
	return e
}

func (p *epollPoller) RegisterFD(fd int, events IOEvents, cb func(IOEvents)) error {
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

	ev := unix.EpollEvent{Events: eventsToEpoll(events), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		p.mu.Lock()
		p.fds[fd] = fdInfo{}
		p.mu.Unlock()
		return err
	}
	return nil
}

func (p *epollPoller) ModifyFD(fd int, events IOEvents) error {
	if fd < 0 || fd >= maxFDs {
		return ErrFDOutOfRange
	}
	p.mu.Lock()
	if !p.fds[fd].active {
		p.mu.Unlock()
		return ErrFDNotRegistered
	}
	p.fds[fd].events = events
	cb := p.fds[fd].callback
	p.mu.Unlock()

	ev := unix.EpollEvent{Events: eventsToEpoll(events), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return err
	}
	_ = cb
	return nil
}

func (p *epollPoller) UnregisterFD(fd int) error {
	if fd < 0 || fd >= maxFDs {
		return ErrFDOutOfRange
	}
	p.mu.Lock()
	if !p.fds[fd].active {
		p.mu.Unlock()
		return ErrFDNotRegistered
	}
	p.fds[fd] = fdInfo{}
	p.mu.Unlock()

	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// newWakePipe creates a non-blocking self-pipe used to wake the loop
// from a blocking Poll when a task is Submit'd from another goroutine.
func newWakePipe() (readFD, writeFD int, err error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		return 0, 0, err
	}
	return fds[0], fds[1], nil
}

func (p *epollPoller) Poll(timeoutMs int) (int, error) {
	n, err := unix.EpollWait(p.epfd, p.eventBuf[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}

	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Fd)
		p.mu.RLock()
		info := p.fds[fd]
		p.mu.RUnlock()
		if !info.active || info.callback == nil {
			continue
		}
		info.callback(epollToEvents(p.eventBuf[i].Events))
	}
	return n, nil
}
