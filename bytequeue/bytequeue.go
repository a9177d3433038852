// Package bytequeue implements the growable circular byte buffer
// backing both connection ingress and egress: Add/Take instead of
// io.Reader/io.Writer stream operators, and an explicit two-slice
// Halves view for callers (the HTTP connection handler's write path)
// that need a contiguous or vectored view across the wraparound
// rather than an implicit copy.
package bytequeue

import "errors"

// ErrCapacityExceeded is returned by Add on a non-growable Queue once
// Free() bytes would be insufficient for the request.
var ErrCapacityExceeded = errors.New("bytequeue: capacity exceeded")

// Queue is a ring buffer of bytes. The zero value is not usable;
// construct with New or NewFixed.
type Queue struct {
	buf      []byte
	head     int // index of the first valid byte
	length   int // number of valid bytes
	growable bool
}

// New constructs a growable Queue with the given initial capacity.
func New(initialCapacity int) *Queue {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	return &Queue{buf: make([]byte, initialCapacity), growable: true}
}

// NewFixed constructs a non-growable Queue of exactly capacity bytes.
// Add beyond Free() fails with ErrCapacityExceeded instead of growing.
func NewFixed(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{buf: make([]byte, capacity), growable: false}
}

// Len returns the number of valid bytes currently queued.
func (q *Queue) Len() int { return q.length }

// Cap returns the backing buffer's total capacity.
func (q *Queue) Cap() int { return len(q.buf) }

// Free returns the number of bytes that can be Add'd before the
// buffer is full (for a non-growable Queue, before ErrCapacityExceeded).
func (q *Queue) Free() int { return len(q.buf) - q.length }

// IsEmpty reports whether the queue holds no bytes.
func (q *Queue) IsEmpty() bool { return q.length == 0 }

// IsFull reports whether the queue has no free space.
func (q *Queue) IsFull() bool { return q.length == len(q.buf) }

func (q *Queue) tailIndex() int { return (q.head + q.length) % len(q.buf) }

// Add appends p to the back of the queue. A growable Queue doubles
// its capacity (new = 2*old + request) as needed rather than growing
// by exactly the request, amortizing repeated small appends; a fixed
// Queue instead returns ErrCapacityExceeded when p would overflow it.
func (q *Queue) Add(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	if need := len(p) - q.Free(); need > 0 {
		if !q.growable {
			return ErrCapacityExceeded
		}
		q.grow(len(q.buf)*2 + need)
	}

	tail := q.tailIndex()
	n := copy(q.buf[tail:], p)
	if n < len(p) {
		copy(q.buf[:len(p)-n], p[n:])
	}
	q.length += len(p)
	return nil
}

// grow reallocates the backing array to newCap, copying existing
// contents (in logical order, resolving any wraparound) to the front.
func (q *Queue) grow(newCap int) {
	nb := make([]byte, newCap)
	first, second := q.Halves()
	n := copy(nb, first)
	copy(nb[n:], second)
	q.buf = nb
	q.head = 0
}

// Take pops and returns a single byte from the front. ok is false if
// the queue is empty.
func (q *Queue) Take() (b byte, ok bool) {
	if q.length == 0 {
		return 0, false
	}
	b = q.buf[q.head]
	q.head = (q.head + 1) % len(q.buf)
	q.length--
	return b, true
}

// TakeN pops up to len(dst) bytes into dst, returning the number
// actually popped (which may be less than len(dst) if the queue holds
// fewer bytes).
func (q *Queue) TakeN(dst []byte) int {
	n := min(len(dst), q.length)
	if n == 0 {
		return 0
	}
	end := q.head + n
	if end <= len(q.buf) {
		copy(dst, q.buf[q.head:end])
	} else {
		k := copy(dst, q.buf[q.head:])
		copy(dst[k:], q.buf[:end-len(q.buf)])
	}
	q.head = (q.head + n) % len(q.buf)
	q.length -= n
	return n
}

// First returns the first byte without removing it. ok is false if empty.
func (q *Queue) First() (b byte, ok bool) {
	if q.length == 0 {
		return 0, false
	}
	return q.buf[q.head], true
}

// Last returns the last byte without removing it. ok is false if empty.
func (q *Queue) Last() (b byte, ok bool) {
	if q.length == 0 {
		return 0, false
	}
	idx := (q.head + q.length - 1) % len(q.buf)
	return q.buf[idx], true
}

// Resize changes the backing capacity, preserving existing contents.
// Shrinking below Len() is rejected.
func (q *Queue) Resize(newCapacity int) error {
	if newCapacity < q.length {
		return errors.New("bytequeue: cannot resize below current length")
	}
	q.grow(newCapacity)
	return nil
}

// Halves returns the queue's contents as one or two contiguous slices
// directly into the backing array — first is head-to-end (or the
// whole run if it does not wrap), second is begin-to-tail when the
// data wraps around the end of the backing array. Neither slice is a
// copy; callers must not retain them past the next mutating call.
//
// This is the vectored-write view a ring buffer needs in place of
// assuming a single contiguous slice: a writer must either send first
// and second as one vectored write, or send first alone and defer
// second to the next write-ready callback — never silently truncate
// at the wrap boundary.
func (q *Queue) Halves() (first, second []byte) {
	if q.length == 0 {
		return nil, nil
	}
	end := q.head + q.length
	if end <= len(q.buf) {
		return q.buf[q.head:end], nil
	}
	return q.buf[q.head:], q.buf[:end-len(q.buf)]
}

// Drop removes n bytes from the front without copying them out (for
// use after a caller has already consumed Halves() directly, e.g. via
// a vectored write).
func (q *Queue) Drop(n int) {
	if n > q.length {
		n = q.length
	}
	q.head = (q.head + n) % len(q.buf)
	q.length -= n
}
