package httpserver

import (
	"io"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/meshring/chordnode/bytequeue"
	"github.com/meshring/chordnode/endpoint"
	"github.com/meshring/chordnode/eventloop"
)

// OnRequest dispatches a fully-parsed Request to the owning
// application, returning the Response to enqueue. storage is the
// event loop's shared Storage slot.
type OnRequest func(target string, req Request, storage any) Response

// OutEntry is one queued response awaiting transmission: a header+body
// byte queue, and optionally a file whose remaining bytes are sent
// either by topping up Bytes from ReadAt (buffered path) or directly
// via the kernel sendfile primitive once Bytes drains (zero-copy path).
type OutEntry struct {
	Bytes           *bytequeue.Queue
	File            *FileContent
	FileOffset      int64
	FileRemaining   int64
	UseZeroCopySend bool
}

// ConnectionHandler is the per-connection state machine driving one
// accepted socket through Reading -> Dispatching -> Enqueue -> Writing,
// sharing the event loop's readiness and timeout infrastructure with
// the Chord RPC path.
type ConnectionHandler struct {
	fd        int
	target    endpoint.Endpoint
	settings  *Settings
	onRequest OnRequest

	parser      *Parser
	egress      []OutEntry
	shouldClose bool

	loop  *eventloop.Loop
	entry *eventloop.Entry
}

// Attach registers fd (already accept()-ed and set non-blocking) with
// loop and returns the handler driving it.
func Attach(loop *eventloop.Loop, fd int, target endpoint.Endpoint, settings *Settings, onRequest OnRequest) (*ConnectionHandler, error) {
	h := &ConnectionHandler{
		fd:        fd,
		target:    target,
		settings:  settings,
		onRequest: onRequest,
		parser:    NewParser(settings.MaxHeaderSize, settings.MaxBodySize, settings.RequestBufferSize),
	}
	entry, err := loop.Add(fd, eventloop.EventRead, settings.IdleTimeout, h.onEvent)
	if err != nil {
		return nil, err
	}
	h.loop = loop
	h.entry = entry
	return h, nil
}

func (h *ConnectionHandler) onEvent(l *eventloop.Loop, e *eventloop.Entry, events eventloop.IOEvents) {
	if events.Has(eventloop.EventRead) {
		if err := h.onReadable(); err != nil {
			h.logError("read", err)
			h.teardown()
			return
		}
		_ = l.Reschedule(e, h.settings.IdleTimeout)
	}
	if events.Has(eventloop.EventWrite) {
		if err := h.onWritable(); err != nil {
			h.logError("write", err)
			h.teardown()
			return
		}
	}
	if events.Has(eventloop.EventError) || events.Has(eventloop.EventHangup) {
		h.teardown()
	}
}

// logError reports a non-EOF connection error through Settings.Logger,
// if one is configured. io.EOF is the ordinary end of a connection, not
// a fault worth logging.
func (h *ConnectionHandler) logError(stage string, err error) {
	if h.settings.Logger == nil || err == io.EOF {
		return
	}
	h.settings.Logger.Err(err).Str("target", h.target.String()).Log(stage)
}

// onReadable drains every byte currently available on the socket,
// feeding each chunk to the parser and dispatching every request it
// completes, including ones pipelined back-to-back in a single read.
func (h *ConnectionHandler) onReadable() error {
	buf := make([]byte, h.settings.RequestBufferSize)
	for {
		n, err := unix.Read(h.fd, buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return nil
			}
			return err
		}
		if n == 0 {
			return io.EOF
		}

		if err := h.feedAndDispatch(buf[:n]); err != nil {
			return err
		}
		if h.shouldClose {
			return nil
		}

		if n < len(buf) {
			return nil
		}
	}
}

// feedAndDispatch feeds data to the parser and dispatches every
// request it completes. A connection's read buffer can hold more than
// one request back to back (HTTP/1.1 pipelining, or simply two small
// requests coalesced by the kernel into one read); once the first is
// dispatched and the parser reset, it re-drives Feed with no new data
// so any later request already sitting in the parser's buffer is
// recognized and dispatched too, rather than discarded.
func (h *ConnectionHandler) feedAndDispatch(data []byte) error {
	for {
		if perr := h.parser.Feed(data); perr != nil {
			if pe, ok := perr.(*ParseError); ok {
				h.handleParseError(pe)
				return nil
			}
			return perr
		}
		if !h.parser.IsFinished() {
			return nil
		}

		h.dispatch()
		if h.shouldClose {
			return nil
		}
		data = nil
	}
}

func (h *ConnectionHandler) dispatch() {
	req := h.parser.Result()
	resp := h.onRequest(h.target.String(), req, h.loop.Storage)

	h.shouldClose = decideClose(req)
	if h.shouldClose {
		_ = unix.Shutdown(h.fd, unix.SHUT_RD)
	}

	h.appendResponse(resp)
	h.parser.Reset()

	interest := eventloop.EventRead | eventloop.EventWrite
	if h.shouldClose {
		interest = eventloop.EventWrite
	}
	_ = h.loop.Modify(h.entry, interest)
}

func (h *ConnectionHandler) handleParseError(pe *ParseError) {
	resp := NewResponse(h.parser.Version(), pe.Status, pe.Reason)
	if h.settings.OnError != nil {
		h.settings.OnError(h.target.String(), &resp, h.loop.Storage)
	}

	h.shouldClose = true
	_ = unix.Shutdown(h.fd, unix.SHUT_RD)
	h.appendResponse(resp)
	h.parser.Reset()
	_ = h.loop.Modify(h.entry, eventloop.EventWrite)
}

// decideClose applies standard HTTP/1.x keep-alive policy: HTTP/1.0
// closes unless the client asked to keep-alive; HTTP/1.1 keeps alive
// unless the client asked to close. The comparison is case-insensitive
// (Headers.HasToken).
func decideClose(req Request) bool {
	switch req.Version {
	case HTTP11:
		return req.Headers.HasToken("Connection", "close")
	default:
		return !req.Headers.HasToken("Connection", "keep-alive")
	}
}

// appendResponse encodes resp into a new OutEntry at the tail of the
// egress queue: status line, headers (Host/Content-Length/Connection
// filled in here), then either the body bytes or a file reference for
// the write path to drain.
func (h *ConnectionHandler) appendResponse(resp Response) {
	if resp.Headers == nil {
		resp.Headers = make(Headers)
	}

	hasFile := resp.File != nil
	var fileLen int64
	if hasFile {
		fileLen = resp.File.Size
		if h.settings.MaxFileSize > 0 && fileLen > h.settings.MaxFileSize {
			fileLen = h.settings.MaxFileSize
		}
	} else if h.settings.MaxBodySize > 0 && len(resp.Body) > h.settings.MaxBodySize {
		resp.Body = resp.Body[:h.settings.MaxBodySize]
	}

	useZeroCopy := hasFile && h.settings.SendFileThreshold > 0 && fileLen > h.settings.SendFileThreshold

	if hasFile {
		resp.Headers.Set("Content-Length", strconv.FormatInt(fileLen, 10))
	} else {
		resp.Headers.Set("Content-Length", strconv.Itoa(len(resp.Body)))
	}
	resp.Headers.Set("Host", h.settings.HostName)

	if !h.shouldClose && resp.Version == HTTP10 {
		resp.Headers.Set("Connection", "keep-alive")
	} else if h.shouldClose && resp.Version == HTTP11 {
		resp.Headers.Set("Connection", "close")
	}

	q := bytequeue.New(h.settings.ResponseBufferSize)
	_ = q.Add([]byte(resp.StatusLine()))
	_ = q.Add(resp.EncodeHeaders())

	entry := OutEntry{Bytes: q}
	if hasFile {
		entry.File = resp.File
		entry.FileRemaining = fileLen
		entry.UseZeroCopySend = useZeroCopy
	} else {
		_ = q.Add(resp.Body)
	}

	h.egress = append(h.egress, entry)
}

// onWritable drains the head OutEntry: top up from the file (buffered
// path only), flush the byte queue via drainBytes, then hand the
// remainder to sendfile (zero-copy path) once the buffer empties. An
// entry is popped only once both its buffer and file remainder reach
// zero.
func (h *ConnectionHandler) onWritable() error {
	for len(h.egress) > 0 {
		e := &h.egress[0]

		if e.File != nil && e.FileRemaining > 0 && !e.UseZeroCopySend {
			if free := e.Bytes.Free(); free > 0 {
				chunk := make([]byte, minInt64(e.FileRemaining, int64(free)))
				n, rerr := e.File.ReadAt(chunk, e.FileOffset)
				if n > 0 {
					_ = e.Bytes.Add(chunk[:n])
					e.FileOffset += int64(n)
					e.FileRemaining -= int64(n)
				}
				if rerr != nil && rerr != io.EOF {
					return rerr
				}
			}
		}

		blocked, err := h.drainBytes(e.Bytes)
		if err != nil {
			return err
		}
		if blocked || !e.Bytes.IsEmpty() {
			return nil
		}

		if e.File != nil && e.FileRemaining > 0 && e.UseZeroCopySend {
			off := e.FileOffset
			n, serr := sendfile(h.fd, int(e.File.Fd()), &off, clampToInt(e.FileRemaining))
			e.FileOffset = off
			if n > 0 {
				e.FileRemaining -= int64(n)
			}
			if serr != nil {
				if serr == unix.EAGAIN || serr == unix.EWOULDBLOCK {
					return nil
				}
				return serr
			}
			if e.FileRemaining > 0 {
				return nil
			}
		}

		h.egress = h.egress[1:]
	}

	if h.shouldClose {
		h.teardown()
		return nil
	}
	_ = h.loop.Modify(h.entry, eventloop.EventRead)
	return nil
}

// drainBytes writes as much of buf as the socket currently accepts.
// It always issues one write per contiguous half returned by Halves
// (never assembling a single slice across the wraparound), so a write
// that stops partway through the first half correctly waits for the
// next writable event instead of silently skipping the second half.
func (h *ConnectionHandler) drainBytes(buf *bytequeue.Queue) (blocked bool, err error) {
	for !buf.IsEmpty() {
		first, _ := buf.Halves()
		n, werr := unix.Write(h.fd, first)
		if n > 0 {
			buf.Drop(n)
		}
		if werr != nil {
			if werr == unix.EAGAIN || werr == unix.EWOULDBLOCK {
				return true, nil
			}
			return false, werr
		}
		if n < len(first) {
			return true, nil
		}
	}
	return false, nil
}

func (h *ConnectionHandler) teardown() {
	_ = h.loop.Remove(h.entry)
	_ = unix.Close(h.fd)
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func clampToInt(n int64) int {
	const maxInt = int64(^uint(0) >> 1)
	if n > maxInt {
		return int(maxInt)
	}
	return int(n)
}
