package httpserver

import (
	"time"

	"github.com/meshring/chordnode/xlog"
)

// Settings carries the per-listener tunables: parser limits, the
// file-send threshold, buffer sizing, the Host header value, and an
// error hook. Shared by every ConnectionHandler a Listener spawns.
type Settings struct {
	MaxHeaderSize     int
	MaxBodySize       int
	MaxFileSize       int64
	SendFileThreshold int64
	RequestBufferSize int
	ResponseBufferSize int
	HostName          string
	IdleTimeout       time.Duration

	// OnError is invoked with the target endpoint's string form, the
	// error response about to be sent, and the loop's shared Storage,
	// giving callers a chance to customize or log error responses
	// before they go out.
	OnError func(target string, resp *Response, storage any)

	// Logger receives socket read/write faults (other than EOF) and
	// failures to attach an accepted connection to the loop.
	// Left nil, a ConnectionHandler logs nothing.
	Logger *xlog.Logger
}

// DefaultSettings returns reasonable bounds for local development and
// tests: 8KiB headers, 1MiB bodies, 64MiB files, sendfile above 256KiB,
// 4KiB request/response buffers, a 30s idle timeout.
func DefaultSettings(hostName string) Settings {
	return Settings{
		MaxHeaderSize:      8 << 10,
		MaxBodySize:        1 << 20,
		MaxFileSize:        64 << 20,
		SendFileThreshold:  256 << 10,
		RequestBufferSize:  4 << 10,
		ResponseBufferSize: 4 << 10,
		HostName:           hostName,
		IdleTimeout:        30 * time.Second,
	}
}
