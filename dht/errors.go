package dht

import (
	"errors"

	"github.com/meshring/chordnode/pending"
)

// Report and ReportCode are re-exported under dht's own names so
// callers of the Runner's public API (OnEnd-style continuations) need
// not import the pending package directly — the table doing the
// correlating is an implementation detail of the Runner.
type Report = pending.Report
type ReportCode = pending.ReportCode

const (
	Normal            = pending.Normal
	Timeout           = pending.Timeout
	PeerUnreachable   = pending.PeerUnreachable
	MalformedResponse = pending.MalformedResponse
	Cancelled         = pending.Cancelled
)

// EndFunc finalizes a Runner operation exactly once; calling it again
// is a no-op.
type EndFunc func(Report)

var (
	ErrTimeout           = errors.New("dht: request timed out")
	ErrPeerUnreachable   = errors.New("dht: peer unreachable")
	ErrMalformedResponse = errors.New("dht: malformed response")
	ErrCancelled         = errors.New("dht: request cancelled")
)

func reportError(code ReportCode) error {
	switch code {
	case Timeout:
		return ErrTimeout
	case MalformedResponse:
		return ErrMalformedResponse
	case Cancelled:
		return ErrCancelled
	default:
		return ErrPeerUnreachable
	}
}

func reportCodeForError(err error) ReportCode {
	switch {
	case err == nil:
		return Normal
	case errors.Is(err, ErrTimeout):
		return Timeout
	case errors.Is(err, ErrMalformedResponse):
		return MalformedResponse
	case errors.Is(err, ErrCancelled):
		return Cancelled
	default:
		return PeerUnreachable
	}
}
