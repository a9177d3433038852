// Package xlog provides the logiface.Logger type that this module
// passes explicitly, never as a package global: cmd/chordnode builds
// its own, and httpserver takes one through Settings.Logger, the same
// way the eventloop threads Storage explicitly rather than relying on
// ambient state. The event loop and the dht Runner do not log.
package xlog

import (
	"io"
	"log/slog"
	"os"

	"github.com/joeycumines/logiface"
	logifaceslog "github.com/joeycumines/logiface-slog"
)

// Event is the concrete event type this module's loggers use.
type Event = logifaceslog.Event

// Logger is a bound logiface logger, writing through a slog.Handler.
type Logger = logiface.Logger[*Event]

// New builds a Logger writing through handler at minimum level.
// A nil handler defaults to slog.NewJSONHandler(os.Stderr, nil).
func New(handler slog.Handler, level logiface.Level) *Logger {
	if handler == nil {
		handler = slog.NewJSONHandler(os.Stderr, nil)
	}
	return logiface.New[*Event](logifaceslog.NewLogger(handler, logifaceslog.WithLevel(level)))
}

// Discard builds a Logger that drops every event, for components run
// under test without a caller-supplied Logger.
func Discard() *Logger {
	return New(slog.NewJSONHandler(io.Discard, nil), logiface.LevelEmergency)
}
