package eventloop

import "errors"

// Standard errors returned by Loop operations.
var (
	// ErrLoopAlreadyRunning is returned when Run is called on a loop that is already running.
	ErrLoopAlreadyRunning = errors.New("eventloop: loop is already running")

	// ErrLoopTerminated is returned when an operation is attempted on a loop that has stopped.
	ErrLoopTerminated = errors.New("eventloop: loop has been terminated")

	// ErrReentrantRun is returned when Run is called from within the loop's own goroutine.
	ErrReentrantRun = errors.New("eventloop: cannot call Run from within the loop")

	// ErrFDOutOfRange is returned when a file descriptor is outside the supported range.
	ErrFDOutOfRange = errors.New("eventloop: fd out of range")

	// ErrFDAlreadyRegistered is returned by RegisterFD for a duplicate fd.
	ErrFDAlreadyRegistered = errors.New("eventloop: fd already registered")

	// ErrFDNotRegistered is returned by ModifyFD/UnregisterFD for an unknown fd.
	ErrFDNotRegistered = errors.New("eventloop: fd not registered")

	// ErrPollerClosed is returned once the platform poller has been closed.
	ErrPollerClosed = errors.New("eventloop: poller closed")

	// ErrEntryRemoved is returned by Modify/Reschedule against a removed Entry.
	ErrEntryRemoved = errors.New("eventloop: entry already removed")
)
