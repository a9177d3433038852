package chord

import (
	"time"

	"github.com/meshring/chordnode/eventloop"
)

// DefaultMaintenancePeriod is the operator-configurable default for how
// often Stabilize, FixFingers, and CheckPredecessor each run.
const DefaultMaintenancePeriod = 5 * time.Second

// StartMaintenance schedules Stabilize, FixFingers, and
// CheckPredecessor as independent recurring timers on loop, each every
// period. Each task only ever dispatches at most one RPC per firing;
// everything beyond that is handled in the RPC's continuation, so no
// maintenance tick can block the loop.
func StartMaintenance(loop *eventloop.Loop, o *Overlay, period time.Duration) error {
	if period <= 0 {
		period = DefaultMaintenancePeriod
	}
	if _, err := loop.AddTimer(period, true, func(*eventloop.Loop, *eventloop.Entry) {
		o.Stabilize()
	}); err != nil {
		return err
	}
	if _, err := loop.AddTimer(period, true, func(*eventloop.Loop, *eventloop.Entry) {
		o.FixFingers()
	}); err != nil {
		return err
	}
	if _, err := loop.AddTimer(period, true, func(*eventloop.Loop, *eventloop.Entry) {
		o.CheckPredecessor()
	}); err != nil {
		return err
	}
	return nil
}
