package scheduler

import (
	"github.com/kassenov/sumo/internal/simtime"
	"github.com/kassenov/sumo/meso"
)

// retryInterval is how far Drive pushes a blocked leader's event time
// out before re-registering it, so a closed junction link gets rechecked
// one simulated second later rather than never again.
const retryInterval = simtime.PerSecond

// Drive builds the default fire callback for loop.Run/Step: given the
// leader a segment just registered, it re-checks the junction link
// that gated it, and either lets the vehicle Send onto the next segment
// (registering whatever new leader falls out the back) or re-registers
// it at a later event time to retry once the link may have opened —
// Step already popped and forgot this leader before firing, so nothing
// keeps it in the heap unless Drive puts it back.
func Drive(loop *EventLoop, ctx *meso.Context) func(veh meso.Vehicle, link meso.Link, t simtime.Tick) {
	return func(veh meso.Vehicle, link meso.Link, t simtime.Tick) {
		seg := veh.Segment()
		if seg == nil {
			return
		}
		if !seg.IsOpen(ctx, veh) {
			veh.SetEventTime(t+retryInterval, false)
			loop.AddLeaderCar(veh, link)
			return
		}
		if link != nil {
			link.RemoveApproaching(veh)
		}

		nextEdge := veh.SuccEdge(1)
		var next *meso.Segment
		if nextEdge != nil {
			next = loop.GetSegmentForEdge(nextEdge)
		}

		if err := seg.Send(veh, next, t); err != nil {
			return
		}
		loop.ChangeSegment(veh, t, next)
	}
}
