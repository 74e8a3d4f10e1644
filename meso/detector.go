package meso

import "github.com/kassenov/sumo/internal/simtime"

// NotifyReason mirrors the notification reasons SUMO's move reminders
// distinguish between: why a vehicle left (or entered) a segment.
type NotifyReason int

const (
	NotifyDeparted NotifyReason = iota
	NotifySegment
	NotifyJunction
	NotifyArrived
	NotifyVaporized
	NotifyTeleport
)

func (r NotifyReason) String() string {
	switch r {
	case NotifyDeparted:
		return "departed"
	case NotifySegment:
		return "segment"
	case NotifyJunction:
		return "junction"
	case NotifyArrived:
		return "arrived"
	case NotifyVaporized:
		return "vaporized"
	case NotifyTeleport:
		return "teleport"
	default:
		return "unknown"
	}
}

// Reminder is the narrow capability a detector/output instrument needs:
// a callback that Vehicle.UpdateDetectorForWriting invokes when a
// segment prepares a detector write (enter/exit accounting is handled
// by Vehicle.ActivateReminders / Vehicle.UpdateDetectors on the vehicle
// side). The segment treats
// Reminders purely as an opaque fan-out list — it never inspects their
// internal state.
type Reminder interface {
	// Notify is called once by prepareDetectorForWriting with the
	// simulated exit time it should account as this vehicle's
	// contribution to whatever the reminder measures (occupancy time,
	// flow count, mean speed...).
	Notify(now, exitTime simtime.Tick)
}

// DetectorBus holds the reminders attached to a segment and knows how
// to retroactively attach/detach them across every vehicle currently
// queued, and how to simulate a synchronized write across all queues.
type DetectorBus struct {
	reminders []Reminder
}

// Add appends d and retroactively attaches it to every vehicle
// currently queued in seg, leader first (last element down to index 0)
// per queue.
func (b *DetectorBus) Add(d Reminder, seg *Segment) {
	b.reminders = append(b.reminders, d)
	for _, q := range seg.queues {
		for i := len(q.cars) - 1; i >= 0; i-- {
			q.cars[i].AddReminder(d)
		}
	}
}

// Remove detaches d from seg and from every vehicle currently queued.
func (b *DetectorBus) Remove(d Reminder, seg *Segment) {
	for i, r := range b.reminders {
		if r == d {
			b.reminders = append(b.reminders[:i], b.reminders[i+1:]...)
			break
		}
	}
	for _, q := range seg.queues {
		for i := len(q.cars) - 1; i >= 0; i-- {
			q.cars[i].RemoveReminder(d)
		}
	}
}

// attachAll attaches every bus reminder to veh; called whenever a
// vehicle is received into the segment.
func (b *DetectorBus) attachAll(veh Vehicle) {
	for _, r := range b.reminders {
		veh.AddReminder(r)
	}
}

// PrepareForWriting simulates a synchronized write of d as if every
// queued vehicle exited in order.
func (b *DetectorBus) PrepareForWriting(d Reminder, seg *Segment, now simtime.Tick) {
	for _, q := range seg.queues {
		earliestExit := now
		for i := len(q.cars) - 1; i >= 0; i-- {
			veh := q.cars[i]
			exitTime := simtime.Max2(earliestExit, veh.EventTime())
			veh.UpdateDetectorForWriting(d, now, exitTime)
			earliestExit = exitTime + seg.tauFF
		}
	}
}
