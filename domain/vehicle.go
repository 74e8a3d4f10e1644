// Package domain supplies the concrete vehicle implementation the
// engine runs against: a plain data-holding struct passed by pointer
// that satisfies meso.Vehicle's narrow capability interface.
package domain

import (
	"github.com/google/uuid"

	"github.com/kassenov/sumo/internal/simtime"
	"github.com/kassenov/sumo/meso"
)

// Vehicle is one simulated car: identity, car-following parameters, and
// the small bundle of mutable scheduling state a Segment reads and
// writes as the vehicle moves (event time, queue index, block time).
// Route holds the full sequence of edges this vehicle will traverse;
// routePos is the index of the edge it currently occupies.
type Vehicle struct {
	id          string
	typ         meso.VehicleType
	speed       float64
	speedFactor float64
	impatience  float64
	waitStart   simtime.Tick
	hasWaited   bool

	eventTime     simtime.Tick
	lastEntryTime simtime.Tick
	queueIndex    int
	blockTime     simtime.Tick

	segment *meso.Segment

	route    []meso.Edge
	routePos int
	arrived  bool
	stopAt   map[*meso.Segment]simtime.Tick

	reminders []meso.Reminder
}

// New builds a Vehicle with a fresh UUID-derived ID when id is empty,
// letting generated identity coexist with otherwise user-supplied
// records.
func New(id string, typ meso.VehicleType, route []meso.Edge, speedFactor float64) *Vehicle {
	if id == "" {
		id = uuid.NewString()
	}
	if speedFactor <= 0 {
		speedFactor = 1
	}
	return &Vehicle{
		id:          id,
		typ:         typ,
		speedFactor: speedFactor,
		route:       route,
		stopAt:      map[*meso.Segment]simtime.Tick{},
	}
}

func (v *Vehicle) ID() string              { return v.id }
func (v *Vehicle) Type() meso.VehicleType  { return v.typ }
func (v *Vehicle) Speed() float64          { return v.speed }
func (v *Vehicle) SpeedFactor() float64    { return v.speedFactor }
func (v *Vehicle) Impatience() float64     { return v.impatience }

// SetSpeed records the vehicle's current travel speed, clamped to the
// engine-wide minimum. Segment.SetSpeed does not call it: that call
// recomputes queued vehicles' event times, not their speeds.
func (v *Vehicle) SetSpeed(s float64) { v.speed = simtime.ClampSpeed(s) }

// SetImpatience sets this vehicle's impatience, which Segment.IsOpen
// passes verbatim to the junction link's Opened predicate.
func (v *Vehicle) SetImpatience(i float64) { v.impatience = i }

func (v *Vehicle) WaitingTime() simtime.Tick {
	if !v.hasWaited {
		return 0
	}
	return v.eventTime - v.waitStart
}

// MarkWaiting starts (or keeps) the waiting-time clock running from t.
func (v *Vehicle) MarkWaiting(t simtime.Tick) {
	if !v.hasWaited {
		v.waitStart = t
		v.hasWaited = true
	}
}

// ClearWaiting resets the waiting-time clock once the vehicle moves.
func (v *Vehicle) ClearWaiting() { v.hasWaited = false }

func (v *Vehicle) EventTime() simtime.Tick { return v.eventTime }

func (v *Vehicle) SetEventTime(t simtime.Tick, slow bool) {
	v.eventTime = t
	if slow {
		v.ClearWaiting()
	}
}

func (v *Vehicle) LastEntryTime() simtime.Tick      { return v.lastEntryTime }
func (v *Vehicle) SetLastEntryTime(t simtime.Tick)  { v.lastEntryTime = t }
func (v *Vehicle) QueueIndex() int                  { return v.queueIndex }
func (v *Vehicle) SetQueueIndex(i int)              { v.queueIndex = i }
func (v *Vehicle) BlockTime() simtime.Tick          { return v.blockTime }
func (v *Vehicle) SetBlockTime(t simtime.Tick)      { v.blockTime = t }
func (v *Vehicle) SetSegment(seg *meso.Segment)     { v.segment = seg }
func (v *Vehicle) Segment() *meso.Segment           { return v.segment }

// SuccEdge returns the k-th edge ahead of the vehicle's current route
// position, or nil past the end of the route.
func (v *Vehicle) SuccEdge(k int) meso.Edge {
	idx := v.routePos + k
	if idx < 0 || idx >= len(v.route) {
		return nil
	}
	return v.route[idx]
}

// MoveRoutePointer advances past the current edge, reporting arrival
// once the pointer runs off the end of the route.
func (v *Vehicle) MoveRoutePointer() bool {
	v.routePos++
	if v.routePos >= len(v.route) {
		v.arrived = true
		return true
	}
	return false
}

func (v *Vehicle) HasArrived() bool { return v.arrived }

// SetArrived lets an external controller (e.g. a destination-reached
// check keyed on position rather than edge count) force arrival.
func (v *Vehicle) SetArrived() { v.arrived = true }

// StopTime returns any dwell time scheduled for this vehicle on seg,
// zero if none was set.
func (v *Vehicle) StopTime(seg *meso.Segment) simtime.Tick { return v.stopAt[seg] }

// SetStopTime schedules a dwell of d on seg, consulted the next time
// the vehicle is received onto seg.
func (v *Vehicle) SetStopTime(seg *meso.Segment, d simtime.Tick) { v.stopAt[seg] = d }

// ConservativeSpeed credits this vehicle with its current speed (or,
// before it has one, its type's maximum speed times its speed factor),
// clamped to the engine-wide minimum; the value of *earliestExit does
// not affect the result. It then advances *earliestExit by the time
// this vehicle needs to cover its own length plus gap at that speed —
// the running estimate a Segment builds while scanning a queue from its
// leader for MeanSpeed and Flow.
func (v *Vehicle) ConservativeSpeed(earliestExit *simtime.Tick) float64 {
	speed := v.speed
	if speed <= 0 {
		speed = v.typ.MaxSpeed * v.speedFactor
	}
	*earliestExit += simtime.FromSeconds(v.typ.LengthWithGap() / simtime.ClampSpeed(speed))
	return simtime.ClampSpeed(speed)
}

func (v *Vehicle) AddReminder(d meso.Reminder) {
	v.reminders = append(v.reminders, d)
}

func (v *Vehicle) RemoveReminder(d meso.Reminder) {
	for i, r := range v.reminders {
		if r == d {
			v.reminders = append(v.reminders[:i], v.reminders[i+1:]...)
			return
		}
	}
}

func (v *Vehicle) ActivateReminders(reason meso.NotifyReason) {
	_ = reason
}

func (v *Vehicle) UpdateDetectors(t simtime.Tick, leaving bool, reason meso.NotifyReason) {
	_ = t
	_ = leaving
	_ = reason
}

func (v *Vehicle) UpdateDetectorForWriting(d meso.Reminder, now, exitTime simtime.Tick) {
	d.Notify(now, exitTime)
}
