package meso

import "github.com/kassenov/sumo/internal/simtime"

// CarFollowParams is the subset of a vehicle type's car-following model
// the segment needs: the maximum deceleration used by junction-opening
// predicates.
type CarFollowParams struct {
	MaxDecel float64
}

// VehicleType groups the per-type geometry and speed bound a segment
// consults on every admission and headway calculation.
type VehicleType struct {
	Length     float64
	MinGap     float64
	MaxSpeed   float64
	CarFollow  CarFollowParams
}

// LengthWithGap is the space a vehicle of this type occupies in a queue,
// including its minimum following gap.
func (vt VehicleType) LengthWithGap() float64 {
	return vt.Length + vt.MinGap
}

// DefaultVehicleType is used by jamThresholdForSpeed when no real
// vehicle is available to size the jam threshold against (construction
// time, before any vehicle has ever entered the segment).
var DefaultVehicleType = VehicleType{Length: 5.0, MinGap: 2.5, MaxSpeed: 55.56}

// Vehicle is the read-only (plus a handful of narrow setters) facade the
// segment requires of a vehicle. It intentionally exposes nothing about
// car-following dynamics, routing internals, or the vehicle-type
// catalogue beyond the handful of fields a segment actually consults —
// those live entirely outside this module.
type Vehicle interface {
	ID() string

	Type() VehicleType
	Speed() float64
	SpeedFactor() float64
	Impatience() float64
	WaitingTime() simtime.Tick

	EventTime() simtime.Tick
	SetEventTime(t simtime.Tick, slow bool)

	LastEntryTime() simtime.Tick
	SetLastEntryTime(t simtime.Tick)

	QueueIndex() int
	SetQueueIndex(i int)

	BlockTime() simtime.Tick
	SetBlockTime(t simtime.Tick)

	// SetSegment records which segment currently owns the vehicle, used
	// for arrival checking. Segment may be nil when the vehicle is
	// removed from the simulation entirely. The queue index within the
	// segment is set separately via SetQueueIndex.
	SetSegment(seg *Segment)

	// Segment returns the segment last recorded by SetSegment, letting
	// a scheduler driver look up where a fired leader actually sits
	// without keeping a parallel vehicle→segment map of its own.
	Segment() *Segment

	// SuccEdge returns the k-th edge ahead of the vehicle's current
	// route position (k=0 is the current edge, k=1 the next edge), or
	// nil if the route does not extend that far.
	SuccEdge(k int) Edge

	// MoveRoutePointer advances the vehicle's route pointer by one edge
	// and reports whether doing so moved past the last edge of the
	// route (i.e. the vehicle has arrived).
	MoveRoutePointer() bool

	// HasArrived reports arrival detected by means other than the
	// route pointer (e.g. a destination reached mid-edge).
	HasArrived() bool

	// StopTime is the dwell time the vehicle intends to spend stopped
	// on the given segment (boarding, a scheduled halt, etc).
	StopTime(seg *Segment) simtime.Tick

	// ConservativeSpeed returns the speed this vehicle can be credited
	// with given that it cannot leave before earliestExit, and advances
	// *earliestExit by the vehicle's own minimum headway so that the
	// caller's running estimate reflects this vehicle having left.
	ConservativeSpeed(earliestExit *simtime.Tick) float64

	// Detector/reminder plumbing, delegated entirely to the vehicle —
	// the segment only ever calls these, never inspects reminder state.
	AddReminder(d Reminder)
	RemoveReminder(d Reminder)
	ActivateReminders(reason NotifyReason)
	UpdateDetectors(t simtime.Tick, leaving bool, reason NotifyReason)
	UpdateDetectorForWriting(d Reminder, now, exitTime simtime.Tick)
}

// Edge is the narrow read-only view of a road edge the segment needs:
// identity for follower-map lookups and lane permission queries.
type Edge interface {
	ID() string
}
