package meso

import "github.com/kassenov/sumo/internal/simtime"

// Scheduler is the outward contract this engine requires of the event
// loop: segments never pop or order events themselves, they only ever
// register/deregister the single vehicle per queue whose event time
// currently governs when the segment must next be visited (the
// "leader"), and dispatch the one cross-segment hop primitive that
// covers both ordinary hops and vaporization.
type Scheduler interface {
	// AddLeaderCar registers veh as the leader of whichever segment
	// currently holds it. link is the junction link veh must cross to
	// leave that segment (nil if junction control is off or the link
	// lookup found nothing) — implementations that model traffic-light
	// gating at the scheduler level use it to decide when to actually
	// fire the vehicle's event versus defer it.
	AddLeaderCar(veh Vehicle, link Link)

	// RemoveLeaderCar deregisters veh. Every AddLeaderCar must be
	// paired with exactly one RemoveLeaderCar over veh's lifetime on a
	// given segment.
	RemoveLeaderCar(veh Vehicle)

	// ChangeSegment is the single hop primitive: move veh off its
	// current segment at time t and onto target. target may be nil
	// (arrival/removal) or VaporizationTarget (vaporization) — both are
	// handled uniformly by the segment's own isInvalid check; the
	// scheduler need not special-case either.
	ChangeSegment(veh Vehicle, t simtime.Tick, target *Segment)

	// GetSegmentForEdge returns the first segment of edge, used by
	// limitedControlOverride and by callers re-entering a vehicle after
	// a teleport.
	GetSegmentForEdge(edge Edge) *Segment

	// GetCurrentTimeStep is the scheduler's notion of "now", consulted
	// by meanSpeed's cache check.
	GetCurrentTimeStep() simtime.Tick
}
