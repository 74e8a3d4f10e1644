package meso

import "github.com/kassenov/sumo/internal/simtime"

// Link is the read-only view of a junction link the segment consults
// when junction control is enabled: right-of-way priority, the
// traffic-light/junction controller's "may I cross now?" predicate, and
// approaching-vehicle bookkeeping. Traffic-light logic itself lives
// entirely outside this module — the segment only ever calls Opened.
type Link interface {
	// DestinationEdge is the edge this link leads to; used to match a
	// vehicle's next route edge against the link's outgoing lanes.
	DestinationEdge() Edge

	// HasPriority reports whether this link has unconditional
	// right-of-way (no signal or yield check needed).
	HasPriority() bool

	// Opened is the junction controller's admission predicate.
	Opened(eventTime simtime.Tick, speed, leaveSpeed, lengthWithGap,
		impatience, maxDecel float64, waitingTime simtime.Tick) bool

	// RegisterApproaching/RemoveApproaching tell the link a vehicle is
	// now, or is no longer, approaching it — used by junction
	// controllers for gap acceptance and conflict resolution.
	RegisterApproaching(v Vehicle)
	RemoveApproaching(v Vehicle)
}
