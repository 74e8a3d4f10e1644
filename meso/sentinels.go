package meso

import "math"

// DoNotPatchJamThreshold is the sentinel jam-threshold value meaning
// "leave whatever jam threshold is already set".
const DoNotPatchJamThreshold = math.MaxFloat64

// dummyEdge backs VaporizationTarget's myEdge-equivalent: an edge
// reference every Segment must have, even ones that are never really
// part of a network.
type dummyEdge struct{}

func (dummyEdge) ID() string                      { return "dummySegmentParent" }
func (dummyEdge) LaneCount() int                  { return 0 }
func (dummyEdge) Successors() []Edge              { return nil }
func (dummyEdge) AllowedLanes(dest Edge) []int     { return nil }
func (dummyEdge) Lane(i int) Lane                 { return nil }

// VaporizationTarget is the shared sentinel "segment" passed to Send to
// mean "remove this vehicle from the simulation entirely, reason:
// vaporized" rather than moving it anywhere real. Comparing a *Segment
// against this pointer (see isInvalid) is the Go analogue of SUMO's
// MESegment::isInvalid special-casing &myVaporizationTarget.
var VaporizationTarget = &Segment{id: "vaporizationTarget", edge: dummyEdge{}}

// isInvalid reports whether next is "no real destination segment" —
// either nil (arrival/removal) or the vaporization sentinel.
func isInvalid(next *Segment) bool {
	return next == nil || next == VaporizationTarget
}
