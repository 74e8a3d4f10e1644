// Package topology is a read-only road-graph implementation of the
// network-topology collaborator meso.RoadEdge/meso.Lane/meso.Link
// expect: edges carry orb.LineString geometry, lanes carry outgoing
// junction links, and successor/lane-permission maps are built once at
// load time, the way LdDl-osm2ch assembles its mesoscopic link layer
// from macroscopic geometry before handing it to a simulator.
package topology

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"github.com/kassenov/sumo/internal/simtime"
	"github.com/kassenov/sumo/meso"
)

// Edge is a concrete meso.RoadEdge: a named road segment with real or
// synthetic geometry, a fixed lane count, and the successor/
// lane-permission maps the mesoscopic engine consults for multi-queue
// dispatch and junction control.
type Edge struct {
	id       string
	geometry orb.LineString
	lanes    []*LaneImpl
	succs    []meso.Edge
	allowed  map[string][]int
}

// NewEdge builds an Edge with numLanes lanes, backed by geometry (used
// only for Length; pass a two-point LineString for synthetic networks
// with a known length instead of real geography).
func NewEdge(id string, geometry orb.LineString, numLanes int) *Edge {
	e := &Edge{id: id, geometry: geometry, allowed: map[string][]int{}}
	e.lanes = make([]*LaneImpl, numLanes)
	for i := range e.lanes {
		e.lanes[i] = &LaneImpl{index: i, parent: e}
	}
	return e
}

// ID implements meso.Edge/meso.RoadEdge.
func (e *Edge) ID() string { return e.id }

// LaneCount implements meso.RoadEdge.
func (e *Edge) LaneCount() int { return len(e.lanes) }

// Successors implements meso.RoadEdge.
func (e *Edge) Successors() []meso.Edge { return e.succs }

// AllowedLanes implements meso.RoadEdge.
func (e *Edge) AllowedLanes(dest meso.Edge) []int {
	if dest == nil {
		return nil
	}
	return e.allowed[dest.ID()]
}

// Lane implements meso.RoadEdge.
func (e *Edge) Lane(i int) meso.Lane {
	if i < 0 || i >= len(e.lanes) {
		return nil
	}
	return e.lanes[i]
}

// Length returns the edge's real-world length in metres, computed from
// its geometry with a haversine great-circle sum when the geometry has
// at least two points, or 0 for a geometry-less synthetic edge (callers
// building synthetic networks should size Segments directly instead).
func (e *Edge) Length() float64 {
	if len(e.geometry) < 2 {
		return 0
	}
	return geo.LengthHaversign(e.geometry)
}

// Connect registers dest as a successor reachable from e via the given
// lane indices, and wires a Link on each of those lanes pointing at
// dest with the supplied priority/controller. Calling Connect for the
// same dest twice appends further permitted lanes rather than
// overwriting the earlier registration.
func (e *Edge) Connect(dest *Edge, viaLanes []int, hasPriority bool, controller Controller) error {
	for _, li := range viaLanes {
		if li < 0 || li >= len(e.lanes) {
			return fmt.Errorf("topology: edge %q has no lane %d to connect to %q", e.id, li, dest.ID())
		}
	}
	if _, ok := e.allowed[dest.ID()]; !ok {
		e.succs = append(e.succs, dest)
	}
	e.allowed[dest.ID()] = append(e.allowed[dest.ID()], viaLanes...)
	for _, li := range viaLanes {
		e.lanes[li].links = append(e.lanes[li].links, &LinkImpl{
			dest:        dest,
			hasPriority: hasPriority,
			controller:  controller,
		})
	}
	return nil
}

// LaneImpl is a concrete meso.Lane: one physical lane of an Edge,
// exposing the junction links reachable from it.
type LaneImpl struct {
	index  int
	parent *Edge
	links  []*LinkImpl
}

// Links implements meso.Lane.
func (l *LaneImpl) Links() []meso.Link {
	out := make([]meso.Link, len(l.links))
	for i, link := range l.links {
		out[i] = link
	}
	return out
}

// Controller is the junction-control predicate a Link delegates
// Opened to — a traffic-light/priority controller living entirely
// outside this package, consulted via an "is this link open?"
// predicate.
type Controller interface {
	Opened(eventTime simtime.Tick, speed, leaveSpeed, lengthWithGap,
		impatience, maxDecel float64, waitingTime simtime.Tick) bool
}

// AlwaysOpen is the trivial Controller for unsignalled, uncontrolled
// connections — every approach is admitted immediately.
type AlwaysOpen struct{}

// Opened implements Controller.
func (AlwaysOpen) Opened(simtime.Tick, float64, float64, float64, float64, float64, simtime.Tick) bool {
	return true
}

// LinkImpl is a concrete meso.Link.
type LinkImpl struct {
	dest        *Edge
	hasPriority bool
	controller  Controller

	approaching map[string]meso.Vehicle
}

// DestinationEdge implements meso.Link.
func (l *LinkImpl) DestinationEdge() meso.Edge { return l.dest }

// HasPriority implements meso.Link.
func (l *LinkImpl) HasPriority() bool { return l.hasPriority }

// Opened implements meso.Link.
func (l *LinkImpl) Opened(eventTime simtime.Tick, speed, leaveSpeed, lengthWithGap,
	impatience, maxDecel float64, waitingTime simtime.Tick) bool {
	if l.controller == nil {
		return true
	}
	return l.controller.Opened(eventTime, speed, leaveSpeed, lengthWithGap, impatience, maxDecel, waitingTime)
}

// RegisterApproaching implements meso.Link.
func (l *LinkImpl) RegisterApproaching(v meso.Vehicle) {
	if l.approaching == nil {
		l.approaching = map[string]meso.Vehicle{}
	}
	l.approaching[v.ID()] = v
}

// RemoveApproaching implements meso.Link.
func (l *LinkImpl) RemoveApproaching(v meso.Vehicle) {
	delete(l.approaching, v.ID())
}
