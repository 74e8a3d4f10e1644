package meso

import (
	"strconv"

	"github.com/kassenov/sumo/internal/simtime"
)

// Chain is an edge's ordered sequence of segments, each already wired
// to its next-segment pointer at construction. It is
// the lookup surface the scheduler and the limited-junction-control
// override use to go from "an edge" to "the segment that currently owns
// admission for it".
type Chain struct {
	edge     RoadEdge
	segments []*Segment
}

// NewChain lays out one segment per numSegments, splitting edge's total
// length evenly and wiring each segment's Next to the one after it
// (the last segment's Next is nil). tau* are the raw, not yet
// lane-divided, headway constants; NewSegment divides them internally.
func NewChain(edge RoadEdge, totalLength, speed float64, numSegments int,
	tauFF, tauFJ, tauJF, tauJJ simtime.Tick, jamThresh float64,
	multiQueue, junctionControl bool, sched Scheduler) (*Chain, error) {
	if numSegments < 1 {
		numSegments = 1
	}
	c := &Chain{edge: edge, segments: make([]*Segment, numSegments)}
	segLen := totalLength / float64(numSegments)

	for i := numSegments - 1; i >= 0; i-- {
		var next *Segment
		if i+1 < numSegments {
			next = c.segments[i+1]
		}
		seg, err := NewSegment(Params{
			ID:              edge.ID() + ":" + strconv.Itoa(i),
			Edge:            edge,
			Next:            next,
			Length:          segLen,
			Speed:           speed,
			Index:           i,
			TauFF:           tauFF,
			TauFJ:           tauFJ,
			TauJF:           tauJF,
			TauJJ:           tauJJ,
			JamThresh:       jamThresh,
			MultiQueue:      multiQueue,
			JunctionControl: junctionControl,
		}, sched)
		if err != nil {
			return nil, err
		}
		c.segments[i] = seg
	}
	return c, nil
}

// Edge is the parent road edge this chain partitions.
func (c *Chain) Edge() RoadEdge { return c.edge }

// Len is the number of segments in the chain.
func (c *Chain) Len() int { return len(c.segments) }

// At returns the i-th segment (0-indexed from the edge's start), or nil
// if i is out of range.
func (c *Chain) At(i int) *Segment {
	if i < 0 || i >= len(c.segments) {
		return nil
	}
	return c.segments[i]
}

// First is the entry segment vehicles depart onto.
func (c *Chain) First() *Segment { return c.At(0) }

// Last is the exit segment vehicles leave from onto a junction link.
func (c *Chain) Last() *Segment { return c.At(len(c.segments) - 1) }

// Network is a lookup table of chains keyed by edge identifier, giving
// the scheduler's GetSegmentForEdge its backing store.
type Network struct {
	chains map[string]*Chain
}

// NewNetwork builds an empty chain registry.
func NewNetwork() *Network {
	return &Network{chains: map[string]*Chain{}}
}

// AddChain registers c under its edge's identifier.
func (n *Network) AddChain(c *Chain) { n.chains[c.Edge().ID()] = c }

// ChainFor returns the chain for edge, or nil if unknown.
func (n *Network) ChainFor(edge Edge) *Chain {
	if edge == nil {
		return nil
	}
	return n.chains[edge.ID()]
}

// SegmentForEdge implements the Scheduler.GetSegmentForEdge contract
// directly against this registry: the first segment of edge's chain.
func (n *Network) SegmentForEdge(edge Edge) *Segment {
	c := n.ChainFor(edge)
	if c == nil {
		return nil
	}
	return c.First()
}

// AllSegments flattens every chain's segments, used by telemetry
// snapshots and benchmark sampling that need a full-network view.
func (n *Network) AllSegments() []*Segment {
	var out []*Segment
	for _, c := range n.chains {
		out = append(out, c.segments...)
	}
	return out
}
