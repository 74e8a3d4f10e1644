// Package scheduler implements meso.Scheduler with a container/heap
// min-heap of per-segment leader event times, the same shape as the
// discrete-event engines in the surrounding ecosystem (a priority queue
// of timestamped callbacks popped one at a time by a Run loop).
package scheduler

import (
	"container/heap"
	"fmt"
	"sync"

	"github.com/kassenov/sumo/internal/simtime"
	"github.com/kassenov/sumo/meso"
)

// leaderEntry is one scheduled leader: the vehicle currently governing
// when its segment must next be visited, plus the junction link (if
// any) it must cross to leave that segment.
type leaderEntry struct {
	vehicle meso.Vehicle
	link    meso.Link
	index   int
}

// leaderHeap is a container/heap.Interface ordered by vehicle event
// time, ascending — the next event to fire is always at index 0.
type leaderHeap []*leaderEntry

func (h leaderHeap) Len() int { return len(h) }
func (h leaderHeap) Less(i, j int) bool {
	return h[i].vehicle.EventTime() < h[j].vehicle.EventTime()
}
func (h leaderHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *leaderHeap) Push(x any) {
	e := x.(*leaderEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *leaderHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	e.index = -1
	return e
}

// EventLoop is the concrete meso.Scheduler: it owns the leader heap,
// the network's edge→chain lookup, and the simulation's current tick.
// Not safe for concurrent use from multiple goroutines — the telemetry
// and IPC packages only ever read through Segment accessors, never
// call into EventLoop directly, preserving the single-threaded
// event-loop contract.
type EventLoop struct {
	heap    leaderHeap
	byVeh   map[string]*leaderEntry
	network *meso.Network
	ctx     *meso.Context
	now     simtime.Tick

	mu sync.Mutex
}

// New builds an EventLoop bound to network for edge→segment lookups,
// dispatching re-entrant Receive calls with ctx (the shared RNG/config
// bundle every Segment method needs).
func New(network *meso.Network, ctx *meso.Context) *EventLoop {
	return &EventLoop{
		byVeh:   map[string]*leaderEntry{},
		network: network,
		ctx:     ctx,
	}
}

// AddLeaderCar implements meso.Scheduler.
func (e *EventLoop) AddLeaderCar(veh meso.Vehicle, link meso.Link) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry := &leaderEntry{vehicle: veh, link: link}
	e.byVeh[veh.ID()] = entry
	heap.Push(&e.heap, entry)
}

// RemoveLeaderCar implements meso.Scheduler.
func (e *EventLoop) RemoveLeaderCar(veh meso.Vehicle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.byVeh[veh.ID()]
	if !ok {
		return
	}
	delete(e.byVeh, veh.ID())
	if entry.index >= 0 && entry.index < len(e.heap) {
		heap.Remove(&e.heap, entry.index)
	}
}

// ChangeSegment implements meso.Scheduler: hand veh off to target at
// tick t, via target.Receive. For the vaporization sentinel, veh is
// first sent off its current segment; for nil (Drive has already sent
// it, or it arrived on receipt) the reference is simply dropped.
func (e *EventLoop) ChangeSegment(veh meso.Vehicle, t simtime.Tick, target *meso.Segment) {
	e.mu.Lock()
	e.now = t
	e.mu.Unlock()

	if target == meso.VaporizationTarget {
		if seg := veh.Segment(); seg != nil {
			if err := seg.Send(veh, target, t); err != nil {
				panic(fmt.Errorf("scheduler: vaporizing vehicle %q from segment %q: %w", veh.ID(), seg.ID(), err))
			}
		}
	}
	if target == nil || target == meso.VaporizationTarget {
		veh.SetSegment(nil)
		return
	}
	e.ctx.Tick = t
	if err := target.Receive(e.ctx, veh, t, false, false); err != nil {
		panic(fmt.Errorf("scheduler: receiving vehicle %q onto segment %q: %w", veh.ID(), target.ID(), err))
	}
}

// GetSegmentForEdge implements meso.Scheduler.
func (e *EventLoop) GetSegmentForEdge(edge meso.Edge) *meso.Segment {
	return e.network.SegmentForEdge(edge)
}

// GetCurrentTimeStep implements meso.Scheduler.
func (e *EventLoop) GetCurrentTimeStep() simtime.Tick {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

// Len reports how many leaders are currently scheduled, used by
// telemetry snapshots and by Run's termination check.
func (e *EventLoop) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.heap)
}

// Step pops the single earliest-event leader and calls fire with it,
// advancing the loop's notion of "now" to that leader's event time
// first. It reports false when the heap is empty.
func (e *EventLoop) Step(fire func(veh meso.Vehicle, link meso.Link, t simtime.Tick)) bool {
	e.mu.Lock()
	if len(e.heap) == 0 {
		e.mu.Unlock()
		return false
	}
	entry := heap.Pop(&e.heap).(*leaderEntry)
	delete(e.byVeh, entry.vehicle.ID())
	e.now = entry.vehicle.EventTime()
	t := e.now
	e.mu.Unlock()

	fire(entry.vehicle, entry.link, t)
	return true
}

// Run drives Step in a loop until the heap is empty or the next
// leader's event time exceeds until, whichever comes first.
func (e *EventLoop) Run(until simtime.Tick, fire func(veh meso.Vehicle, link meso.Link, t simtime.Tick)) {
	for {
		e.mu.Lock()
		empty := len(e.heap) == 0
		next := simtime.Max
		if !empty {
			next = e.heap[0].vehicle.EventTime()
		}
		e.mu.Unlock()
		if empty || next > until {
			return
		}
		if !e.Step(fire) {
			return
		}
	}
}
