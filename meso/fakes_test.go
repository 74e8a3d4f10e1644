package meso

import "github.com/kassenov/sumo/internal/simtime"

// fakeEdge is the minimal RoadEdge a segment test needs: identity, a
// fixed lane count, and a closed set of successors/allowed lanes.
type fakeEdge struct {
	id        string
	lanes     int
	succs     []Edge
	allowed   map[string][]int
}

func (e *fakeEdge) ID() string         { return e.id }
func (e *fakeEdge) LaneCount() int     { return e.lanes }
func (e *fakeEdge) Successors() []Edge { return e.succs }
func (e *fakeEdge) AllowedLanes(dest Edge) []int {
	if e.allowed == nil {
		return nil
	}
	return e.allowed[dest.ID()]
}
func (e *fakeEdge) Lane(i int) Lane { return nil }

// fakeScheduler records AddLeaderCar/RemoveLeaderCar/ChangeSegment
// calls so tests can assert on the scheduler contract without a real
// event loop.
type fakeScheduler struct {
	now       simtime.Tick
	leaders   map[string]bool
	changed   []changeCall
	bySegment map[string]*Segment
}

type changeCall struct {
	vehID  string
	t      simtime.Tick
	target *Segment
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{leaders: map[string]bool{}, bySegment: map[string]*Segment{}}
}

func (f *fakeScheduler) AddLeaderCar(veh Vehicle, link Link) { f.leaders[veh.ID()] = true }
func (f *fakeScheduler) RemoveLeaderCar(veh Vehicle)         { delete(f.leaders, veh.ID()) }
func (f *fakeScheduler) ChangeSegment(veh Vehicle, t simtime.Tick, target *Segment) {
	f.changed = append(f.changed, changeCall{vehID: veh.ID(), t: t, target: target})
}
func (f *fakeScheduler) GetSegmentForEdge(edge Edge) *Segment {
	if edge == nil {
		return nil
	}
	return f.bySegment[edge.ID()]
}
func (f *fakeScheduler) GetCurrentTimeStep() simtime.Tick { return f.now }

// fakeVehicle is a self-contained VehicleFacade implementation driven
// entirely by field assignment, matching the narrow contract of
// meso.Vehicle without pulling in any routing or car-following logic.
type fakeVehicle struct {
	id          string
	typ         VehicleType
	speed       float64
	speedFactor float64
	impatience  float64
	waiting     simtime.Tick

	eventTime     simtime.Tick
	lastEntryTime simtime.Tick
	queueIndex    int
	blockTime     simtime.Tick

	segment *Segment
	route   []Edge
	routePos int
	arrived bool
	stop    simtime.Tick

	reminders []Reminder
	notified  []NotifyReason
}

func newFakeVehicle(id string) *fakeVehicle {
	return &fakeVehicle{
		id:          id,
		typ:         DefaultVehicleType,
		speed:       10,
		speedFactor: 1,
		blockTime:   simtime.Max,
	}
}

func (v *fakeVehicle) ID() string             { return v.id }
func (v *fakeVehicle) Type() VehicleType      { return v.typ }
func (v *fakeVehicle) Speed() float64         { return v.speed }
func (v *fakeVehicle) SpeedFactor() float64   { return v.speedFactor }
func (v *fakeVehicle) Impatience() float64    { return v.impatience }
func (v *fakeVehicle) WaitingTime() simtime.Tick { return v.waiting }

func (v *fakeVehicle) EventTime() simtime.Tick { return v.eventTime }
func (v *fakeVehicle) SetEventTime(t simtime.Tick, slow bool) { v.eventTime = t }

func (v *fakeVehicle) LastEntryTime() simtime.Tick        { return v.lastEntryTime }
func (v *fakeVehicle) SetLastEntryTime(t simtime.Tick)     { v.lastEntryTime = t }

func (v *fakeVehicle) QueueIndex() int      { return v.queueIndex }
func (v *fakeVehicle) SetQueueIndex(i int)  { v.queueIndex = i }

func (v *fakeVehicle) BlockTime() simtime.Tick    { return v.blockTime }
func (v *fakeVehicle) SetBlockTime(t simtime.Tick) { v.blockTime = t }

func (v *fakeVehicle) SetSegment(seg *Segment) { v.segment = seg }
func (v *fakeVehicle) Segment() *Segment       { return v.segment }

func (v *fakeVehicle) SuccEdge(k int) Edge {
	i := v.routePos + k
	if i < 0 || i >= len(v.route) {
		return nil
	}
	return v.route[i]
}

func (v *fakeVehicle) MoveRoutePointer() bool {
	v.routePos++
	return v.routePos >= len(v.route)
}

func (v *fakeVehicle) HasArrived() bool { return v.arrived }

func (v *fakeVehicle) StopTime(seg *Segment) simtime.Tick { return v.stop }

func (v *fakeVehicle) ConservativeSpeed(earliestExit *simtime.Tick) float64 {
	*earliestExit += simtime.FromSeconds(1)
	return v.speed
}

func (v *fakeVehicle) AddReminder(d Reminder) { v.reminders = append(v.reminders, d) }
func (v *fakeVehicle) RemoveReminder(d Reminder) {
	for i, r := range v.reminders {
		if r == d {
			v.reminders = append(v.reminders[:i], v.reminders[i+1:]...)
			return
		}
	}
}
func (v *fakeVehicle) ActivateReminders(reason NotifyReason) {
	v.notified = append(v.notified, reason)
}
func (v *fakeVehicle) UpdateDetectors(t simtime.Tick, leaving bool, reason NotifyReason) {
	v.notified = append(v.notified, reason)
}
func (v *fakeVehicle) UpdateDetectorForWriting(d Reminder, now, exitTime simtime.Tick) {}

// fakeReminder counts Notify calls and records the last exit time it
// was given, enough for detector-lifecycle assertions.
type fakeReminder struct {
	notifyCount int
	lastExit    simtime.Tick
}

func (r *fakeReminder) Notify(now, exitTime simtime.Tick) {
	r.notifyCount++
	r.lastExit = exitTime
}
