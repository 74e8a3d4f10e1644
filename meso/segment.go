package meso

import (
	"math"

	"github.com/kassenov/sumo/internal/simtime"
)

// queue is one FIFO vehicle queue plus the block time co-indexed with
// it. Index 0 holds the most recently received vehicle; the last element
// is the leader — the next vehicle to leave.
type queue struct {
	cars      []Vehicle
	blockTime simtime.Tick
}

// Segment is a single mesoscopic cell, the core unit this engine
// simulates. It holds
// one or more FIFO vehicle queues, the headway/capacity parameters
// derived at construction, the jam threshold, and the cached mean speed.
// Segments never own the vehicles they queue — every Vehicle is a
// borrowed facade supplied by the out-of-scope vehicle/routing layer.
type Segment struct {
	id   string
	edge RoadEdge
	next *Segment

	length               float64
	lengthGeometryFactor float64
	maxSpeed             float64
	index                int

	tauFF, tauFJ, tauJF, tauJJ simtime.Tick
	headwayCapacity            float64
	capacity                  float64
	occupancy                 float64
	jamThreshold              float64

	junctionControl bool
	entryBlockTime  simtime.Tick

	queues      []*queue
	followerMap map[string][]int

	meanSpeed           float64
	lastMeanSpeedUpdate simtime.Tick
	meanSpeedValid      bool

	detectors DetectorBus

	sched Scheduler
}

// Params bundles the construction-time inputs a Segment needs, kept
// together so NewSegment's signature does not balloon to fifteen
// positional arguments.
type Params struct {
	ID                   string
	Edge                 RoadEdge
	Next                 *Segment
	Length               float64
	Speed                float64
	Index                int
	TauFF, TauFJ, TauJF, TauJJ simtime.Tick
	JamThresh            float64
	MultiQueue           bool
	JunctionControl      bool
	LengthGeometryFactor float64
}

// NewSegment builds a Segment: the four raw headway constants are
// divided by lane count, capacity and headway capacity are derived
// from length and lane count, a single queue always exists, and —
// only when multi-queue is requested, the edge has more than one
// lane, and the edge has more than one successor — one queue per lane
// is created along with the successor→queue-indices follower map.
func NewSegment(p Params, sched Scheduler) (*Segment, error) {
	lanes := p.Edge.LaneCount()
	if lanes < 1 {
		lanes = 1
	}
	s := &Segment{
		id:                   p.ID,
		edge:                 p.Edge,
		next:                 p.Next,
		length:               p.Length,
		lengthGeometryFactor: p.LengthGeometryFactor,
		maxSpeed:             p.Speed,
		index:                p.Index,
		tauFF:                p.TauFF / simtime.Tick(lanes),
		tauFJ:                p.TauFJ / simtime.Tick(lanes),
		tauJF:                p.TauJF / simtime.Tick(lanes),
		tauJJ:                p.TauJJ / simtime.Tick(lanes),
		headwayCapacity:      p.Length / 7.5 * float64(lanes),
		capacity:             p.Length * float64(lanes),
		junctionControl:      p.JunctionControl,
		entryBlockTime:       simtime.Min,
		followerMap:          map[string][]int{},
		meanSpeed:            p.Speed,
		sched:                sched,
	}
	s.queues = append(s.queues, &queue{blockTime: 0})

	if p.MultiQueue && lanes > 1 {
		successors := p.Edge.Successors()
		if len(successors) > 1 {
			for len(s.queues) < lanes {
				s.queues = append(s.queues, &queue{blockTime: 0})
			}
			for _, succ := range successors {
				allowed := p.Edge.AllowedLanes(succ)
				if len(allowed) == 0 {
					return nil, &TopologyInconsistencyError{
						EdgeID: p.Edge.ID(),
						Detail: "AllowedLanes returned no lanes for successor " + succ.ID(),
					}
				}
				s.followerMap[succ.ID()] = allowed
			}
		}
	}

	s.recomputeJamThreshold(p.JamThresh)
	return s, nil
}

// ID is the segment's stable identifier.
func (s *Segment) ID() string { return s.id }

// Index is this segment's 0-based position within its parent edge.
func (s *Segment) Index() int { return s.index }

// Occupancy is the current aggregate length-units occupied.
func (s *Segment) Occupancy() float64 { return s.occupancy }

// Capacity is the maximum aggregate length-units this segment can hold.
func (s *Segment) Capacity() float64 { return s.capacity }

// Free reports the free/jam regime, always recomputed from current
// occupancy rather than cached.
func (s *Segment) Free() bool { return s.occupancy <= s.jamThreshold }

// CarCount is the total number of queued vehicles across all queues.
func (s *Segment) CarCount() int {
	total := 0
	for _, q := range s.queues {
		total += len(q.cars)
	}
	return total
}

// recomputeJamThreshold applies the three-way jam-threshold rule:
// leave it alone, derive it from free-flow speed, or scale it from
// capacity.
func (s *Segment) recomputeJamThreshold(jamThresh float64) {
	switch {
	case jamThresh == DoNotPatchJamThreshold:
		return
	case jamThresh < 0:
		s.jamThreshold = s.jamThresholdForSpeed(s.maxSpeed)
	default:
		s.jamThreshold = jamThresh * s.capacity
	}
}

// jamThresholdForSpeed estimates as many default-sized vehicles as
// could enter at free-flow spacing before the first one leaves.
func (s *Segment) jamThresholdForSpeed(speed float64) float64 {
	tauFFSeconds := simtime.ToSeconds(s.tauFF)
	if tauFFSeconds <= 0 {
		tauFFSeconds = 1
	}
	n := math.Ceil(s.length / (simtime.ClampSpeed(speed) * tauFFSeconds))
	return n * DefaultVehicleType.LengthWithGap()
}

// HasSpaceFor is the admission rule a caller checks before inserting
// a vehicle onto this segment.
func (s *Segment) HasSpaceFor(veh Vehicle, entryTime simtime.Tick, init bool) bool {
	if s.occupancy == 0 {
		return true
	}
	newOcc := s.occupancy + veh.Type().LengthWithGap()
	if newOcc > s.capacity {
		return false
	}
	if init {
		return newOcc <= s.jamThresholdForSpeed(s.MeanSpeed(false))
	}
	return entryTime >= s.entryBlockTime
}

// RouteChecker is an optional capability a Vehicle may implement to let
// Initialise enforce a RouteInvalid check after insertion. It is
// deliberately kept out of the core Vehicle interface — route validity
// is a property of the out-of-scope routing/vehicle-catalogue layer,
// not something this engine needs for any purpose other than this one
// optional check.
type RouteChecker interface {
	HasValidRoute() (ok bool, detail string)
}

// Initialise is the depart-time entry point: admits veh if there is
// room, and — when ctx.CheckRoutes is set and veh implements
// RouteChecker — verifies the route is still valid after insertion
// (insertion may have changed it, e.g. via a routing device).
func (s *Segment) Initialise(ctx *Context, veh Vehicle, t simtime.Tick) (bool, error) {
	if !s.HasSpaceFor(veh, t, true) {
		return false, nil
	}
	if err := s.Receive(ctx, veh, t, true, false); err != nil {
		return false, err
	}
	if ctx.CheckRoutes {
		if rc, ok := veh.(RouteChecker); ok {
			if valid, detail := rc.HasValidRoute(); !valid {
				return false, &RouteInvalidError{VehicleID: veh.ID(), Detail: detail}
			}
		}
	}
	return true, nil
}

// Receive admits veh onto this segment at time t. A vehicle that does
// not overtake is inserted at index 0, behind every queued vehicle, and
// leaves no earlier than tauFF after the vehicle previously at index 0;
// an overtaking vehicle is inserted at index 1 instead.
func (s *Segment) Receive(ctx *Context, veh Vehicle, t simtime.Tick, isDepart, afterTeleport bool) error {
	prevSpeed := -1.0
	if !isDepart {
		prevSpeed = veh.Speed()
	}
	veh.SetSegment(s)
	veh.SetLastEntryTime(t)
	veh.SetBlockTime(simtime.Max)

	if !isDepart && ((s.index == 0 || afterTeleport) && veh.MoveRoutePointer() || veh.HasArrived()) {
		veh.SetEventTime(t+simtime.FromSeconds(s.length/simtime.ClampSpeed(prevSpeed)), false)
		s.detectors.attachAll(veh)
		veh.ActivateReminders(NotifyJunction)
		s.notifyLeave(veh, t, nil)
		s.sched.ChangeSegment(veh, t, nil)
		return nil
	}

	maxSpeedOnEdge := veh.SpeedFactor() * s.maxSpeed
	uspeed := simtime.ClampSpeed(math.Min(maxSpeedOnEdge, veh.Type().MaxSpeed))

	qIdx := s.selectQueueIndex(veh)
	q := s.queues[qIdx]

	tleave := simtime.Max2(t+simtime.FromSeconds(s.length/uspeed)+veh.StopTime(s), q.blockTime)

	var newLeader Vehicle
	if len(q.cars) == 0 {
		q.cars = append(q.cars, veh)
		newLeader = veh
	} else {
		leaderOut := q.cars[0].EventTime()
		if !isDepart && leaderOut > tleave && s.overtake(ctx) {
			if len(q.cars) == 1 {
				s.sched.RemoveLeaderCar(q.cars[0])
				newLeader = veh
			}
			q.cars = append(q.cars, nil)
			copy(q.cars[2:], q.cars[1:])
			q.cars[1] = veh
		} else {
			tleave = simtime.Max2(leaderOut+s.tauFF, tleave)
			q.cars = append(q.cars, nil)
			copy(q.cars[1:], q.cars)
			q.cars[0] = veh
		}
	}

	if !isDepart {
		s.entryBlockTime = t + s.tauFF - 1
	}

	slow := tleave > t+simtime.FromSeconds(s.length/maxSpeedOnEdge)
	veh.SetEventTime(tleave, slow)
	veh.SetQueueIndex(qIdx)
	s.occupancy = math.Min(s.capacity, s.occupancy+veh.Type().LengthWithGap())

	s.detectors.attachAll(veh)
	switch {
	case isDepart:
		veh.ActivateReminders(NotifyDeparted)
	case s.index == 0 || afterTeleport:
		veh.ActivateReminders(NotifyJunction)
	default:
		veh.ActivateReminders(NotifySegment)
	}

	if newLeader != nil {
		s.sched.AddLeaderCar(newLeader, s.linkFor(newLeader))
	}
	return nil
}

// selectQueueIndex defaults to queue 0, or — when multi-queue and the
// follower map names the next route edge — the permitted queue with
// the fewest cars (ties keep the first-listed candidate).
func (s *Segment) selectQueueIndex(veh Vehicle) int {
	if len(s.queues) <= 1 {
		return 0
	}
	succ := veh.SuccEdge(1)
	if succ == nil {
		return 0
	}
	indices, ok := s.followerMap[succ.ID()]
	if !ok || len(indices) == 0 {
		return 0
	}
	best := indices[0]
	for _, idx := range indices[1:] {
		if len(s.queues[idx].cars) < len(s.queues[best].cars) {
			best = idx
		}
	}
	return best
}

// overtake decides whether a blocked vehicle may cut in ahead of its
// own queue's leader, weighted against how full the segment already is.
func (s *Segment) overtake(ctx *Context) bool {
	if !ctx.OvertakingEnabled || s.capacity <= s.length {
		return false
	}
	return ctx.RNG.Float64() > s.occupancy/s.capacity
}

// notifyLeave fires the detector-on-leave notification with the reason
// derived from what next is: nil, the vaporization sentinel, or a
// real downstream segment.
func (s *Segment) notifyLeave(veh Vehicle, t simtime.Tick, next *Segment) {
	var reason NotifyReason
	switch {
	case next == nil:
		reason = NotifyArrived
	case next == VaporizationTarget:
		reason = NotifyVaporized
	case s.next == nil:
		reason = NotifyJunction
	default:
		reason = NotifySegment
	}
	veh.UpdateDetectors(t, true, reason)
}

// removeCar drops veh out of its queue and shrinks occupancy (floored
// at zero). The leader of a queue is always its last element (a
// non-overtaking insert puts the newest vehicle at index 0 and pushes
// older vehicles toward the highest index, where the next to leave
// sits); removeCar only ever
// promotes a new leader when veh itself was that last element, and
// reports nil when veh was not the leader or no vehicle remains.
func (s *Segment) removeCar(veh Vehicle) Vehicle {
	s.occupancy = math.Max(0, s.occupancy-veh.Type().LengthWithGap())
	q := s.queues[veh.QueueIndex()]
	wasLeader := len(q.cars) > 0 && q.cars[len(q.cars)-1] == veh
	for i, c := range q.cars {
		if c == veh {
			q.cars = append(q.cars[:i], q.cars[i+1:]...)
			break
		}
	}
	if !wasLeader || len(q.cars) == 0 {
		return nil
	}
	return q.cars[len(q.cars)-1]
}

// Send moves veh off this segment at time t, onto next (nil for
// arrival/removal, VaporizationTarget for vaporization, or a real
// downstream Segment). When veh is its queue's leader it is
// deregistered from the scheduler and the vehicle behind it, if any, is
// registered in its place.
func (s *Segment) Send(veh Vehicle, next *Segment, t simtime.Tick) error {
	q := s.queues[veh.QueueIndex()]
	if !isInvalid(next) && t < q.blockTime {
		return newPreconditionViolation("Send", "t precedes blockTime for this queue")
	}
	queued := false
	for _, c := range q.cars {
		if c == veh {
			queued = true
			break
		}
	}
	if !queued {
		return newPreconditionViolation("Send", "vehicle is not queued on this segment")
	}
	if q.cars[len(q.cars)-1] == veh {
		s.sched.RemoveLeaderCar(veh)
	}

	if link := s.linkFor(veh); link != nil {
		link.RemoveApproaching(veh)
	}

	free := s.Free()
	lc := s.removeCar(veh)
	s.notifyLeave(veh, t, next)

	q.blockTime = t
	if !isInvalid(next) {
		q.blockTime += next.timeHeadway(free)
	}

	if lc != nil {
		lc.SetEventTime(simtime.Max2(lc.EventTime(), q.blockTime), false)
		s.sched.AddLeaderCar(lc, s.linkFor(lc))
	}
	return nil
}

// timeHeadway is the regime-dependent minimum gap between successive
// exits off this segment.
func (s *Segment) timeHeadway(predecessorFree bool) simtime.Tick {
	self := s.Free()
	switch {
	case predecessorFree && self:
		return s.tauFF
	case predecessorFree && !self:
		return s.tauFJ
	case !predecessorFree && self:
		return s.tauJF
	default:
		b := simtime.Tick(s.headwayCapacity * float64(s.tauJF-s.tauJJ))
		return s.tauJJ*simtime.Tick(s.CarCount()) + b
	}
}

// NextInsertionTime is a conservative estimate of when a vehicle not
// yet assigned a queue could next enter.
func (s *Segment) NextInsertionTime(earliestEntry simtime.Tick) simtime.Tick {
	earliestLeave := earliestEntry
	for _, q := range s.queues {
		earliestLeave = simtime.Max2(earliestLeave, q.blockTime)
	}
	return simtime.Max3(earliestEntry, earliestLeave-simtime.FromSeconds(s.length/s.maxSpeed), s.entryBlockTime)
}

// linkFor looks up the junction link a vehicle would cross leaving
// this segment; when junction control is off, there is no link to
// consult.
func (s *Segment) linkFor(veh Vehicle) Link {
	if !s.junctionControl {
		return nil
	}
	nextEdge := veh.SuccEdge(1)
	if nextEdge == nil {
		return nil
	}
	if lane := s.edge.Lane(veh.QueueIndex()); lane != nil {
		for _, l := range lane.Links() {
			if l.DestinationEdge() != nil && l.DestinationEdge().ID() == nextEdge.ID() {
				return l
			}
		}
	}
	for i := 0; i < s.edge.LaneCount(); i++ {
		if i == veh.QueueIndex() {
			continue
		}
		lane := s.edge.Lane(i)
		if lane == nil {
			continue
		}
		for _, l := range lane.Links() {
			if l.DestinationEdge() != nil && l.DestinationEdge().ID() == nextEdge.ID() {
				return l
			}
		}
	}
	return nil
}

// IsOpen reports whether veh may currently cross the junction link at
// the end of this segment.
func (s *Segment) IsOpen(ctx *Context, veh Vehicle) bool {
	link := s.linkFor(veh)
	if link == nil {
		return true
	}
	if link.HasPriority() || s.limitedControlOverride(ctx, link) {
		return true
	}
	return link.Opened(veh.EventTime(), veh.Speed(), veh.Speed(),
		veh.Type().LengthWithGap(), veh.Impatience(),
		veh.Type().CarFollow.MaxDecel, veh.WaitingTime())
}

// limitedControlOverride lets a vehicle through regardless of signal
// state when the downstream segment is well under half its jam
// threshold, the "limited junction control" relief valve.
func (s *Segment) limitedControlOverride(ctx *Context, link Link) bool {
	if !ctx.LimitedJunctionControl {
		return false
	}
	dest := link.DestinationEdge()
	if dest == nil {
		return false
	}
	target := s.sched.GetSegmentForEdge(dest)
	if target == nil {
		return false
	}
	return target.occupancy*2 < target.jamThreshold
}

// MeanSpeed is the average speed credited across every queued vehicle,
// optionally reusing the last value computed this tick.
func (s *Segment) MeanSpeed(useCache bool) float64 {
	if useCache && s.meanSpeedValid && s.sched != nil && s.sched.GetCurrentTimeStep() == s.lastMeanSpeedUpdate {
		return s.meanSpeed
	}
	now := simtime.Tick(0)
	if s.sched != nil {
		now = s.sched.GetCurrentTimeStep()
	}
	s.lastMeanSpeedUpdate = now
	s.meanSpeedValid = true

	tau := s.tauFF
	if !s.Free() {
		tau = s.tauJF
	}

	var total float64
	count := 0
	for _, q := range s.queues {
		earliestExit := now
		count += len(q.cars)
		for i := len(q.cars) - 1; i >= 0; i-- {
			total += q.cars[i].ConservativeSpeed(&earliestExit)
			earliestExit += tau
		}
	}
	if count == 0 {
		s.meanSpeed = s.maxSpeed
	} else {
		s.meanSpeed = total / float64(count)
	}
	return s.meanSpeed
}

// Flow is the vehicles-per-hour throughput estimate for this segment.
func (s *Segment) Flow() float64 {
	return 3600 * float64(s.CarCount()) * s.MeanSpeed(true) / s.length
}

// EventTime is the earliest leader event time across all non-empty
// queues, or -1 if the segment is empty. A queue's leader is its last
// element, not its first.
func (s *Segment) EventTime() simtime.Tick {
	result := simtime.Max
	found := false
	for _, q := range s.queues {
		if n := len(q.cars); n > 0 && q.cars[n-1].EventTime() < result {
			result = q.cars[n-1].EventTime()
			found = true
		}
	}
	if found {
		return result
	}
	return -1
}

// newArrival recomputes a vehicle's exit time after a speed change,
// crediting it for the distance already covered at its old speed.
func newArrival(v Vehicle, newSpeed float64, currentTime simtime.Tick, length float64) simtime.Tick {
	pos := math.Min(length, simtime.ToSeconds(currentTime-v.LastEntryTime())*v.Speed())
	remaining := simtime.FromSeconds((length - pos) / simtime.ClampSpeed(newSpeed))
	return currentTime + simtime.Max2(remaining, 1)
}

// setSpeedForQueue recomputes exit times after a speed change: the
// leader (the last element of the queue) is recomputed and (if its
// event time changed) re-registered with the scheduler so the event
// heap reorders; every other vehicle is recomputed back-to-front —
// from the one just behind the leader down to the one at index 0 —
// but never re-registered, since only leaders are ever scheduled.
func (s *Segment) setSpeedForQueue(ctx *Context, newSpeed float64, t simtime.Tick, q *queue) {
	n := len(q.cars)
	leader := q.cars[n-1]
	leader.UpdateDetectors(t, false, NotifySegment)
	newEvent := simtime.Max2(newArrival(leader, newSpeed, t, s.length), q.blockTime)
	if leader.EventTime() != newEvent {
		s.sched.RemoveLeaderCar(leader)
		leader.SetEventTime(newEvent, false)
		s.sched.AddLeaderCar(leader, s.linkFor(leader))
	}
	prevEvent := newEvent
	for i := n - 2; i >= 0; i-- {
		v := q.cars[i]
		v.UpdateDetectors(t, false, NotifySegment)
		prevEvent = simtime.Max2(newArrival(v, newSpeed, t, s.length), prevEvent+s.tauFF)
		v.SetEventTime(prevEvent, false)
	}
}

// SetSpeed changes this segment's free-flow speed, recomputing the
// jam threshold and every queued vehicle's exit time.
func (s *Segment) SetSpeed(ctx *Context, newSpeed float64, t simtime.Tick, jamThresh float64) {
	if s.maxSpeed == newSpeed {
		return
	}
	s.maxSpeed = newSpeed
	s.recomputeJamThreshold(jamThresh)
	for _, q := range s.queues {
		if len(q.cars) != 0 {
			s.setSpeedForQueue(ctx, newSpeed, t, q)
		}
	}
}

// VaporizeAnyCar hands the vehicle at index 0 (the most recent arrival)
// of the first non-empty queue to the scheduler's ChangeSegment hop to
// VaporizationTarget, deregistering it as leader first when it is the
// only vehicle in its queue, and reports whether a vehicle was found.
func (s *Segment) VaporizeAnyCar(t simtime.Tick) bool {
	for _, q := range s.queues {
		if len(q.cars) == 0 {
			continue
		}
		victim := q.cars[0]
		if len(q.cars) == 1 {
			s.sched.RemoveLeaderCar(victim)
		}
		s.sched.ChangeSegment(victim, t, VaporizationTarget)
		return true
	}
	return false
}

// AddDetector registers a reminder against every vehicle currently
// queued on this segment.
func (s *Segment) AddDetector(d Reminder) { s.detectors.Add(d, s) }

// RemoveDetector unregisters a reminder from every vehicle currently
// queued on this segment.
func (s *Segment) RemoveDetector(d Reminder) { s.detectors.Remove(d, s) }

// PrepareDetectorForWriting primes d with the exit times already
// committed for vehicles currently queued on this segment.
func (s *Segment) PrepareDetectorForWriting(d Reminder, now simtime.Tick) {
	s.detectors.PrepareForWriting(d, s, now)
}

// Next is the segment's next-segment linkage (nil if this is the last
// segment of its edge).
func (s *Segment) Next() *Segment { return s.next }

// Length is the segment's geometric length in metres.
func (s *Segment) Length() float64 { return s.length }

// MaxSpeed is the segment's current free-flow speed in m/s.
func (s *Segment) MaxSpeed() float64 { return s.maxSpeed }

// QueueLength reports how many vehicles are queued in queue q.
func (s *Segment) QueueLength(q int) int { return len(s.queues[q].cars) }

// QueueCount is the number of queues this segment maintains.
func (s *Segment) QueueCount() int { return len(s.queues) }

// BlockTime reports queue q's current block time.
func (s *Segment) BlockTime(q int) simtime.Tick { return s.queues[q].blockTime }
