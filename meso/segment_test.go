package meso

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kassenov/sumo/internal/simtime"
)

// fixedRand always returns the configured value from Float64, letting
// overtake() tests pin the otherwise probabilistic draw.
type fixedRand float64

func (f fixedRand) Float64() float64 { return float64(f) }

func newTestContext(cfg Config) *Context {
	return &Context{Config: cfg, RNG: fixedRand(0)}
}

func oneLaneSegment(t *testing.T, sched Scheduler, tauFF simtime.Tick, junctionControl bool) *Segment {
	edge := &fakeEdge{id: "e0", lanes: 1}
	seg, err := NewSegment(Params{
		ID: "e0:0", Edge: edge, Length: 100, Speed: 25,
		TauFF: tauFF, TauFJ: tauFF, TauJF: tauFF, TauJJ: tauFF,
		JamThresh: -1, JunctionControl: junctionControl,
	}, sched)
	require.NoError(t, err)
	return seg
}

// S1: single-segment free flow.
func TestReceiveDepartFreeFlow(t *testing.T) {
	t.Parallel()
	sched := newFakeScheduler()
	seg := oneLaneSegment(t, sched, simtime.FromSeconds(1), false)
	ctx := newTestContext(Config{})

	v := newFakeVehicle("v1")
	require.NoError(t, seg.Receive(ctx, v, 0, true, false))

	assert.Equal(t, 7.5, seg.Occupancy())
	assert.Equal(t, simtime.FromSeconds(4), v.EventTime())
	assert.Equal(t, simtime.Tick(0), seg.BlockTime(0))
	assert.True(t, sched.leaders["v1"])
}

// S2: jam-regime headway law.
func TestTimeHeadwayJamPropagation(t *testing.T) {
	t.Parallel()
	sched := newFakeScheduler()
	edge := &fakeEdge{id: "e0", lanes: 1}
	seg, err := NewSegment(Params{
		ID: "e0:0", Edge: edge, Length: 100, Speed: 25,
		TauFF: simtime.FromSeconds(1), TauFJ: simtime.FromSeconds(1),
		TauJF: simtime.FromSeconds(2), TauJJ: simtime.FromSeconds(3),
		JamThresh: -1,
	}, sched)
	require.NoError(t, err)

	seg.occupancy = seg.capacity // force jammed (free() false)
	for i := 0; i < 10; i++ {
		seg.queues[0].cars = append(seg.queues[0].cars, newFakeVehicle("filler"))
	}

	got := seg.timeHeadway(false)
	want := simtime.FromSeconds(16.666666666666664)
	assert.InDelta(t, float64(want), float64(got), 2)
}

// S3: overtaking inserts the incoming vehicle at index 1, ahead of the
// car at index 0; with a single car queued that makes the incoming
// vehicle the last element, so it replaces that car as leader.
func TestReceiveOvertakingInsertsSecond(t *testing.T) {
	t.Parallel()
	sched := newFakeScheduler()
	edge := &fakeEdge{id: "e0", lanes: 2}
	seg, err := NewSegment(Params{
		ID: "e0:0", Edge: edge, Length: 100, Speed: 25,
		TauFF: simtime.FromSeconds(1), TauFJ: simtime.FromSeconds(1),
		TauJF: simtime.FromSeconds(1), TauJJ: simtime.FromSeconds(1),
		JamThresh: -1,
	}, sched)
	require.NoError(t, err)
	seg.capacity = 200
	seg.occupancy = 50

	leader := newFakeVehicle("leader")
	leader.eventTime = simtime.FromSeconds(20)
	seg.queues[0].cars = append(seg.queues[0].cars, leader)
	sched.leaders["leader"] = true

	incoming := newFakeVehicle("incoming")
	incoming.speed = 10
	incoming.route = []Edge{edge, &fakeEdge{id: "e1", lanes: 1}}
	incoming.routePos = 0

	ctx := &Context{Config: Config{OvertakingEnabled: true}, RNG: fixedRand(0.9)}
	require.NoError(t, seg.Receive(ctx, incoming, simtime.FromSeconds(6), false, false))

	if assert.Len(t, seg.queues[0].cars, 2) {
		assert.Equal(t, "leader", seg.queues[0].cars[0].ID(), "overtaking inserts at index 1, not at index 0")
		assert.Equal(t, "incoming", seg.queues[0].cars[1].ID())
	}
	assert.False(t, sched.leaders["leader"], "the demoted front car is deregistered as leader")
	assert.True(t, sched.leaders["incoming"], "the overtaking vehicle, now the last element, becomes scheduler leader")
}

// S4: admission at saturation, with the single-vehicle guarantee.
func TestHasSpaceForSaturation(t *testing.T) {
	t.Parallel()
	sched := newFakeScheduler()
	seg := oneLaneSegment(t, sched, simtime.FromSeconds(1), false)
	seg.capacity = 10
	seg.occupancy = 9

	big := newFakeVehicle("big")
	big.typ = VehicleType{Length: 5, MinGap: 2.5}
	assert.False(t, seg.HasSpaceFor(big, 0, false))

	seg.occupancy = 0
	assert.True(t, seg.HasSpaceFor(big, 0, false))
}

// S5: vaporizeAnyCar hands the vehicle at index 0 of the first non-empty
// queue to the scheduler's ChangeSegment with VaporizationTarget.
func TestVaporizeAnyCar(t *testing.T) {
	t.Parallel()
	sched := newFakeScheduler()
	edge := &fakeEdge{id: "e0", lanes: 2}
	seg, err := NewSegment(Params{
		ID: "e0:0", Edge: edge, Length: 100, Speed: 25,
		TauFF: simtime.FromSeconds(1), TauFJ: simtime.FromSeconds(1),
		TauJF: simtime.FromSeconds(1), TauJJ: simtime.FromSeconds(1),
		JamThresh: -1,
	}, sched)
	require.NoError(t, err)
	seg.queues = append(seg.queues, &queue{})

	a := newFakeVehicle("a")
	seg.queues[0].cars = []Vehicle{a}
	b, c := newFakeVehicle("b"), newFakeVehicle("c")
	seg.queues[1].cars = []Vehicle{b, c}

	removed := seg.VaporizeAnyCar(100)
	assert.True(t, removed)
	require.Len(t, sched.changed, 1)
	assert.Equal(t, "a", sched.changed[0].vehID)
	assert.Equal(t, VaporizationTarget, sched.changed[0].target)
}

// S6: a speed change re-registers the leader so the scheduler reorders.
func TestSetSpeedReordersLeader(t *testing.T) {
	t.Parallel()
	sched := newFakeScheduler()
	seg := oneLaneSegment(t, sched, simtime.FromSeconds(1), false)

	leader := newFakeVehicle("leader")
	leader.eventTime = simtime.FromSeconds(100)
	leader.lastEntryTime = 0
	leader.speed = 25
	seg.queues[0].cars = []Vehicle{leader}
	sched.leaders["leader"] = true

	ctx := newTestContext(Config{})
	seg.SetSpeed(ctx, seg.maxSpeed/2, 0, DoNotPatchJamThreshold)

	assert.True(t, sched.leaders["leader"])
	assert.Greater(t, leader.EventTime(), simtime.FromSeconds(100))
}

// Invariant 1: occupancy never leaves [0, capacity].
func TestOccupancyStaysWithinCapacity(t *testing.T) {
	t.Parallel()
	sched := newFakeScheduler()
	seg := oneLaneSegment(t, sched, simtime.FromSeconds(1), false)
	ctx := newTestContext(Config{})

	for i := 0; i < 50; i++ {
		v := newFakeVehicle("v")
		seg.Receive(ctx, v, 0, true, false)
		assert.GreaterOrEqual(t, seg.Occupancy(), 0.0)
		assert.LessOrEqual(t, seg.Occupancy(), seg.Capacity())
	}
}

// Invariant 3: receive followed by send restores occupancy.
func TestReceiveThenSendRestoresOccupancy(t *testing.T) {
	t.Parallel()
	sched := newFakeScheduler()
	seg := oneLaneSegment(t, sched, simtime.FromSeconds(1), false)
	ctx := newTestContext(Config{})

	before := seg.Occupancy()
	v := newFakeVehicle("v1")
	require.NoError(t, seg.Receive(ctx, v, 0, true, false))
	require.NoError(t, seg.Send(v, nil, v.EventTime()))
	assert.Equal(t, before, seg.Occupancy())
}

// Invariant 4: headway law after send with a real downstream segment.
func TestSendSetsBlockTimeFromHeadway(t *testing.T) {
	t.Parallel()
	sched := newFakeScheduler()
	seg := oneLaneSegment(t, sched, simtime.FromSeconds(1), false)
	next := oneLaneSegment(t, sched, simtime.FromSeconds(1), false)
	ctx := newTestContext(Config{})

	v := newFakeVehicle("v1")
	require.NoError(t, seg.Receive(ctx, v, 0, true, false))
	freeBefore := seg.Free()
	sendTime := v.EventTime()
	require.NoError(t, seg.Send(v, next, sendTime))

	assert.Equal(t, sendTime+next.timeHeadway(freeBefore), seg.BlockTime(0))
}

// Sending before the queue's block time is a contract violation.
func TestSendBeforeBlockTimeIsPreconditionViolation(t *testing.T) {
	t.Parallel()
	sched := newFakeScheduler()
	seg := oneLaneSegment(t, sched, simtime.FromSeconds(1), false)
	ctx := newTestContext(Config{})

	v := newFakeVehicle("v1")
	require.NoError(t, seg.Receive(ctx, v, 0, true, false))
	seg.queues[0].blockTime = 100

	err := seg.Send(v, VaporizationTarget, 0)
	assert.NoError(t, err, "vaporization bypasses the block-time check via isInvalid")

	require.NoError(t, seg.Receive(ctx, v, 0, true, false))
	next := oneLaneSegment(t, sched, simtime.FromSeconds(1), false)
	seg.queues[0].blockTime = 100
	err = seg.Send(v, next, 0)
	var precondErr *PreconditionViolationError
	assert.ErrorAs(t, err, &precondErr)
}

// S7: a queue of three holds its leader at the highest index, not the
// lowest. EventTime must report the leader's (smallest) event time,
// and sending the leader off must promote the car behind it — the new
// last element — rather than the newest arrival at index 0.
func TestQueueOfThreeLeaderIsLastElement(t *testing.T) {
	t.Parallel()
	sched := newFakeScheduler()
	seg := oneLaneSegment(t, sched, simtime.FromSeconds(1), false)
	next := oneLaneSegment(t, sched, simtime.FromSeconds(1), false)

	a := newFakeVehicle("a") // leader: first to leave
	a.eventTime = simtime.FromSeconds(10)
	b := newFakeVehicle("b")
	b.eventTime = simtime.FromSeconds(20)
	c := newFakeVehicle("c") // newest arrival: last to leave
	c.eventTime = simtime.FromSeconds(30)

	seg.queues[0].cars = []Vehicle{c, b, a}
	sched.leaders["a"] = true

	assert.Equal(t, a.EventTime(), seg.EventTime(), "EventTime must report the leader's minimum, not cars[0]'s maximum")

	require.NoError(t, seg.Send(a, next, a.EventTime()))

	if assert.Len(t, seg.queues[0].cars, 2) {
		assert.Equal(t, "c", seg.queues[0].cars[0].ID())
		assert.Equal(t, "b", seg.queues[0].cars[1].ID())
	}
	assert.False(t, sched.leaders["a"], "the departed vehicle is gone")
	assert.True(t, sched.leaders["b"], "the car behind the leader is promoted")
	assert.False(t, sched.leaders["c"], "the newest arrival at index 0 must never be spuriously promoted")
	assert.Equal(t, b.EventTime(), seg.EventTime(), "the promoted leader is now the segment's minimum event time")
}

func TestFreeRegimeReflectsOccupancyLive(t *testing.T) {
	t.Parallel()
	sched := newFakeScheduler()
	seg := oneLaneSegment(t, sched, simtime.FromSeconds(1), false)
	seg.jamThreshold = 10

	seg.occupancy = 5
	assert.True(t, seg.Free())
	seg.occupancy = 15
	assert.False(t, seg.Free())
	seg.occupancy = 5
	assert.True(t, seg.Free(), "free() must never be cached across an occupancy change")
}
