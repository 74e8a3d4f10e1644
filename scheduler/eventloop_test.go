package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kassenov/sumo/internal/simtime"
	"github.com/kassenov/sumo/meso"
)

type stubVehicle struct {
	id    string
	event simtime.Tick
}

func (v *stubVehicle) ID() string                                  { return v.id }
func (v *stubVehicle) Type() meso.VehicleType                      { return meso.DefaultVehicleType }
func (v *stubVehicle) Speed() float64                               { return 10 }
func (v *stubVehicle) SpeedFactor() float64                         { return 1 }
func (v *stubVehicle) Impatience() float64                          { return 0 }
func (v *stubVehicle) WaitingTime() simtime.Tick                    { return 0 }
func (v *stubVehicle) EventTime() simtime.Tick                      { return v.event }
func (v *stubVehicle) SetEventTime(t simtime.Tick, slow bool)       { v.event = t }
func (v *stubVehicle) LastEntryTime() simtime.Tick                  { return 0 }
func (v *stubVehicle) SetLastEntryTime(t simtime.Tick)              {}
func (v *stubVehicle) QueueIndex() int                              { return 0 }
func (v *stubVehicle) SetQueueIndex(i int)                          {}
func (v *stubVehicle) BlockTime() simtime.Tick                      { return 0 }
func (v *stubVehicle) SetBlockTime(t simtime.Tick)                  {}
func (v *stubVehicle) SetSegment(seg *meso.Segment)                 {}
func (v *stubVehicle) Segment() *meso.Segment                       { return nil }
func (v *stubVehicle) SuccEdge(k int) meso.Edge                     { return nil }
func (v *stubVehicle) MoveRoutePointer() bool                       { return false }
func (v *stubVehicle) HasArrived() bool                             { return false }
func (v *stubVehicle) StopTime(seg *meso.Segment) simtime.Tick      { return 0 }
func (v *stubVehicle) ConservativeSpeed(e *simtime.Tick) float64    { return v.Speed() }
func (v *stubVehicle) AddReminder(d meso.Reminder)                  {}
func (v *stubVehicle) RemoveReminder(d meso.Reminder)               {}
func (v *stubVehicle) ActivateReminders(reason meso.NotifyReason)   {}
func (v *stubVehicle) UpdateDetectors(t simtime.Tick, leaving bool, reason meso.NotifyReason) {}
func (v *stubVehicle) UpdateDetectorForWriting(d meso.Reminder, now, exitTime simtime.Tick) {}

func TestEventLoopFiresInEventTimeOrder(t *testing.T) {
	t.Parallel()
	loop := New(meso.NewNetwork(), meso.NewContext(1, meso.Config{}))

	late := &stubVehicle{id: "late", event: 300}
	early := &stubVehicle{id: "early", event: 100}
	mid := &stubVehicle{id: "mid", event: 200}

	loop.AddLeaderCar(late, nil)
	loop.AddLeaderCar(early, nil)
	loop.AddLeaderCar(mid, nil)
	require.Equal(t, 3, loop.Len())

	var order []string
	loop.Run(simtime.Max, func(veh meso.Vehicle, link meso.Link, tick simtime.Tick) {
		order = append(order, veh.ID())
	})

	assert.Equal(t, []string{"early", "mid", "late"}, order)
	assert.Equal(t, 0, loop.Len())
}

func TestEventLoopRemoveLeaderCar(t *testing.T) {
	t.Parallel()
	loop := New(meso.NewNetwork(), meso.NewContext(1, meso.Config{}))

	a := &stubVehicle{id: "a", event: 100}
	b := &stubVehicle{id: "b", event: 200}
	loop.AddLeaderCar(a, nil)
	loop.AddLeaderCar(b, nil)
	loop.RemoveLeaderCar(a)

	require.Equal(t, 1, loop.Len())
	var fired []string
	loop.Run(simtime.Max, func(veh meso.Vehicle, link meso.Link, tick simtime.Tick) {
		fired = append(fired, veh.ID())
	})
	assert.Equal(t, []string{"b"}, fired)
}

func TestEventLoopRunRespectsUntil(t *testing.T) {
	t.Parallel()
	loop := New(meso.NewNetwork(), meso.NewContext(1, meso.Config{}))
	loop.AddLeaderCar(&stubVehicle{id: "soon", event: 50}, nil)
	loop.AddLeaderCar(&stubVehicle{id: "later", event: 500}, nil)

	var fired []string
	loop.Run(100, func(veh meso.Vehicle, link meso.Link, tick simtime.Tick) {
		fired = append(fired, veh.ID())
	})

	assert.Equal(t, []string{"soon"}, fired)
	assert.Equal(t, 1, loop.Len())
}
