package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kassenov/sumo/internal/simtime"
	"github.com/kassenov/sumo/meso"
)

type stubEdge struct{ id string }

func (e stubEdge) ID() string { return e.id }

func TestNewGeneratesIDWhenEmpty(t *testing.T) {
	t.Parallel()
	v := New("", meso.DefaultVehicleType, nil, 1)
	assert.NotEmpty(t, v.ID())
}

func TestNewKeepsSuppliedID(t *testing.T) {
	t.Parallel()
	v := New("v1", meso.DefaultVehicleType, nil, 1)
	assert.Equal(t, "v1", v.ID())
}

func TestMoveRoutePointerSignalsArrival(t *testing.T) {
	t.Parallel()
	route := []meso.Edge{stubEdge{"e0"}, stubEdge{"e1"}}
	v := New("v1", meso.DefaultVehicleType, route, 1)

	assert.False(t, v.MoveRoutePointer())
	assert.False(t, v.HasArrived())
	assert.True(t, v.MoveRoutePointer())
	assert.True(t, v.HasArrived())
}

func TestSuccEdgeLooksAheadFromRoutePosition(t *testing.T) {
	t.Parallel()
	route := []meso.Edge{stubEdge{"e0"}, stubEdge{"e1"}, stubEdge{"e2"}}
	v := New("v1", meso.DefaultVehicleType, route, 1)

	require.NotNil(t, v.SuccEdge(0))
	assert.Equal(t, "e0", v.SuccEdge(0).ID())
	assert.Equal(t, "e1", v.SuccEdge(1).ID())

	v.MoveRoutePointer()
	assert.Equal(t, "e1", v.SuccEdge(0).ID())
	assert.Nil(t, v.SuccEdge(5))
}

func TestWaitingTimeAccumulatesUntilCleared(t *testing.T) {
	t.Parallel()
	v := New("v1", meso.DefaultVehicleType, nil, 1)

	v.MarkWaiting(10)
	v.SetEventTime(25, false)
	assert.Equal(t, simtime.Tick(15), v.WaitingTime())

	v.ClearWaiting()
	assert.Equal(t, simtime.Tick(0), v.WaitingTime())
}

func TestConservativeSpeedAdvancesEarliestExit(t *testing.T) {
	t.Parallel()
	v := New("v1", meso.VehicleType{Length: 5, MinGap: 2.5, MaxSpeed: 20}, nil, 1)
	v.SetSpeed(10)

	earliest := simtime.Tick(0)
	speed := v.ConservativeSpeed(&earliest)

	assert.Equal(t, 10.0, speed)
	assert.Greater(t, int64(earliest), int64(0))
}

func TestSetSegmentRoundTrips(t *testing.T) {
	t.Parallel()
	v := New("v1", meso.DefaultVehicleType, nil, 1)
	assert.Nil(t, v.Segment())
	v.SetSegment(nil)
	assert.Nil(t, v.Segment())
}
