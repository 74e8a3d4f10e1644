package meso

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kassenov/sumo/internal/simtime"
)

type mapResolver map[string]Vehicle

func (m mapResolver) ResolveVehicle(id string) (Vehicle, error) {
	v, ok := m[id]
	if !ok {
		return nil, assert.AnError
	}
	return v, nil
}

func TestSaveLoadStateRoundTrip(t *testing.T) {
	t.Parallel()
	sched := newFakeScheduler()
	seg := oneLaneSegment(t, sched, simtime.FromSeconds(1), false)
	ctx := newTestContext(Config{})

	first := newFakeVehicle("first")
	require.NoError(t, seg.Receive(ctx, first, 0, true, false))
	second := newFakeVehicle("second")
	second.route = []Edge{&fakeEdge{id: "e0"}, &fakeEdge{id: "e1"}}
	require.NoError(t, seg.Receive(ctx, second, 1, false, false))

	data, err := seg.SaveState()
	require.NoError(t, err)

	fresh := oneLaneSegment(t, newFakeScheduler(), simtime.FromSeconds(1), false)
	fresh.id = seg.id
	resolver := mapResolver{"first": first, "second": second}
	require.NoError(t, fresh.LoadState(data, resolver))

	require.Len(t, fresh.queues[0].cars, 2)
	assert.Equal(t, "second", fresh.queues[0].cars[0].ID(), "no-overtake insert puts the newer arrival at index 0, behind the leader")
	assert.InDelta(t, seg.Occupancy(), fresh.Occupancy(), 1e-9)
}

func TestLoadStateRejectsMismatchedID(t *testing.T) {
	t.Parallel()
	sched := newFakeScheduler()
	seg := oneLaneSegment(t, sched, simtime.FromSeconds(1), false)

	other := oneLaneSegment(t, sched, simtime.FromSeconds(1), false)
	other.id = "not-" + seg.id
	data, err := other.SaveState()
	require.NoError(t, err)

	err = seg.LoadState(data, mapResolver{})
	var precondErr *PreconditionViolationError
	assert.ErrorAs(t, err, &precondErr)
}
