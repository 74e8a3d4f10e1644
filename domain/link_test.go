package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kassenov/sumo/internal/simtime"
)

func TestSignalControllerHoldsMinGreen(t *testing.T) {
	t.Parallel()
	j := NewJunction(simtime.FromSeconds(10), simtime.FromSeconds(30))
	north := NewSignalController(j, "north")
	south := NewSignalController(j, "south")

	assert.True(t, north.Opened(0, 10, 10, 10, 0, 3, 0))
	assert.False(t, south.Opened(simtime.FromSeconds(2), 10, 10, 10, 0, 3, simtime.FromSeconds(5)))
}

func TestSignalControllerYieldsOnDemandAfterMinGreen(t *testing.T) {
	t.Parallel()
	j := NewJunction(simtime.FromSeconds(10), simtime.FromSeconds(30))
	north := NewSignalController(j, "north")
	south := NewSignalController(j, "south")

	assert.True(t, north.Opened(0, 10, 10, 10, 0, 3, 0))
	assert.True(t, south.Opened(simtime.FromSeconds(15), 10, 10, 10, 0, 3, simtime.FromSeconds(5)))
	assert.False(t, north.Opened(simtime.FromSeconds(16), 10, 10, 10, 0, 3, 0))
}

func TestSignalControllerForcesYieldAtMaxGreen(t *testing.T) {
	t.Parallel()
	j := NewJunction(simtime.FromSeconds(10), simtime.FromSeconds(30))
	north := NewSignalController(j, "north")
	south := NewSignalController(j, "south")

	assert.True(t, north.Opened(0, 10, 10, 10, 0, 3, 0))
	assert.True(t, south.Opened(simtime.FromSeconds(31), 10, 10, 10, 0, 3, 0))
}
