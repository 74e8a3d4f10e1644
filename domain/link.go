package domain

import (
	"sync"

	"github.com/kassenov/sumo/internal/simtime"
	"github.com/kassenov/sumo/topology"
)

// Junction arbitrates right-of-way between the approaches that share
// it: whichever approach currently holds green keeps it until
// MinGreen has elapsed, and must yield once
// MaxGreen has elapsed and another approach is waiting. Approaches
// register a SignalController each; the Junction itself holds the only
// mutable state, so competing SignalControllers on the same junction
// see a consistent view.
type Junction struct {
	mu sync.Mutex

	minGreen simtime.Tick
	maxGreen simtime.Tick

	heldBy     string
	heldSince  simtime.Tick
	initialized bool
}

// NewJunction builds a Junction whose green phases last between
// minGreen and maxGreen.
func NewJunction(minGreen, maxGreen simtime.Tick) *Junction {
	return &Junction{minGreen: minGreen, maxGreen: maxGreen}
}

// request is called by a SignalController's Opened; it returns true if
// approachID currently holds (or is granted) the green at eventTime
// given that waitingTime is how long a vehicle on that approach has
// been blocked.
func (j *Junction) request(approachID string, eventTime simtime.Tick, waitingTime simtime.Tick) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.initialized {
		j.heldBy = approachID
		j.heldSince = eventTime
		j.initialized = true
	}

	if j.heldBy == approachID {
		return true
	}

	held := eventTime - j.heldSince
	forcedYield := held >= j.maxGreen
	demandYield := held >= j.minGreen && waitingTime > 0
	if forcedYield || demandYield {
		j.heldBy = approachID
		j.heldSince = eventTime
		return true
	}
	return false
}

// SignalController is the per-approach topology.Controller that
// delegates arbitration to a shared Junction.
type SignalController struct {
	junction   *Junction
	approachID string
}

// NewSignalController builds a Controller for one approach into
// junction, identified by approachID (typically the upstream edge ID).
func NewSignalController(junction *Junction, approachID string) *SignalController {
	return &SignalController{junction: junction, approachID: approachID}
}

// Opened implements topology.Controller.
func (c *SignalController) Opened(eventTime simtime.Tick, speed, leaveSpeed, lengthWithGap,
	impatience, maxDecel float64, waitingTime simtime.Tick) bool {
	return c.junction.request(c.approachID, eventTime, waitingTime)
}

var _ topology.Controller = (*SignalController)(nil)
