package meso

import (
	"math/rand"

	"github.com/kassenov/sumo/internal/simtime"
)

// Config is the set of global configuration flags a simulation run
// carries: multi-queue segments, junction control (and its
// limited-control override), overtaking, and route validity checking
// on depart.
type Config struct {
	MultiQueue             bool
	JunctionControl        bool
	LimitedJunctionControl bool
	OvertakingEnabled      bool
	CheckRoutes            bool
}

// RandSource is the one draw overtake() needs. *rand.Rand satisfies it
// directly; tests substitute a fixed-output fake to make the otherwise
// probabilistic overtaking path deterministic.
type RandSource interface {
	Float64() float64
}

// Context is the small bundle of global state injected by reference
// rather than statically referenced, so tests can fabricate
// deterministic contexts: the shared RNG draw used by
// overtake(), the config flags, and the scheduler's notion of "now".
// Every Segment method that needs any of this takes a *Context
// explicitly; nothing in this package reaches for a package-level
// global.
type Context struct {
	Config
	RNG  RandSource
	Tick simtime.Tick
}

// NewContext builds a Context with a seeded, reproducible RNG — the
// same seed always produces the same sequence of overtake() decisions.
func NewContext(seed int64, cfg Config) *Context {
	return &Context{
		Config: cfg,
		RNG:    rand.New(rand.NewSource(seed)),
	}
}
