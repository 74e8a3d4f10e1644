// Package scenario loads a JSON description of a network, its initial
// vehicle departures, and simulation-wide parameters, turning it into
// the domain objects the engine and scheduler need to run. The
// raw-struct → domain-struct two-stage decode keeps JSON tags confined
// to this package: decode the literal JSON shape first, then build
// real domain types from it.
package scenario

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/paulmach/orb"
	"github.com/samber/lo"

	"github.com/kassenov/sumo/internal/simtime"
	"github.com/kassenov/sumo/meso"
	"github.com/kassenov/sumo/topology"
)

type rawScenario struct {
	Seed       int64       `json:"seed"`
	Config     rawConfig   `json:"config"`
	Edges      []rawEdge   `json:"edges"`
	Connections []rawConn  `json:"connections"`
	Departures []rawDepart `json:"departures"`
}

type rawConfig struct {
	MultiQueue             bool `json:"multi_queue"`
	JunctionControl        bool `json:"junction_control"`
	LimitedJunctionControl bool `json:"limited_junction_control"`
	OvertakingEnabled      bool `json:"overtaking_enabled"`
	CheckRoutes            bool `json:"check_routes"`
}

type rawEdge struct {
	ID          string      `json:"id"`
	Lanes       int         `json:"lanes"`
	Length      float64     `json:"length_m"`
	MaxSpeed    float64     `json:"max_speed_mps"`
	Segments    int         `json:"segments"`
	Geometry    [][2]float64 `json:"geometry,omitempty"`
	TauFFSecs   float64     `json:"tau_ff_secs"`
	TauFJSecs   float64     `json:"tau_fj_secs"`
	TauJFSecs   float64     `json:"tau_jf_secs"`
	TauJJSecs   float64     `json:"tau_jj_secs"`
	JamThresh   float64     `json:"jam_threshold"`
}

type rawConn struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Lanes       []int  `json:"lanes"`
	HasPriority bool   `json:"has_priority"`
}

type rawDepart struct {
	VehicleID string    `json:"vehicle_id"`
	RouteEdges []string `json:"route"`
	DepartSecs float64  `json:"depart_secs"`
	MaxSpeed   float64  `json:"max_speed_mps"`
	Length     float64  `json:"length_m"`
	MinGap     float64  `json:"min_gap_m"`
}

// Edge is one loaded road edge: the concrete topology.Edge plus the
// segment chain built over it.
type Edge struct {
	Topology *topology.Edge
	Chain    *meso.Chain
}

// Departure is one scheduled vehicle entry, resolved to real Edge
// pointers for its route.
type Departure struct {
	VehicleID  string
	Route      []meso.Edge
	DepartTick simtime.Tick
	MaxSpeed   float64
	Length     float64
	MinGap     float64
}

// Scenario is the fully resolved, ready-to-run decode of a scenario
// file: the network registry, the per-edge topology, and the initial
// departure list.
type Scenario struct {
	Seed        int64
	Config      meso.Config
	Network     *meso.Network
	Edges       map[string]*Edge
	Departures  []Departure
}

// Load decodes a scenario JSON document from r and populates network
// with the chains it describes. network must already exist (and
// typically already be the one a Scheduler was constructed against) so
// that a caller's scheduler and the chains it will drive are always
// the same object graph — Load never swaps the network a Scheduler
// points to out from under it. sched is consulted by every segment
// constructed, matching meso.NewSegment's requirement that a Scheduler
// exist before any segment can be built.
func Load(r io.Reader, network *meso.Network, sched meso.Scheduler) (*Scenario, error) {
	dec := json.NewDecoder(r)
	var raw rawScenario
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding scenario: %w", err)
	}

	edges := map[string]*Edge{}
	topoEdges := map[string]*topology.Edge{}

	for _, re := range raw.Edges {
		geom := orb.LineString(lo.Map(re.Geometry, func(pt [2]float64, _ int) orb.Point {
			return orb.Point{pt[0], pt[1]}
		}))
		lanes := re.Lanes
		if lanes < 1 {
			lanes = 1
		}
		te := topology.NewEdge(re.ID, geom, lanes)
		topoEdges[re.ID] = te
	}

	for _, rc := range raw.Connections {
		from, ok := topoEdges[rc.From]
		if !ok {
			return nil, fmt.Errorf("scenario: connection references unknown edge %q", rc.From)
		}
		to, ok := topoEdges[rc.To]
		if !ok {
			return nil, fmt.Errorf("scenario: connection references unknown edge %q", rc.To)
		}
		if err := from.Connect(to, rc.Lanes, rc.HasPriority, topology.AlwaysOpen{}); err != nil {
			return nil, fmt.Errorf("scenario: wiring connection %s->%s: %w", rc.From, rc.To, err)
		}
	}

	for _, re := range raw.Edges {
		te := topoEdges[re.ID]
		length := re.Length
		if length <= 0 {
			if geomLen := te.Length(); geomLen > 0 {
				length = geomLen
			} else {
				length = 100
			}
		}
		numSegments := re.Segments
		if numSegments < 1 {
			numSegments = 1
		}
		jamThresh := re.JamThresh
		if jamThresh == 0 {
			jamThresh = -1
		}
		chain, err := meso.NewChain(te, length, re.MaxSpeed, numSegments,
			simtime.FromSeconds(orDefault(re.TauFFSecs, 1)),
			simtime.FromSeconds(orDefault(re.TauFJSecs, 1)),
			simtime.FromSeconds(orDefault(re.TauJFSecs, 1)),
			simtime.FromSeconds(orDefault(re.TauJJSecs, 1)),
			jamThresh, raw.Config.MultiQueue, raw.Config.JunctionControl, sched)
		if err != nil {
			return nil, fmt.Errorf("scenario: building chain for edge %q: %w", re.ID, err)
		}
		network.AddChain(chain)
		edges[re.ID] = &Edge{Topology: te, Chain: chain}
	}

	departures := make([]Departure, 0, len(raw.Departures))
	for _, rd := range raw.Departures {
		route := make([]meso.Edge, 0, len(rd.RouteEdges))
		for _, eid := range rd.RouteEdges {
			te, ok := topoEdges[eid]
			if !ok {
				return nil, fmt.Errorf("scenario: departure %q references unknown edge %q", rd.VehicleID, eid)
			}
			route = append(route, te)
		}
		departures = append(departures, Departure{
			VehicleID:  rd.VehicleID,
			Route:      route,
			DepartTick: simtime.FromSeconds(rd.DepartSecs),
			MaxSpeed:   rd.MaxSpeed,
			Length:     rd.Length,
			MinGap:     rd.MinGap,
		})
	}

	return &Scenario{
		Seed: raw.Seed,
		Config: meso.Config{
			MultiQueue:             raw.Config.MultiQueue,
			JunctionControl:        raw.Config.JunctionControl,
			LimitedJunctionControl: raw.Config.LimitedJunctionControl,
			OvertakingEnabled:      raw.Config.OvertakingEnabled,
			CheckRoutes:            raw.Config.CheckRoutes,
		},
		Network:    network,
		Edges:      edges,
		Departures: departures,
	}, nil
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}
