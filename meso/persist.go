package meso

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/kassenov/sumo/internal/simtime"
)

// segmentState is the on-disk shape of one <segment> element: one
// <vehicles> child per queue, carrying that queue's block time as an
// attribute and its vehicle IDs, in queue index order (most recent
// arrival first, leader last), as content.
type segmentState struct {
	XMLName  xml.Name      `xml:"segment"`
	ID       string        `xml:"id,attr"`
	Queues   []queueState  `xml:"vehicles"`
}

type queueState struct {
	BlockTime int64  `xml:"time,attr"`
	IDs       string `xml:",chardata"`
}

// SaveState serializes this segment's current contents: one <segment>
// element with one <vehicles> child per queue, block time included.
func (s *Segment) SaveState() ([]byte, error) {
	state := segmentState{ID: s.id}
	for _, q := range s.queues {
		// Listed in index order (leader last); LoadState appends in
		// this same order so the last element lands back on the leader.
		ids := ""
		for i, v := range q.cars {
			if i > 0 {
				ids += " "
			}
			ids += v.ID()
		}
		state.Queues = append(state.Queues, queueState{
			BlockTime: int64(q.blockTime),
			IDs:       ids,
		})
	}
	return xml.MarshalIndent(state, "", "  ")
}

// VehicleResolver looks a vehicle up by the identifier recorded at save
// time, used by LoadState to turn stored IDs back into live Vehicle
// facades — the engine never constructs vehicles itself.
type VehicleResolver interface {
	ResolveVehicle(id string) (Vehicle, error)
}

// LoadState restores this segment's contents from a prior SaveState:
// queues are filled in listed order, occupancy is
// recomputed as the sum of
// length+gap capped at capacity, the last vehicle of each non-empty
// queue is (re-)registered as its leader, and blockTime[q] is restored
// verbatim.
func (s *Segment) LoadState(data []byte, resolve VehicleResolver) error {
	var state segmentState
	if err := xml.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("decoding segment state for %q: %w", s.id, err)
	}
	if state.ID != s.id {
		return newPreconditionViolation("LoadState", fmt.Sprintf("state is for segment %q, not %q", state.ID, s.id))
	}

	for qi := range s.queues {
		s.queues[qi] = &queue{blockTime: 0}
	}
	s.occupancy = 0

	for qi, qs := range state.Queues {
		if qi >= len(s.queues) {
			break
		}
		q := s.queues[qi]
		q.blockTime = simtime.Tick(qs.BlockTime)
		for _, id := range strings.Fields(qs.IDs) {
			veh, err := resolve.ResolveVehicle(id)
			if err != nil {
				return fmt.Errorf("resolving vehicle %q for segment %q: %w", id, s.id, err)
			}
			veh.SetSegment(s)
			veh.SetQueueIndex(qi)
			q.cars = append(q.cars, veh)
			s.occupancy += veh.Type().LengthWithGap()
		}
		if s.occupancy > s.capacity {
			s.occupancy = s.capacity
		}
		if len(q.cars) > 0 {
			leader := q.cars[len(q.cars)-1]
			s.sched.AddLeaderCar(leader, s.linkFor(leader))
		}
	}
	return nil
}
