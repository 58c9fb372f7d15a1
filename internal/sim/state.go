package sim

import (
	"sort"

	"github.com/google/uuid"

	"railsim/internal/domain"
	"railsim/internal/movement"
	"railsim/internal/network"
)

// State is the whole simulation owned by the engine: the static network, the
// clock and the fleet.
type State struct {
	SessionID string
	Graph     *network.Graph
	Resolver  *network.Resolver
	Corridors []*domain.Corridor
	Clock     *Clock

	trains []*movement.Train
	byID   map[string]*movement.Train
}

func NewState(resolver *network.Resolver, corridors []*domain.Corridor, clock *Clock, trains []*movement.Train) *State {
	s := &State{
		SessionID: uuid.NewString(),
		Graph:     resolver.Graph(),
		Resolver:  resolver,
		Corridors: corridors,
		Clock:     clock,
		byID:      make(map[string]*movement.Train, len(trains)),
	}
	for _, t := range trains {
		if _, dup := s.byID[t.ID]; dup {
			continue
		}
		s.trains = append(s.trains, t)
		s.byID[t.ID] = t
	}
	return s
}

// Trains returns the fleet in creation order.
func (s *State) Trains() []*movement.Train {
	return s.trains
}

// Train looks a train up by id.
func (s *State) Train(id string) (*movement.Train, bool) {
	t, ok := s.byID[id]
	return t, ok
}

// TrainIDs returns all train ids sorted.
func (s *State) TrainIDs() []string {
	ids := make([]string, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
