// Package store keeps the latest presentation record of every train, indexed
// for the HTTP filters and the tile fan-out, plus the current risk list.
package store

import (
	"math"
	"sort"
	"sync"
	"time"

	"railsim/internal/domain"
)

type ListOptions struct {
	Category *domain.Category
	AtRisk   bool
	BBox     *domain.BoundingBox
}

type Store struct {
	mu         sync.RWMutex
	trains     map[string]*domain.TrainView
	byTile     map[string]map[string]struct{}
	byCategory map[domain.Category]map[string]struct{}
	atRisk     map[string]struct{}

	risks     []domain.RiskView
	risksAt   time.Time
	updatedAt time.Time
}

func New() *Store {
	return &Store{
		trains:     make(map[string]*domain.TrainView),
		byTile:     make(map[string]map[string]struct{}),
		byCategory: make(map[domain.Category]map[string]struct{}),
		atRisk:     make(map[string]struct{}),
	}
}

// Update replaces the fleet picture with trains and returns what changed.
// A train that moves to another tile yields a remove for the old tile before
// the update, so subscribers of the old tile drop it. Trains absent from the
// new picture are removed. The store keeps its own copies of the input.
func (s *Store) Update(trains []*domain.TrainView) []domain.TrainDelta {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.updatedAt = now
	deltas := make([]domain.TrainDelta, 0, len(trains))
	seen := make(map[string]struct{}, len(trains))

	for _, in := range trains {
		t := clone(in)
		t.UpdatedAt = now
		seen[t.ID] = struct{}{}

		existing, exists := s.trains[t.ID]
		if exists && !hasChanged(existing, t) {
			existing.UpdatedAt = now
			existing.SimTime = t.SimTime
			continue
		}

		if exists {
			s.removeFromAllIndices(existing)
			if existing.TileID != t.TileID {
				deltas = append(deltas, domain.TrainDelta{
					Type:   domain.DeltaRemove,
					ID:     existing.ID,
					TileID: existing.TileID,
				})
			}
		}

		s.trains[t.ID] = t
		s.addToIndices(t)

		deltas = append(deltas, domain.TrainDelta{
			Type:   domain.DeltaUpdate,
			Train:  clone(t),
			TileID: t.TileID,
		})
	}

	for id, t := range s.trains {
		if _, ok := seen[id]; ok {
			continue
		}
		deltas = append(deltas, domain.TrainDelta{
			Type:   domain.DeltaRemove,
			ID:     id,
			TileID: t.TileID,
		})
		s.removeFromAllIndices(t)
		delete(s.trains, id)
	}

	return deltas
}

// SetRisks replaces the ranked risk list.
func (s *Store) SetRisks(risks []domain.RiskView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.risks = append([]domain.RiskView(nil), risks...)
	s.risksAt = time.Now()
}

// Risks returns a copy of the ranked risk list.
func (s *Store) Risks() []domain.RiskView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.RiskView(nil), s.risks...)
}

// RisksFor returns the risks involving one train, in rank order.
func (s *Store) RisksFor(id string) []domain.RiskView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.RiskView
	for _, r := range s.risks {
		if r.TrainA == id || r.TrainB == id {
			result = append(result, r)
		}
	}
	return result
}

func (s *Store) Get(id string) (*domain.TrainView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trains[id]
	if !ok {
		return nil, false
	}
	return clone(t), true
}

// List returns the trains matching opts ordered by id.
func (s *Store) List(opts ListOptions) []*domain.TrainView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	candidates := s.getCandidates(opts)

	result := make([]*domain.TrainView, 0, len(candidates))
	for id := range candidates {
		t := s.trains[id]
		if opts.BBox != nil && !opts.BBox.Contains(t.Lat, t.Lon) {
			continue
		}
		result = append(result, clone(t))
	}

	sortByID(result)
	return result
}

func (s *Store) Snapshot() []*domain.TrainView {
	return s.List(ListOptions{})
}

func (s *Store) SnapshotForTiles(tileIDs []string) []*domain.TrainView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	var result []*domain.TrainView

	for _, tileID := range tileIDs {
		for id := range s.byTile[tileID] {
			if _, exists := seen[id]; exists {
				continue
			}
			seen[id] = struct{}{}
			result = append(result, clone(s.trains[id]))
		}
	}
	sortByID(result)
	return result
}

// Stats summarizes the store for the stats endpoint.
type Stats struct {
	Trains     int                     `json:"trains"`
	Moving     int                     `json:"moving"`
	Stopped    int                     `json:"stopped"`
	AtRisk     int                     `json:"atRisk"`
	Risks      int                     `json:"risks"`
	Tiles      int                     `json:"tiles"`
	ByCategory map[domain.Category]int `json:"byCategory"`
	UpdatedAt  time.Time               `json:"updatedAt"`
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Trains:     len(s.trains),
		AtRisk:     len(s.atRisk),
		Risks:      len(s.risks),
		Tiles:      len(s.byTile),
		ByCategory: make(map[domain.Category]int, len(s.byCategory)),
		UpdatedAt:  s.updatedAt,
	}
	for cat, ids := range s.byCategory {
		st.ByCategory[cat] = len(ids)
	}
	for _, t := range s.trains {
		switch {
		case t.IsStopped:
			st.Stopped++
		case t.CurrentEdge != nil:
			st.Moving++
		}
	}
	return st
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.trains)
}

func (s *Store) getCandidates(opts ListOptions) map[string]struct{} {
	if opts.Category != nil && opts.AtRisk {
		return intersect(s.byCategory[*opts.Category], s.atRisk)
	}
	if opts.Category != nil {
		return copySet(s.byCategory[*opts.Category])
	}
	if opts.AtRisk {
		return copySet(s.atRisk)
	}

	result := make(map[string]struct{}, len(s.trains))
	for id := range s.trains {
		result[id] = struct{}{}
	}
	return result
}

func intersect(a, b map[string]struct{}) map[string]struct{} {
	if a == nil || b == nil {
		return make(map[string]struct{})
	}

	smaller, larger := a, b
	if len(a) > len(b) {
		smaller, larger = b, a
	}

	result := make(map[string]struct{})
	for id := range smaller {
		if _, ok := larger[id]; ok {
			result[id] = struct{}{}
		}
	}
	return result
}

func copySet(src map[string]struct{}) map[string]struct{} {
	result := make(map[string]struct{}, len(src))
	for id := range src {
		result[id] = struct{}{}
	}
	return result
}

func (s *Store) addToIndices(t *domain.TrainView) {
	if s.byTile[t.TileID] == nil {
		s.byTile[t.TileID] = make(map[string]struct{})
	}
	s.byTile[t.TileID][t.ID] = struct{}{}

	if s.byCategory[t.Category] == nil {
		s.byCategory[t.Category] = make(map[string]struct{})
	}
	s.byCategory[t.Category][t.ID] = struct{}{}

	if t.IsAtRisk {
		s.atRisk[t.ID] = struct{}{}
	}
}

func (s *Store) removeFromAllIndices(t *domain.TrainView) {
	if s.byTile[t.TileID] != nil {
		delete(s.byTile[t.TileID], t.ID)
		if len(s.byTile[t.TileID]) == 0 {
			delete(s.byTile, t.TileID)
		}
	}

	if s.byCategory[t.Category] != nil {
		delete(s.byCategory[t.Category], t.ID)
		if len(s.byCategory[t.Category]) == 0 {
			delete(s.byCategory, t.Category)
		}
	}

	delete(s.atRisk, t.ID)
}

func clone(t *domain.TrainView) *domain.TrainView {
	c := *t
	if t.CurrentEdge != nil {
		edge := *t.CurrentEdge
		c.CurrentEdge = &edge
	}
	return &c
}

func sortByID(trains []*domain.TrainView) {
	sort.Slice(trains, func(i, j int) bool { return trains[i].ID < trains[j].ID })
}

func hasChanged(old, new *domain.TrainView) bool {
	const epsilon = 0.000001

	if old.IsAtRisk != new.IsAtRisk || old.IsStopped != new.IsStopped || old.TileID != new.TileID {
		return true
	}
	if (old.CurrentEdge == nil) != (new.CurrentEdge == nil) {
		return true
	}
	if old.CurrentEdge != nil && old.CurrentEdge.TrackID != new.CurrentEdge.TrackID {
		return true
	}

	if math.Abs(old.Lat-new.Lat) > epsilon || math.Abs(old.Lon-new.Lon) > epsilon {
		return true
	}
	if math.Abs(old.SpeedKmh-new.SpeedKmh) > 0.05 || math.Abs(old.BearingDegrees-new.BearingDegrees) > 0.05 {
		return true
	}

	return false
}
