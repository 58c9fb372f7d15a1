// Package network builds the directed track multigraph from corridor
// templates and resolves station-to-station paths over it.
package network

import (
	"fmt"
	"sort"

	"railsim/internal/domain"
	"railsim/internal/geo"
)

const (
	DefaultSpeedLimitKmh   = 90.0
	DefaultDoubleTrackLead = 4
)

// Edge is one directed track segment. Edges are immutable once built.
type Edge struct {
	From          string  `json:"from"`
	To            string  `json:"to"`
	DistanceKm    float64 `json:"distanceKm"`
	TrackID       string  `json:"trackId"`
	TrackNo       int     `json:"trackNo"`
	CorridorID    int     `json:"corridorId"`
	SpeedLimitKmh float64 `json:"speedLimitKmh"`
}

// TrackID encodes direction and track number, e.g. "NDLS-CNB-T1".
func TrackID(from, to string, trackNo int) string {
	return fmt.Sprintf("%s-%s-T%d", from, to, trackNo)
}

// SegmentKey identifies the unordered station pair, independent of track.
func SegmentKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// SegmentKey returns the unordered station pair of the edge.
func (e *Edge) SegmentKey() string {
	return SegmentKey(e.From, e.To)
}

// PhysicalTrack identifies the rail shared by an edge and its reverse sibling.
func (e *Edge) PhysicalTrack() string {
	return fmt.Sprintf("%s|T%d", e.SegmentKey(), e.TrackNo)
}

// SiblingTrackID is the track id of the reverse edge on the same rail.
func (e *Edge) SiblingTrackID() string {
	return TrackID(e.To, e.From, e.TrackNo)
}

// Ref returns the presentation reference of the edge.
func (e *Edge) Ref() *domain.EdgeRef {
	return &domain.EdgeRef{From: e.From, To: e.To, TrackID: e.TrackID}
}

// Segment is an unordered station pair present in the graph.
type Segment struct {
	Key        string
	A, B       *domain.Station
	DistanceKm float64
}

// BuildOptions tunes graph construction.
type BuildOptions struct {
	// DoubleTrackLead gives the first N corridors two parallel tracks.
	DoubleTrackLead int
	// DefaultSpeedKmh applies to corridors without a speed limit.
	DefaultSpeedKmh float64
	// SpeedOverrides replaces corridor limits per SegmentKey.
	SpeedOverrides map[string]float64
}

// Graph maps station ids to their ordered outgoing edges. It is never mutated
// after Build returns.
type Graph struct {
	stations map[string]*domain.Station
	order    []string
	edges    []*Edge
	adj      map[string][]*Edge
	parallel map[string][]*Edge
}

// Build turns corridor templates into a directed multigraph. Consecutive
// station pairs whose stations are missing from the registry are skipped.
// A station pair shared by several corridors keeps the tracks created first
// and only gains tracks when a later corridor asks for more.
func Build(stations []*domain.Station, corridors []*domain.Corridor, opts BuildOptions) *Graph {
	if opts.DefaultSpeedKmh <= 0 {
		opts.DefaultSpeedKmh = DefaultSpeedLimitKmh
	}

	g := &Graph{
		stations: make(map[string]*domain.Station, len(stations)),
		adj:      make(map[string][]*Edge),
		parallel: make(map[string][]*Edge),
	}
	for _, s := range stations {
		if s == nil || s.ID == "" {
			continue
		}
		if _, dup := g.stations[s.ID]; !dup {
			g.order = append(g.order, s.ID)
		}
		g.stations[s.ID] = s
	}

	tracks := make(map[string]int)

	for idx, c := range corridors {
		trackCount := 1
		if idx < opts.DoubleTrackLead {
			trackCount = 2
		}
		limit := c.SpeedLimitKmh
		if limit <= 0 {
			limit = opts.DefaultSpeedKmh
		}

		for i := 0; i+1 < len(c.StationIDs); i++ {
			a, b := c.StationIDs[i], c.StationIDs[i+1]
			A, okA := g.stations[a]
			B, okB := g.stations[b]
			if !okA || !okB || a == b {
				continue
			}

			key := SegmentKey(a, b)
			segLimit := limit
			if v, ok := opts.SpeedOverrides[key]; ok && v > 0 {
				segLimit = v
			}
			km := geo.DistanceKm(A.Position(), B.Position())

			for t := tracks[key] + 1; t <= trackCount; t++ {
				g.addEdge(&Edge{From: a, To: b, DistanceKm: km, TrackID: TrackID(a, b, t), TrackNo: t, CorridorID: c.ID, SpeedLimitKmh: segLimit})
				g.addEdge(&Edge{From: b, To: a, DistanceKm: km, TrackID: TrackID(b, a, t), TrackNo: t, CorridorID: c.ID, SpeedLimitKmh: segLimit})
				tracks[key] = t
			}
		}
	}

	return g
}

func (g *Graph) addEdge(e *Edge) {
	g.edges = append(g.edges, e)
	g.adj[e.From] = append(g.adj[e.From], e)
	key := e.From + ">" + e.To
	g.parallel[key] = append(g.parallel[key], e)
}

// RunningEdge returns the track a train travelling e.From → e.To uses on its
// segment. On multi-track segments the direction whose origin sorts first
// runs on T1 and the opposite direction on T2, so opposing trains never share
// a physical track there.
func (g *Graph) RunningEdge(e *Edge) *Edge {
	tracks := g.parallel[e.From+">"+e.To]
	if len(tracks) < 2 {
		return e
	}
	want := 1
	if e.From > e.To {
		want = 2
	}
	for _, t := range tracks {
		if t.TrackNo == want {
			return t
		}
	}
	return e
}

// Station returns the registry record for id.
func (g *Graph) Station(id string) (*domain.Station, bool) {
	s, ok := g.stations[id]
	return s, ok
}

// HasStation reports whether id is in the registry.
func (g *Graph) HasStation(id string) bool {
	_, ok := g.stations[id]
	return ok
}

// Stations returns registry records in load order.
func (g *Graph) Stations() []*domain.Station {
	result := make([]*domain.Station, 0, len(g.order))
	for _, id := range g.order {
		result = append(result, g.stations[id])
	}
	return result
}

// StationCount returns the number of registered stations.
func (g *Graph) StationCount() int {
	return len(g.stations)
}

// Edges returns every directed edge in build order.
func (g *Graph) Edges() []*Edge {
	return g.edges
}

// Outgoing returns the ordered outgoing edges of a station.
func (g *Graph) Outgoing(id string) []*Edge {
	return g.adj[id]
}

// DirectEdge returns the first edge from a to b, falling back to the first
// edge from b to a.
func (g *Graph) DirectEdge(a, b string) (*Edge, bool) {
	for _, e := range g.adj[a] {
		if e.To == b {
			return e, true
		}
	}
	for _, e := range g.adj[b] {
		if e.To == a {
			return e, true
		}
	}
	return nil, false
}

// SpeedLimit returns the limit of the direct segment between a and b, or the
// network default when they are not adjacent.
func (g *Graph) SpeedLimit(a, b string) float64 {
	if e, ok := g.DirectEdge(a, b); ok && e.SpeedLimitKmh > 0 {
		return e.SpeedLimitKmh
	}
	return DefaultSpeedLimitKmh
}

// Segments returns every unordered station pair, sorted by key.
func (g *Graph) Segments() []Segment {
	seen := make(map[string]struct{})
	var result []Segment
	for _, e := range g.edges {
		key := e.SegmentKey()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, Segment{
			Key:        key,
			A:          g.stations[e.From],
			B:          g.stations[e.To],
			DistanceKm: e.DistanceKm,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Key < result[j].Key
	})
	return result
}
