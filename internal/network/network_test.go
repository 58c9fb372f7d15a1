package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"railsim/internal/domain"
)

func testStations() []*domain.Station {
	return []*domain.Station{
		{ID: "A", Name: "Alpha", Lat: 20.0, Lon: 78.0},
		{ID: "B", Name: "Bravo", Lat: 20.0, Lon: 78.5},
		{ID: "C", Name: "Charlie", Lat: 20.0, Lon: 79.0},
		{ID: "D", Name: "Delta", Lat: 20.5, Lon: 78.5},
		{ID: "E", Name: "Echo", Lat: 25.0, Lon: 85.0},
	}
}

func testCorridors() []*domain.Corridor {
	return []*domain.Corridor{
		{ID: 0, Name: "main", StationIDs: []string{"A", "B", "C"}, SpeedLimitKmh: 110},
		{ID: 1, Name: "loop", StationIDs: []string{"A", "D", "C"}, SpeedLimitKmh: 80},
		{ID: 2, Name: "ghost", StationIDs: []string{"C", "ZZZ", "E"}},
	}
}

func testGraph() *Graph {
	return Build(testStations(), testCorridors(), BuildOptions{DoubleTrackLead: 1})
}

func TestBuildSymmetry(t *testing.T) {
	g := testGraph()
	require.NotEmpty(t, g.Edges())

	for _, e := range g.Edges() {
		var found bool
		for _, r := range g.Outgoing(e.To) {
			if r.To == e.From && r.TrackID == e.SiblingTrackID() {
				found = true
				assert.InDelta(t, e.DistanceKm, r.DistanceKm, 1e-9)
				assert.Equal(t, e.PhysicalTrack(), r.PhysicalTrack())
			}
		}
		assert.True(t, found, "no reverse edge for %s", e.TrackID)
	}
}

func TestBuildTrackCounts(t *testing.T) {
	g := testGraph()

	var ab, ad []string
	for _, e := range g.Outgoing("A") {
		switch e.To {
		case "B":
			ab = append(ab, e.TrackID)
		case "D":
			ad = append(ad, e.TrackID)
		}
	}
	assert.Equal(t, []string{"A-B-T1", "A-B-T2"}, ab)
	assert.Equal(t, []string{"A-D-T1"}, ad)
}

func TestBuildSkipsMissingStations(t *testing.T) {
	g := testGraph()

	assert.Empty(t, g.Outgoing("E"))
	assert.False(t, g.HasStation("ZZZ"))
	for _, e := range g.Edges() {
		assert.NotEqual(t, "ZZZ", e.From)
		assert.NotEqual(t, "ZZZ", e.To)
	}
}

func TestBuildSpeedLimits(t *testing.T) {
	stations := testStations()
	corridors := testCorridors()
	corridors[1].SpeedLimitKmh = 0

	g := Build(stations, corridors, BuildOptions{
		SpeedOverrides: map[string]float64{SegmentKey("C", "B"): 65},
	})

	assert.Equal(t, 110.0, g.SpeedLimit("A", "B"))
	assert.Equal(t, 65.0, g.SpeedLimit("C", "B"))
	assert.Equal(t, DefaultSpeedLimitKmh, g.SpeedLimit("A", "D"))
	assert.Equal(t, DefaultSpeedLimitKmh, g.SpeedLimit("A", "E"))
}

func TestSegments(t *testing.T) {
	segs := testGraph().Segments()

	keys := make([]string, 0, len(segs))
	for _, s := range segs {
		keys = append(keys, s.Key)
	}
	assert.Equal(t, []string{"A|B", "A|D", "B|C", "C|D"}, keys)
}

func TestResolveShortestPath(t *testing.T) {
	r := NewResolver(testGraph())

	p, ok := r.Resolve("A", "C")
	require.True(t, ok)
	assert.Equal(t, []string{"A", "B", "C"}, p.Stations())
	assert.Equal(t, "A-B-T1", p[0].TrackID)

	back, ok := r.Resolve("C", "A")
	require.True(t, ok)
	assert.Equal(t, []string{"C", "B", "A"}, back.Stations())
	assert.InDelta(t, p.DistanceKm(), back.DistanceKm(), 1e-9)
}

func TestResolveUsesDirectionalTracks(t *testing.T) {
	r := NewResolver(testGraph())

	up, ok := r.Resolve("A", "C")
	require.True(t, ok)
	down, ok := r.Resolve("C", "A")
	require.True(t, ok)

	assert.Equal(t, []string{"A-B-T1", "B-C-T1"}, []string{up[0].TrackID, up[1].TrackID})
	assert.Equal(t, []string{"C-B-T2", "B-A-T2"}, []string{down[0].TrackID, down[1].TrackID})
	for i := range up {
		assert.NotEqual(t, up[i].PhysicalTrack(), down[len(down)-1-i].PhysicalTrack())
	}

	single, ok := r.Resolve("D", "A")
	require.True(t, ok)
	assert.Equal(t, "D-A-T1", single[0].TrackID)
}

func TestResolveIdempotent(t *testing.T) {
	r := NewResolver(testGraph())

	first, ok := r.Resolve("D", "B")
	require.True(t, ok)
	second, ok := r.Resolve("D", "B")
	require.True(t, ok)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Same(t, first[i], second[i])
	}

	_, searches := r.CacheStats()
	assert.Equal(t, int64(1), searches)
}

func TestResolveNotFound(t *testing.T) {
	r := NewResolver(testGraph())

	tests := []struct {
		name     string
		from, to string
	}{
		{"unknown origin", "ZZZ", "A"},
		{"unknown destination", "A", "ZZZ"},
		{"disconnected", "A", "E"},
		{"same station", "B", "B"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := r.Resolve(tt.from, tt.to)
			assert.False(t, ok)
			assert.Empty(t, p)
		})
	}
}

func TestDirectEdgeNeverLongerThanPath(t *testing.T) {
	g := testGraph()
	r := NewResolver(g)

	for _, e := range g.Edges() {
		p, ok := r.Resolve(e.From, e.To)
		require.True(t, ok)
		assert.LessOrEqual(t, p.DistanceKm(), e.DistanceKm+1e-9)

		for _, via := range g.Stations() {
			if via.ID == e.From || via.ID == e.To {
				continue
			}
			first, ok1 := r.Resolve(e.From, via.ID)
			second, ok2 := r.Resolve(via.ID, e.To)
			if !ok1 || !ok2 {
				continue
			}
			assert.LessOrEqual(t, e.DistanceKm, first.DistanceKm()+second.DistanceKm()+1e-9)
		}
	}
}
