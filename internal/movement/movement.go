// Package movement places trains on the track network at a given instant by
// interpolating along the resolved path between their bracketing stops.
package movement

import (
	"math"
	"time"

	"railsim/internal/geo"
	"railsim/internal/network"
	"railsim/internal/timetable"
)

// State is a train's position at one instant. Stationary trains have no edge
// and a zero bearing.
type State struct {
	At          time.Time
	Position    geo.LatLon
	BearingDeg  float64
	Edge        *network.Edge
	EdgeKm      float64
	ProgressKm  float64
	PathKm      float64
	Fraction    float64
	SpeedKmh    float64
	FromStation string
	ToStation   string
	Stationary  bool
	DayIndex    int
}

// Moving reports whether the train occupies a track edge.
func (s State) Moving() bool {
	return !s.Stationary && s.Edge != nil
}

// EdgeFraction returns how far along its active edge the train is, in [0, 1].
func (s State) EdgeFraction() float64 {
	if s.Edge == nil || s.Edge.DistanceKm <= 0 {
		return 0
	}
	return clamp01(s.EdgeKm / s.Edge.DistanceKm)
}

// Ease maps linear time progress to distance progress with a half-cosine
// curve so that trains accelerate out of and brake into stations.
func Ease(t float64) float64 {
	t = clamp01(t)
	return 0.5 - 0.5*math.Cos(math.Pi*t)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// Placement is a point along a path.
type Placement struct {
	Position   geo.LatLon
	BearingDeg float64
	Edge       *network.Edge
	EdgeKm     float64
	Terminal   bool
}

// PositionAlong walks path until km is consumed and projects the remainder
// from the start station of the edge reached. Distances at or beyond the path
// length land exactly on the terminal station.
func PositionAlong(g *network.Graph, path network.Path, km float64) (Placement, bool) {
	if len(path) == 0 {
		return Placement{}, false
	}
	if km < 0 {
		km = 0
	}

	if km < path.DistanceKm() {
		remaining := km
		for _, e := range path {
			if remaining < e.DistanceKm {
				from, okF := g.Station(e.From)
				to, okT := g.Station(e.To)
				if !okF || !okT {
					return Placement{}, false
				}
				bearing := geo.BearingDeg(from.Position(), to.Position())
				return Placement{
					Position:   geo.Destination(from.Position(), bearing, remaining),
					BearingDeg: bearing,
					Edge:       e,
					EdgeKm:     remaining,
				}, true
			}
			remaining -= e.DistanceKm
		}
	}

	last := path[len(path)-1]
	from, okF := g.Station(last.From)
	to, okT := g.Station(last.To)
	if !okF || !okT {
		return Placement{}, false
	}
	return Placement{
		Position:   to.Position(),
		BearingDeg: geo.BearingDeg(from.Position(), to.Position()),
		Edge:       last,
		EdgeKm:     last.DistanceKm,
		Terminal:   true,
	}, true
}

// Locator computes train states from schedules. It holds no per-train state,
// so the same locator serves live updates and future sampling.
type Locator struct {
	resolver *network.Resolver
}

func NewLocator(resolver *network.Resolver) *Locator {
	return &Locator{resolver: resolver}
}

// PredictAt returns where a train following sched is at the given instant.
// It reports false when no run governs that instant or the active leg cannot
// be resolved on the graph.
func (l *Locator) PredictAt(sched *timetable.Schedule, at time.Time) (State, bool) {
	if sched == nil {
		return State{}, false
	}
	run, ok := sched.ActiveAt(at)
	if !ok {
		return State{}, false
	}

	stops := run.Stops
	for i := 0; i+1 < len(stops); i++ {
		dep := *stops[i].Departure
		arr := *stops[i+1].Arrival
		if at.Before(dep) || !at.Before(arr) {
			continue
		}
		return l.between(stops[i].Station, stops[i+1].Station, dep, arr, at, run.DayIndex)
	}

	return l.parked(run, at)
}

func (l *Locator) between(from, to string, dep, arr, at time.Time, dayIndex int) (State, bool) {
	path, ok := l.resolver.Resolve(from, to)
	if !ok {
		return State{}, false
	}

	window := arr.Sub(dep)
	linear := clamp01(float64(at.Sub(dep)) / float64(window))
	eased := Ease(linear)
	total := path.DistanceKm()
	progress := eased * total

	place, ok := PositionAlong(l.resolver.Graph(), path, progress)
	if !ok {
		return State{}, false
	}

	speed := 0.0
	if hours := window.Hours(); hours > 0 {
		speed = total * 0.5 * math.Pi * math.Sin(math.Pi*linear) / hours
	}

	return State{
		At:          at,
		Position:    place.Position,
		BearingDeg:  place.BearingDeg,
		Edge:        place.Edge,
		EdgeKm:      place.EdgeKm,
		ProgressKm:  progress,
		PathKm:      total,
		Fraction:    eased,
		SpeedKmh:    speed,
		FromStation: from,
		ToStation:   to,
		DayIndex:    dayIndex,
	}, true
}

// parked places a train at the last stop it reached, or at its origin before
// the first departure.
func (l *Locator) parked(run *timetable.DaySchedule, at time.Time) (State, bool) {
	station := run.Stops[0].Station
	for _, st := range run.Stops {
		reached := (st.Arrival != nil && !at.Before(*st.Arrival)) ||
			(st.Departure != nil && !at.Before(*st.Departure))
		if !reached {
			break
		}
		station = st.Station
	}

	s, ok := l.resolver.Graph().Station(station)
	if !ok {
		return State{}, false
	}
	return State{
		At:          at,
		Position:    s.Position(),
		FromStation: station,
		ToStation:   station,
		Stationary:  true,
		DayIndex:    run.DayIndex,
	}, true
}
