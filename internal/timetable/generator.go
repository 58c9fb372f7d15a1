// Package timetable turns station sequences into dated stop events, either by
// synthesizing run times from a trapezoidal speed profile or by normalizing
// clock times supplied by a schedule feed.
package timetable

import (
	"log/slog"
	"math"
	"time"

	"github.com/cespare/xxhash/v2"

	"railsim/internal/domain"
	"railsim/internal/network"
)

const (
	// MaxPlausibleKmh is the implied leg speed above which supplied times
	// are discarded.
	MaxPlausibleKmh = 120.0

	// DefaultDeparture is the first departure used when no time is known.
	DefaultDeparture = 6 * time.Hour

	departureSlot = 5 * time.Minute
	minLeg        = time.Minute
)

// MajorHubs get an extra dwell bonus on top of the category dwell.
var MajorHubs = map[string]bool{
	"NDLS": true, "BCT": true, "MAS": true, "HWH": true,
	"PNBE": true, "LKO": true, "SC": true, "NGP": true,
	"BPL": true, "SBC": true, "JP": true, "ADI": true,
}

// Profile is the running profile of one train.
type Profile struct {
	Category  domain.Category
	CruiseKmh float64
}

// ProfileFor returns the profile of a category, optionally overridden by a
// feed average speed. Overrides are clamped to 30-130 km/h.
func ProfileFor(cat domain.Category, avgSpeedKmh float64) Profile {
	cruise := cat.CruiseKmh()
	if avgSpeedKmh > 0 {
		cruise = math.Min(130, math.Max(30, avgSpeedKmh))
	}
	return Profile{Category: cat, CruiseKmh: cruise}
}

// Outcome tells how a supplied schedule was turned into a pattern.
type Outcome int

const (
	OutcomeUnusable Outcome = iota
	OutcomeSupplied
	OutcomeSynthesized
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSupplied:
		return "supplied"
	case OutcomeSynthesized:
		return "synthesized"
	default:
		return "unusable"
	}
}

// Generator builds service patterns over a track network.
type Generator struct {
	resolver *network.Resolver
	logger   *slog.Logger
}

func NewGenerator(resolver *network.Resolver, logger *slog.Logger) *Generator {
	return &Generator{
		resolver: resolver,
		logger:   logger.With("component", "timetable"),
	}
}

// DepartureFor derives a stable first departure time-of-day for a train,
// aligned to five-minute slots.
func DepartureFor(trainID string) time.Duration {
	slots := uint64(24 * time.Hour / departureSlot)
	return time.Duration(xxhash.Sum64String(trainID)%slots) * departureSlot
}

// Connected drops stations missing from the graph or unreachable from the
// previously kept station, and collapses consecutive repeats.
func (g *Generator) Connected(stations []string) []string {
	graph := g.resolver.Graph()
	kept := make([]string, 0, len(stations))
	for _, id := range stations {
		if !graph.HasStation(id) {
			g.logger.Debug("dropping unknown station", "station", id)
			continue
		}
		if len(kept) == 0 {
			kept = append(kept, id)
			continue
		}
		prev := kept[len(kept)-1]
		if prev == id {
			continue
		}
		if !g.resolver.Connected(prev, id) {
			g.logger.Debug("dropping unconnected stop", "from", prev, "station", id)
			continue
		}
		kept = append(kept, id)
	}
	return kept
}

// Expand inserts the intermediate stations of every resolved leg so that
// consecutive stations are joined by a single edge.
func (g *Generator) Expand(stations []string) []string {
	kept := g.Connected(stations)
	if len(kept) < 2 {
		return kept
	}
	out := []string{kept[0]}
	for i := 0; i+1 < len(kept); i++ {
		path, _ := g.resolver.Resolve(kept[i], kept[i+1])
		out = append(out, path.Stations()[1:]...)
	}
	return out
}

// Synthesize builds a pattern from run times alone. The route is expanded
// over the graph first; the first departure is at depart.
func (g *Generator) Synthesize(route []string, prof Profile, depart time.Duration) Pattern {
	stations := g.Expand(route)
	if len(stations) < 2 {
		return Pattern{Synthesized: true}
	}

	dwell := time.Duration(prof.Category.DwellMinutes()) * time.Minute
	hubBonus := time.Duration(prof.Category.HubDwellBonusMinutes()) * time.Minute

	stops := make([]PatternStop, 0, len(stations))
	stops = append(stops, PatternStop{Station: stations[0], Arrival: depart, Departure: depart})

	t := depart
	for i := 1; i < len(stations); i++ {
		t += g.legTime(stations[i-1], stations[i], prof.CruiseKmh)
		arr := t
		dep := arr
		if i < len(stations)-1 {
			dep += dwell
			if MajorHubs[stations[i]] {
				dep += hubBonus
			}
		}
		stops = append(stops, PatternStop{Station: stations[i], Arrival: arr, Departure: dep})
		t = dep
	}

	return Pattern{Stops: stops, Synthesized: true}
}

func (g *Generator) legTime(from, to string, cruiseKmh float64) time.Duration {
	path, ok := g.resolver.Resolve(from, to)
	if !ok {
		return 0
	}
	var total time.Duration
	for _, e := range path {
		total += TravelTime(e.DistanceKm, math.Min(cruiseKmh, e.SpeedLimitKmh), AccelerationMS2)
	}
	return total
}

type timedStop struct {
	station  string
	arr, dep time.Duration
}

// Normalize turns a supplied stop list into a pattern. Unconnected stops are
// dropped. When every kept stop carries a time and no leg implies more than
// MaxPlausibleKmh, the supplied times are kept and intermediate stations are
// timed by distance; otherwise the whole pattern is synthesized.
func (g *Generator) Normalize(stops []domain.StopRecord, prof Profile) (Pattern, Outcome) {
	kept := g.connectedRecords(stops)
	if len(kept) < 2 {
		return Pattern{}, OutcomeUnusable
	}

	stations := make([]string, len(kept))
	for i, s := range kept {
		stations[i] = s.Station
	}

	timed, ok := g.supplied(kept)
	if !ok {
		return g.Synthesize(stations, prof, firstDeparture(kept)), OutcomeSynthesized
	}
	return g.interpolate(timed), OutcomeSupplied
}

func (g *Generator) connectedRecords(stops []domain.StopRecord) []domain.StopRecord {
	ids := make([]string, len(stops))
	for i, s := range stops {
		ids[i] = s.Station
	}
	connected := g.Connected(ids)

	out := make([]domain.StopRecord, 0, len(connected))
	j := 0
	for _, s := range stops {
		if j < len(connected) && s.Station == connected[j] {
			out = append(out, s)
			j++
		}
	}
	return out
}

func firstDeparture(stops []domain.StopRecord) time.Duration {
	if d, ok := ParseClock(stops[0].Departure); ok {
		return d
	}
	if d, ok := ParseClock(stops[0].Arrival); ok {
		return d
	}
	return DefaultDeparture
}

// supplied resolves rollovers and checks plausibility of the supplied times.
func (g *Generator) supplied(stops []domain.StopRecord) ([]timedStop, bool) {
	timed := make([]timedStop, 0, len(stops))
	var prev time.Duration
	for i, s := range stops {
		arr, okA := ParseClock(s.Arrival)
		dep, okD := ParseClock(s.Departure)
		switch {
		case !okA && !okD:
			return nil, false
		case !okA:
			arr = dep
		case !okD:
			dep = arr
		}

		arr = rollForward(arr, prev)
		dep = rollForward(dep, arr)
		if i == 0 {
			arr = dep
		}
		if i == len(stops)-1 {
			dep = arr
		}
		timed = append(timed, timedStop{station: s.Station, arr: arr, dep: dep})
		prev = dep
	}

	for i := 1; i < len(timed); i++ {
		a, b := timed[i-1], timed[i]
		km, _ := g.resolver.DistanceKm(a.station, b.station)
		elapsed := b.arr - a.dep
		if elapsed < minLeg {
			elapsed = minLeg
		}
		if implied := km / elapsed.Hours(); implied > MaxPlausibleKmh {
			g.logger.Debug("implausible leg speed",
				"from", a.station,
				"to", b.station,
				"implied_kmh", math.Round(implied),
			)
			return nil, false
		}
	}
	return timed, true
}

// rollForward moves a time-of-day past the day boundary until it is not
// earlier than ref.
func rollForward(t, ref time.Duration) time.Duration {
	for t < ref {
		t += 24 * time.Hour
	}
	return t
}

func (g *Generator) interpolate(timed []timedStop) Pattern {
	stops := []PatternStop{{Station: timed[0].station, Arrival: timed[0].arr, Departure: timed[0].dep}}
	for i := 1; i < len(timed); i++ {
		a, b := timed[i-1], timed[i]
		path, _ := g.resolver.Resolve(a.station, b.station)
		total := path.DistanceKm()
		window := b.arr - a.dep

		var cum float64
		for _, e := range path[:len(path)-1] {
			cum += e.DistanceKm
			at := a.dep
			if total > 0 {
				at += time.Duration(float64(window) * cum / total).Round(time.Second)
			}
			stops = append(stops, PatternStop{Station: e.To, Arrival: at, Departure: at})
		}
		stops = append(stops, PatternStop{Station: b.station, Arrival: b.arr, Departure: b.dep})
	}
	return Pattern{Stops: stops}
}
