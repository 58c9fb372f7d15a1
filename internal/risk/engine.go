// Package risk scans the near future for pairs of trains that may come into
// conflict on shared or adjoining track.
package risk

import (
	"math"
	"sort"
	"time"

	"railsim/internal/diffusion"
	"railsim/internal/geo"
	"railsim/internal/movement"
	"railsim/internal/network"
)

// Projector predicts train states without mutating trains.
type Projector interface {
	Project(t *movement.Train, at time.Time) (movement.State, bool)
}

// Engine runs stateless risk passes.
type Engine struct {
	cfg   Config
	graph *network.Graph
	proj  Projector
}

func NewEngine(cfg Config, graph *network.Graph, proj Projector) *Engine {
	return &Engine{cfg: cfg, graph: graph, proj: proj}
}

// NewEngineFrom returns an engine sharing graph and projector with e but
// using cfg.
func NewEngineFrom(e *Engine, cfg Config) *Engine {
	return NewEngine(cfg, e.graph, e.proj)
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Classify derives the pair geometry from two bearings.
func (c Config) Classify(bearingA, bearingB float64) Classification {
	opposed := geo.NormalizeDeg(bearingA - bearingB - 180)
	if opposed < c.HeadOnLowDeg || opposed > c.HeadOnHighDeg {
		return HeadOn
	}
	diff := geo.NormalizeDeg(bearingA - bearingB)
	if diff <= c.SameDirLowDeg || diff >= c.SameDirHighDeg {
		return RearEnd
	}
	return Proximity
}

type sample struct {
	train *movement.Train
	state movement.State
}

// trackOffset is a train's distance from the lexicographically smaller
// endpoint of its physical track, so trains on sibling edges compare.
func trackOffset(s movement.State) float64 {
	if s.Edge.From < s.Edge.To {
		return s.EdgeKm
	}
	return s.Edge.DistanceKm - s.EdgeKm
}

// Compute runs a pass with the configured window and returns the top-N
// ranked records.
func (e *Engine) Compute(trains []*movement.Train, now time.Time) []Record {
	records := e.Scan(trains, now, e.cfg.Horizon, e.cfg.Step)
	if e.cfg.TopN > 0 && len(records) > e.cfg.TopN {
		records = records[:e.cfg.TopN]
	}
	return records
}

// Scan samples every step up to horizon and returns one ranked record per
// risky pair. Trains without a predicted state at a step are left out of that
// step only.
func (e *Engine) Scan(trains []*movement.Train, now time.Time, horizon, step time.Duration) []Record {
	if step <= 0 {
		step = e.cfg.Step
	}

	fields := e.seedFields(trains, now)
	fieldSteps := 0

	best := make(map[string]Record)
	for offset := time.Duration(0); offset <= horizon; offset += step {
		at := now.Add(offset)

		if e.cfg.DiffusionInterval > 0 {
			want := int(offset / e.cfg.DiffusionInterval)
			for ; fieldSteps < want; fieldSteps++ {
				for id, f := range fields {
					fields[id] = f.Step(e.graph, e.cfg.Diffusion)
				}
			}
		}

		for _, r := range e.scanStep(trains, at, offset, fields) {
			key := r.PairKey()
			if cur, ok := best[key]; !ok || moreUrgent(r, cur) {
				best[key] = r
			}
		}
	}

	records := make([]Record, 0, len(best))
	for _, r := range best {
		records = append(records, r)
	}
	Rank(records)
	return records
}

func (e *Engine) seedFields(trains []*movement.Train, now time.Time) map[string]diffusion.Field {
	fields := make(map[string]diffusion.Field, len(trains))
	for _, t := range trains {
		s, ok := e.proj.Project(t, now)
		if !ok {
			continue
		}
		if s.Moving() {
			fields[t.ID] = diffusion.Seed(s.Edge, s.EdgeFraction())
		} else if s.FromStation != "" {
			fields[t.ID] = diffusion.SeedStation(s.FromStation)
		}
	}
	return fields
}

func (e *Engine) scanStep(trains []*movement.Train, at time.Time, offset time.Duration, fields map[string]diffusion.Field) []Record {
	byTrack := make(map[string][]sample)
	byStation := make(map[string][]sample)
	for _, t := range trains {
		s, ok := e.proj.Project(t, at)
		if !ok || !s.Moving() {
			continue
		}
		smp := sample{train: t, state: s}
		byTrack[s.Edge.PhysicalTrack()] = append(byTrack[s.Edge.PhysicalTrack()], smp)
		byStation[s.Edge.From] = append(byStation[s.Edge.From], smp)
		byStation[s.Edge.To] = append(byStation[s.Edge.To], smp)
	}

	seen := make(map[string]struct{})
	var out []Record

	for _, group := range byTrack {
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				a, b := group[i], group[j]
				seen[PairKey(a.train.ID, b.train.ID)] = struct{}{}
				if r, ok := e.evaluate(a, b, group, true, at, offset, fields); ok {
					out = append(out, r)
				}
			}
		}
	}

	// Trains on different tracks meeting at a station: the station separates
	// them, so only diffusion risk can surface.
	for _, group := range byStation {
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				a, b := group[i], group[j]
				key := PairKey(a.train.ID, b.train.ID)
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				if r, ok := e.evaluate(a, b, nil, false, at, offset, fields); ok {
					out = append(out, r)
				}
			}
		}
	}
	return out
}

func (e *Engine) evaluate(a, b sample, group []sample, sameTrack bool, at time.Time, offset time.Duration, fields map[string]diffusion.Field) (Record, bool) {
	if a.train.ID > b.train.ID {
		a, b = b, a
	}
	dist := geo.DistanceKm(a.state.Position, b.state.Position)

	geometric := 0.0
	if sameTrack && dist <= e.cfg.DistanceKm && !blocked(a, b, group) && e.converging(a, b, at, dist) {
		geometric = e.cfg.GeometricScore
	}

	fa, fb := fields[a.train.ID], fields[b.train.ID]
	spread := diffusion.Overlap(fa, fb, a.state.Edge.From, a.state.Edge.To, b.state.Edge.From, b.state.Edge.To)

	score := math.Max(geometric, spread)
	if score < e.cfg.MinScore {
		return Record{}, false
	}

	source := SourceDiffusion
	if geometric > 0 && geometric >= spread {
		source = SourceGeometric
	}

	return Record{
		TrainA:         a.train.ID,
		TrainB:         b.train.ID,
		TrackID:        a.state.Edge.TrackID,
		Classification: e.cfg.Classify(a.state.BearingDeg, b.state.BearingDeg),
		DistanceKm:     dist,
		TimeToConflict: offset,
		Score:          score,
		Source:         source,
		At:             at,
	}, true
}

// blocked reports whether a third train on the same physical track lies
// strictly between a and b.
func blocked(a, b sample, group []sample) bool {
	lo, hi := trackOffset(a.state), trackOffset(b.state)
	if lo > hi {
		lo, hi = hi, lo
	}
	for _, c := range group {
		if c.train == a.train || c.train == b.train {
			continue
		}
		if x := trackOffset(c.state); x > lo && x < hi {
			return true
		}
	}
	return false
}

func (e *Engine) converging(a, b sample, at time.Time, dist float64) bool {
	later := at.Add(e.cfg.ConvergeProbe)
	sa, okA := e.proj.Project(a.train, later)
	sb, okB := e.proj.Project(b.train, later)
	if !okA || !okB {
		return false
	}
	return geo.DistanceKm(sa.Position, sb.Position) < dist
}

func moreUrgent(r, cur Record) bool {
	if r.Score != cur.Score {
		return r.Score > cur.Score
	}
	return r.TimeToConflict < cur.TimeToConflict
}

// Rank orders records by score, then sooner conflict, then pair key.
func Rank(records []Record) {
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.TimeToConflict != b.TimeToConflict {
			return a.TimeToConflict < b.TimeToConflict
		}
		return a.PairKey() < b.PairKey()
	})
}
