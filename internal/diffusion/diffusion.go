// Package diffusion propagates per-train occupancy mass over the station
// graph to estimate where a train could plausibly be beyond the horizon the
// schedule proves directly.
package diffusion

import (
	"math"

	"railsim/internal/network"
)

// Params tunes the diffusion step.
type Params struct {
	// Rate is the share of a node's mass pushed to its neighbors per step.
	Rate float64
	// Decay is applied to the mass that stays on the node.
	Decay float64
	// Threshold below which a node's mass is ignored.
	Threshold float64
}

func DefaultParams() Params {
	return Params{Rate: 0.3, Decay: 0.05, Threshold: 1e-4}
}

// Field maps station ids to non-negative occupancy mass.
type Field map[string]float64

// Seed splits unit mass between the endpoints of an edge according to how far
// along it the train is.
func Seed(e *network.Edge, fraction float64) Field {
	f := math.Max(0, math.Min(1, fraction))
	field := Field{}
	field[e.From] += 1 - f
	field[e.To] += f
	return field
}

// SeedStation places unit mass on a single station.
func SeedStation(id string) Field {
	return Field{id: 1}
}

// Total returns the sum of all mass.
func (f Field) Total() float64 {
	var s float64
	for _, m := range f {
		s += m
	}
	return s
}

// Step advances the field once. All pushes are computed from the current
// field before any are committed.
func (f Field) Step(g *network.Graph, p Params) Field {
	next := make(Field, len(f))
	for node, mass := range f {
		if mass <= p.Threshold {
			continue
		}
		out := g.Outgoing(node)
		if len(out) == 0 {
			next[node] += mass * (1 - p.Decay)
			continue
		}
		push := mass * p.Rate
		share := push / float64(len(out))
		for _, e := range out {
			next[e.To] += share
		}
		next[node] += (mass - push) * (1 - p.Decay)
	}
	return next
}

// Advance applies n steps.
func (f Field) Advance(g *network.Graph, p Params, n int) Field {
	cur := f
	for i := 0; i < n; i++ {
		cur = cur.Step(g, p)
	}
	return cur
}

// Overlap sums the shared mass of two fields over the given nodes, counting
// each node once, and clamps the result to [0, 1].
func Overlap(a, b Field, nodes ...string) float64 {
	seen := make(map[string]struct{}, len(nodes))
	var s float64
	for _, n := range nodes {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		s += math.Min(a[n], b[n])
	}
	return math.Max(0, math.Min(1, s))
}
