// Package evaluation scores the risk engine against a strict same-track
// ground truth and compares it with a naive distance-only detector.
package evaluation

import (
	"time"

	"railsim/internal/geo"
	"railsim/internal/movement"
	"railsim/internal/risk"
)

// Params selects the window and distance thresholds of an evaluation.
type Params struct {
	Horizon    time.Duration `json:"horizon"`
	Step       time.Duration `json:"step"`
	TruthKm    float64       `json:"truthKm"`
	OursKm     float64       `json:"oursKm"`
	BaselineKm float64       `json:"baselineKm"`
}

func DefaultParams() Params {
	return Params{
		Horizon:    60 * time.Minute,
		Step:       60 * time.Second,
		TruthKm:    1,
		OursKm:     2,
		BaselineKm: 5,
	}
}

// Confusion counts pair outcomes against the ground truth.
type Confusion struct {
	TP int `json:"tp"`
	FP int `json:"fp"`
	TN int `json:"tn"`
	FN int `json:"fn"`
}

// Metrics summarizes a confusion matrix. Undefined ratios are zero.
type Metrics struct {
	Confusion
	Accuracy         float64 `json:"accuracy"`
	Sensitivity      float64 `json:"sensitivity"`
	Specificity      float64 `json:"specificity"`
	BalancedAccuracy float64 `json:"balancedAccuracy"`
	F1               float64 `json:"f1"`
	Flagged          int     `json:"flagged"`
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// Summarize derives metrics from raw counts.
func Summarize(c Confusion) Metrics {
	m := Metrics{Confusion: c, Flagged: c.TP + c.FP}
	m.Accuracy = ratio(c.TP+c.TN, c.TP+c.TN+c.FP+c.FN)
	m.Sensitivity = ratio(c.TP, c.TP+c.FN)
	m.Specificity = ratio(c.TN, c.TN+c.FP)
	m.BalancedAccuracy = (m.Sensitivity + m.Specificity) / 2
	m.F1 = ratio(2*c.TP, 2*c.TP+c.FP+c.FN)
	return m
}

// Compare counts predicted pairs against truth over the pair universe.
func Compare(universe []string, truth, predicted map[string]bool) Confusion {
	var c Confusion
	for _, key := range universe {
		switch t, p := truth[key], predicted[key]; {
		case t && p:
			c.TP++
		case !t && p:
			c.FP++
		case t && !p:
			c.FN++
		default:
			c.TN++
		}
	}
	return c
}

// Report is the outcome of one evaluation run.
type Report struct {
	Params    Params  `json:"params"`
	Pairs     int     `json:"pairs"`
	Truth     int     `json:"truth"`
	Engine    Metrics `json:"engine"`
	Baseline  Metrics `json:"baseline"`
	Generated string  `json:"generated"`
}

// Evaluator runs batch evaluations over a fleet.
type Evaluator struct {
	proj   risk.Projector
	engine *risk.Engine
}

// New returns an evaluator. The engine is used as configured except for its
// distance threshold, which each run overrides with Params.OursKm.
func New(proj risk.Projector, engine *risk.Engine) *Evaluator {
	return &Evaluator{proj: proj, engine: engine}
}

// Run samples the window starting at now. Truth flags pairs on the same
// physical track within TruthKm at some step. The baseline flags pairs within
// BaselineKm regardless of topology. The engine flags the pairs its
// untruncated scan reports within OursKm, whatever the record's source.
func (ev *Evaluator) Run(trains []*movement.Train, now time.Time, p Params) Report {
	if p.Step <= 0 {
		p.Step = DefaultParams().Step
	}
	universe := pairUniverse(trains)
	truth := make(map[string]bool)
	baseline := make(map[string]bool)

	for offset := time.Duration(0); offset <= p.Horizon; offset += p.Step {
		at := now.Add(offset)
		states := make([]movement.State, len(trains))
		ok := make([]bool, len(trains))
		for i, t := range trains {
			states[i], ok[i] = ev.proj.Project(t, at)
		}

		for i := 0; i < len(trains); i++ {
			if !ok[i] {
				continue
			}
			for j := i + 1; j < len(trains); j++ {
				if !ok[j] {
					continue
				}
				key := risk.PairKey(trains[i].ID, trains[j].ID)
				dist := geo.DistanceKm(states[i].Position, states[j].Position)
				if dist <= p.BaselineKm {
					baseline[key] = true
				}
				if dist <= p.TruthKm && sameTrack(states[i], states[j]) {
					truth[key] = true
				}
			}
		}
	}

	cfg := ev.engine.Config()
	cfg.DistanceKm = p.OursKm
	eng := risk.NewEngineFrom(ev.engine, cfg)

	ours := make(map[string]bool)
	for _, r := range eng.Scan(trains, now, p.Horizon, p.Step) {
		if r.DistanceKm <= p.OursKm {
			ours[r.PairKey()] = true
		}
	}

	return Report{
		Params:    p,
		Pairs:     len(universe),
		Truth:     len(truth),
		Engine:    Summarize(Compare(universe, truth, ours)),
		Baseline:  Summarize(Compare(universe, truth, baseline)),
		Generated: now.Format(time.RFC3339),
	}
}

func sameTrack(a, b movement.State) bool {
	return a.Moving() && b.Moving() && a.Edge.PhysicalTrack() == b.Edge.PhysicalTrack()
}

func pairUniverse(trains []*movement.Train) []string {
	keys := make([]string, 0, len(trains)*(len(trains)-1)/2)
	for i := 0; i < len(trains); i++ {
		for j := i + 1; j < len(trains); j++ {
			keys = append(keys, risk.PairKey(trains[i].ID, trains[j].ID))
		}
	}
	return keys
}
