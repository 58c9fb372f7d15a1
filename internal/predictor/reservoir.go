// Package predictor implements a small echo state network whose linear
// readout is adapted online. Its output is an auxiliary progress estimate and
// never drives train positions.
package predictor

import (
	"math"
	"math/rand/v2"
)

// Config sizes and tunes a reservoir.
type Config struct {
	Inputs          int
	Size            int
	Density         float64
	WeightScale     float64
	InputScale      float64
	SpectralRadius  float64
	PowerIterations int
	Leak            float64
	Ridge           float64
}

func DefaultConfig() Config {
	return Config{
		Inputs:          4,
		Size:            64,
		Density:         0.05,
		WeightScale:     0.5,
		InputScale:      0.5,
		SpectralRadius:  0.9,
		PowerIterations: 8,
		Leak:            0.6,
		Ridge:           1e-2,
	}
}

// Reservoir is a leaky tanh reservoir with a recursive least-squares readout.
// The covariance update keeps only the diagonal of P in the r^T P term, so it
// matches exact RLS on the first update and drifts from it afterwards.
type Reservoir struct {
	cfg  Config
	win  [][]float64
	w    [][]float64
	r    []float64
	wout []float64
	p    [][]float64
	y    float64
	// start vector of the radius estimate
	start []float64
}

// New builds a reservoir whose random weights are fully determined by seed.
func New(cfg Config, seed uint64) *Reservoir {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	n := cfg.Size

	res := &Reservoir{
		cfg:  cfg,
		win:  make([][]float64, n),
		w:    make([][]float64, n),
		r:    make([]float64, n),
		wout: make([]float64, n),
		p:    make([][]float64, n),
	}
	for i := 0; i < n; i++ {
		res.win[i] = make([]float64, cfg.Inputs)
		for k := range res.win[i] {
			res.win[i][k] = (rng.Float64()*2 - 1) * cfg.InputScale
		}
		res.w[i] = make([]float64, n)
		for j := range res.w[i] {
			if rng.Float64() < cfg.Density {
				res.w[i][j] = (rng.Float64()*2 - 1) * cfg.WeightScale
			}
		}
	}

	res.start = make([]float64, n)
	for i := range res.start {
		res.start[i] = rng.Float64()
	}
	if eig := estimateRadius(res.w, res.start, cfg.PowerIterations); eig > 1e-6 {
		scale := cfg.SpectralRadius / eig
		for i := range res.w {
			for j := range res.w[i] {
				res.w[i][j] *= scale
			}
		}
	}

	for i := 0; i < n; i++ {
		res.p[i] = make([]float64, n)
		res.p[i][i] = 1 / cfg.Ridge
	}
	return res
}

func mul(w [][]float64, v []float64) []float64 {
	out := make([]float64, len(w))
	for i, row := range w {
		var s float64
		for j, x := range row {
			s += x * v[j]
		}
		out[i] = s
	}
	return out
}

func norm(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x * x
	}
	return math.Sqrt(s)
}

// estimateRadius approximates the spectral radius with a few power
// iterations from a fixed start vector.
func estimateRadius(w [][]float64, start []float64, iterations int) float64 {
	v := append([]float64(nil), start...)
	for k := 0; k < iterations; k++ {
		v = mul(w, v)
		nv := norm(v) + 1e-9
		for i := range v {
			v[i] /= nv
		}
	}
	return norm(mul(w, v)) + 1e-9
}

// Step feeds one input vector through the reservoir and returns the readout
// clamped to [-1, 1].
func (res *Reservoir) Step(u []float64) float64 {
	n := res.cfg.Size
	pre := mul(res.w, res.r)
	for i := 0; i < n; i++ {
		s := pre[i]
		for k := 0; k < res.cfg.Inputs && k < len(u); k++ {
			s += res.win[i][k] * u[k]
		}
		res.r[i] = (1-res.cfg.Leak)*res.r[i] + res.cfg.Leak*math.Tanh(s)
	}

	res.y = res.readout()
	return clamp(res.y, -1, 1)
}

func (res *Reservoir) readout() float64 {
	var y float64
	for i, w := range res.wout {
		y += w * res.r[i]
	}
	return y
}

// Output returns the last unclamped readout.
func (res *Reservoir) Output() float64 {
	return res.y
}

// Train adapts the readout toward target for the current reservoir state.
func (res *Reservoir) Train(target float64) {
	n := res.cfg.Size
	pr := mul(res.p, res.r)

	denom := 1.0
	for i := 0; i < n; i++ {
		denom += res.r[i] * pr[i]
	}
	k := make([]float64, n)
	for i := range k {
		k[i] = pr[i] / denom
	}

	err := target - res.readout()
	for i := 0; i < n; i++ {
		res.wout[i] += k[i] * err
	}

	diag := make([]float64, n)
	for j := 0; j < n; j++ {
		diag[j] = res.p[j][j]
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			res.p[i][j] -= k[i] * res.r[j] * diag[j]
		}
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(lo, math.Min(hi, v))
}
