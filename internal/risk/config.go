package risk

import (
	"time"

	"railsim/internal/diffusion"
)

// Config holds the tunable thresholds of the risk pass. The angular limits
// and the fusion threshold are empirical and exposed for tuning.
type Config struct {
	Horizon time.Duration
	Step    time.Duration

	// DistanceKm is the straight-line distance under which two trains on
	// the same track are geometrically at risk.
	DistanceKm float64
	// ConvergeProbe is how far ahead distances are compared to decide
	// whether two trains are closing in.
	ConvergeProbe time.Duration

	HeadOnLowDeg   float64
	HeadOnHighDeg  float64
	SameDirLowDeg  float64
	SameDirHighDeg float64

	GeometricScore float64
	MinScore       float64
	TopN           int

	Diffusion         diffusion.Params
	DiffusionInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Horizon:           30 * time.Minute,
		Step:              30 * time.Second,
		DistanceKm:        2,
		ConvergeProbe:     10 * time.Second,
		HeadOnLowDeg:      60,
		HeadOnHighDeg:     300,
		SameDirLowDeg:     30,
		SameDirHighDeg:    330,
		GeometricScore:    0.9,
		MinScore:          0.35,
		TopN:              20,
		Diffusion:         diffusion.DefaultParams(),
		DiffusionInterval: 5 * time.Minute,
	}
}
