package predictor

import (
	"math"
	"time"

	"github.com/cespare/xxhash/v2"

	"railsim/internal/movement"
)

// Features builds the reservoir input: normalized speed, normalized
// acceleration, an at-station flag and the normalized segment speed limit.
func Features(speedKmh, prevSpeedKmh float64, dt time.Duration, atStation bool, vMaxKmh float64) []float64 {
	seconds := math.Max(dt.Seconds(), 1)
	accel := (speedKmh - prevSpeedKmh) / seconds

	station := 0.0
	if atStation {
		station = 1
	}
	return []float64{
		clamp(speedKmh/200, 0, 1),
		clamp(accel/10, -1, 1),
		station,
		clamp(vMaxKmh/200, 0, 1),
	}
}

type tracker struct {
	res       *Reservoir
	prevSpeed float64
	progress  float64
}

// Bank keeps one reservoir per train. It is used only from the tick loop and
// is not safe for concurrent use.
type Bank struct {
	cfg      Config
	seed     uint64
	trackers map[string]*tracker
}

func NewBank(cfg Config, seed uint64) *Bank {
	return &Bank{
		cfg:      cfg,
		seed:     seed,
		trackers: make(map[string]*tracker),
	}
}

// Observe steps the train's reservoir with its latest state, trains the
// readout toward the observed path fraction when the train is moving, and
// returns the predicted progress clamped to [0, 1].
func (b *Bank) Observe(trainID string, s movement.State, dt time.Duration) float64 {
	t, ok := b.trackers[trainID]
	if !ok {
		t = &tracker{
			res:       New(b.cfg, b.seed^xxhash.Sum64String(trainID)),
			prevSpeed: s.SpeedKmh,
		}
		b.trackers[trainID] = t
	}

	vMax := 0.0
	if s.Edge != nil {
		vMax = s.Edge.SpeedLimitKmh
	}
	y := t.res.Step(Features(s.SpeedKmh, t.prevSpeed, dt, s.Stationary, vMax))
	if s.Moving() {
		t.res.Train(s.Fraction)
	}
	t.prevSpeed = s.SpeedKmh
	t.progress = clamp(y, 0, 1)
	return t.progress
}

// Progress returns the last predicted progress of a train.
func (b *Bank) Progress(trainID string) float64 {
	if t, ok := b.trackers[trainID]; ok {
		return t.progress
	}
	return 0
}

// Forget drops the reservoir of a train.
func (b *Bank) Forget(trainID string) {
	delete(b.trackers, trainID)
}

// Len returns the number of tracked trains.
func (b *Bank) Len() int {
	return len(b.trackers)
}
