package sim

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"
)

// Clock is the process-wide simulation clock. Every tick advances it by the
// tick duration times the current speed multiplier. Reads and multiplier
// writes are lock-free.
type Clock struct {
	now        atomic.Int64
	tick       time.Duration
	multiplier atomic.Uint64
	ticks      atomic.Uint64
	loc        *time.Location
}

func NewClock(start time.Time, tick time.Duration, multiplier float64) (*Clock, error) {
	if tick <= 0 {
		return nil, fmt.Errorf("tick duration must be positive, got %s", tick)
	}
	c := &Clock{tick: tick, loc: start.Location()}
	c.now.Store(start.UnixNano())
	if err := c.SetMultiplier(multiplier); err != nil {
		return nil, err
	}
	return c, nil
}

// Now returns the current simulation time.
func (c *Clock) Now() time.Time {
	return time.Unix(0, c.now.Load()).In(c.loc)
}

// Multiplier returns the current speed multiplier.
func (c *Clock) Multiplier() float64 {
	return math.Float64frombits(c.multiplier.Load())
}

// SetMultiplier changes the speed multiplier. Values that are not strictly
// positive and finite are rejected and leave the clock unchanged.
func (c *Clock) SetMultiplier(m float64) error {
	if !(m > 0) || math.IsInf(m, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidMultiplier, m)
	}
	c.multiplier.Store(math.Float64bits(m))
	return nil
}

// Advance moves the clock one tick forward and returns the new time.
func (c *Clock) Advance() time.Time {
	step := time.Duration(float64(c.tick) * c.Multiplier())
	c.now.Add(int64(step))
	c.ticks.Add(1)
	return c.Now()
}

// Ticks returns how many times the clock has advanced.
func (c *Clock) Ticks() uint64 {
	return c.ticks.Load()
}

// TickDuration returns the unscaled simulated duration of one tick.
func (c *Clock) TickDuration() time.Duration {
	return c.tick
}
