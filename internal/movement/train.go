package movement

import (
	"sync/atomic"
	"time"

	"railsim/internal/domain"
	"railsim/internal/timetable"
)

// Train is a simulated train. Position fields are owned by the tick loop;
// only the stopped flag may be written from other goroutines.
type Train struct {
	ID         string
	Name       string
	Category   domain.Category
	SpeedRange domain.SpeedRange
	Schedule   *timetable.Schedule

	state   State
	active  bool
	stopped atomic.Bool
}

func NewTrain(id, name string, cat domain.Category, sched *timetable.Schedule) *Train {
	return &Train{
		ID:         id,
		Name:       name,
		Category:   cat,
		SpeedRange: cat.SpeedRange(),
		Schedule:   sched,
	}
}

// State returns the last located state and whether it came from a run.
func (t *Train) State() (State, bool) {
	return t.state, t.active
}

// Stop freezes the train in place from the next tick on.
func (t *Train) Stop() {
	t.stopped.Store(true)
}

// Stopped reports whether the train was forced to stop.
func (t *Train) Stopped() bool {
	return t.stopped.Load()
}

// Locate moves the train to its scheduled position at the given instant.
// Stopped trains keep their frozen state. When no run governs the instant
// the train keeps its last position and is marked inactive.
func (l *Locator) Locate(t *Train, at time.Time) bool {
	if t.Stopped() {
		t.state.At = at
		t.state.SpeedKmh = 0
		return t.active
	}

	s, ok := l.PredictAt(t.Schedule, at)
	if !ok {
		t.active = false
		if t.state.At.IsZero() {
			t.state = l.origin(t, at)
		}
		t.state.At = at
		t.state.SpeedKmh = 0
		return false
	}
	t.state = s
	t.active = true
	return true
}

// Project returns the train's state at a future instant without touching its
// live fields. Stopped trains stay where they are.
func (l *Locator) Project(t *Train, at time.Time) (State, bool) {
	if t.Stopped() {
		s := t.state
		s.At = at
		s.SpeedKmh = 0
		return s, t.active
	}
	return l.PredictAt(t.Schedule, at)
}

func (l *Locator) origin(t *Train, at time.Time) State {
	if t.Schedule == nil {
		return State{At: at, Stationary: true}
	}
	stops := t.Schedule.Pattern().Stops
	if len(stops) == 0 {
		return State{At: at, Stationary: true}
	}
	id := stops[0].Station
	s, ok := l.resolver.Graph().Station(id)
	if !ok {
		return State{At: at, Stationary: true}
	}
	return State{At: at, Position: s.Position(), FromStation: id, ToStation: id, Stationary: true}
}
