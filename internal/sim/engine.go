// Package sim owns the simulation state and runs the tick loop: advance the
// clock, move every train, update the reservoir predictors, scan for risks
// and hand the results to the presentation layer.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"railsim/internal/domain"
	"railsim/internal/evaluation"
	"railsim/internal/hub"
	"railsim/internal/movement"
	"railsim/internal/predictor"
	"railsim/internal/risk"
	"railsim/internal/timetable"
)

// Tick is the outcome of one simulation step.
type Tick struct {
	Seq        uint64
	SimTime    time.Time
	Multiplier float64
	Trains     []*domain.TrainView
	Risks      []domain.RiskView
	Located    int
	Duration   time.Duration
}

type EngineOptions struct {
	StopDelay     time.Duration
	TileZoomLevel int
}

// Engine advances the simulation. Tick and Evaluate are serialized; user
// commands only touch atomic fields and may be issued from any goroutine.
type Engine struct {
	state      *State
	locator    *movement.Locator
	predictors *predictor.Bank
	risks      *risk.Engine
	evaluator  *evaluation.Evaluator
	opts       EngineOptions
	logger     *slog.Logger

	mu     sync.Mutex
	latest Tick
	latMu  sync.RWMutex
}

func NewEngine(state *State, riskCfg risk.Config, predictorSeed uint64, opts EngineOptions, logger *slog.Logger) *Engine {
	loc := movement.NewLocator(state.Resolver)
	risks := risk.NewEngine(riskCfg, state.Graph, loc)
	return &Engine{
		state:      state,
		locator:    loc,
		predictors: predictor.NewBank(predictor.DefaultConfig(), predictorSeed),
		risks:      risks,
		evaluator:  evaluation.New(loc, risks),
		opts:       opts,
		logger:     logger.With("component", "engine"),
	}
}

// State returns the simulation state.
func (e *Engine) State() *State {
	return e.state
}

// Tick advances the clock once and recomputes every train and the risk list.
func (e *Engine) Tick(ctx context.Context) Tick {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	clock := e.state.Clock
	now := clock.Advance()
	dt := time.Duration(float64(clock.TickDuration()) * clock.Multiplier())

	trains := e.state.Trains()
	located := 0
	for _, t := range trains {
		if e.locator.Locate(t, now) {
			located++
		}
		if s, active := t.State(); active && !t.Stopped() {
			e.predictors.Observe(t.ID, s, dt)
		}
	}

	var records []risk.Record
	if ctx.Err() == nil {
		records = e.risks.Compute(trains, now)
	}
	atRisk := risk.AtRisk(records)

	views := make([]*domain.TrainView, 0, len(trains))
	for _, t := range trains {
		views = append(views, e.view(t, atRisk[t.ID]))
	}

	tick := Tick{
		Seq:        clock.Ticks(),
		SimTime:    now,
		Multiplier: clock.Multiplier(),
		Trains:     views,
		Risks:      RiskViews(records),
		Located:    located,
		Duration:   time.Since(start),
	}

	e.latMu.Lock()
	e.latest = tick
	e.latMu.Unlock()

	return tick
}

// Latest returns the most recent tick.
func (e *Engine) Latest() Tick {
	e.latMu.RLock()
	defer e.latMu.RUnlock()
	return e.latest
}

func (e *Engine) view(t *movement.Train, atRisk bool) *domain.TrainView {
	s, _ := t.State()
	v := &domain.TrainView{
		ID:                t.ID,
		DisplayName:       t.Name,
		Category:          t.Category,
		Lat:               s.Position.Lat,
		Lon:               s.Position.Lon,
		BearingDegrees:    round(s.BearingDeg, 1),
		SpeedKmh:          round(s.SpeedKmh, 1),
		FromStation:       s.FromStation,
		ToStation:         s.ToStation,
		PredictedProgress: round(e.predictors.Progress(t.ID), 3),
		IsAtRisk:          atRisk,
		IsStopped:         t.Stopped(),
		TileID:            hub.TileID(s.Position.Lat, s.Position.Lon, e.opts.TileZoomLevel),
		SimTime:           s.At,
	}
	if s.Edge != nil && !s.Stationary {
		v.CurrentEdge = s.Edge.Ref()
	}
	return v
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// RiskViews converts ranked records into presentation records.
func RiskViews(records []risk.Record) []domain.RiskView {
	views := make([]domain.RiskView, 0, len(records))
	for _, r := range records {
		views = append(views, domain.RiskView{
			TrainA:            r.TrainA,
			TrainB:            r.TrainB,
			TrackID:           r.TrackID,
			Classification:    string(r.Classification),
			DistanceKm:        round(r.DistanceKm, 2),
			MinutesToConflict: round(r.Minutes(), 2),
			TimeToConflict:    risk.FormatTTC(r.TimeToConflict),
			Urgency:           string(r.Urgency()),
			Score:             round(r.Score, 3),
			Source:            string(r.Source),
		})
	}
	return views
}

// SetSpeed changes the clock multiplier from the next tick on.
func (e *Engine) SetSpeed(multiplier float64) error {
	if err := e.state.Clock.SetMultiplier(multiplier); err != nil {
		return err
	}
	e.logger.Info("speed multiplier changed", "multiplier", multiplier)
	return nil
}

// RequestStop schedules a forced stop of one or two trains after the
// configured notification delay. Unknown ids reject the whole request.
func (e *Engine) RequestStop(ids []string) error {
	if len(ids) == 0 || len(ids) > 2 {
		return ErrStopTargets
	}
	targets := make([]*movement.Train, 0, len(ids))
	for _, id := range ids {
		t, ok := e.state.Train(id)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownTrain, id)
		}
		targets = append(targets, t)
	}

	apply := func() {
		for _, t := range targets {
			t.Stop()
		}
		e.logger.Info("trains stopped", "trains", ids)
	}
	if e.opts.StopDelay <= 0 {
		apply()
		return nil
	}
	time.AfterFunc(e.opts.StopDelay, apply)
	e.logger.Info("stop requested", "trains", ids, "delay_ms", e.opts.StopDelay.Milliseconds())
	return nil
}

// StopDelay is the latency between a stop request and its effect.
func (e *Engine) StopDelay() time.Duration {
	return e.opts.StopDelay
}

// Clock returns the presentation record of the clock.
func (e *Engine) Clock() domain.ClockView {
	c := e.state.Clock
	return domain.ClockView{
		SessionID:  e.state.SessionID,
		SimTime:    c.Now(),
		Multiplier: c.Multiplier(),
		Ticks:      c.Ticks(),
		TickSim:    c.TickDuration().String(),
	}
}

// Evaluate runs a batch evaluation from the current simulation time.
func (e *Engine) Evaluate(p evaluation.Params) evaluation.Report {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	report := e.evaluator.Run(e.state.Trains(), e.state.Clock.Now(), p)
	e.logger.Info("evaluation completed",
		"pairs", report.Pairs,
		"truth", report.Truth,
		"engine_f1", report.Engine.F1,
		"baseline_f1", report.Baseline.F1,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return report
}

// Schedule returns the dated run of a train for a day index.
func (e *Engine) Schedule(id string, day int) (*timetable.DaySchedule, error) {
	t, ok := e.state.Train(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTrain, id)
	}
	d, ok := t.Schedule.Day(day)
	if !ok {
		return nil, fmt.Errorf("%w: train %s day %d", ErrNoRun, id, day)
	}
	return d, nil
}

// Today returns the service day index of the current simulation time.
func (e *Engine) Today() int {
	trains := e.state.Trains()
	if len(trains) == 0 || trains[0].Schedule == nil {
		return 0
	}
	return trains[0].Schedule.DayIndex(e.state.Clock.Now())
}
