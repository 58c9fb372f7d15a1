package sim

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"railsim/internal/domain"
)

// TrainStore keeps the latest presentation records and computes deltas.
type TrainStore interface {
	Update(trains []*domain.TrainView) []domain.TrainDelta
	SetRisks(risks []domain.RiskView)
}

// Broadcaster fans tick results out to live clients.
type Broadcaster interface {
	Broadcast(deltas []domain.TrainDelta)
	BroadcastRisks(risks []domain.RiskView)
	BroadcastClock(clock domain.ClockView)
}

// Publisher receives every tick, e.g. to mirror it into a shared cache.
type Publisher interface {
	Publish(ctx context.Context, tick Tick)
}

// Driver runs the engine on a fixed real-time period. Each tick is processed
// synchronously, so a slow tick delays the next one instead of overlapping.
type Driver struct {
	engine      *Engine
	store       TrainStore
	broadcaster Broadcaster
	publisher   Publisher
	interval    time.Duration
	logger      *slog.Logger

	ready   bool
	readyMu sync.RWMutex
}

func NewDriver(engine *Engine, store TrainStore, broadcaster Broadcaster, interval time.Duration, logger *slog.Logger) *Driver {
	return &Driver{
		engine:      engine,
		store:       store,
		broadcaster: broadcaster,
		interval:    interval,
		logger:      logger.With("component", "driver"),
	}
}

// SetPublisher installs an optional tick publisher.
func (d *Driver) SetPublisher(p Publisher) {
	d.publisher = p
}

// Run ticks until ctx is cancelled.
func (d *Driver) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.step(ctx)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("driver stopped", "ticks", d.engine.State().Clock.Ticks())
			return
		case <-ticker.C:
			d.step(ctx)
		}
	}
}

func (d *Driver) step(ctx context.Context) {
	tick := d.engine.Tick(ctx)

	deltas := d.store.Update(tick.Trains)
	d.store.SetRisks(tick.Risks)

	if d.broadcaster != nil {
		d.broadcaster.Broadcast(deltas)
		d.broadcaster.BroadcastRisks(tick.Risks)
		d.broadcaster.BroadcastClock(d.engine.Clock())
	}
	if d.publisher != nil {
		d.publisher.Publish(ctx, tick)
	}

	if !d.IsReady() {
		d.setReady(true)
		d.logger.Info("simulation ready",
			"trains", len(tick.Trains),
			"located", tick.Located,
			"sim_time", tick.SimTime,
		)
	}

	d.logger.Debug("tick completed",
		"seq", tick.Seq,
		"sim_time", tick.SimTime,
		"located", tick.Located,
		"risks", len(tick.Risks),
		"deltas", len(deltas),
		"duration_ms", tick.Duration.Milliseconds(),
	)
	if tick.Duration > d.interval {
		d.logger.Warn("tick overran interval",
			"duration_ms", tick.Duration.Milliseconds(),
			"interval_ms", d.interval.Milliseconds(),
		)
	}
}

func (d *Driver) IsReady() bool {
	d.readyMu.RLock()
	defer d.readyMu.RUnlock()
	return d.ready
}

func (d *Driver) setReady(ready bool) {
	d.readyMu.Lock()
	defer d.readyMu.Unlock()
	d.ready = ready
}
