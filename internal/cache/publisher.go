package cache

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"railsim/internal/domain"
	"railsim/internal/sim"
)

// Snapshot is the cached form of one tick.
type Snapshot struct {
	Seq        uint64              `json:"seq"`
	SimTime    time.Time           `json:"simTime"`
	Multiplier float64             `json:"multiplier"`
	Trains     []*domain.TrainView `json:"trains"`
	Risks      []domain.RiskView   `json:"risks"`
}

// TickPublisher mirrors the latest tick into the cache so other processes can
// read the live picture without a websocket.
type TickPublisher struct {
	cache  KV
	ttl    time.Duration
	logger *slog.Logger
}

func NewTickPublisher(cache KV, ttl time.Duration, logger *slog.Logger) *TickPublisher {
	return &TickPublisher{
		cache:  cache,
		ttl:    ttl,
		logger: logger.With("component", "tick_publisher"),
	}
}

func (p *TickPublisher) Publish(ctx context.Context, tick sim.Tick) {
	start := time.Now()

	snap := Snapshot{
		Seq:        tick.Seq,
		SimTime:    tick.SimTime,
		Multiplier: tick.Multiplier,
		Trains:     tick.Trains,
		Risks:      tick.Risks,
	}
	if err := SetJSONCompressed(ctx, p.cache, KeyTickLatest, snap, p.ttl); err != nil {
		p.logger.Warn("failed to publish tick", "seq", tick.Seq, "error", err)
		return
	}
	if err := SetJSON(ctx, p.cache, KeyRisksLatest, tick.Risks, p.ttl); err != nil {
		p.logger.Warn("failed to publish risks", "seq", tick.Seq, "error", err)
	}
	if err := p.cache.Set(ctx, KeyClock, []byte(strconv.FormatInt(tick.SimTime.UnixMilli(), 10)), p.ttl); err != nil {
		p.logger.Warn("failed to publish clock", "seq", tick.Seq, "error", err)
	}

	p.logger.Debug("published tick",
		"seq", tick.Seq,
		"trains", len(tick.Trains),
		"risks", len(tick.Risks),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// Latest reads back the last published snapshot.
func (p *TickPublisher) Latest(ctx context.Context) (*Snapshot, bool, error) {
	var snap Snapshot
	ok, err := GetJSONCompressed(ctx, p.cache, KeyTickLatest, &snap)
	if err != nil || !ok {
		return nil, false, err
	}
	return &snap, true, nil
}

// SpeedLimits caches enriched segment speed limits.
type SpeedLimits struct {
	cache KV
	ttl   time.Duration
}

func NewSpeedLimits(cache KV, ttl time.Duration) *SpeedLimits {
	return &SpeedLimits{cache: cache, ttl: ttl}
}

func (s *SpeedLimits) Get(ctx context.Context, segmentKey string) (float64, bool) {
	data, err := s.cache.Get(ctx, KeySpeedLimit(segmentKey))
	if err != nil || data == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func (s *SpeedLimits) Set(ctx context.Context, segmentKey string, kmh float64) error {
	return s.cache.Set(ctx, KeySpeedLimit(segmentKey), []byte(strconv.FormatFloat(kmh, 'f', -1, 64)), s.ttl)
}
