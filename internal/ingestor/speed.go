package ingestor

import (
	"context"
	"log/slog"
	"time"

	"railsim/internal/geo"
	"railsim/internal/network"
	"railsim/pkg/overpass"
)

// SegmentSource looks up the speed limit of the rail around a point.
type SegmentSource interface {
	SegmentSpeed(ctx context.Context, lat, lon float64, radiusM int) (float64, bool, error)
}

// SpeedCache persists enriched limits between runs.
type SpeedCache interface {
	Get(ctx context.Context, segmentKey string) (float64, bool)
	Set(ctx context.Context, segmentKey string, kmh float64) error
}

// SpeedIngestor enriches graph segments with external speed limits. Lookups
// are sequential with a delay between requests; a failed lookup leaves the
// segment on its corridor default.
type SpeedIngestor struct {
	source   SegmentSource
	cache    SpeedCache
	maxFetch int
	delay    time.Duration
	logger   *slog.Logger
}

func NewSpeedIngestor(source SegmentSource, cache SpeedCache, maxFetch int, delay time.Duration, logger *slog.Logger) *SpeedIngestor {
	return &SpeedIngestor{
		source:   source,
		cache:    cache,
		maxFetch: maxFetch,
		delay:    delay,
		logger:   logger.With("component", "speed_ingestor"),
	}
}

// Enrich returns speed overrides keyed by network.SegmentKey.
func (i *SpeedIngestor) Enrich(ctx context.Context, segments []network.Segment) map[string]float64 {
	start := time.Now()
	overrides := make(map[string]float64)

	var pending []network.Segment
	for _, seg := range segments {
		if i.cache != nil {
			if v, ok := i.cache.Get(ctx, seg.Key); ok {
				overrides[seg.Key] = v
				continue
			}
		}
		pending = append(pending, seg)
	}
	cached := len(overrides)
	if len(pending) > i.maxFetch {
		pending = pending[:max(i.maxFetch, 0)]
	}

	fetched, failed := 0, 0
	for n, seg := range pending {
		if n > 0 && i.delay > 0 {
			select {
			case <-ctx.Done():
				i.logger.Warn("speed enrichment cancelled", "fetched", fetched, "remaining", len(pending)-n)
				return overrides
			case <-time.After(i.delay):
			}
		}

		mid := geo.Midpoint(seg.A.Position(), seg.B.Position())
		v, ok, err := i.source.SegmentSpeed(ctx, mid.Lat, mid.Lon, overpass.RadiusFor(seg.DistanceKm))
		if err != nil {
			failed++
			i.logger.Debug("speed lookup failed", "segment", seg.Key, "error", err)
			continue
		}
		if !ok {
			continue
		}

		overrides[seg.Key] = v
		fetched++
		if i.cache != nil {
			if err := i.cache.Set(ctx, seg.Key, v); err != nil {
				i.logger.Debug("failed to cache speed limit", "segment", seg.Key, "error", err)
			}
		}
	}

	i.logger.Info("speed enrichment completed",
		"segments", len(segments),
		"cached", cached,
		"fetched", fetched,
		"failed", failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return overrides
}
