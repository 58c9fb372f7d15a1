package ingestor

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"railsim/internal/config"
	"railsim/internal/domain"
	"railsim/internal/network"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const (
	stationsCSV  = "id,name,lat,lon,state\nA,Alpha,10,77,K\nB,Beta,10,77.5,K\n"
	corridorsCSV = "corridor,name,speed_limit_kmh,seq,station\n0,AB,100,1,A\n0,AB,100,2,B\n"
)

func feedZip(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range map[string]string{"stations.csv": stationsCSV, "corridors.csv": corridorsCSV} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestFeedIngestorEmbedded(t *testing.T) {
	ds, err := NewFeedIngestor(&config.Config{}, testLogger()).Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, ds.Stations, 25)
	assert.Len(t, ds.Corridors, 12)
}

func TestFeedIngestorDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stations.csv"), []byte(stationsCSV), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "corridors.csv"), []byte(corridorsCSV), 0o644))

	ds, err := NewFeedIngestor(&config.Config{DataDir: dir}, testLogger()).Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, ds.Stations, 2)

	_, err = NewFeedIngestor(&config.Config{DataDir: t.TempDir()}, testLogger()).Load(context.Background())
	assert.Error(t, err)
}

func TestFeedIngestorRemoteUsesParseCache(t *testing.T) {
	body := feedZip(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	cfg := &config.Config{FeedURL: srv.URL, FeedCacheDir: t.TempDir(), FeedDownloadWait: 5 * time.Second}
	for range 2 {
		ds, err := NewFeedIngestor(cfg, testLogger()).Load(context.Background())
		require.NoError(t, err)
		assert.Len(t, ds.Stations, 2)
	}
	assert.Equal(t, int32(2), hits.Load())

	matches, err := filepath.Glob(filepath.Join(cfg.FeedCacheDir, "railsim-feed-cache", "*.gob.gz"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestFeedIngestorRemoteFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ds, err := NewFeedIngestor(&config.Config{FeedURL: srv.URL, FeedCacheDir: t.TempDir()}, testLogger()).Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, ds.Stations, 25)
}

type fakeSource struct {
	calls  int
	speeds map[float64]float64
}

func (f *fakeSource) SegmentSpeed(_ context.Context, lat, _ float64, _ int) (float64, bool, error) {
	f.calls++
	if lat < 0 {
		return 0, false, errors.New("overpass down")
	}
	v, ok := f.speeds[math.Round(lat)]
	return v, ok, nil
}

type memSpeeds map[string]float64

func (m memSpeeds) Get(_ context.Context, key string) (float64, bool) {
	v, ok := m[key]
	return v, ok
}

func (m memSpeeds) Set(_ context.Context, key string, kmh float64) error {
	m[key] = kmh
	return nil
}

func segment(key string, lat float64) network.Segment {
	return network.Segment{
		Key:        key,
		A:          &domain.Station{ID: key + "a", Lat: lat, Lon: 77},
		B:          &domain.Station{ID: key + "b", Lat: lat, Lon: 77.1},
		DistanceKm: 10,
	}
}

func TestSpeedIngestorEnrich(t *testing.T) {
	src := &fakeSource{speeds: map[float64]float64{10: 110, 11: 95}}
	cache := memSpeeds{"cached": 130}

	segs := []network.Segment{
		segment("cached", 12),
		segment("ok", 10),
		segment("failing", -5),
		segment("untagged", 13),
		segment("over-budget", 11),
	}

	got := NewSpeedIngestor(src, cache, 3, 0, testLogger()).Enrich(context.Background(), segs)

	assert.Equal(t, map[string]float64{"cached": 130, "ok": 110}, got)
	assert.Equal(t, 3, src.calls)
	assert.Equal(t, 110.0, cache["ok"])
	assert.NotContains(t, cache, "over-budget")
}

func TestSpeedIngestorHonorsCancellation(t *testing.T) {
	src := &fakeSource{speeds: map[float64]float64{10: 110}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := NewSpeedIngestor(src, nil, 10, time.Hour, testLogger()).Enrich(ctx, []network.Segment{segment("a", 10), segment("b", 10)})
	assert.Equal(t, 1, src.calls)
	assert.Len(t, got, 1)
}
