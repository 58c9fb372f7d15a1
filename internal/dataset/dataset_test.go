package dataset

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"railsim/internal/network"
	"railsim/pkg/feed"
)

func TestEmbeddedDatasetBuildsConnectedNetwork(t *testing.T) {
	ds, err := feed.NewParser(slog.New(slog.NewTextHandler(io.Discard, nil))).Parse(FS())
	require.NoError(t, err)

	assert.Len(t, ds.Stations, 25)
	require.Len(t, ds.Corridors, 12)
	assert.Equal(t, []string{"NDLS", "CNB", "LKO", "GKP", "PNBE", "HWH"}, ds.Corridors[0].StationIDs)
	assert.Equal(t, 110.0, ds.Corridors[0].SpeedLimitKmh)

	g := network.Build(ds.Stations, ds.Corridors, network.BuildOptions{
		DoubleTrackLead: network.DefaultDoubleTrackLead,
		DefaultSpeedKmh: network.DefaultSpeedLimitKmh,
	})
	r := network.NewResolver(g)

	for _, pair := range [][2]string{{"TVC", "HWH"}, {"CDG", "MAS"}, {"KCG", "BCT"}} {
		path, ok := r.Resolve(pair[0], pair[1])
		assert.True(t, ok, "%s -> %s", pair[0], pair[1])
		assert.NotEmpty(t, path)
	}

	_, ok := r.Resolve("NDLS", "KOAA")
	assert.False(t, ok, "KOAA is not on any corridor")
}
