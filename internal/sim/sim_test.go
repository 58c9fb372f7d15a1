package sim

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"railsim/internal/domain"
	"railsim/internal/movement"
	"railsim/internal/network"
	"railsim/internal/risk"
	"railsim/internal/timetable"
)

var epoch = time.Date(2026, 3, 1, 0, 0, 0, 0, timetable.IST)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testResolver() *network.Resolver {
	stations := []*domain.Station{
		{ID: "X", Lat: 10, Lon: 77.00},
		{ID: "Y", Lat: 10, Lon: 77.09},
		{ID: "Z", Lat: 10, Lon: 77.50},
	}
	return network.NewResolver(network.Build(stations, testCorridors(), network.BuildOptions{}))
}

func testCorridors() []*domain.Corridor {
	return []*domain.Corridor{
		{ID: 0, StationIDs: []string{"X", "Y", "Z"}, SpeedLimitKmh: 100},
	}
}

func runTrain(id, from, to string, dep time.Duration) *movement.Train {
	p := timetable.Pattern{Stops: []timetable.PatternStop{
		{Station: from, Arrival: dep, Departure: dep},
		{Station: to, Arrival: dep + 10*time.Minute, Departure: dep + 10*time.Minute},
	}}
	return movement.NewTrain(id, id, domain.CategoryExpress, timetable.NewSchedule(p, epoch, 1, nil))
}

func testEngine(t *testing.T, start time.Time, opts EngineOptions, trains ...*movement.Train) *Engine {
	clock, err := NewClock(start, time.Second, 1)
	require.NoError(t, err)
	state := NewState(testResolver(), testCorridors(), clock, trains)
	cfg := risk.DefaultConfig()
	cfg.Horizon = 10 * time.Minute
	return NewEngine(state, cfg, 42, opts, testLogger())
}

func TestClockAdvance(t *testing.T) {
	c, err := NewClock(epoch, 2*time.Second, 1)
	require.NoError(t, err)

	assert.Equal(t, epoch.Add(2*time.Second), c.Advance())
	require.NoError(t, c.SetMultiplier(30))
	assert.Equal(t, epoch.Add(62*time.Second), c.Advance())
	assert.Equal(t, uint64(2), c.Ticks())
}

func TestClockRejectsInvalidMultiplier(t *testing.T) {
	c, err := NewClock(epoch, time.Second, 2)
	require.NoError(t, err)

	for _, m := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		err := c.SetMultiplier(m)
		assert.True(t, errors.Is(err, ErrInvalidMultiplier), "%v", m)
	}
	assert.Equal(t, 2.0, c.Multiplier())
	assert.Equal(t, epoch.Add(2*time.Second), c.Advance())

	_, err = NewClock(epoch, time.Second, 0)
	assert.ErrorIs(t, err, ErrInvalidMultiplier)
	_, err = NewClock(epoch, 0, 1)
	assert.Error(t, err)
}

func TestTickReportsHeadOn(t *testing.T) {
	start := epoch.Add(12 * time.Hour)
	eng := testEngine(t, start, EngineOptions{TileZoomLevel: 8},
		runTrain("T1", "X", "Y", 12*time.Hour-3*time.Minute),
		runTrain("T2", "Y", "X", 12*time.Hour-3*time.Minute),
		runTrain("T3", "Y", "Z", 20*time.Hour),
	)

	tick := eng.Tick(context.Background())
	assert.Equal(t, uint64(1), tick.Seq)
	assert.Equal(t, start.Add(time.Second), tick.SimTime)
	require.Len(t, tick.Trains, 3)
	assert.Equal(t, 3, tick.Located)

	require.NotEmpty(t, tick.Risks)
	top := tick.Risks[0]
	assert.Equal(t, "T1", top.TrainA)
	assert.Equal(t, "T2", top.TrainB)
	assert.Equal(t, string(risk.HeadOn), top.Classification)
	assert.Equal(t, string(risk.UrgencyHigh), top.Urgency)

	views := map[string]*domain.TrainView{}
	for _, v := range tick.Trains {
		views[v.ID] = v
	}
	assert.True(t, views["T1"].IsAtRisk)
	assert.NotNil(t, views["T1"].CurrentEdge)
	assert.Equal(t, "X-Y-T1", views["T1"].CurrentEdge.TrackID)
	assert.False(t, views["T3"].IsAtRisk)
	assert.Nil(t, views["T3"].CurrentEdge)
	assert.NotEmpty(t, views["T3"].TileID)

	assert.Equal(t, tick.Seq, eng.Latest().Seq)
}

func TestSetSpeed(t *testing.T) {
	eng := testEngine(t, epoch, EngineOptions{})

	assert.ErrorIs(t, eng.SetSpeed(0), ErrInvalidMultiplier)
	assert.ErrorIs(t, eng.SetSpeed(-5), ErrInvalidMultiplier)
	require.NoError(t, eng.SetSpeed(60))
	assert.Equal(t, 60.0, eng.Clock().Multiplier)

	eng.Tick(context.Background())
	assert.Equal(t, epoch.Add(time.Minute), eng.Clock().SimTime)
}

func TestRequestStop(t *testing.T) {
	t1 := runTrain("T1", "X", "Y", 12*time.Hour)
	t2 := runTrain("T2", "Y", "X", 12*time.Hour)
	eng := testEngine(t, epoch.Add(12*time.Hour), EngineOptions{StopDelay: 20 * time.Millisecond}, t1, t2)

	assert.ErrorIs(t, eng.RequestStop(nil), ErrStopTargets)
	assert.ErrorIs(t, eng.RequestStop([]string{"T1", "T2", "T1"}), ErrStopTargets)
	assert.ErrorIs(t, eng.RequestStop([]string{"T1", "nope"}), ErrUnknownTrain)

	require.NoError(t, eng.RequestStop([]string{"T1", "T2"}))
	assert.False(t, t1.Stopped(), "stop must not be immediate")
	assert.Eventually(t, func() bool {
		return t1.Stopped() && t2.Stopped()
	}, time.Second, 5*time.Millisecond)
}

func TestStoppedTrainHoldsPosition(t *testing.T) {
	tr := runTrain("T1", "X", "Y", 12*time.Hour)
	eng := testEngine(t, epoch.Add(12*time.Hour+2*time.Minute), EngineOptions{}, tr)

	first := eng.Tick(context.Background())
	require.NoError(t, eng.RequestStop([]string{"T1"}))
	require.NoError(t, eng.SetSpeed(60))
	second := eng.Tick(context.Background())

	assert.Equal(t, first.Trains[0].Lat, second.Trains[0].Lat)
	assert.Equal(t, first.Trains[0].Lon, second.Trains[0].Lon)
	assert.True(t, second.Trains[0].IsStopped)
	assert.Zero(t, second.Trains[0].SpeedKmh)
}

func TestSchedule(t *testing.T) {
	eng := testEngine(t, epoch, EngineOptions{}, runTrain("T1", "X", "Y", 8*time.Hour))

	d, err := eng.Schedule("T1", 0)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01", d.Date)

	_, err = eng.Schedule("T1", 3)
	assert.ErrorIs(t, err, ErrNoRun)
	_, err = eng.Schedule("nope", 0)
	assert.ErrorIs(t, err, ErrUnknownTrain)
	assert.Equal(t, 0, eng.Today())
}

func TestFleetGenerate(t *testing.T) {
	r := testResolver()
	gen := timetable.NewGenerator(r, testLogger())
	opts := FleetOptions{Size: 20, Seed: 7, Days: 2, Epoch: epoch}

	a := NewFleetBuilder(gen, opts, testLogger()).Generate(testCorridors())
	b := NewFleetBuilder(gen, opts, testLogger()).Generate(testCorridors())

	// The famous trains run over stations this network lacks.
	require.NotEmpty(t, a)
	assert.LessOrEqual(t, len(a), opts.Size)
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].ID, b[i].ID)
		assert.Equal(t, a[i].Category, b[i].Category)
		assert.Equal(t, a[i].Schedule.Pattern(), b[i].Schedule.Pattern())
		assert.True(t, a[i].Schedule.Pattern().Valid())
		assert.Equal(t, 2, a[i].Schedule.Len())
	}
	assert.Equal(t, "10001", a[0].ID)
}

func TestFleetFromSchedules(t *testing.T) {
	gen := timetable.NewGenerator(testResolver(), testLogger())
	b := NewFleetBuilder(gen, FleetOptions{Size: 2, Days: 7, Epoch: epoch}, testLogger())

	records := []domain.ScheduleRecord{
		{TrainNumber: "1", TrainName: "Gatimaan Express", Stops: []domain.StopRecord{
			{Station: "X", Departure: "10:00"}, {Station: "Z", Arrival: "10:45"},
		}},
		{TrainNumber: "2", TrainName: "Lost", Stops: []domain.StopRecord{{Station: "Q"}}},
		{TrainNumber: "3", TrainName: "Local", OperatingDays: []string{"Sun"}, Stops: []domain.StopRecord{
			{Station: "Z", Departure: "07:00"}, {Station: "X"},
		}},
		{TrainNumber: "4", TrainName: "Overflow", Stops: []domain.StopRecord{
			{Station: "X", Departure: "10:00"}, {Station: "Y", Arrival: "10:30"},
		}},
	}
	meta := map[string]domain.TrainMeta{"3": {TrainNumber: "3", Category: "FREIGHT"}}

	trains := b.FromSchedules(records, meta)
	require.Len(t, trains, 2)

	assert.Equal(t, "1", trains[0].ID)
	assert.Equal(t, domain.CategorySuperfast, trains[0].Category)
	assert.False(t, trains[0].Schedule.Pattern().Synthesized)

	assert.Equal(t, "3", trains[1].ID)
	assert.Equal(t, domain.CategoryFreight, trains[1].Category)
	assert.True(t, trains[1].Schedule.Pattern().Synthesized)

	// 2026-03-01 is a Sunday; only days 0 run in the first week.
	_, ok := trains[1].Schedule.Day(0)
	assert.True(t, ok)
	_, ok = trains[1].Schedule.Day(1)
	assert.False(t, ok)
}
