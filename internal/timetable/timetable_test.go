package timetable

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"railsim/internal/domain"
	"railsim/internal/network"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testGenerator builds A - BPL - C along a parallel, a detour A - D - C and an
// isolated station E.
func testGenerator() *Generator {
	stations := []*domain.Station{
		{ID: "A", Lat: 20.0, Lon: 78.0},
		{ID: "BPL", Lat: 20.0, Lon: 78.5},
		{ID: "C", Lat: 20.0, Lon: 79.0},
		{ID: "D", Lat: 20.5, Lon: 78.5},
		{ID: "E", Lat: 25.0, Lon: 85.0},
	}
	corridors := []*domain.Corridor{
		{ID: 0, StationIDs: []string{"A", "BPL", "C"}, SpeedLimitKmh: 110},
		{ID: 1, StationIDs: []string{"A", "D", "C"}, SpeedLimitKmh: 80},
	}
	g := network.Build(stations, corridors, network.BuildOptions{})
	return NewGenerator(network.NewResolver(g), testLogger())
}

func clock(t *testing.T, s string) time.Duration {
	d, ok := ParseClock(s)
	require.True(t, ok, s)
	return d
}

func TestTravelTime(t *testing.T) {
	// 100 m never reaches cruise speed.
	assert.Equal(t, 34*time.Second, TravelTime(0.1, 100, AccelerationMS2))

	got := TravelTime(100, 100, AccelerationMS2)
	assert.InDelta(t, 3679, got.Seconds(), 2)

	assert.Equal(t, time.Duration(0), TravelTime(0, 100, AccelerationMS2))
	assert.Equal(t, TravelTime(10, 5, AccelerationMS2), TravelTime(10, 1, AccelerationMS2))
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"06:00", 6 * time.Hour, true},
		{" 23:59 ", 23*time.Hour + 59*time.Minute, true},
		{"07:05:30", 7*time.Hour + 5*time.Minute + 30*time.Second, true},
		{"", 0, false},
		{"--", 0, false},
		{"24:00", 0, false},
		{"12:61", 0, false},
		{"noon", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseClock(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatClock(t *testing.T) {
	assert.Equal(t, "06:05", FormatClock(6*time.Hour+5*time.Minute))
	assert.Equal(t, "01:00", FormatClock(25*time.Hour))
}

func TestDepartureForIsStable(t *testing.T) {
	a := DepartureFor("12301")
	assert.Equal(t, a, DepartureFor("12301"))
	assert.Zero(t, a%(5*time.Minute))
	assert.Less(t, a, 24*time.Hour)
}

func TestSynthesize(t *testing.T) {
	gen := testGenerator()
	prof := ProfileFor(domain.CategoryExpress, 0)

	p := gen.Synthesize([]string{"A", "C"}, prof, 6*time.Hour)
	require.True(t, p.Valid())
	assert.True(t, p.Synthesized)
	assert.Equal(t, []string{"A", "BPL", "C"}, p.Stations())

	first, mid, last := p.Stops[0], p.Stops[1], p.Stops[2]
	assert.Equal(t, 6*time.Hour, first.Departure)

	dwell := mid.Departure - mid.Arrival
	assert.Equal(t, 10*time.Minute, dwell, "express dwell plus hub bonus")
	assert.Equal(t, last.Arrival, last.Departure)

	edge, ok := gen.resolver.Graph().DirectEdge("A", "BPL")
	require.True(t, ok)
	assert.Equal(t, TravelTime(edge.DistanceKm, 75, AccelerationMS2), mid.Arrival-first.Departure)
}

func TestSynthesizeDropsUnconnected(t *testing.T) {
	gen := testGenerator()

	p := gen.Synthesize([]string{"A", "E", "ZZZ", "D"}, ProfileFor(domain.CategoryFreight, 0), 0)
	assert.Equal(t, []string{"A", "D"}, p.Stations())

	p = gen.Synthesize([]string{"E", "ZZZ"}, ProfileFor(domain.CategoryFreight, 0), 0)
	assert.False(t, p.Valid())
}

func TestNormalizeKeepsPlausibleTimes(t *testing.T) {
	gen := testGenerator()
	stops := []domain.StopRecord{
		{Station: "A", Departure: "10:00"},
		{Station: "C", Arrival: "11:30"},
	}

	p, outcome := gen.Normalize(stops, ProfileFor(domain.CategoryExpress, 0))
	require.Equal(t, OutcomeSupplied, outcome)
	assert.False(t, p.Synthesized)
	require.Equal(t, []string{"A", "BPL", "C"}, p.Stations())

	assert.Equal(t, clock(t, "10:00"), p.Stops[0].Departure)
	assert.InDelta(t, clock(t, "10:45").Seconds(), p.Stops[1].Arrival.Seconds(), 60)
	assert.Equal(t, clock(t, "11:30"), p.Stops[2].Arrival)
}

func TestNormalizeRollsOverMidnight(t *testing.T) {
	gen := testGenerator()
	stops := []domain.StopRecord{
		{Station: "A", Departure: "23:30"},
		{Station: "C", Arrival: "01:00"},
	}

	p, outcome := gen.Normalize(stops, ProfileFor(domain.CategoryExpress, 0))
	require.Equal(t, OutcomeSupplied, outcome)
	assert.Equal(t, 25*time.Hour, p.Stops[len(p.Stops)-1].Arrival)
}

func TestNormalizeFallsBackToSynthesis(t *testing.T) {
	gen := testGenerator()
	prof := ProfileFor(domain.CategoryExpress, 0)

	tests := []struct {
		name  string
		stops []domain.StopRecord
	}{
		{"implausible speed", []domain.StopRecord{
			{Station: "A", Departure: "10:00"},
			{Station: "C", Arrival: "10:20"},
		}},
		{"missing times", []domain.StopRecord{
			{Station: "A", Departure: "10:00"},
			{Station: "D"},
			{Station: "C", Arrival: "14:00"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, outcome := gen.Normalize(tt.stops, prof)
			require.Equal(t, OutcomeSynthesized, outcome)
			assert.True(t, p.Synthesized)
			assert.Equal(t, clock(t, "10:00"), p.Stops[0].Departure)
			assert.Equal(t, "A", p.Stops[0].Station)
			assert.Equal(t, "C", p.Stops[len(p.Stops)-1].Station)
		})
	}
}

func TestNormalizeDropsUnconnectedStops(t *testing.T) {
	gen := testGenerator()
	stops := []domain.StopRecord{
		{Station: "A", Departure: "08:00"},
		{Station: "E", Arrival: "09:00", Departure: "09:05"},
		{Station: "D", Arrival: "10:00"},
	}

	p, outcome := gen.Normalize(stops, ProfileFor(domain.CategoryExpress, 0))
	require.Equal(t, OutcomeSupplied, outcome)
	assert.Equal(t, []string{"A", "D"}, p.Stations())

	_, outcome = gen.Normalize(stops[1:2], ProfileFor(domain.CategoryExpress, 0))
	assert.Equal(t, OutcomeUnusable, outcome)
}

func TestDailySchedulesAreOrdered(t *testing.T) {
	gen := testGenerator()
	p := gen.Synthesize([]string{"A", "C", "D"}, ProfileFor(domain.CategoryPassenger, 0), 22*time.Hour)
	epoch := time.Date(2026, 3, 1, 9, 0, 0, 0, IST)

	s := NewSchedule(p, epoch, 3, nil)
	require.Equal(t, 3, s.Len())

	for i := 0; i < s.Len(); i++ {
		d, ok := s.Day(i)
		require.True(t, ok)
		assert.Equal(t, epoch.AddDate(0, 0, i).Format("2006-01-02"), d.Date)

		first, last := d.Stops[0], d.Stops[len(d.Stops)-1]
		assert.Nil(t, first.Arrival)
		assert.NotNil(t, first.Departure)
		assert.NotNil(t, last.Arrival)
		assert.Nil(t, last.Departure)

		prev := d.Start()
		for _, st := range d.Stops[1:] {
			assert.False(t, st.Arrival.Before(prev))
			prev = *st.Arrival
			if st.Departure != nil {
				assert.False(t, st.Departure.Before(prev))
				prev = *st.Departure
			}
		}
	}
}

func TestActiveAtCoversOvernightRuns(t *testing.T) {
	gen := testGenerator()
	p := gen.Synthesize([]string{"A", "C"}, ProfileFor(domain.CategoryFreight, 0), 23*time.Hour+30*time.Minute)
	epoch := time.Date(2026, 3, 1, 0, 0, 0, 0, IST)
	s := NewSchedule(p, epoch, 5, nil)

	d0, _ := s.Day(0)
	require.True(t, d0.End().After(epoch.AddDate(0, 0, 1)), "run should end after midnight")

	at := epoch.AddDate(0, 0, 1).Add(10 * time.Minute)
	got, ok := s.ActiveAt(at)
	require.True(t, ok)
	assert.Equal(t, 0, got.DayIndex)

	at = epoch.AddDate(0, 0, 1).Add(12 * time.Hour)
	got, ok = s.ActiveAt(at)
	require.True(t, ok)
	assert.Equal(t, 1, got.DayIndex)
}

func TestOperatingDays(t *testing.T) {
	assert.Nil(t, ParseOperatingDays([]string{"Daily"}))
	assert.Nil(t, ParseOperatingDays(nil))

	days := ParseOperatingDays([]string{"Mon", "wednesday", "xyz"})
	assert.Equal(t, map[time.Weekday]bool{time.Monday: true, time.Wednesday: true}, days)

	gen := testGenerator()
	p := gen.Synthesize([]string{"A", "C"}, ProfileFor(domain.CategoryExpress, 0), 8*time.Hour)
	// 2026-03-02 is a Monday.
	s := NewSchedule(p, time.Date(2026, 3, 2, 0, 0, 0, 0, IST), 7, days)

	var running []int
	for i := 0; i < s.Len(); i++ {
		if _, ok := s.Day(i); ok {
			running = append(running, i)
		}
	}
	assert.Equal(t, []int{0, 2}, running)
}
