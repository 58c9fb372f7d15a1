package sim

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"railsim/internal/domain"
	"railsim/internal/movement"
	"railsim/internal/timetable"
)

// FamousTrain is a named service created ahead of the random fleet.
type FamousTrain struct {
	Number   string
	Name     string
	Category domain.Category
	Route    []string
}

var FamousTrains = []FamousTrain{
	{"12301", "Rajdhani Express", domain.CategoryRajdhani, []string{"NDLS", "CNB", "LKO", "PNBE", "HWH"}},
	{"12002", "Bhopal Shatabdi", domain.CategoryShatabdi, []string{"NDLS", "BPL"}},
	{"12621", "Tamil Nadu Express", domain.CategorySuperfast, []string{"NDLS", "BPL", "NGP", "SC", "MAS"}},
	{"16031", "Andaman Express", domain.CategoryExpress, []string{"MAS", "BZA", "SC", "NGP", "BPL"}},
	{"19023", "Firozpur Janata", domain.CategoryExpress, []string{"BCT", "BPL", "NDLS", "CDG"}},
}

// fleetShare is the share of the random fleet per category.
var fleetShare = []struct {
	category domain.Category
	share    float64
}{
	{domain.CategoryRajdhani, 0.05},
	{domain.CategoryShatabdi, 0.08},
	{domain.CategorySuperfast, 0.25},
	{domain.CategoryExpress, 0.45},
	{domain.CategoryPassenger, 0.12},
	{domain.CategoryFreight, 0.05},
}

var namePrefixes = []string{"Express", "Passenger", "Special", "Mail", "Fast"}

type FleetOptions struct {
	Size  int
	Seed  int64
	Days  int
	Epoch time.Time
}

// FleetBuilder creates trains and their schedules.
type FleetBuilder struct {
	gen    *timetable.Generator
	opts   FleetOptions
	logger *slog.Logger
}

func NewFleetBuilder(gen *timetable.Generator, opts FleetOptions, logger *slog.Logger) *FleetBuilder {
	return &FleetBuilder{
		gen:    gen,
		opts:   opts,
		logger: logger.With("component", "fleet"),
	}
}

// FromSchedules creates one train per usable schedule record, up to the fleet
// size. Metadata may override the category and the cruise speed.
func (b *FleetBuilder) FromSchedules(records []domain.ScheduleRecord, meta map[string]domain.TrainMeta) []*movement.Train {
	var (
		trains      []*movement.Train
		supplied    int
		synthesized int
		dropped     int
	)
	for _, rec := range records {
		if b.opts.Size > 0 && len(trains) >= b.opts.Size {
			break
		}
		m := meta[rec.TrainNumber]
		cat := domain.InferCategory(rec.TrainName, m.Category)
		prof := timetable.ProfileFor(cat, m.AvgSpeedKmh)

		pattern, outcome := b.gen.Normalize(rec.Stops, prof)
		switch outcome {
		case timetable.OutcomeUnusable:
			dropped++
			b.logger.Debug("skipping schedule without connected stops", "train", rec.TrainNumber)
			continue
		case timetable.OutcomeSupplied:
			supplied++
		case timetable.OutcomeSynthesized:
			synthesized++
		}

		name := rec.TrainName
		if name == "" {
			name = fmt.Sprintf("%s %s", rec.TrainNumber, cat.DisplayName())
		}
		sched := timetable.NewSchedule(pattern, b.opts.Epoch, b.opts.Days, timetable.ParseOperatingDays(rec.OperatingDays))
		trains = append(trains, movement.NewTrain(rec.TrainNumber, name, cat, sched))
	}

	b.logger.Info("fleet built from schedules",
		"trains", len(trains),
		"supplied_times", supplied,
		"synthesized_times", synthesized,
		"dropped", dropped,
	)
	return trains
}

// Generate creates the famous trains followed by a category-distributed
// random fleet over contiguous sub-routes of the corridor templates.
func (b *FleetBuilder) Generate(corridors []*domain.Corridor) []*movement.Train {
	n := b.opts.Size
	rng := rand.New(rand.NewPCG(uint64(b.opts.Seed), uint64(b.opts.Seed)^0x5851f42d4c957f2d))

	var trains []*movement.Train
	add := func(id, name string, cat domain.Category, route []string) {
		prof := timetable.ProfileFor(cat, 0)
		pattern := b.gen.Synthesize(route, prof, timetable.DepartureFor(id))
		if !pattern.Valid() {
			b.logger.Debug("skipping train without a connected route", "train", id)
			return
		}
		sched := timetable.NewSchedule(pattern, b.opts.Epoch, b.opts.Days, nil)
		trains = append(trains, movement.NewTrain(id, name, cat, sched))
	}

	for _, f := range FamousTrains {
		if len(trains) >= n {
			break
		}
		add(f.Number, f.Name, f.Category, f.Route)
	}

	var templates []*domain.Corridor
	for _, c := range corridors {
		if len(c.StationIDs) >= 2 {
			templates = append(templates, c)
		}
	}
	if len(templates) == 0 {
		return trains
	}

	for _, fs := range fleetShare {
		count := int(float64(n) * fs.share)
		for i := 0; i < count && len(trains) < n; i++ {
			id := fmt.Sprintf("%d", 10000+len(trains)+1)
			route := subRoute(rng, templates[rng.IntN(len(templates))].StationIDs)
			name := fmt.Sprintf("%s-%s %s", route[0], route[len(route)-1], namePrefixes[rng.IntN(len(namePrefixes))])
			add(id, name, fs.category, route)
		}
	}

	b.logger.Info("fleet generated", "trains", len(trains), "templates", len(templates))
	return trains
}

// subRoute picks a contiguous slice of at least two stations.
func subRoute(rng *rand.Rand, stations []string) []string {
	subLen := 2 + rng.IntN(len(stations)-1)
	start := rng.IntN(len(stations) - subLen + 1)
	return append([]string(nil), stations[start:start+subLen]...)
}
