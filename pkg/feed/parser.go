// Package feed reads the station registry, corridor templates and optional
// schedule feed from a directory, the embedded dataset or a downloaded zip.
package feed

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"railsim/internal/domain"
)

const (
	StationsFile      = "stations.csv"
	CorridorsFile     = "corridors.csv"
	SchedulesCSVFile  = "schedules.csv"
	SchedulesJSONFile = "schedules.json"
	TrainMetaFile     = "train_meta.csv"
)

// Dataset is everything the simulation needs to build its network and fleet.
type Dataset struct {
	Stations  []*domain.Station
	Corridors []*domain.Corridor
	Schedules []domain.ScheduleRecord
	Meta      map[string]domain.TrainMeta
}

// StationIndex maps station ids to records.
func (d *Dataset) StationIndex() map[string]*domain.Station {
	idx := make(map[string]*domain.Station, len(d.Stations))
	for _, s := range d.Stations {
		idx[s.ID] = s
	}
	return idx
}

type Parser struct {
	logger *slog.Logger
}

func NewParser(logger *slog.Logger) *Parser {
	return &Parser{
		logger: logger.With("component", "feed_parser"),
	}
}

// Parse reads the dataset from fsys. Stations and corridors are required;
// schedules and train metadata are optional.
func (p *Parser) Parse(fsys fs.FS) (*Dataset, error) {
	totalStart := time.Now()
	p.logger.Info("starting feed parsing")

	ds := &Dataset{Meta: make(map[string]domain.TrainMeta)}

	start := time.Now()
	stations, err := p.parseStations(fsys)
	if err != nil {
		return nil, fmt.Errorf("parse stations: %w", err)
	}
	ds.Stations = stations
	p.logger.Info("parsed stations",
		"count", len(stations),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	start = time.Now()
	corridors, err := p.parseCorridors(fsys)
	if err != nil {
		return nil, fmt.Errorf("parse corridors: %w", err)
	}
	ds.Corridors = corridors
	p.logger.Info("parsed corridors",
		"count", len(corridors),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	start = time.Now()
	switch {
	case exists(fsys, SchedulesCSVFile):
		ds.Schedules, err = p.parseSchedulesCSV(fsys)
	case exists(fsys, SchedulesJSONFile):
		ds.Schedules, err = p.parseSchedulesJSON(fsys)
	}
	if err != nil {
		return nil, fmt.Errorf("parse schedules: %w", err)
	}
	if len(ds.Schedules) > 0 {
		p.logger.Info("parsed schedules",
			"trains", len(ds.Schedules),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}

	if exists(fsys, TrainMetaFile) {
		if err := p.parseMeta(fsys, ds.Meta); err != nil {
			return nil, fmt.Errorf("parse train meta: %w", err)
		}
		p.logger.Info("parsed train metadata", "count", len(ds.Meta))
	}

	p.logger.Info("feed parsing completed",
		"total_duration_ms", time.Since(totalStart).Milliseconds(),
		"stations", len(ds.Stations),
		"corridors", len(ds.Corridors),
		"schedules", len(ds.Schedules),
	)

	return ds, nil
}

func exists(fsys fs.FS, name string) bool {
	_, err := fs.Stat(fsys, name)
	return err == nil
}

// readCSV opens name and calls fn for every data row.
func readCSV(fsys fs.FS, name string, fn func(record []string, idx map[string]int) error) error {
	f, err := fsys.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	header, err := r.Read()
	if err != nil {
		return err
	}

	idx := makeIndex(header)

	for {
		record, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(record, idx); err != nil {
			return err
		}
	}
}

func (p *Parser) parseStations(fsys fs.FS) ([]*domain.Station, error) {
	var stations []*domain.Station
	seen := make(map[string]bool)

	err := readCSV(fsys, StationsFile, func(record []string, idx map[string]int) error {
		id := strings.ToUpper(getField(record, idx, "id"))
		if id == "" || seen[id] {
			return nil
		}
		lat, latErr := strconv.ParseFloat(getField(record, idx, "lat"), 64)
		lon, lonErr := strconv.ParseFloat(getField(record, idx, "lon"), 64)
		if latErr != nil || lonErr != nil {
			p.logger.Warn("skipping station with invalid coordinates", "station", id)
			return nil
		}
		seen[id] = true
		stations = append(stations, &domain.Station{
			ID:    id,
			Name:  getField(record, idx, "name"),
			Lat:   lat,
			Lon:   lon,
			State: getField(record, idx, "state"),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(stations) == 0 {
		return nil, errors.New("no stations")
	}
	return stations, nil
}

type corridorRow struct {
	seq     int
	station string
}

func (p *Parser) parseCorridors(fsys fs.FS) ([]*domain.Corridor, error) {
	byID := make(map[int]*domain.Corridor)
	rows := make(map[int][]corridorRow)

	err := readCSV(fsys, CorridorsFile, func(record []string, idx map[string]int) error {
		id, err := strconv.Atoi(getField(record, idx, "corridor"))
		if err != nil {
			return fmt.Errorf("corridor id %q: %w", getField(record, idx, "corridor"), err)
		}
		seq, err := strconv.Atoi(getField(record, idx, "seq"))
		if err != nil {
			return fmt.Errorf("corridor %d seq: %w", id, err)
		}

		c, ok := byID[id]
		if !ok {
			c = &domain.Corridor{ID: id, Name: getField(record, idx, "name")}
			if v := getField(record, idx, "speed_limit_kmh"); v != "" {
				if limit, err := strconv.ParseFloat(v, 64); err == nil && limit > 0 {
					c.SpeedLimitKmh = limit
				}
			}
			byID[id] = c
		}
		rows[id] = append(rows[id], corridorRow{seq: seq, station: strings.ToUpper(getField(record, idx, "station"))})
		return nil
	})
	if err != nil {
		return nil, err
	}

	ids := make([]int, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	corridors := make([]*domain.Corridor, 0, len(ids))
	for _, id := range ids {
		r := rows[id]
		sort.SliceStable(r, func(i, j int) bool { return r[i].seq < r[j].seq })
		c := byID[id]
		for _, row := range r {
			c.StationIDs = append(c.StationIDs, row.station)
		}
		if len(c.StationIDs) < 2 {
			p.logger.Warn("skipping corridor with fewer than two stations", "corridor", id)
			continue
		}
		corridors = append(corridors, c)
	}
	if len(corridors) == 0 {
		return nil, errors.New("no corridors")
	}
	return corridors, nil
}

type scheduleRow struct {
	seq  int
	stop domain.StopRecord
}

func (p *Parser) parseSchedulesCSV(fsys fs.FS) ([]domain.ScheduleRecord, error) {
	var order []string
	records := make(map[string]*domain.ScheduleRecord)
	rows := make(map[string][]scheduleRow)

	err := readCSV(fsys, SchedulesCSVFile, func(record []string, idx map[string]int) error {
		no := getField(record, idx, "train_no")
		station := strings.ToUpper(getField(record, idx, "station"))
		if no == "" || station == "" {
			return nil
		}
		seq, err := strconv.Atoi(getField(record, idx, "seq"))
		if err != nil {
			p.logger.Debug("skipping schedule row with invalid seq", "train_no", no)
			return nil
		}

		rec, ok := records[no]
		if !ok {
			rec = &domain.ScheduleRecord{
				TrainNumber:   no,
				TrainName:     getField(record, idx, "train_name"),
				OperatingDays: splitDays(getField(record, idx, "days")),
			}
			records[no] = rec
			order = append(order, no)
		}
		rows[no] = append(rows[no], scheduleRow{
			seq: seq,
			stop: domain.StopRecord{
				Station:   station,
				Arrival:   getField(record, idx, "arr"),
				Departure: getField(record, idx, "dep"),
			},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.ScheduleRecord, 0, len(order))
	for _, no := range order {
		r := rows[no]
		sort.SliceStable(r, func(i, j int) bool { return r[i].seq < r[j].seq })
		rec := records[no]
		for _, row := range r {
			rec.Stops = append(rec.Stops, row.stop)
		}
		out = append(out, *rec)
	}
	return out, nil
}

type jsonSchedule struct {
	No    string          `json:"no"`
	Name  string          `json:"name"`
	Days  json.RawMessage `json:"days"`
	Stops []struct {
		Station string `json:"station"`
		Arr     string `json:"arr"`
		Dep     string `json:"dep"`
	} `json:"stops"`
}

func (p *Parser) parseSchedulesJSON(fsys fs.FS) ([]domain.ScheduleRecord, error) {
	data, err := fs.ReadFile(fsys, SchedulesJSONFile)
	if err != nil {
		return nil, err
	}

	var raw []jsonSchedule
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", SchedulesJSONFile, err)
	}

	out := make([]domain.ScheduleRecord, 0, len(raw))
	for _, js := range raw {
		if js.No == "" || len(js.Stops) == 0 {
			continue
		}
		rec := domain.ScheduleRecord{
			TrainNumber:   js.No,
			TrainName:     js.Name,
			OperatingDays: decodeDays(js.Days),
		}
		for _, s := range js.Stops {
			if s.Station == "" {
				continue
			}
			rec.Stops = append(rec.Stops, domain.StopRecord{
				Station:   strings.ToUpper(strings.TrimSpace(s.Station)),
				Arrival:   strings.TrimSpace(s.Arr),
				Departure: strings.TrimSpace(s.Dep),
			})
		}
		out = append(out, rec)
	}
	return out, nil
}

// decodeDays accepts either a list of day tokens or a single separated string.
func decodeDays(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return splitDays(s)
	}
	return nil
}

func splitDays(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == ',' || r == '|' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func (p *Parser) parseMeta(fsys fs.FS, meta map[string]domain.TrainMeta) error {
	return readCSV(fsys, TrainMetaFile, func(record []string, idx map[string]int) error {
		no := getField(record, idx, "train_no")
		if no == "" {
			return nil
		}
		m := domain.TrainMeta{TrainNumber: no, Category: getField(record, idx, "category")}
		if v := getField(record, idx, "avg_speed_kmph"); v != "" {
			if speed, err := strconv.ParseFloat(v, 64); err == nil {
				m.AvgSpeedKmh = speed
			}
		}
		meta[no] = m
		return nil
	})
}

func makeIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	return idx
}

func getField(record []string, idx map[string]int, field string) string {
	if i, ok := idx[field]; ok && i < len(record) {
		return strings.TrimSpace(record[i])
	}
	return ""
}
