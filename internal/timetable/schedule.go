package timetable

import (
	"strings"
	"time"
)

// IST is the zone service days are anchored to.
var IST = time.FixedZone("IST", 5*3600+30*60)

const day = 24 * time.Hour

// Stop is a dated stop event. The first stop of a run has no arrival and the
// last stop has no departure.
type Stop struct {
	Station   string     `json:"station"`
	Arrival   *time.Time `json:"arrival,omitempty"`
	Departure *time.Time `json:"departure,omitempty"`
}

// DaySchedule is one dated run of a train.
type DaySchedule struct {
	DayIndex int    `json:"dayIndex"`
	Date     string `json:"date"`
	Stops    []Stop `json:"stops"`
}

// Start returns the first departure of the run.
func (d *DaySchedule) Start() time.Time {
	return *d.Stops[0].Departure
}

// End returns the last arrival of the run.
func (d *DaySchedule) End() time.Time {
	return *d.Stops[len(d.Stops)-1].Arrival
}

// Schedule holds every dated run of a train for the simulated period.
type Schedule struct {
	epoch    time.Time
	pattern  Pattern
	days     []*DaySchedule
	spanDays int
}

// Midnight returns the start of the service day containing t.
func Midnight(t time.Time) time.Time {
	t = t.In(IST)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, IST)
}

// NewSchedule dates pattern for days consecutive service days starting at the
// day containing epoch. Days whose weekday is not in operating are skipped;
// an empty operating set means the train runs daily.
func NewSchedule(p Pattern, epoch time.Time, days int, operating map[time.Weekday]bool) *Schedule {
	s := &Schedule{
		epoch:   Midnight(epoch),
		pattern: p,
		days:    make([]*DaySchedule, days),
	}
	if !p.Valid() {
		return s
	}

	_, end := p.Span()
	s.spanDays = int(end / day)

	for i := 0; i < days; i++ {
		base := s.epoch.AddDate(0, 0, i)
		if len(operating) > 0 && !operating[base.Weekday()] {
			continue
		}
		s.days[i] = datePattern(p, base, i)
	}
	return s
}

func datePattern(p Pattern, base time.Time, index int) *DaySchedule {
	ds := &DaySchedule{
		DayIndex: index,
		Date:     base.Format("2006-01-02"),
		Stops:    make([]Stop, len(p.Stops)),
	}
	last := len(p.Stops) - 1
	for i, ps := range p.Stops {
		st := Stop{Station: ps.Station}
		if i > 0 {
			arr := base.Add(ps.Arrival)
			st.Arrival = &arr
		}
		if i < last {
			dep := base.Add(ps.Departure)
			st.Departure = &dep
		}
		ds.Stops[i] = st
	}
	return ds
}

// Pattern returns the repeated service pattern.
func (s *Schedule) Pattern() Pattern {
	return s.pattern
}

// Epoch returns the midnight of day zero.
func (s *Schedule) Epoch() time.Time {
	return s.epoch
}

// Len returns the number of simulated days.
func (s *Schedule) Len() int {
	return len(s.days)
}

// Day returns the run of a given day index, if the train operates that day.
func (s *Schedule) Day(i int) (*DaySchedule, bool) {
	if i < 0 || i >= len(s.days) || s.days[i] == nil {
		return nil, false
	}
	return s.days[i], true
}

// DayIndex returns the service day index of t, counted from the epoch.
func (s *Schedule) DayIndex(t time.Time) int {
	return int(Midnight(t).Sub(s.epoch).Round(time.Hour) / day)
}

// ActiveAt selects the run that governs t: a run in progress, including
// overnight runs that started on earlier days, or else today's run.
func (s *Schedule) ActiveAt(t time.Time) (*DaySchedule, bool) {
	idx := s.DayIndex(t)
	for k := 0; k <= s.spanDays; k++ {
		d, ok := s.Day(idx - k)
		if !ok {
			continue
		}
		if !t.Before(d.Start()) && !t.After(d.End()) {
			return d, true
		}
	}
	return s.Day(idx)
}

// ParseOperatingDays reads weekday names such as "Mon", "tue" or "Daily".
// Unknown tokens are ignored; an empty result means daily.
func ParseOperatingDays(tokens []string) map[time.Weekday]bool {
	names := map[string]time.Weekday{
		"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday,
		"wed": time.Wednesday, "thu": time.Thursday, "fri": time.Friday,
		"sat": time.Saturday,
	}
	days := make(map[time.Weekday]bool)
	for _, tok := range tokens {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok == "daily" || tok == "all" {
			return nil
		}
		if len(tok) >= 3 {
			if wd, ok := names[tok[:3]]; ok {
				days[wd] = true
			}
		}
	}
	if len(days) == 0 || len(days) == 7 {
		return nil
	}
	return days
}
