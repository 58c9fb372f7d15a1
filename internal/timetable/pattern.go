package timetable

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PatternStop is one stop of a daily service pattern. Times are offsets from
// the midnight of the service day and may exceed 24h for overnight runs.
type PatternStop struct {
	Station   string        `json:"station"`
	Arrival   time.Duration `json:"arrival"`
	Departure time.Duration `json:"departure"`
}

// Pattern is the time-of-day template repeated for every operating day.
type Pattern struct {
	Stops       []PatternStop `json:"stops"`
	Synthesized bool          `json:"synthesized"`
}

// Valid reports whether the pattern describes a run between two stations.
func (p Pattern) Valid() bool {
	return len(p.Stops) >= 2
}

// Stations returns the ordered station ids.
func (p Pattern) Stations() []string {
	ids := make([]string, len(p.Stops))
	for i, s := range p.Stops {
		ids[i] = s.Station
	}
	return ids
}

// Span returns the first departure and last arrival offsets.
func (p Pattern) Span() (start, end time.Duration) {
	if len(p.Stops) == 0 {
		return 0, 0
	}
	return p.Stops[0].Departure, p.Stops[len(p.Stops)-1].Arrival
}

// ParseClock parses "HH:MM" or "HH:MM:SS". Empty strings and placeholders
// such as "--" are reported as absent.
func ParseClock(s string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}

	var fields [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, false
		}
		fields[i] = n
	}
	if fields[0] > 23 || fields[1] > 59 || fields[2] > 59 {
		return 0, false
	}

	return time.Duration(fields[0])*time.Hour +
		time.Duration(fields[1])*time.Minute +
		time.Duration(fields[2])*time.Second, true
}

// FormatClock renders an offset as "HH:MM", wrapping at midnight.
func FormatClock(d time.Duration) string {
	d %= 24 * time.Hour
	if d < 0 {
		d += 24 * time.Hour
	}
	return fmt.Sprintf("%02d:%02d", int(d/time.Hour), int(d%time.Hour/time.Minute))
}
