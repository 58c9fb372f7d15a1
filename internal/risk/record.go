package risk

import (
	"fmt"
	"time"
)

// Classification describes the geometry of a risky pair.
type Classification string

const (
	HeadOn    Classification = "head-on"
	RearEnd   Classification = "rear-end"
	Proximity Classification = "proximity"
)

// Source tells which signal produced a record's score.
type Source string

const (
	SourceGeometric Source = "geometric"
	SourceDiffusion Source = "diffusion"
)

// Urgency buckets a time-to-conflict.
type Urgency string

const (
	UrgencyImminent Urgency = "imminent"
	UrgencyHigh     Urgency = "high"
	UrgencyMedium   Urgency = "medium"
)

// Record is one risky train pair. TrainA sorts before TrainB.
type Record struct {
	TrainA         string
	TrainB         string
	TrackID        string
	Classification Classification
	DistanceKm     float64
	TimeToConflict time.Duration
	Score          float64
	Source         Source
	At             time.Time
}

// PairKey identifies the unordered train pair.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

func (r Record) PairKey() string {
	return PairKey(r.TrainA, r.TrainB)
}

// Minutes returns the time-to-conflict in minutes.
func (r Record) Minutes() float64 {
	return r.TimeToConflict.Minutes()
}

func (r Record) Urgency() Urgency {
	switch {
	case r.TimeToConflict < time.Minute:
		return UrgencyImminent
	case r.TimeToConflict < 5*time.Minute:
		return UrgencyHigh
	default:
		return UrgencyMedium
	}
}

// FormatTTC renders a time-to-conflict as "4m 30s", or "1h 5m" from one hour
// on.
func FormatTTC(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Hour {
		m := int(d / time.Minute)
		s := int(d % time.Minute / time.Second)
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	return fmt.Sprintf("%dh %dm", h, m)
}

// AtRisk returns the ids of every train appearing in records.
func AtRisk(records []Record) map[string]bool {
	ids := make(map[string]bool, 2*len(records))
	for _, r := range records {
		ids[r.TrainA] = true
		ids[r.TrainB] = true
	}
	return ids
}
