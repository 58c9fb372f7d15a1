package domain

import "railsim/internal/geo"

// Station is an immutable registry record.
type Station struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	State string  `json:"state"`
}

// Position returns the station coordinates.
func (s *Station) Position() geo.LatLon {
	return geo.LatLon{Lat: s.Lat, Lon: s.Lon}
}

// Corridor is a named multi-station route template. It is used both to build
// the track graph and as a template for synthetic train routes.
type Corridor struct {
	ID            int      `json:"id"`
	Name          string   `json:"name"`
	StationIDs    []string `json:"stationIds"`
	SpeedLimitKmh float64  `json:"speedLimitKmh"`
}

// StopRecord is one stop of an externally supplied schedule. Clock times are
// "HH:MM" strings; an empty string means the time is absent.
type StopRecord struct {
	Station   string `json:"station"`
	Arrival   string `json:"arr,omitempty"`
	Departure string `json:"dep,omitempty"`
}

// ScheduleRecord is one train of an official schedule feed.
type ScheduleRecord struct {
	TrainNumber   string       `json:"no"`
	TrainName     string       `json:"name"`
	OperatingDays []string     `json:"days,omitempty"`
	Stops         []StopRecord `json:"stops"`
}

// TrainMeta carries optional per-train metadata from the schedule source.
type TrainMeta struct {
	TrainNumber string  `json:"train_no"`
	Category    string  `json:"category"`
	AvgSpeedKmh float64 `json:"avg_speed_kmph"`
}

// EdgeRef identifies the directed track segment a train occupies.
type EdgeRef struct {
	From    string `json:"from"`
	To      string `json:"to"`
	TrackID string `json:"trackId"`
}

// BoundingBox represents a geographic rectangle
type BoundingBox struct {
	MinLat float64 `json:"minLat"`
	MaxLat float64 `json:"maxLat"`
	MinLon float64 `json:"minLon"`
	MaxLon float64 `json:"maxLon"`
}

// Contains checks if a point is within the bounding box
func (bb *BoundingBox) Contains(lat, lon float64) bool {
	return lat >= bb.MinLat && lat <= bb.MaxLat &&
		lon >= bb.MinLon && lon <= bb.MaxLon
}
