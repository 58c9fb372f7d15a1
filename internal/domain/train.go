package domain

import "time"

// TrainView is the per-tick presentation record of one train.
type TrainView struct {
	ID                string    `json:"id"`
	DisplayName       string    `json:"displayName"`
	Category          Category  `json:"category"`
	Lat               float64   `json:"lat"`
	Lon               float64   `json:"lon"`
	BearingDegrees    float64   `json:"bearingDegrees"`
	SpeedKmh          float64   `json:"speedKmh"`
	CurrentEdge       *EdgeRef  `json:"currentEdge"`
	FromStation       string    `json:"fromStation,omitempty"`
	ToStation         string    `json:"toStation,omitempty"`
	PredictedProgress float64   `json:"predictedProgress"`
	IsAtRisk          bool      `json:"isAtRisk"`
	IsStopped         bool      `json:"isStopped"`
	TileID            string    `json:"tileId"`
	SimTime           time.Time `json:"simTime"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// RiskView is the presentation record of one ranked risk.
type RiskView struct {
	TrainA            string  `json:"trainA"`
	TrainB            string  `json:"trainB"`
	TrackID           string  `json:"trackId"`
	Classification    string  `json:"classification"`
	DistanceKm        float64 `json:"distanceKm"`
	MinutesToConflict float64 `json:"minutesToConflict"`
	TimeToConflict    string  `json:"timeToConflict"`
	Urgency           string  `json:"urgency"`
	Score             float64 `json:"score"`
	Source            string  `json:"source"`
}

// DeltaType indicates whether a train was updated or removed
type DeltaType string

const (
	DeltaUpdate DeltaType = "update"
	DeltaRemove DeltaType = "remove"
)

// TrainDelta represents a change in train state
type TrainDelta struct {
	Type   DeltaType  `json:"type"`
	Train  *TrainView `json:"train,omitempty"`
	ID     string     `json:"id,omitempty"`
	TileID string     `json:"tileId"`
}

// ClockView is the presentation record of the clock.
type ClockView struct {
	SessionID  string    `json:"sessionId"`
	SimTime    time.Time `json:"simTime"`
	Multiplier float64   `json:"multiplier"`
	Ticks      uint64    `json:"ticks"`
	TickSim    string    `json:"tickDuration"`
}
