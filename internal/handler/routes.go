package handler

import "net/http"

// Handlers bundles the API handlers for routing.
type Handlers struct {
	HTTP    *HTTPHandler
	Network *NetworkHandler
	Health  *HealthHandler
	Stats   *StatsHandler
}

// Routes registers every REST endpoint. The websocket endpoint is mounted
// separately so it bypasses the compressing middleware.
func (hs Handlers) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/trains", hs.HTTP.ListTrains)
	mux.HandleFunc("GET /v1/trains/{id}", hs.HTTP.GetTrain)
	mux.HandleFunc("GET /v1/trains/{id}/schedule", hs.HTTP.GetTrainSchedule)
	mux.HandleFunc("GET /v1/risks", hs.HTTP.ListRisks)
	mux.HandleFunc("GET /v1/sim/clock", hs.HTTP.GetClock)
	mux.HandleFunc("POST /v1/sim/speed", hs.HTTP.SetSpeed)
	mux.HandleFunc("POST /v1/sim/stop", hs.HTTP.StopTrains)
	mux.HandleFunc("POST /v1/evaluate", hs.HTTP.Evaluate)

	mux.HandleFunc("GET /v1/stations", hs.Network.ListStations)
	mux.HandleFunc("GET /v1/corridors", hs.Network.ListCorridors)
	mux.HandleFunc("GET /v1/edges", hs.Network.ListEdges)
	mux.HandleFunc("GET /v1/paths", hs.Network.GetPath)

	if hs.Stats != nil {
		mux.HandleFunc("GET /v1/stats", hs.Stats.GetStats)
	}

	mux.HandleFunc("GET /healthz", hs.Health.Healthz)
	mux.HandleFunc("GET /readyz", hs.Health.Readyz)

	return mux
}
