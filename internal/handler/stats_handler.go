package handler

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"railsim/internal/network"
	"railsim/internal/sim"
	"railsim/internal/store"
)

// Stats tracks server-wide counters.
type Stats struct {
	startTime        time.Time
	requestCount     atomic.Int64
	wsConnections    atomic.Int64
	wsMessagesIn     atomic.Int64
	wsMessagesOut    atomic.Int64
	wsCommands       atomic.Int64
	rateLimitBlocked atomic.Int64
}

var ServerStats = &Stats{
	startTime: time.Now(),
}

func (s *Stats) IncRequests()         { s.requestCount.Add(1) }
func (s *Stats) IncWSConnections()    { s.wsConnections.Add(1) }
func (s *Stats) DecWSConnections()    { s.wsConnections.Add(-1) }
func (s *Stats) IncWSMessagesIn()     { s.wsMessagesIn.Add(1) }
func (s *Stats) IncWSMessagesOut()    { s.wsMessagesOut.Add(1) }
func (s *Stats) IncWSCommands()       { s.wsCommands.Add(1) }
func (s *Stats) IncRateLimitBlocked() { s.rateLimitBlocked.Add(1) }

// ClientCounter reports connected websocket clients.
type ClientCounter interface {
	ClientCount() int
}

type StatsHandler struct {
	store    *store.Store
	engine   *sim.Engine
	resolver *network.Resolver
	clients  ClientCounter
}

func NewStatsHandler(s *store.Store, engine *sim.Engine, resolver *network.Resolver, clients ClientCounter) *StatsHandler {
	return &StatsHandler{
		store:    s,
		engine:   engine,
		resolver: resolver,
		clients:  clients,
	}
}

type StatsResponse struct {
	Server     ServerStatsResponse     `json:"server"`
	Simulation SimulationStatsResponse `json:"simulation"`
	Trains     store.Stats             `json:"trains"`
	Network    NetworkStatsResponse    `json:"network"`
	WebSocket  WebSocketStatsResponse  `json:"websocket"`
	Go         GoStatsResponse         `json:"go"`
}

type ServerStatsResponse struct {
	Uptime        string    `json:"uptime"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	StartTime     time.Time `json:"start_time"`
	RequestCount  int64     `json:"request_count"`
	RateLimited   int64     `json:"rate_limited"`
	Version       string    `json:"version"`
}

type SimulationStatsResponse struct {
	SessionID     string    `json:"session_id"`
	SimTime       time.Time `json:"sim_time"`
	Multiplier    float64   `json:"multiplier"`
	Ticks         uint64    `json:"ticks"`
	LastTickMs    int64     `json:"last_tick_ms"`
	LocatedTrains int       `json:"located_trains"`
}

type NetworkStatsResponse struct {
	Stations     int   `json:"stations"`
	Edges        int   `json:"edges"`
	CachedPaths  int   `json:"cached_paths"`
	PathSearches int64 `json:"path_searches"`
}

type WebSocketStatsResponse struct {
	Clients     int   `json:"clients"`
	Connections int64 `json:"connections"`
	MessagesIn  int64 `json:"messages_in"`
	MessagesOut int64 `json:"messages_out"`
	Commands    int64 `json:"commands"`
}

type GoStatsResponse struct {
	Goroutines  int     `json:"goroutines"`
	HeapAlloc   uint64  `json:"heap_alloc_bytes"`
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	NumGC       uint32  `json:"num_gc"`
	GoVersion   string  `json:"go_version"`
}

func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(ServerStats.startTime)

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	clock := h.engine.Clock()
	latest := h.engine.Latest()
	cached, searches := h.resolver.CacheStats()
	g := h.resolver.Graph()

	clients := 0
	if h.clients != nil {
		clients = h.clients.ClientCount()
	}

	response := StatsResponse{
		Server: ServerStatsResponse{
			Uptime:        uptime.Round(time.Second).String(),
			UptimeSeconds: uptime.Seconds(),
			StartTime:     ServerStats.startTime,
			RequestCount:  ServerStats.requestCount.Load(),
			RateLimited:   ServerStats.rateLimitBlocked.Load(),
			Version:       "1.0.0",
		},
		Simulation: SimulationStatsResponse{
			SessionID:     clock.SessionID,
			SimTime:       clock.SimTime,
			Multiplier:    clock.Multiplier,
			Ticks:         clock.Ticks,
			LastTickMs:    latest.Duration.Milliseconds(),
			LocatedTrains: latest.Located,
		},
		Trains: h.store.Stats(),
		Network: NetworkStatsResponse{
			Stations:     g.StationCount(),
			Edges:        len(g.Edges()),
			CachedPaths:  cached,
			PathSearches: searches,
		},
		WebSocket: WebSocketStatsResponse{
			Clients:     clients,
			Connections: ServerStats.wsConnections.Load(),
			MessagesIn:  ServerStats.wsMessagesIn.Load(),
			MessagesOut: ServerStats.wsMessagesOut.Load(),
			Commands:    ServerStats.wsCommands.Load(),
		},
		Go: GoStatsResponse{
			Goroutines:  runtime.NumGoroutine(),
			HeapAlloc:   mem.HeapAlloc,
			HeapAllocMB: float64(mem.HeapAlloc) / 1024 / 1024,
			NumGC:       mem.NumGC,
			GoVersion:   runtime.Version(),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	json.NewEncoder(w).Encode(response)
}
