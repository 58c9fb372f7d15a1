package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"railsim/internal/domain"
	"railsim/internal/network"
)

// staticBody is a pre-encoded response with its entity tag.
type staticBody struct {
	data []byte
	etag string
}

func newStaticBody(v any) (staticBody, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return staticBody{}, err
	}
	return staticBody{data: data, etag: fmt.Sprintf(`"%016x"`, xxhash.Sum64(data))}, nil
}

func (b staticBody) serve(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("ETag", b.etag)
	w.Header().Set("Cache-Control", "public, max-age=300")
	if match := r.Header.Get("If-None-Match"); match != "" && strings.Contains(match, b.etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(b.data)
}

// NetworkHandler serves the immutable network: stations, corridors, track
// edges and resolved paths.
type NetworkHandler struct {
	resolver  *network.Resolver
	stations  staticBody
	corridors staticBody
	edges     staticBody
	logger    *slog.Logger
}

type StationsResponse struct {
	Stations []*domain.Station `json:"stations"`
	Count    int               `json:"count"`
}

type CorridorsResponse struct {
	Corridors []*domain.Corridor `json:"corridors"`
	Count     int                `json:"count"`
}

type EdgesResponse struct {
	Edges []*network.Edge `json:"edges"`
	Count int             `json:"count"`
}

func NewNetworkHandler(resolver *network.Resolver, corridors []*domain.Corridor, logger *slog.Logger) (*NetworkHandler, error) {
	g := resolver.Graph()
	h := &NetworkHandler{
		resolver: resolver,
		logger:   logger.With("handler", "network"),
	}

	var err error
	stations := g.Stations()
	if h.stations, err = newStaticBody(StationsResponse{Stations: stations, Count: len(stations)}); err != nil {
		return nil, fmt.Errorf("encode stations: %w", err)
	}
	if h.corridors, err = newStaticBody(CorridorsResponse{Corridors: corridors, Count: len(corridors)}); err != nil {
		return nil, fmt.Errorf("encode corridors: %w", err)
	}
	edges := g.Edges()
	if h.edges, err = newStaticBody(EdgesResponse{Edges: edges, Count: len(edges)}); err != nil {
		return nil, fmt.Errorf("encode edges: %w", err)
	}
	return h, nil
}

func (h *NetworkHandler) ListStations(w http.ResponseWriter, r *http.Request) {
	h.stations.serve(w, r)
}

func (h *NetworkHandler) ListCorridors(w http.ResponseWriter, r *http.Request) {
	h.corridors.serve(w, r)
}

func (h *NetworkHandler) ListEdges(w http.ResponseWriter, r *http.Request) {
	h.edges.serve(w, r)
}

type PathResponse struct {
	From       string          `json:"from"`
	To         string          `json:"to"`
	Stations   []string        `json:"stations"`
	Edges      []*network.Edge `json:"edges"`
	DistanceKm float64         `json:"distanceKm"`
}

func (h *NetworkHandler) GetPath(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	from := strings.ToUpper(r.URL.Query().Get("from"))
	to := strings.ToUpper(r.URL.Query().Get("to"))

	if from == "" || to == "" {
		respondError(w, http.StatusBadRequest, "missing from or to parameter")
		return
	}

	path, ok := h.resolver.Resolve(from, to)
	if !ok {
		h.logger.Debug("GetPath not found", "from", from, "to", to)
		respondError(w, http.StatusNotFound, "no path between stations")
		return
	}

	h.logger.Debug("GetPath response",
		"from", from,
		"to", to,
		"edges", len(path),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	respondJSON(w, http.StatusOK, PathResponse{
		From:       from,
		To:         to,
		Stations:   path.Stations(),
		Edges:      path,
		DistanceKm: path.DistanceKm(),
	})
}
