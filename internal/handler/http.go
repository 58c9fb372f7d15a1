// Package handler exposes the simulation over HTTP and websockets.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"railsim/internal/domain"
	"railsim/internal/evaluation"
	"railsim/internal/sim"
	"railsim/internal/store"
)

type HTTPHandler struct {
	store  *store.Store
	engine *sim.Engine
}

func NewHTTPHandler(store *store.Store, engine *sim.Engine) *HTTPHandler {
	return &HTTPHandler{store: store, engine: engine}
}

type TrainsResponse struct {
	Trains     []*domain.TrainView `json:"trains"`
	Count      int                 `json:"count"`
	SimTime    time.Time           `json:"simTime"`
	ServerTime time.Time           `json:"serverTime"`
}

func (h *HTTPHandler) ListTrains(w http.ResponseWriter, r *http.Request) {
	opts := store.ListOptions{}
	q := r.URL.Query()

	if catStr := q.Get("category"); catStr != "" {
		cat := domain.Category(strings.ToUpper(catStr))
		if !cat.Valid() {
			respondError(w, http.StatusBadRequest, "invalid category parameter")
			return
		}
		opts.Category = &cat
	}

	if riskStr := q.Get("atRisk"); riskStr != "" {
		atRisk, err := strconv.ParseBool(riskStr)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid atRisk parameter: must be a boolean")
			return
		}
		opts.AtRisk = atRisk
	}

	if bboxStr := q.Get("bbox"); bboxStr != "" {
		parts := strings.Split(bboxStr, ",")
		if len(parts) != 4 {
			respondError(w, http.StatusBadRequest, "invalid bbox format: expected minLat,minLon,maxLat,maxLon")
			return
		}
		bbox, err := parseBBox(parts)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid bbox values: "+err.Error())
			return
		}
		opts.BBox = bbox
	}

	trains := h.store.List(opts)

	respondJSON(w, http.StatusOK, TrainsResponse{
		Trains:     trains,
		Count:      len(trains),
		SimTime:    h.engine.State().Clock.Now(),
		ServerTime: time.Now(),
	})
}

type TrainResponse struct {
	*domain.TrainView
	Risks []domain.RiskView `json:"risks"`
}

func (h *HTTPHandler) GetTrain(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing train id")
		return
	}

	train, ok := h.store.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "train not found")
		return
	}

	risks := h.store.RisksFor(id)
	if risks == nil {
		risks = []domain.RiskView{}
	}
	respondJSON(w, http.StatusOK, TrainResponse{TrainView: train, Risks: risks})
}

func (h *HTTPHandler) GetTrainSchedule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	day := h.engine.Today()
	if dayStr := r.URL.Query().Get("day"); dayStr != "" {
		d, err := strconv.Atoi(dayStr)
		if err != nil || d < 0 {
			respondError(w, http.StatusBadRequest, "invalid day parameter: must be a non-negative integer")
			return
		}
		day = d
	}

	sched, err := h.engine.Schedule(id, day)
	switch {
	case errors.Is(err, sim.ErrUnknownTrain):
		respondError(w, http.StatusNotFound, "train not found")
		return
	case errors.Is(err, sim.ErrNoRun):
		respondError(w, http.StatusNotFound, "no run on that day")
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, sched)
}

type RisksResponse struct {
	Risks      []domain.RiskView `json:"risks"`
	Count      int               `json:"count"`
	SimTime    time.Time         `json:"simTime"`
	ServerTime time.Time         `json:"serverTime"`
}

func (h *HTTPHandler) ListRisks(w http.ResponseWriter, r *http.Request) {
	risks := h.store.Risks()
	if risks == nil {
		risks = []domain.RiskView{}
	}
	respondJSON(w, http.StatusOK, RisksResponse{
		Risks:      risks,
		Count:      len(risks),
		SimTime:    h.engine.State().Clock.Now(),
		ServerTime: time.Now(),
	})
}

func (h *HTTPHandler) GetClock(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.engine.Clock())
}

type SpeedRequest struct {
	Multiplier float64 `json:"multiplier"`
}

func (h *HTTPHandler) SetSpeed(w http.ResponseWriter, r *http.Request) {
	var req SpeedRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.engine.SetSpeed(req.Multiplier); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, h.engine.Clock())
}

type StopRequest struct {
	TrainIDs []string `json:"trainIds"`
}

type StopResponse struct {
	Accepted  []string `json:"accepted"`
	EffectsIn string   `json:"effectsIn"`
}

func (h *HTTPHandler) StopTrains(w http.ResponseWriter, r *http.Request) {
	var req StopRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	err := h.engine.RequestStop(req.TrainIDs)
	switch {
	case errors.Is(err, sim.ErrUnknownTrain):
		respondError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusAccepted, StopResponse{
		Accepted:  req.TrainIDs,
		EffectsIn: h.engine.StopDelay().String(),
	})
}

// EvaluateRequest overrides evaluation defaults; zero fields keep them.
type EvaluateRequest struct {
	HorizonMinutes float64 `json:"horizonMinutes"`
	StepSeconds    float64 `json:"stepSeconds"`
	TruthKm        float64 `json:"truthKm"`
	OursKm         float64 `json:"oursKm"`
	BaselineKm     float64 `json:"baselineKm"`
}

func (req EvaluateRequest) params() evaluation.Params {
	p := evaluation.DefaultParams()
	if req.HorizonMinutes > 0 {
		p.Horizon = time.Duration(req.HorizonMinutes * float64(time.Minute))
	}
	if req.StepSeconds > 0 {
		p.Step = time.Duration(req.StepSeconds * float64(time.Second))
	}
	if req.TruthKm > 0 {
		p.TruthKm = req.TruthKm
	}
	if req.OursKm > 0 {
		p.OursKm = req.OursKm
	}
	if req.BaselineKm > 0 {
		p.BaselineKm = req.BaselineKm
	}
	return p
}

const maxEvaluationSteps = 1440

func (h *HTTPHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := decodeBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	p := req.params()
	if p.Horizon <= 0 || p.Step <= 0 {
		respondError(w, http.StatusBadRequest, "horizon and step must be at least one nanosecond")
		return
	}
	if p.Horizon/p.Step > maxEvaluationSteps {
		respondError(w, http.StatusBadRequest, "evaluation window too fine: at most 1440 steps")
		return
	}

	respondJSON(w, http.StatusOK, h.engine.Evaluate(p))
}

func decodeBody(r *http.Request, dest any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

func parseBBox(parts []string) (*domain.BoundingBox, error) {
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	if vals[0] > vals[2] || vals[1] > vals[3] {
		return nil, errors.New("min must not exceed max")
	}
	return &domain.BoundingBox{
		MinLat: vals[0], MinLon: vals[1],
		MaxLat: vals[2], MaxLon: vals[3],
	}, nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}
