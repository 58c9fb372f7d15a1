package handler

import (
	"net/http"
	"time"

	"railsim/internal/store"
)

// ReadyChecker reports whether the simulation has completed its first tick.
type ReadyChecker interface {
	IsReady() bool
}

type HealthHandler struct {
	driver ReadyChecker
	store  *store.Store
}

func NewHealthHandler(driver ReadyChecker, s *store.Store) *HealthHandler {
	return &HealthHandler{
		driver: driver,
		store:  s,
	}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type ReadyResponse struct {
	Ready      bool      `json:"ready"`
	TrainCount int       `json:"trainCount"`
	ServerTime time.Time `json:"serverTime"`
}

func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ready := h.driver.IsReady()
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}

	respondJSON(w, status, ReadyResponse{
		Ready:      ready,
		TrainCount: h.store.Count(),
		ServerTime: time.Now(),
	})
}
