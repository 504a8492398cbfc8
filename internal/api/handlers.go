package api

import (
	"context"
	"encoding/json"
	"net/http"

	"corpus-prep/internal/db"
	"corpus-prep/internal/service"
)

// StatusSource reports progress of the running preparation.
type StatusSource interface {
	Status() service.PrepareStatus
}

// StatsSource - агрегаты из каталога чанков (может отсутствовать)
type StatsSource interface {
	Stats(ctx context.Context, dataset string) ([]db.SplitStats, error)
}

type Handlers struct {
	status StatusSource
	stats  StatsSource
}

func NewHandlers(status StatusSource, stats StatsSource) *Handlers {
	return &Handlers{status: status, stats: stats}
}

type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func (h *Handlers) json(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) success(w http.ResponseWriter, data interface{}) {
	h.json(w, http.StatusOK, Response{Success: true, Data: data})
}

func (h *Handlers) error(w http.ResponseWriter, status int, msg string) {
	h.json(w, status, Response{Success: false, Error: msg})
}

// === Health handler ===

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.success(w, map[string]interface{}{
		"status":  "ok",
		"catalog": h.stats != nil,
	})
}

// === Status handler ===

func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	h.success(w, h.status.Status())
}

// === Stats handler ===

func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		h.error(w, http.StatusServiceUnavailable, "catalog disabled")
		return
	}
	dataset := r.URL.Query().Get("dataset")
	if dataset == "" {
		h.error(w, http.StatusBadRequest, "dataset required")
		return
	}

	splits, err := h.stats.Stats(r.Context(), dataset)
	if err != nil {
		h.error(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.success(w, map[string]interface{}{
		"dataset": dataset,
		"splits":  splits,
	})
}
