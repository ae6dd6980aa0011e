// Package api exposes the engine HTTP surface consumed by the upstream
// gateway: submission, task polling, and service health.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/tradeforge/engine/internal/api/respond"
	"github.com/tradeforge/engine/internal/model"
)

// Submitter is the dispatcher surface the handlers call.
type Submitter interface {
	Submit(ctx context.Context, req model.BacktestRequest) (string, error)
	Fetch(ctx context.Context, taskID string) (model.TaskState, error)
}

// HealthBackend exposes the two dependency probes of the health endpoint.
type HealthBackend interface {
	Ping(ctx context.Context) error
	WorkersAlive(ctx context.Context) (int, error)
}

// Handler carries the HTTP handlers for the engine routes.
type Handler struct {
	dispatcher Submitter
	backend    HealthBackend
	log        zerolog.Logger
}

// NewHandler wires the engine handlers.
func NewHandler(dispatcher Submitter, backend HealthBackend, log zerolog.Logger) *Handler {
	return &Handler{dispatcher: dispatcher, backend: backend, log: log}
}

// executeRequest is the wire shape of a submission. The backtest name is
// the symbol whose series the strategy runs against.
type executeRequest struct {
	Backtest struct {
		Name   string             `json:"name"`
		Code   string             `json:"code"`
		Params map[string]float64 `json:"params"`
		Range  model.DateRange    `json:"range"`
	} `json:"backtest"`
}

// Execute handles POST /engine/execute/
func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "invalid JSON")
		return
	}
	if req.Backtest.Code == "" {
		respond.WriteBadRequest(w, "no code provided")
		return
	}

	taskID, err := h.dispatcher.Submit(r.Context(), model.BacktestRequest{
		Symbol: req.Backtest.Name,
		Code:   req.Backtest.Code,
		Params: req.Backtest.Params,
		Range:  req.Backtest.Range,
	})
	if err != nil {
		switch {
		case errors.Is(err, model.ErrValidation):
			respond.WriteBadRequest(w, err.Error())
		case errors.Is(err, model.ErrServiceUnavailable):
			h.log.Error().Err(err).Msg("submission rejected")
			respond.WriteServiceUnavailable(w, err.Error())
		default:
			h.log.Error().Err(err).Msg("submission failed")
			respond.WriteInternalError(w, "an unexpected error occurred")
		}
		return
	}

	respond.WriteJSON(w, http.StatusAccepted, map[string]string{
		"task_id":    taskID,
		"message":    "backtest task has been queued",
		"status_url": "/engine/task/" + taskID + "/",
	})
}

// Task handles GET /engine/task/{task_id}/
func (h *Handler) Task(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["task_id"]

	state, err := h.dispatcher.Fetch(r.Context(), taskID)
	if err != nil {
		h.log.Error().Err(err).Str("task_id", taskID).Msg("result fetch failed")
		respond.WriteInternalError(w, "result store unavailable")
		return
	}

	switch state.Status {
	case model.StatePending:
		respond.WriteJSON(w, http.StatusOK, map[string]string{
			"status":  model.StatePending,
			"message": "task is still processing",
		})
	case model.StateCompleted:
		respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"status": model.StateCompleted,
			"result": state.Result,
		})
	default:
		respond.WriteError(w, http.StatusInternalServerError, state.Error)
	}
}

type dependencyStatus struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Health handles GET /engine/health/
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	redisStatus := dependencyStatus{Status: "healthy", Message: "connected"}
	if err := h.backend.Ping(ctx); err != nil {
		redisStatus = dependencyStatus{Status: "unhealthy", Message: err.Error()}
	}

	workerStatus := dependencyStatus{Status: "healthy", Message: "workers active"}
	alive, err := h.backend.WorkersAlive(ctx)
	switch {
	case err != nil:
		workerStatus = dependencyStatus{Status: "unhealthy", Message: err.Error()}
	case alive == 0:
		workerStatus = dependencyStatus{Status: "unhealthy", Message: "no workers available"}
	}

	code := http.StatusOK
	if redisStatus.Status != "healthy" || workerStatus.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	respond.WriteJSON(w, code, map[string]dependencyStatus{
		"redis":  redisStatus,
		"celery": workerStatus,
	})
}
