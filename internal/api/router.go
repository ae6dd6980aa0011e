package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/tradeforge/engine/internal/api/recovery"
)

// NewRouter assembles the engine routes with their per-route throttles.
func NewRouter(h *Handler, limiter Limiter, log zerolog.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(recovery.Middleware)

	execute := throttle{scope: "code_execution", limit: 1, window: time.Minute, ident: userIdent}
	task := throttle{scope: "task_result", limit: 30, window: time.Minute, ident: clientIP}
	health := throttle{scope: "health_check", limit: 1000, window: time.Hour, ident: clientIP}

	e := r.PathPrefix("/engine").Subrouter()
	e.HandleFunc("/execute/", rateLimit(limiter, execute, log, h.Execute)).Methods(http.MethodPost)
	e.HandleFunc("/task/{task_id}/", rateLimit(limiter, task, log, h.Task)).Methods(http.MethodGet)
	e.HandleFunc("/health/", rateLimit(limiter, health, log, h.Health)).Methods(http.MethodGet)

	return r
}
