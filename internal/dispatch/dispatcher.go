// Package dispatch is the submission-to-result orchestrator: it validates
// requests, feeds the execution queue, and drives the end-to-end execution
// job on the worker side.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tradeforge/engine/internal/model"
)

// Backend is the slice of the execution backend the dispatcher needs.
type Backend interface {
	Ping(ctx context.Context) error
	WorkersAlive(ctx context.Context) (int, error)
	Enqueue(ctx context.Context, job model.Job) error
	GetResult(ctx context.Context, taskID string) (*model.TaskResult, error)
}

// Dispatcher exposes Submit and Fetch to the HTTP surface.
type Dispatcher struct {
	backend Backend
	log     zerolog.Logger
}

// NewDispatcher wires a dispatcher over the execution backend.
func NewDispatcher(backend Backend, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{backend: backend, log: log}
}

const healthProbeTimeout = 2 * time.Second

// Submit validates the request, fails fast when the backend is absent,
// mints a task id, and enqueues the execution job.
func (d *Dispatcher) Submit(ctx context.Context, req model.BacktestRequest) (string, error) {
	if req.Code == "" {
		return "", fmt.Errorf("%w: no code provided", model.ErrValidation)
	}
	if req.Symbol == "" {
		return "", fmt.Errorf("%w: no symbol provided", model.ErrValidation)
	}
	if err := req.Range.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrValidation, err)
	}

	probeCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()
	if err := d.backend.Ping(probeCtx); err != nil {
		return "", fmt.Errorf("%w: result store unreachable: %v", model.ErrServiceUnavailable, err)
	}
	alive, err := d.backend.WorkersAlive(probeCtx)
	if err != nil {
		return "", fmt.Errorf("%w: execution backend unreachable: %v", model.ErrServiceUnavailable, err)
	}
	if alive == 0 {
		return "", fmt.Errorf("%w: no job workers available", model.ErrServiceUnavailable)
	}

	taskID := uuid.NewString()
	if err := d.backend.Enqueue(ctx, model.Job{TaskID: taskID, Request: req}); err != nil {
		return "", fmt.Errorf("%w: enqueue failed: %v", model.ErrServiceUnavailable, err)
	}
	d.log.Info().Str("task_id", taskID).Str("symbol", req.Symbol).Msg("backtest submitted")
	return taskID, nil
}

// Fetch returns the task's state without ever blocking: pending until a
// result record exists, then completed or error.
func (d *Dispatcher) Fetch(ctx context.Context, taskID string) (model.TaskState, error) {
	res, err := d.backend.GetResult(ctx, taskID)
	if err != nil {
		return model.TaskState{}, err
	}
	if res == nil {
		return model.TaskState{Status: model.StatePending}, nil
	}
	if res.State == model.StateCompleted {
		return model.TaskState{Status: model.StateCompleted, Result: json.RawMessage(res.Stdout)}, nil
	}
	msg := res.Error
	if msg == "" {
		msg = "execution failed"
	}
	return model.TaskState{Status: model.StateError, Error: msg}, nil
}
