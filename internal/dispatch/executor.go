package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/tradeforge/engine/internal/marketdata"
	"github.com/tradeforge/engine/internal/model"
	"github.com/tradeforge/engine/internal/sandbox"
)

// DataSource yields price frames by symbol (the market-data cache).
type DataSource interface {
	Get(ctx context.Context, symbol string) (*marketdata.Frame, error)
}

// WorkerPool is the slice of the sandbox pool the executor needs.
type WorkerPool interface {
	Acquire(ctx context.Context, timeout time.Duration) (*sandbox.Lease, error)
	Release(lease *sandbox.Lease)
	Replace(lease *sandbox.Lease)
}

// ResultSink publishes task results exactly once.
type ResultSink interface {
	PublishResult(ctx context.Context, taskID string, res model.TaskResult) (bool, error)
}

// ExecutorConfig tunes one executor.
type ExecutorConfig struct {
	AcquireTimeout time.Duration
	// ExecTimeout is the optional per-execution wall deadline; zero
	// disables it. When it fires the worker is replaced, never reused.
	ExecTimeout time.Duration
	// Command run inside the sandbox, with workdir set to the bind point.
	Command []string
	Workdir string
	// RetryDelay between transient-failure attempts; shortened in tests.
	RetryDelay time.Duration
}

const transientRetries = 3

// Executor runs one execution job end to end: data, filter, lease, stage,
// exec, publish, release.
type Executor struct {
	data DataSource
	pool WorkerPool
	sink ResultSink
	cfg  ExecutorConfig
	log  zerolog.Logger
}

// NewExecutor builds an executor for worker processes.
func NewExecutor(data DataSource, pool WorkerPool, sink ResultSink, cfg ExecutorConfig, log zerolog.Logger) *Executor {
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = 30 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if len(cfg.Command) == 0 {
		cfg.Command = []string{"/app/execute"}
	}
	if cfg.Workdir == "" {
		cfg.Workdir = "/host_tmpfs"
	}
	return &Executor{data: data, pool: pool, sink: sink, cfg: cfg, log: log}
}

// Execute runs the job and publishes its result. The publish is
// set-if-absent: a redelivered job can never overwrite the first outcome.
func (e *Executor) Execute(ctx context.Context, job model.Job) {
	result := e.run(ctx, job)

	won, err := e.sink.PublishResult(ctx, job.TaskID, result)
	if err != nil {
		e.log.Error().Err(err).Str("task_id", job.TaskID).Msg("result publish failed")
		return
	}
	if !won {
		e.log.Warn().Str("task_id", job.TaskID).Msg("result already published, duplicate delivery dropped")
		return
	}
	e.log.Info().Str("task_id", job.TaskID).Str("state", result.State).Msg("task result published")
}

func errResult(err error, stderr string) model.TaskResult {
	return model.TaskResult{State: model.StateError, Error: err.Error(), Stderr: stderr}
}

func (e *Executor) run(ctx context.Context, job model.Job) model.TaskResult {
	frame, err := e.data.Get(ctx, job.Request.Symbol)
	if err != nil {
		return errResult(err, "")
	}

	filtered := frame.Filter(job.Request.Range.From, job.Request.Range.To)
	if filtered.Len() == 0 {
		return errResult(fmt.Errorf("%w: no rows for %s in [%s, %s]",
			model.ErrDataUnavailable, job.Request.Symbol, job.Request.Range.From, job.Request.Range.To), "")
	}
	if err := filtered.CheckClose(); err != nil {
		return errResult(fmt.Errorf("%w: %s: %v", model.ErrDataUnavailable, job.Request.Symbol, err), "")
	}

	lease, err := e.pool.Acquire(ctx, e.cfg.AcquireTimeout)
	if err != nil {
		return errResult(err, "")
	}
	released := false
	defer func() {
		if !released {
			e.pool.Release(lease)
		}
	}()

	if err := sandbox.Stage(lease, job.Request.Code, filtered, job.Request.Params); err != nil {
		return errResult(err, "")
	}

	execCtx := ctx
	var cancel context.CancelFunc
	if e.cfg.ExecTimeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, e.cfg.ExecTimeout)
		defer cancel()
	}

	res, err := e.execWithRetry(execCtx, lease)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			// The governor fired: the worker's state is unknown.
			e.pool.Replace(lease)
			released = true
			return errResult(fmt.Errorf("%w: execution timed out after %s", model.ErrSandboxFatal, e.cfg.ExecTimeout), "")
		}
		return errResult(err, "")
	}

	if res.ExitCode != 0 {
		return model.TaskResult{
			State:    model.StateError,
			ExitCode: res.ExitCode,
			Stdout:   res.Stdout,
			Stderr:   res.Stderr,
			Error:    fmt.Sprintf("sandbox exited with code %d", res.ExitCode),
		}
	}
	return model.TaskResult{
		State:    model.StateCompleted,
		ExitCode: res.ExitCode,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
	}
}

// execWithRetry retries container-API failures up to three times with a
// fixed delay; everything else is terminal.
func (e *Executor) execWithRetry(ctx context.Context, lease *sandbox.Lease) (sandbox.ExecResult, error) {
	var res sandbox.ExecResult
	backoff := retry.WithMaxRetries(transientRetries, retry.NewConstant(e.cfg.RetryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var execErr error
		res, execErr = lease.Exec(ctx, e.cfg.Command, e.cfg.Workdir)
		if errors.Is(execErr, model.ErrSandboxTransient) {
			return retry.RetryableError(execErr)
		}
		return execErr
	})
	return res, err
}
