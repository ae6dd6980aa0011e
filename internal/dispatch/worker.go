package dispatch

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tradeforge/engine/internal/model"
)

// QueueConsumer is the slice of the execution backend the worker loop uses.
type QueueConsumer interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*model.Job, string, error)
	Ack(ctx context.Context, raw string) error
	Heartbeat(ctx context.Context, workerID string, ttl time.Duration) error
}

const (
	dequeueWait       = 5 * time.Second
	heartbeatInterval = 5 * time.Second
	heartbeatTTL      = 15 * time.Second
	backendRetryPause = time.Second
)

// Worker drains the execution queue with a bounded set of concurrent
// consumers, one execution per goroutine, and keeps a liveness heartbeat
// for the health surface.
type Worker struct {
	id          string
	queue       QueueConsumer
	executor    *Executor
	concurrency int
	log         zerolog.Logger
}

// NewWorker builds the consumer side of the dispatcher.
func NewWorker(id string, queue QueueConsumer, executor *Executor, concurrency int, log zerolog.Logger) *Worker {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Worker{id: id, queue: queue, executor: executor, concurrency: concurrency, log: log}
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info().Str("worker_id", w.id).Int("concurrency", w.concurrency).Msg("job worker starting")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.heartbeatLoop(ctx) })
	for i := 0; i < w.concurrency; i++ {
		g.Go(func() error { return w.consumeLoop(ctx) })
	}
	err := g.Wait()
	w.log.Info().Str("worker_id", w.id).Msg("job worker stopped")
	return err
}

func (w *Worker) heartbeatLoop(ctx context.Context) error {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	beat := func() {
		if err := w.queue.Heartbeat(ctx, w.id, heartbeatTTL); err != nil && ctx.Err() == nil {
			w.log.Warn().Err(err).Msg("heartbeat failed")
		}
	}
	beat()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			beat()
		}
	}
}

func (w *Worker) consumeLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		job, raw, err := w.queue.Dequeue(ctx, dequeueWait)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.log.Error().Err(err).Msg("dequeue failed")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backendRetryPause):
			}
			continue
		}
		if job == nil {
			continue
		}

		w.executor.Execute(ctx, *job)

		// Late ack: the job stays re-deliverable until its result exists.
		if err := w.queue.Ack(ctx, raw); err != nil && ctx.Err() == nil {
			w.log.Warn().Err(err).Str("task_id", job.TaskID).Msg("ack failed")
		}
	}
}
