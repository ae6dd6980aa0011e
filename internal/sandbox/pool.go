package sandbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tradeforge/engine/internal/model"
)

// worker pairs a long-lived sandbox container with its scratch directory.
// The pairing is for life: replacement always produces a fresh pair.
type worker struct {
	id          string
	containerID string
	scratch     string
}

// Lease is an exclusive hold on a (worker, scratch) pair. Valid until
// released; release is a no-op on the second call.
type Lease struct {
	pool *Pool
	w    *worker

	mu   sync.Mutex
	done bool
}

// Scratch returns the host-side scratch directory of the leased worker.
func (l *Lease) Scratch() string { return l.w.scratch }

// WorkerID identifies the leased worker, mainly for logs.
func (l *Lease) WorkerID() string { return l.w.id }

// Exec runs a command inside the leased worker's container.
func (l *Lease) Exec(ctx context.Context, cmd []string, workdir string) (ExecResult, error) {
	return l.pool.runner.Exec(ctx, l.w.containerID, cmd, workdir)
}

// Pool maintains a fixed-size set of idle sandbox workers behind a bounded
// hand-off queue. The idle channel's capacity equals the pool size, so
// Acquire naturally backpressures callers when every worker is leased.
type Pool struct {
	runner      Runner
	log         zerolog.Logger
	scratchRoot string
	size        int

	idle chan *worker

	mu     sync.Mutex
	active map[string]*worker
	closed bool

	// cleanup empties a scratch directory on release; swappable in tests.
	cleanup func(dir string) error
}

// NewPool creates scratch directories under scratchRoot (a tmpfs mount in
// production) and starts size workers.
func NewPool(ctx context.Context, runner Runner, scratchRoot string, size int, log zerolog.Logger) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("pool size must be positive, got %d", size)
	}
	if err := os.MkdirAll(scratchRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch root: %w", err)
	}

	p := &Pool{
		runner:      runner,
		log:         log,
		scratchRoot: scratchRoot,
		size:        size,
		idle:        make(chan *worker, size),
		active:      make(map[string]*worker),
		cleanup:     emptyDir,
	}
	for i := 0; i < size; i++ {
		w, err := p.newWorker(ctx)
		if err != nil {
			p.Shutdown(ctx)
			return nil, err
		}
		p.idle <- w
	}
	log.Info().Int("size", size).Str("scratch_root", scratchRoot).Msg("sandbox pool ready")
	return p, nil
}

func (p *Pool) newWorker(ctx context.Context) (*worker, error) {
	scratch, err := os.MkdirTemp(p.scratchRoot, "scratch-")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	containerID, err := p.runner.Start(ctx, scratch)
	if err != nil {
		_ = os.RemoveAll(scratch)
		return nil, err
	}
	return &worker{id: uuid.NewString(), containerID: containerID, scratch: scratch}, nil
}

// Acquire blocks for at most timeout waiting for an idle worker and returns
// a lease on it. Exceeding the deadline surfaces as ErrPoolExhausted.
func (p *Pool) Acquire(ctx context.Context, timeout time.Duration) (*Lease, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case w := <-p.idle:
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			p.destroyWorker(context.Background(), w)
			return nil, fmt.Errorf("pool is shut down")
		}
		p.active[w.id] = w
		p.mu.Unlock()
		return &Lease{pool: p, w: w}, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: no worker within %s", model.ErrPoolExhausted, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release empties the lease's scratch directory and returns the worker to
// the idle set. If the cleanup fails the worker is replaced instead: its
// state can no longer be trusted.
func (p *Pool) Release(lease *Lease) {
	lease.mu.Lock()
	if lease.done {
		lease.mu.Unlock()
		return
	}
	lease.done = true
	lease.mu.Unlock()

	w := lease.w
	p.removeActive(w)

	if err := p.cleanup(w.scratch); err != nil {
		p.log.Warn().Err(err).Str("worker", w.id).Msg("scratch cleanup failed, replacing worker")
		p.replace(context.Background(), w)
		return
	}
	p.enqueueIdle(w)
}

// Replace condemns the leased worker outright: destroy it and its scratch
// path, then enqueue a fresh pair. Used when an execution deadline fires
// and the worker's state is unknown.
func (p *Pool) Replace(lease *Lease) {
	lease.mu.Lock()
	if lease.done {
		lease.mu.Unlock()
		return
	}
	lease.done = true
	lease.mu.Unlock()

	p.removeActive(lease.w)
	p.replace(context.Background(), lease.w)
}

func (p *Pool) replace(ctx context.Context, w *worker) {
	p.destroyWorker(ctx, w)

	nw, err := p.newWorker(ctx)
	if err != nil {
		p.log.Error().Err(err).Msg("failed to create replacement worker")
		return
	}
	p.log.Info().Str("old", w.id).Str("new", nw.id).Msg("sandbox worker replaced")
	p.enqueueIdle(nw)
}

func (p *Pool) enqueueIdle(w *worker) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		p.destroyWorker(context.Background(), w)
		return
	}
	// Capacity equals pool size, so this never blocks.
	p.idle <- w
}

func (p *Pool) removeActive(w *worker) {
	p.mu.Lock()
	delete(p.active, w.id)
	p.mu.Unlock()
}

func (p *Pool) destroyWorker(ctx context.Context, w *worker) {
	if err := p.runner.Remove(ctx, w.containerID); err != nil {
		p.log.Warn().Err(err).Str("worker", w.id).Msg("container remove failed")
	}
	if err := os.RemoveAll(w.scratch); err != nil {
		p.log.Warn().Err(err).Str("worker", w.id).Msg("scratch remove failed")
	}
}

// Shutdown drains the idle set and terminates every worker, leased ones
// included, then removes the scratch root.
func (p *Pool) Shutdown(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	activeWorkers := make([]*worker, 0, len(p.active))
	for _, w := range p.active {
		activeWorkers = append(activeWorkers, w)
	}
	p.active = make(map[string]*worker)
	p.mu.Unlock()

	for {
		select {
		case w := <-p.idle:
			p.destroyWorker(ctx, w)
			continue
		default:
		}
		break
	}
	for _, w := range activeWorkers {
		p.destroyWorker(ctx, w)
	}
	if err := os.RemoveAll(p.scratchRoot); err != nil {
		p.log.Warn().Err(err).Msg("scratch root remove failed")
	}
	p.log.Info().Msg("sandbox pool shut down")
}

// IdleCount reports how many workers are currently idle.
func (p *Pool) IdleCount() int { return len(p.idle) }

// emptyDir removes every entry under dir, keeping dir itself.
func emptyDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}
