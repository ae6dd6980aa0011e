// Package sandbox owns the pool of persistent sandbox containers, their
// paired scratch directories, and the staging of execution inputs.
package sandbox

import "context"

// ExecResult carries a finished in-container command: exit code plus the
// demuxed output streams.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner abstracts the container backend so the pool can be exercised
// without a daemon. Errors from Start and Exec that stem from the container
// API wrap model.ErrSandboxTransient; the dispatcher retries those.
type Runner interface {
	// Start creates and starts a sandbox container with scratchDir bound
	// read-only at the configured mount point, returning the container id.
	Start(ctx context.Context, scratchDir string) (string, error)

	// Exec runs cmd inside the container with the given working directory,
	// capturing stdout and stderr separately.
	Exec(ctx context.Context, containerID string, cmd []string, workdir string) (ExecResult, error)

	// Remove force-removes the container; a missing container is not an
	// error.
	Remove(ctx context.Context, containerID string) error
}
