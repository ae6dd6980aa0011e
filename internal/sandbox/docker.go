package sandbox

import (
	"bytes"
	"context"
	"fmt"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/tradeforge/engine/internal/model"
)

const (
	sandboxMemoryBytes = 256 << 20
	sandboxTmpfsSpec   = "rw,noexec,nosuid,size=64m"
)

// RunnerConfig fixes the sandbox container contract: image, private
// network, and the in-container bind point for the scratch directory.
type RunnerConfig struct {
	Image     string
	Network   string
	BindPoint string
}

// DockerRunner drives sandbox containers through the Docker API. Containers
// run with a read-only root filesystem, a bounded writable /tmp tmpfs, a
// 256 MiB memory cap, and the scratch directory bound read-only.
type DockerRunner struct {
	cli *client.Client
	cfg RunnerConfig
}

// NewDockerRunner connects to the daemon from the environment.
func NewDockerRunner(cfg RunnerConfig) (*DockerRunner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return &DockerRunner{cli: cli, cfg: cfg}, nil
}

func transient(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", model.ErrSandboxTransient, op, err)
}

// Start implements Runner.
func (r *DockerRunner) Start(ctx context.Context, scratchDir string) (string, error) {
	created, err := r.cli.ContainerCreate(ctx,
		&container.Config{Image: r.cfg.Image},
		&container.HostConfig{
			Binds:          []string{scratchDir + ":" + r.cfg.BindPoint + ":ro"},
			Tmpfs:          map[string]string{"/tmp": sandboxTmpfsSpec},
			ReadonlyRootfs: true,
			NetworkMode:    container.NetworkMode(r.cfg.Network),
			Resources:      container.Resources{Memory: sandboxMemoryBytes},
		},
		nil, nil, "")
	if err != nil {
		return "", transient("container create", err)
	}
	if err := r.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		_ = r.Remove(ctx, created.ID)
		return "", transient("container start", err)
	}
	return created.ID, nil
}

// Exec implements Runner. Stdout and stderr are kept separate via the
// multiplexed attach stream.
func (r *DockerRunner) Exec(ctx context.Context, containerID string, cmd []string, workdir string) (ExecResult, error) {
	exec, err := r.cli.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		Cmd:          cmd,
		WorkingDir:   workdir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return ExecResult{}, transient("exec create", err)
	}

	attach, err := r.cli.ContainerExecAttach(ctx, exec.ID, container.ExecAttachOptions{})
	if err != nil {
		return ExecResult{}, transient("exec attach", err)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader); err != nil {
		if ctx.Err() != nil {
			return ExecResult{}, ctx.Err()
		}
		return ExecResult{}, transient("exec stream", err)
	}

	inspect, err := r.cli.ContainerExecInspect(ctx, exec.ID)
	if err != nil {
		return ExecResult{}, transient("exec inspect", err)
	}
	return ExecResult{
		ExitCode: inspect.ExitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}

// Remove implements Runner.
func (r *DockerRunner) Remove(ctx context.Context, containerID string) error {
	err := r.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
	if err != nil && !errdefs.IsNotFound(err) {
		return transient("container remove", err)
	}
	return nil
}
