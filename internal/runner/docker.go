package runner

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// DockerInvoker runs the runner inside an existing container through the
// Docker exec API, for setups where the runner is containerised.
type DockerInvoker struct {
	cli       *client.Client
	container string
	binary    string
}

// NewDockerInvoker connects to the Docker daemon from the environment and
// targets binary inside containerName. Extra options are applied after the
// environment, so they can point the client at another daemon.
func NewDockerInvoker(containerName, binary string, opts ...client.Opt) (*DockerInvoker, error) {
	opts = append([]client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}, opts...)
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	slog.Info("Docker runner client initialized", "container", containerName, "binary", binary)
	return &DockerInvoker{cli: cli, container: containerName, binary: binary}, nil
}

// Close releases the Docker client.
func (d *DockerInvoker) Close() error {
	return d.cli.Close()
}

// Invoke runs the runner once inside the container and waits for it to exit.
func (d *DockerInvoker) Invoke(ctx context.Context, args []string, input []byte) (*Result, error) {
	cmd := append([]string{d.binary}, args...)
	execConfig := container.ExecOptions{
		Cmd:          cmd,
		AttachStdin:  input != nil,
		AttachStdout: true,
		AttachStderr: true,
	}

	start := time.Now()
	resp, err := d.cli.ContainerExecCreate(ctx, d.container, execConfig)
	if err != nil {
		return nil, d.classifyError(ctx, "create exec", err)
	}

	attachResp, err := d.cli.ContainerExecAttach(ctx, resp.ID, container.ExecStartOptions{})
	if err != nil {
		return nil, d.classifyError(ctx, "attach exec", err)
	}
	defer attachResp.Close()

	// The hijacked stream ignores ctx; closing it unblocks the output copy.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			attachResp.Close()
		case <-done:
		}
	}()

	if input != nil {
		go func() {
			if _, err := attachResp.Conn.Write(input); err != nil {
				slog.Debug("Failed to write runner stdin", "exec_id", resp.ID, "error", err)
			}
			if err := attachResp.CloseWrite(); err != nil {
				slog.Debug("Failed to close runner stdin", "exec_id", resp.ID, "error", err)
			}
		}()
	}

	var stdout bytes.Buffer
	stderr := NewTailBuffer(stderrCapacity)
	if _, err := stdcopy.StdCopy(&stdout, stderr, attachResp.Reader); err != nil {
		return nil, d.classifyError(ctx, "read exec output", err)
	}

	inspect, err := d.cli.ContainerExecInspect(ctx, resp.ID)
	if err != nil {
		return nil, d.classifyError(ctx, "inspect exec", err)
	}

	slog.Debug("Containerised runner finished",
		"container", d.container,
		"args", args,
		"exit_code", inspect.ExitCode,
		"duration", time.Since(start))
	return &Result{
		ExitCode: inspect.ExitCode,
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
	}, nil
}

func (d *DockerInvoker) classifyError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %s in container %s: %v", ErrTimeout, op, d.container, ctxErr)
	}
	switch {
	case errdefs.IsNotFound(err):
		return fmt.Errorf("%w: container %s not found: %v", ErrUnavailable, d.container, err)
	case errdefs.IsConflict(err):
		return fmt.Errorf("%w: container %s is not running: %v", ErrUnavailable, d.container, err)
	case client.IsErrConnectionFailed(err):
		return fmt.Errorf("%w: docker daemon unreachable: %v", ErrUnavailable, err)
	}
	return fmt.Errorf("%w: %s in container %s: %v", ErrUnavailable, op, d.container, err)
}
