package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

// waitDelay bounds how long Invoke waits for output pipes after the process
// is killed, so orphaned children holding stdout or stderr cannot stall it.
const waitDelay = 2 * time.Second

// ExecInvoker runs a binary on the local host.
type ExecInvoker struct {
	binary string
}

// NewExecInvoker creates an invoker for the given binary name or path.
func NewExecInvoker(binary string) *ExecInvoker {
	return &ExecInvoker{binary: binary}
}

// Binary returns the executable this invoker runs.
func (e *ExecInvoker) Binary() string {
	return e.binary
}

// Invoke runs the binary once and waits for it to exit.
func (e *ExecInvoker) Invoke(ctx context.Context, args []string, input []byte) (*Result, error) {
	cmd := exec.CommandContext(ctx, e.binary, args...)
	cmd.WaitDelay = waitDelay
	if input != nil {
		cmd.Stdin = bytes.NewReader(input)
	}

	var stdout bytes.Buffer
	stderr := NewTailBuffer(stderrCapacity)
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			slog.Warn("Runner interrupted", "binary", e.binary, "args", args, "duration", duration, "reason", ctxErr)
			return nil, fmt.Errorf("%w: %s %v after %s: %v", ErrTimeout, e.binary, args, duration.Round(time.Millisecond), ctxErr)
		}

		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%w: start %s: %v", ErrUnavailable, e.binary, err)
		}

		slog.Debug("Runner exited with non-zero status",
			"binary", e.binary,
			"args", args,
			"exit_code", exitErr.ExitCode(),
			"duration", duration)
		return &Result{
			ExitCode: exitErr.ExitCode(),
			Stdout:   stdout.Bytes(),
			Stderr:   stderr.Bytes(),
		}, nil
	}

	slog.Debug("Runner finished", "binary", e.binary, "args", args, "duration", duration, "stdout_bytes", stdout.Len())
	return &Result{
		ExitCode: 0,
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
	}, nil
}
