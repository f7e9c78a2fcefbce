// Package runner executes the local model runner and captures its raw output.
package runner

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable is returned when the runner process could not be started.
	ErrUnavailable = errors.New("runner unavailable")
	// ErrTimeout is returned when the runner did not finish before the context deadline.
	ErrTimeout = errors.New("runner timed out")
)

// stderrCapacity bounds how much stderr is kept; the tail carries the error.
const stderrCapacity = 64 * 1024

// Result is the raw outcome of one runner invocation.
// A non-zero ExitCode is a normal outcome, not an error.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// Invoker runs the runner with the given arguments.
// When input is non-nil it is written to the runner's stdin.
type Invoker interface {
	Invoke(ctx context.Context, args []string, input []byte) (*Result, error)
}

// Ensure implementations satisfy Invoker.
var (
	_ Invoker = (*ExecInvoker)(nil)
	_ Invoker = (*DockerInvoker)(nil)
)
