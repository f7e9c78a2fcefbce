package runner

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ashureev/ollama-manager/internal/domain"
	"github.com/ashureev/ollama-manager/internal/metrics"
	"github.com/ashureev/ollama-manager/internal/output"
)

var columnSeparator = regexp.MustCompile(`\t+|\s{2,}`)

// Models wraps the runner's model management subcommands.
type Models struct {
	inv     Invoker
	metrics *metrics.Metrics
}

// NewModels creates a model manager on top of an invoker. m may be nil.
func NewModels(inv Invoker, m *metrics.Metrics) *Models {
	return &Models{inv: inv, metrics: m}
}

// List returns the installed models.
func (m *Models) List(ctx context.Context) ([]domain.Model, error) {
	out, err := m.run(ctx, "list")
	if err != nil {
		return nil, err
	}
	return ParseList(out), nil
}

// Pull downloads a model.
func (m *Models) Pull(ctx context.Context, name string) error {
	_, err := m.run(ctx, "pull", name)
	return err
}

// Remove deletes an installed model.
func (m *Models) Remove(ctx context.Context, name string) error {
	_, err := m.run(ctx, "rm", name)
	return err
}

// Version returns the runner's reported version string.
func (m *Models) Version(ctx context.Context) (string, error) {
	return m.run(ctx, "--version")
}

func (m *Models) run(ctx context.Context, args ...string) (string, error) {
	res, err := m.inv.Invoke(ctx, args, nil)
	m.record(args[0], res, err)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		detail := strings.TrimSpace(output.Decode(res.Stderr))
		if detail == "" {
			detail = fmt.Sprintf("exit status %d", res.ExitCode)
		}
		return "", fmt.Errorf("runner %s: %s", strings.Join(args, " "), detail)
	}
	return strings.TrimSpace(output.Decode(res.Stdout)), nil
}

func (m *Models) record(command string, res *Result, err error) {
	if m.metrics != nil {
		m.metrics.RecordRunner(command, Status(res, err))
	}
}

// Status labels an invocation outcome for metrics.
func Status(res *Result, err error) string {
	switch {
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case err != nil:
		return "unavailable"
	case res.ExitCode != 0:
		return "exit_nonzero"
	default:
		return "exit_0"
	}
}

// ParseList parses the table printed by the runner's list command.
// The header row is skipped; rows with fewer than two columns are ignored.
func ParseList(out string) []domain.Model {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	models := make([]domain.Model, 0, len(lines))
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if i == 0 || line == "" {
			continue
		}

		cols := columnSeparator.Split(line, -1)
		if len(cols) < 2 {
			cols = strings.Fields(line)
		}
		if len(cols) < 2 {
			continue
		}

		model := domain.Model{Name: cols[0], ID: cols[1]}
		if len(cols) > 2 {
			model.Size = cols[2]
		}
		if len(cols) > 3 {
			model.Modified = strings.Join(cols[3:], " ")
		}
		models = append(models, model)
	}
	return models
}
