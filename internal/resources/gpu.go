package resources

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ashureev/ollama-manager/internal/runner"
)

// NvidiaSMIArgs queries per-GPU utilisation as bare integers, one per line.
var NvidiaSMIArgs = []string{"--query-gpu=utilization.gpu", "--format=csv,noheader,nounits"}

// NvidiaSMIProbe reads utilisation of the first GPU from nvidia-smi.
type NvidiaSMIProbe struct {
	inv runner.Invoker
}

// NewNvidiaSMIProbe wraps an invoker whose binary is nvidia-smi.
func NewNvidiaSMIProbe(inv runner.Invoker) *NvidiaSMIProbe {
	return &NvidiaSMIProbe{inv: inv}
}

// Utilization returns the first GPU's load. A host without nvidia-smi
// surfaces runner.ErrUnavailable.
func (p *NvidiaSMIProbe) Utilization(ctx context.Context) (float64, error) {
	res, err := p.inv.Invoke(ctx, NvidiaSMIArgs, nil)
	if err != nil {
		return 0, err
	}
	if res.ExitCode != 0 {
		return 0, fmt.Errorf("nvidia-smi exited %d: %s", res.ExitCode, strings.TrimSpace(string(res.Stderr)))
	}
	return parseUtilization(string(res.Stdout))
}

func parseUtilization(out string) (float64, error) {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		v, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return 0, fmt.Errorf("parse gpu utilization %q: %w", line, err)
		}
		return v, nil
	}
	return 0, nil
}
