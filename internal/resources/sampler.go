// Package resources samples host CPU, memory and GPU utilisation and feeds
// the samples to HTTP and websocket clients.
package resources

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/ollama-manager/internal/domain"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// GPUProbe reports GPU utilisation as a percentage.
type GPUProbe interface {
	Utilization(ctx context.Context) (float64, error)
}

type percentFunc func(ctx context.Context) (float64, error)

// Sampler reads one utilisation snapshot at a time. Any reading that fails
// is reported as zero.
type Sampler struct {
	cpu    percentFunc
	memory percentFunc
	gpu    GPUProbe
	now    func() time.Time
}

// NewSampler returns a sampler backed by gopsutil. gpu may be nil, in which
// case GPU utilisation is always zero.
func NewSampler(gpu GPUProbe) *Sampler {
	return &Sampler{
		cpu:    cpuPercent,
		memory: memoryPercent,
		gpu:    gpu,
		now:    time.Now,
	}
}

// Sample takes a snapshot.
func (s *Sampler) Sample(ctx context.Context) domain.ResourceUsage {
	usage := domain.ResourceUsage{SampledAt: s.now()}

	if v, err := s.cpu(ctx); err != nil {
		slog.Debug("CPU sample failed", "error", err)
	} else {
		usage.CPU = v
	}

	if v, err := s.memory(ctx); err != nil {
		slog.Debug("Memory sample failed", "error", err)
	} else {
		usage.Memory = v
	}

	if s.gpu != nil {
		if v, err := s.gpu.Utilization(ctx); err != nil {
			slog.Debug("GPU sample failed", "error", err)
		} else {
			usage.GPU = v
		}
	}

	return usage
}

func cpuPercent(ctx context.Context) (float64, error) {
	// Interval 0 measures against the previous call.
	values, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, nil
	}
	return values[0], nil
}

func memoryPercent(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}
