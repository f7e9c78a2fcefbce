package resources

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/ollama-manager/internal/domain"
)

// DefaultInterval is used when a non-positive interval is configured.
const DefaultInterval = time.Second

// SampleCallback receives every sample taken by the monitor.
type SampleCallback func(usage domain.ResourceUsage)

// Monitor samples on a fixed interval and keeps the latest snapshot.
type Monitor struct {
	sampler  *Sampler
	interval time.Duration

	mu     sync.RWMutex
	latest *domain.ResourceUsage
}

// NewMonitor creates a monitor. It does nothing until Start is called.
func NewMonitor(sampler *Sampler, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{sampler: sampler, interval: interval}
}

// Interval returns the sampling period.
func (m *Monitor) Interval() time.Duration {
	return m.interval
}

// Start runs the sampling loop in a goroutine until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context, onSample SampleCallback) {
	ticker := time.NewTicker(m.interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Resource monitor started", "interval", m.interval)

		m.tick(ctx, onSample)
		for {
			select {
			case <-ticker.C:
				m.tick(ctx, onSample)
			case <-ctx.Done():
				slog.Info("Resource monitor shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func (m *Monitor) tick(ctx context.Context, onSample SampleCallback) {
	usage := m.sampler.Sample(ctx)
	m.mu.Lock()
	m.latest = &usage
	m.mu.Unlock()

	if onSample != nil {
		onSample(usage)
	}
}

// Current returns the latest snapshot if it is no older than two intervals,
// otherwise it samples synchronously.
func (m *Monitor) Current(ctx context.Context) domain.ResourceUsage {
	m.mu.RLock()
	latest := m.latest
	m.mu.RUnlock()

	if latest != nil && m.sampler.now().Sub(latest.SampledAt) <= 2*m.interval {
		return *latest
	}
	return m.sampler.Sample(ctx)
}
