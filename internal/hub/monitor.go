package hub

import (
	"context"
	"log/slog"
	"time"
)

// Monitor drives the liveness sweep on a fixed interval. A connection
// must answer each sweep's ping before the next one or it is evicted, so
// a dead peer survives at most two intervals. Every sweep is followed by
// a roster wake-up so clients see evictions promptly.
type Monitor struct {
	registry *Registry
	interval time.Duration
	wake     func()
	logger   *slog.Logger
}

func NewMonitor(registry *Registry, interval time.Duration, wake func(), logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if wake == nil {
		wake = func() {}
	}
	return &Monitor{
		registry: registry,
		interval: interval,
		wake:     wake,
		logger:   logger,
	}
}

func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pinged, evicted := m.registry.Sweep()
			if evicted > 0 {
				m.logger.Info("liveness sweep", "pinged", pinged, "evicted", evicted)
			} else {
				m.logger.Debug("liveness sweep", "pinged", pinged)
			}
			m.wake()
		}
	}
}
