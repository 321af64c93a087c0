package connectivity

import (
	"context"
	"time"

	"github.com/fjod/go_pos/internal/logger"
)

// ProbeFunc returns nil when the backend answered.
type ProbeFunc func(ctx context.Context) error

// Monitor probes the backend on a fixed interval and flips its state on the
// result of each probe. It starts offline until the first probe says otherwise.
type Monitor struct {
	*broadcaster
	probe    ProbeFunc
	interval time.Duration
	log      *logger.Logger
}

func NewMonitor(probe ProbeFunc, interval time.Duration, log *logger.Logger) *Monitor {
	if log == nil {
		log = logger.Nop()
	}
	return &Monitor{
		broadcaster: newBroadcaster(false),
		probe:       probe,
		interval:    interval,
		log:         log,
	}
}

// Run probes immediately and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.log.Info(ctx, "connectivity monitor started")

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			m.log.Info(ctx, "connectivity monitor stopped")
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check runs one probe and returns the resulting state.
func (m *Monitor) Check(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.interval)
	defer cancel()

	err := m.probe(probeCtx)
	online := err == nil
	if m.set(online) {
		if online {
			m.log.Info(ctx, "backend reachable")
		} else {
			m.log.Warn(ctx, "backend unreachable", err)
		}
	}
	return online
}
