// File: internal/activity/monitor.go
// Description: Samples the user display's input and focus state on a fixed
// interval and classifies an activity level. The latest sample is published
// through an atomic pointer so the scheduler reads it lock-free; only a
// short rolling window is retained.

package activity

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/draugr-dev/overseer-cli/api/schemas"
	"github.com/draugr-dev/overseer-cli/internal/config"
)

// RawSample is one observation delivered by a platform sampler.
type RawSample struct {
	KeyboardActive bool
	MouseActive    bool
	FocusedProcess string
}

// Sampler reads the user display's current input/focus signals. Platform
// specific; injected so the monitor stays testable.
type Sampler interface {
	Sample(ctx context.Context) (RawSample, error)
}

// Monitor is the long-lived background sampler.
type Monitor struct {
	cfg     config.MonitorConfig
	sampler Sampler
	log     *zap.Logger
	now     func() time.Time

	latest atomic.Pointer[schemas.ActivitySample]

	mu        sync.Mutex
	window    []schemas.ActivitySample
	lastInput time.Time
}

// NewMonitor creates a monitor. Run must be called for Latest to advance.
func NewMonitor(cfg config.MonitorConfig, sampler Sampler, logger *zap.Logger) *Monitor {
	return &Monitor{
		cfg:     cfg,
		sampler: sampler,
		log:     logger.Named("activity"),
		now:     time.Now,
	}
}

// Run samples on the configured interval until the context ends.
func (m *Monitor) Run(ctx context.Context) error {
	interval := m.cfg.SampleInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.log.Info("Activity monitor started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			m.log.Info("Activity monitor stopped")
			return nil
		case <-ticker.C:
			m.sampleOnce(ctx)
		}
	}
}

func (m *Monitor) sampleOnce(ctx context.Context) {
	raw, err := m.sampler.Sample(ctx)
	if err != nil {
		// A failed sample keeps the previous classification; the scheduler
		// must not dispatch more aggressively because sampling broke.
		m.log.Warn("Activity sample failed", zap.Error(err))
		return
	}
	m.Observe(raw)
}

// Observe classifies a raw sample and publishes it. Exported so tests and
// replay tooling can drive the monitor without a ticker.
func (m *Monitor) Observe(raw RawSample) schemas.ActivitySample {
	now := m.now()

	m.mu.Lock()
	if raw.KeyboardActive || raw.MouseActive {
		m.lastInput = now
	}
	lastInput := m.lastInput
	m.mu.Unlock()

	sample := schemas.ActivitySample{
		At:             now,
		KeyboardActive: raw.KeyboardActive,
		MouseActive:    raw.MouseActive,
		FocusedProcess: raw.FocusedProcess,
		Level:          m.classify(raw, lastInput, now),
	}

	m.mu.Lock()
	m.window = append(m.window, sample)
	limit := m.cfg.WindowSize
	if limit <= 0 {
		limit = 32
	}
	if len(m.window) > limit {
		m.window = m.window[len(m.window)-limit:]
	}
	m.mu.Unlock()

	m.latest.Store(&sample)
	return sample
}

// classify derives the activity level. Critical (a recognized
// high-attention process is focused) dominates everything else.
func (m *Monitor) classify(raw RawSample, lastInput, now time.Time) schemas.ActivityLevel {
	for _, proc := range m.cfg.CriticalProcesses {
		if proc != "" && strings.Contains(strings.ToLower(raw.FocusedProcess), strings.ToLower(proc)) {
			return schemas.ActivityCritical
		}
	}
	if raw.KeyboardActive && raw.MouseActive {
		return schemas.ActivityIntensive
	}
	if raw.KeyboardActive || raw.MouseActive {
		return schemas.ActivityLight
	}
	idle := m.cfg.IdleThreshold
	if idle <= 0 {
		idle = 30 * time.Second
	}
	if lastInput.IsZero() || now.Sub(lastInput) >= idle {
		return schemas.ActivityIdle
	}
	return schemas.ActivityLight
}

// Latest returns the most recent sample. Lock-free; nil before the first
// observation.
func (m *Monitor) Latest() *schemas.ActivitySample {
	return m.latest.Load()
}

// Window returns a copy of the rolling sample window.
func (m *Monitor) Window() []schemas.ActivitySample {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]schemas.ActivitySample, len(m.window))
	copy(out, m.window)
	return out
}
