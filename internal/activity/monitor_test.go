package activity_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/draugr-dev/overseer-cli/api/schemas"
	"github.com/draugr-dev/overseer-cli/internal/activity"
	"github.com/draugr-dev/overseer-cli/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testMonitorConfig() config.MonitorConfig {
	return config.MonitorConfig{
		SampleInterval:    10 * time.Millisecond,
		IdleThreshold:     30 * time.Second,
		WindowSize:        8,
		CriticalProcesses: []string{"zoom", "powerpnt"},
	}
}

func TestMonitor_Classification(t *testing.T) {
	testCases := []struct {
		name string
		raw  activity.RawSample
		want schemas.ActivityLevel
	}{
		{
			name: "no input is idle before any activity",
			raw:  activity.RawSample{},
			want: schemas.ActivityIdle,
		},
		{
			name: "keyboard only is light",
			raw:  activity.RawSample{KeyboardActive: true},
			want: schemas.ActivityLight,
		},
		{
			name: "mouse only is light",
			raw:  activity.RawSample{MouseActive: true},
			want: schemas.ActivityLight,
		},
		{
			name: "keyboard and mouse is intensive",
			raw:  activity.RawSample{KeyboardActive: true, MouseActive: true},
			want: schemas.ActivityIntensive,
		},
		{
			name: "critical process focus dominates",
			raw:  activity.RawSample{FocusedProcess: "zoom.us helper"},
			want: schemas.ActivityCritical,
		},
		{
			name: "critical process focus dominates input levels too",
			raw:  activity.RawSample{KeyboardActive: true, MouseActive: true, FocusedProcess: "POWERPNT.EXE"},
			want: schemas.ActivityCritical,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := activity.NewMonitor(testMonitorConfig(), nil, zaptest.NewLogger(t))
			sample := m.Observe(tc.raw)
			assert.Equal(t, tc.want, sample.Level)
		})
	}
}

func TestMonitor_RecentInputHoldsLight(t *testing.T) {
	// After input stops, the level stays light until the idle threshold
	// elapses rather than snapping straight to idle.
	m := activity.NewMonitor(testMonitorConfig(), nil, zaptest.NewLogger(t))

	m.Observe(activity.RawSample{MouseActive: true})
	sample := m.Observe(activity.RawSample{})
	assert.Equal(t, schemas.ActivityLight, sample.Level)
}

func TestMonitor_LatestAndWindow(t *testing.T) {
	m := activity.NewMonitor(testMonitorConfig(), nil, zaptest.NewLogger(t))

	assert.Nil(t, m.Latest())

	m.Observe(activity.RawSample{KeyboardActive: true})
	latest := m.Latest()
	require.NotNil(t, latest)
	assert.Equal(t, schemas.ActivityLight, latest.Level)

	// The window is bounded by the configured size.
	for i := 0; i < 20; i++ {
		m.Observe(activity.RawSample{KeyboardActive: true, MouseActive: true})
	}
	window := m.Window()
	assert.Len(t, window, 8)
	assert.Equal(t, schemas.ActivityIntensive, window[len(window)-1].Level)
}

type scriptedSampler struct {
	ch chan activity.RawSample
}

func (s *scriptedSampler) Sample(ctx context.Context) (activity.RawSample, error) {
	select {
	case raw := <-s.ch:
		return raw, nil
	case <-ctx.Done():
		return activity.RawSample{}, ctx.Err()
	}
}

func TestMonitor_Run(t *testing.T) {
	sampler := &scriptedSampler{ch: make(chan activity.RawSample, 4)}
	m := activity.NewMonitor(testMonitorConfig(), sampler, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	sampler.ch <- activity.RawSample{KeyboardActive: true, MouseActive: true}
	require.Eventually(t, func() bool {
		s := m.Latest()
		return s != nil && s.Level == schemas.ActivityIntensive
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
