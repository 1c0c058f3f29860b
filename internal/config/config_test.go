package config_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draugr-dev/overseer-cli/api/schemas"
	"github.com/draugr-dev/overseer-cli/internal/config"
)

func defaultConfig(t *testing.T) *config.Config {
	t.Helper()
	v := viper.New()
	config.SetDefaults(v)
	var cfg config.Config
	require.NoError(t, v.Unmarshal(&cfg))
	return &cfg
}

// validConfig is the default config plus the display geometry defaults
// cannot supply.
func validConfig(t *testing.T) *config.Config {
	cfg := defaultConfig(t)
	cfg.Display.UserBounds = schemas.Rect{X: 0, Y: 0, Width: 1920, Height: 1080}
	cfg.Display.AutomationBounds = schemas.Rect{X: 1920, Y: 100, Width: 1280, Height: 980}
	return cfg
}

func TestSetDefaults(t *testing.T) {
	cfg := defaultConfig(t)

	wantRecognition := config.RecognitionConfig{
		AttemptBudget:    3,
		AttemptTimeout:   5 * time.Second,
		DefaultThreshold: 0.8,
		MatchStride:      2,
	}
	if diff := cmp.Diff(wantRecognition, cfg.Recognition); diff != "" {
		t.Errorf("recognition defaults mismatch (-want +got):\n%s", diff)
	}

	wantScheduler := config.SchedulerConfig{
		LightThrottle: 2 * time.Second,
		PollInterval:  250 * time.Millisecond,
		MaxWait:       5 * time.Minute,
	}
	if diff := cmp.Diff(wantScheduler, cfg.Scheduler); diff != "" {
		t.Errorf("scheduler defaults mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, "none", cfg.Vision.Provider, "external vision must be opt-in")
	assert.Equal(t, "recognition", cfg.Verify.Mode)
	assert.NotEqual(t, cfg.Display.UserID, cfg.Display.AutomationID)
	assert.True(t, cfg.Display.Synthesis.Enabled)
	assert.Contains(t, cfg.Monitor.CriticalProcesses, "zoom")
}

func TestValidate_DefaultsPlusGeometryPass(t *testing.T) {
	require.NoError(t, validConfig(t).Validate())
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:    "missing bounds",
			mutate:  func(c *config.Config) { c.Display.AutomationBounds = schemas.Rect{} },
			wantErr: "automation_bounds",
		},
		{
			name: "same display for both roles",
			mutate: func(c *config.Config) {
				c.Display.UserID = c.Display.AutomationID
			},
			wantErr: "must differ",
		},
		{
			name: "overlapping displays",
			mutate: func(c *config.Config) {
				c.Display.AutomationBounds = schemas.Rect{X: 1000, Y: 0, Width: 1280, Height: 980}
			},
			wantErr: "overlap",
		},
		{
			name:    "zero attempt budget",
			mutate:  func(c *config.Config) { c.Recognition.AttemptBudget = 0 },
			wantErr: "attempt_budget",
		},
		{
			name:    "threshold above one",
			mutate:  func(c *config.Config) { c.Recognition.DefaultThreshold = 1.2 },
			wantErr: "out of range",
		},
		{
			name:    "negative retries",
			mutate:  func(c *config.Config) { c.Engine.ExecuteRetries = -1 },
			wantErr: "execute_retries",
		},
		{
			name:    "zero abort poll",
			mutate:  func(c *config.Config) { c.Engine.AbortPollInterval = 0 },
			wantErr: "abort_poll_interval",
		},
		{
			name:    "unknown verify mode",
			mutate:  func(c *config.Config) { c.Verify.Mode = "strict" },
			wantErr: "verify.mode",
		},
		{
			name: "rule with unknown effect",
			mutate: func(c *config.Config) {
				c.Policy.Rules = []schemas.PolicyRule{{Name: "odd", Effect: "audit"}}
			},
			wantErr: "unknown effect",
		},
		{
			name: "rate limit without interval",
			mutate: func(c *config.Config) {
				c.Policy.RateLimits = []schemas.RateLimitSpec{{ActionType: schemas.ActionClick, MaxEvents: 5}}
			},
			wantErr: "rate limit",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig(t)
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
