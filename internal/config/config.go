// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/draugr-dev/overseer-cli/api/schemas"
)

// Config holds the entire application configuration. It is loaded once at
// startup; policy and threshold changes require a new session.
type Config struct {
	Logger      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	Templates   TemplatesConfig   `mapstructure:"templates" yaml:"templates"`
	Recognition RecognitionConfig `mapstructure:"recognition" yaml:"recognition"`
	Vision      VisionConfig      `mapstructure:"vision" yaml:"vision"`
	Display     DisplayConfig     `mapstructure:"display" yaml:"display"`
	Isolation   IsolationConfig   `mapstructure:"isolation" yaml:"isolation"`
	Policy      PolicyConfig      `mapstructure:"policy" yaml:"policy"`
	Monitor     MonitorConfig     `mapstructure:"monitor" yaml:"monitor"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler" yaml:"scheduler"`
	Verify      VerifyConfig      `mapstructure:"verify" yaml:"verify"`
	Audit       AuditConfig       `mapstructure:"audit" yaml:"audit"`
	Engine      EngineConfig      `mapstructure:"engine" yaml:"engine"`
}

// LoggerConfig mirrors the observability package's expectations.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"` // "console" or "json"
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"` // megabytes
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"` // days
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
}

// TemplatesConfig configures the versioned reference-image store.
type TemplatesConfig struct {
	DBPath string `mapstructure:"db_path" yaml:"db_path"`
	// MinDetailStdDev rejects near-blank images on insert.
	MinDetailStdDev float64 `mapstructure:"min_detail_std_dev" yaml:"min_detail_std_dev"`
}

// RecognitionConfig bounds the multi-strategy locate chain.
type RecognitionConfig struct {
	// AttemptBudget caps attempts across the whole fallback chain.
	AttemptBudget int `mapstructure:"attempt_budget" yaml:"attempt_budget"`
	// AttemptTimeout bounds each individual strategy attempt.
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout" yaml:"attempt_timeout"`
	// DefaultThreshold applies when a descriptor does not set its own.
	DefaultThreshold float64 `mapstructure:"default_threshold" yaml:"default_threshold"`
	// MatchStride is the pixel stride of the coarse template scan pass.
	MatchStride int `mapstructure:"match_stride" yaml:"match_stride"`
}

// VisionConfig configures the external vision/OCR provider client.
type VisionConfig struct {
	Provider        string        `mapstructure:"provider" yaml:"provider"` // "gemini" or "none"
	APIKey          string        `mapstructure:"api_key" yaml:"api_key"`
	Model           string        `mapstructure:"model" yaml:"model"`
	APITimeout      time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	MaxRetryElapsed time.Duration `mapstructure:"max_retry_elapsed" yaml:"max_retry_elapsed"`
}

// SynthesisConfig shapes the human-like input synthesis of the display
// session: cursor trajectory noise, click hold, and typing cadence.
type SynthesisConfig struct {
	Enabled          bool    `mapstructure:"enabled" yaml:"enabled"`
	MoveStepPx       float64 `mapstructure:"move_step_px" yaml:"move_step_px"`
	NoiseAmplitude   float64 `mapstructure:"noise_amplitude" yaml:"noise_amplitude"`
	ClickHoldMinMs   int     `mapstructure:"click_hold_min_ms" yaml:"click_hold_min_ms"`
	ClickHoldMaxMs   int     `mapstructure:"click_hold_max_ms" yaml:"click_hold_max_ms"`
	KeyIntervalMinMs int     `mapstructure:"key_interval_min_ms" yaml:"key_interval_min_ms"`
	KeyIntervalMaxMs int     `mapstructure:"key_interval_max_ms" yaml:"key_interval_max_ms"`
}

// DisplayConfig registers the two displays and the synthesis profile.
type DisplayConfig struct {
	UserID           string          `mapstructure:"user_id" yaml:"user_id"`
	UserBounds       schemas.Rect    `mapstructure:"user_bounds" yaml:"user_bounds"`
	AutomationID     string          `mapstructure:"automation_id" yaml:"automation_id"`
	AutomationBounds schemas.Rect    `mapstructure:"automation_bounds" yaml:"automation_bounds"`
	Synthesis        SynthesisConfig `mapstructure:"synthesis" yaml:"synthesis"`
	// DefaultActionTimeout applies when an action does not set its own.
	DefaultActionTimeout time.Duration `mapstructure:"default_action_timeout" yaml:"default_action_timeout"`
}

// IsolationConfig tunes the encroachment background check.
type IsolationConfig struct {
	EncroachmentInterval time.Duration `mapstructure:"encroachment_interval" yaml:"encroachment_interval"`
}

// PolicyConfig carries the startup rule set and rate limits.
type PolicyConfig struct {
	Rules      []schemas.PolicyRule    `mapstructure:"rules" yaml:"rules"`
	RateLimits []schemas.RateLimitSpec `mapstructure:"rate_limits" yaml:"rate_limits"`
}

// MonitorConfig tunes user-activity sampling and classification.
type MonitorConfig struct {
	SampleInterval time.Duration `mapstructure:"sample_interval" yaml:"sample_interval"`
	IdleThreshold  time.Duration `mapstructure:"idle_threshold" yaml:"idle_threshold"`
	WindowSize     int           `mapstructure:"window_size" yaml:"window_size"`
	// CriticalProcesses are high-attention processes (video call,
	// presentation) whose focus forces the critical level.
	CriticalProcesses []string `mapstructure:"critical_processes" yaml:"critical_processes"`
}

// SchedulerConfig tunes the dispatch gate.
type SchedulerConfig struct {
	// LightThrottle is the minimum gap between dispatches at light activity.
	LightThrottle time.Duration `mapstructure:"light_throttle" yaml:"light_throttle"`
	// PollInterval is how often a gated wait re-checks activity and abort.
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	// MaxWait bounds any scheduler wait before it degrades to a timeout.
	MaxWait time.Duration `mapstructure:"max_wait" yaml:"max_wait"`
}

// VerifyConfig selects and tunes the post-action verification heuristic.
// Verification strictness is configuration, not a hardcoded rule.
type VerifyConfig struct {
	Mode string `mapstructure:"mode" yaml:"mode"` // "recognition", "pixel_diff", "off"
	// MinPixelDelta is the fraction of changed pixels pixel_diff requires.
	MinPixelDelta float64       `mapstructure:"min_pixel_delta" yaml:"min_pixel_delta"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// AuditConfig configures audit persistence and evidence storage.
type AuditConfig struct {
	DBPath      string `mapstructure:"db_path" yaml:"db_path"`
	EvidenceDir string `mapstructure:"evidence_dir" yaml:"evidence_dir"`
}

// EngineConfig carries orchestrator-level bounds.
type EngineConfig struct {
	// ExecuteRetries is the retry budget for transient execution errors.
	ExecuteRetries int `mapstructure:"execute_retries" yaml:"execute_retries"`
	// AbortPollInterval bounds how stale an abort observation may be.
	AbortPollInterval time.Duration `mapstructure:"abort_poll_interval" yaml:"abort_poll_interval"`
}

// SetDefaults registers every default value with viper. Called before
// ReadInConfig so the config file and env only need to override.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "overseer")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)

	v.SetDefault("templates.db_path", "overseer_templates.db")
	v.SetDefault("templates.min_detail_std_dev", 8.0)

	v.SetDefault("recognition.attempt_budget", 3)
	v.SetDefault("recognition.attempt_timeout", 5*time.Second)
	v.SetDefault("recognition.default_threshold", 0.8)
	v.SetDefault("recognition.match_stride", 2)

	v.SetDefault("vision.provider", "none")
	v.SetDefault("vision.model", "gemini-2.0-flash")
	v.SetDefault("vision.api_timeout", 30*time.Second)
	v.SetDefault("vision.max_retry_elapsed", 2*time.Minute)

	v.SetDefault("display.user_id", "display-user")
	v.SetDefault("display.automation_id", "display-automation")
	v.SetDefault("display.default_action_timeout", 10*time.Second)
	v.SetDefault("display.synthesis.enabled", true)
	v.SetDefault("display.synthesis.move_step_px", 18.0)
	v.SetDefault("display.synthesis.noise_amplitude", 2.5)
	v.SetDefault("display.synthesis.click_hold_min_ms", 25)
	v.SetDefault("display.synthesis.click_hold_max_ms", 140)
	v.SetDefault("display.synthesis.key_interval_min_ms", 30)
	v.SetDefault("display.synthesis.key_interval_max_ms", 120)

	v.SetDefault("isolation.encroachment_interval", 2*time.Second)

	v.SetDefault("monitor.sample_interval", 500*time.Millisecond)
	v.SetDefault("monitor.idle_threshold", 30*time.Second)
	v.SetDefault("monitor.window_size", 32)
	v.SetDefault("monitor.critical_processes", []string{"zoom", "teams", "obs", "powerpnt", "keynote"})

	v.SetDefault("scheduler.light_throttle", 2*time.Second)
	v.SetDefault("scheduler.poll_interval", 250*time.Millisecond)
	v.SetDefault("scheduler.max_wait", 5*time.Minute)

	v.SetDefault("verify.mode", "recognition")
	v.SetDefault("verify.min_pixel_delta", 0.002)
	v.SetDefault("verify.timeout", 5*time.Second)

	v.SetDefault("audit.db_path", "overseer_audit.db")
	v.SetDefault("audit.evidence_dir", "evidence")

	v.SetDefault("engine.execute_retries", 2)
	v.SetDefault("engine.abort_poll_interval", 100*time.Millisecond)
}

// Validate rejects configurations the engine cannot run safely with.
func (c *Config) Validate() error {
	if c.Recognition.AttemptBudget < 1 {
		return fmt.Errorf("recognition.attempt_budget must be at least 1")
	}
	if c.Recognition.DefaultThreshold < 0 || c.Recognition.DefaultThreshold > 1 {
		return fmt.Errorf("recognition.default_threshold %.3f out of range [0,1]", c.Recognition.DefaultThreshold)
	}
	if c.Display.AutomationID == c.Display.UserID {
		return fmt.Errorf("display.automation_id and display.user_id must differ")
	}
	if c.Display.AutomationBounds.Empty() {
		return fmt.Errorf("display.automation_bounds must be set")
	}
	if c.Display.UserBounds.Empty() {
		return fmt.Errorf("display.user_bounds must be set")
	}
	if c.Display.AutomationBounds.Intersects(c.Display.UserBounds) {
		return fmt.Errorf("automation and user display bounds overlap: %s vs %s",
			c.Display.AutomationBounds, c.Display.UserBounds)
	}
	if c.Engine.ExecuteRetries < 0 {
		return fmt.Errorf("engine.execute_retries must not be negative")
	}
	if c.Engine.AbortPollInterval <= 0 {
		return fmt.Errorf("engine.abort_poll_interval must be positive")
	}
	if c.Scheduler.PollInterval <= 0 {
		return fmt.Errorf("scheduler.poll_interval must be positive")
	}
	switch c.Verify.Mode {
	case "recognition", "pixel_diff", "off":
	default:
		return fmt.Errorf("verify.mode %q is not one of recognition, pixel_diff, off", c.Verify.Mode)
	}
	for _, r := range c.Policy.Rules {
		if r.Effect != schemas.EffectAllow && r.Effect != schemas.EffectDeny {
			return fmt.Errorf("policy rule %q has unknown effect %q", r.Name, r.Effect)
		}
	}
	for _, rl := range c.Policy.RateLimits {
		if rl.MaxEvents <= 0 || rl.Interval <= 0 {
			return fmt.Errorf("rate limit for %q must have positive max_events and interval", rl.ActionType)
		}
	}
	return nil
}
