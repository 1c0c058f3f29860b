// File: internal/service/factory.go
// Description: Dependency injection for the engine. Builds the full
// component set from configuration and a set of platform ports, so the run
// command and the tests assemble the engine the same way.

package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/draugr-dev/overseer-cli/api/schemas"
	"github.com/draugr-dev/overseer-cli/internal/activity"
	"github.com/draugr-dev/overseer-cli/internal/audit"
	"github.com/draugr-dev/overseer-cli/internal/config"
	"github.com/draugr-dev/overseer-cli/internal/display"
	"github.com/draugr-dev/overseer-cli/internal/emergency"
	"github.com/draugr-dev/overseer-cli/internal/isolation"
	"github.com/draugr-dev/overseer-cli/internal/orchestrator"
	"github.com/draugr-dev/overseer-cli/internal/policy"
	"github.com/draugr-dev/overseer-cli/internal/recognition"
	"github.com/draugr-dev/overseer-cli/internal/scheduler"
	"github.com/draugr-dev/overseer-cli/internal/templates"
	"github.com/draugr-dev/overseer-cli/internal/vision"
)

// Ports are the platform and collaborator boundaries the engine is built
// over. Everything here is external to the engine core.
type Ports struct {
	Input   schemas.InputExecutor
	Screen  schemas.ScreenSource
	Sampler activity.Sampler
	Trigger schemas.TriggerSource
	Prober  isolation.BoundsProber
	Sink    schemas.EvidenceSink
	// Vision overrides the configured provider when set.
	Vision schemas.VisionProvider
}

func (p Ports) validate() error {
	if p.Input == nil || p.Screen == nil || p.Sampler == nil || p.Trigger == nil {
		return fmt.Errorf("ports require input, screen, sampler, and trigger")
	}
	return nil
}

// Components is the fully wired engine.
type Components struct {
	Config       *config.Config
	Flag         *emergency.Flag
	Watcher      *emergency.Watcher
	Monitor      *activity.Monitor
	Isolation    *isolation.Manager
	Guard        *policy.Guard
	Scheduler    *scheduler.Scheduler
	Session      *display.Session
	Templates    *templates.Library
	Recognition  *recognition.Engine
	Audit        *audit.Log
	Evidence     *audit.EvidenceStore
	Orchestrator *orchestrator.Orchestrator

	sink schemas.EvidenceSink
	log  *zap.Logger
}

// Build wires the engine. Cleanup of partially initialized components is
// handled here so a failed build leaks nothing.
func Build(ctx context.Context, cfg *config.Config, ports Ports, logger *zap.Logger) (*Components, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := ports.validate(); err != nil {
		return nil, err
	}

	c := &Components{Config: cfg, log: logger.Named("service")}
	var buildErr error
	defer func() {
		if buildErr != nil {
			c.Close()
		}
	}()

	c.Flag = emergency.NewFlag()
	c.Watcher = emergency.NewWatcher(c.Flag, ports.Trigger, logger)

	c.Isolation = isolation.NewManager(ports.Prober, logger)
	autoID := schemas.DisplayID(cfg.Display.AutomationID)
	userID := schemas.DisplayID(cfg.Display.UserID)
	if buildErr = c.Isolation.RegisterDisplay(autoID, schemas.RoleAutomation, cfg.Display.AutomationBounds); buildErr != nil {
		return nil, buildErr
	}
	if buildErr = c.Isolation.RegisterDisplay(userID, schemas.RoleUser, cfg.Display.UserBounds); buildErr != nil {
		return nil, buildErr
	}

	c.Templates, buildErr = templates.Open(ctx, cfg.Templates.DBPath,
		templates.Validator{MinDetailStdDev: cfg.Templates.MinDetailStdDev}, logger)
	if buildErr != nil {
		return nil, buildErr
	}

	provider := ports.Vision
	if provider == nil && cfg.Vision.Provider == "gemini" {
		gemini, err := vision.NewGeminiProvider(ctx, cfg.Vision, logger)
		if err != nil {
			buildErr = fmt.Errorf("failed to build vision provider: %w", err)
			return nil, buildErr
		}
		provider = gemini
	}
	c.Recognition = recognition.New(cfg.Recognition, c.Templates, provider, logger)

	c.Monitor = activity.NewMonitor(cfg.Monitor, ports.Sampler, logger)
	c.Scheduler = scheduler.New(cfg.Scheduler, c.Monitor, c.Flag, logger)
	c.Guard = policy.NewGuard(cfg.Policy.Rules, policy.NewRateWindow(cfg.Policy.RateLimits), logger)

	c.Session = display.NewSession(autoID, ports.Input, ports.Screen, c.Flag, cfg.Display.Synthesis, logger)

	c.Audit, buildErr = audit.Open(ctx, cfg.Audit, logger)
	if buildErr != nil {
		return nil, buildErr
	}
	c.Evidence, buildErr = audit.NewEvidenceStore(cfg.Audit.EvidenceDir)
	if buildErr != nil {
		return nil, buildErr
	}

	c.sink = ports.Sink
	if c.sink == nil {
		c.sink = NewFileSink(cfg.Audit.EvidenceDir)
	}

	verifier, err := orchestrator.NewVerifier(cfg.Verify, c.Recognition)
	if err != nil {
		buildErr = err
		return nil, buildErr
	}

	c.Orchestrator, buildErr = orchestrator.New(
		cfg.Engine,
		cfg.Display.DefaultActionTimeout,
		cfg.Verify.Timeout,
		c.Recognition,
		c.Guard,
		c.Isolation,
		c.Scheduler,
		c.Session,
		c.Audit,
		c.Evidence,
		c.sink,
		c.Flag,
		c.Watcher,
		verifier,
		logger,
	)
	if buildErr != nil {
		return nil, buildErr
	}

	c.log.Info("Engine components wired",
		zap.String("automation_display", cfg.Display.AutomationID),
		zap.String("user_display", cfg.Display.UserID),
		zap.String("vision_provider", cfg.Vision.Provider),
	)
	return c, nil
}

// Close releases storage handles. Safe on a partially built set.
func (c *Components) Close() {
	if c.Audit != nil {
		if err := c.Audit.Close(); err != nil {
			c.log.Warn("Failed to close audit log", zap.Error(err))
		}
	}
	if c.Templates != nil {
		if err := c.Templates.Close(); err != nil {
			c.log.Warn("Failed to close template library", zap.Error(err))
		}
	}
}
