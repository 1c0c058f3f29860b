// File: cmd/run.go
package cmd

import (
	"fmt"
	"image/color"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/draugr-dev/overseer-cli/api/schemas"
	"github.com/draugr-dev/overseer-cli/internal/config"
	"github.com/draugr-dev/overseer-cli/internal/observability"
	"github.com/draugr-dev/overseer-cli/internal/policy"
	"github.com/draugr-dev/overseer-cli/internal/service"
	"github.com/draugr-dev/overseer-cli/internal/sim"
)

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	var (
		planPath string
		dryRun   bool
	)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Executes an action plan through the safety-gated engine",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			var cfg config.Config
			if err := viper.Unmarshal(&cfg); err != nil {
				return fmt.Errorf("failed to unmarshal config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			data, err := os.ReadFile(planPath)
			if err != nil {
				return fmt.Errorf("failed to read plan file: %w", err)
			}
			plan, err := schemas.DecodePlan(data)
			if err != nil {
				return fmt.Errorf("failed to decode plan %q: %w", planPath, err)
			}

			if dryRun {
				return evaluatePlan(&cfg, plan, logger)
			}

			ports := simPorts(&cfg)
			components, err := service.Build(ctx, &cfg, ports, logger)
			if err != nil {
				return err
			}
			defer components.Close()

			outcome, err := components.RunPlan(ctx, plan)
			if err != nil {
				return err
			}

			logger.Info("Plan finished",
				zap.String("plan_id", outcome.PlanID),
				zap.String("result", string(outcome.Result)),
				zap.Int("steps_recorded", len(outcome.Records)),
				zap.String("reason", outcome.Reason),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "plan %s: %s\n", outcome.PlanID, outcome.Result)
			if outcome.Result != schemas.PlanCompleted {
				return fmt.Errorf("plan did not complete: %s", outcome.Reason)
			}
			return nil
		},
	}

	runCmd.Flags().StringVar(&planPath, "plan", "", "path to the action plan JSON file (required)")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "evaluate permission and isolation gates without dispatching input")
	_ = runCmd.MarkFlagRequired("plan")

	return runCmd
}

// evaluatePlan runs only the pure gates against each step: schema
// validation, policy evaluation, and a bounds check for explicit targets.
// Nothing touches a display.
func evaluatePlan(cfg *config.Config, plan schemas.ActionPlan, logger *zap.Logger) error {
	window := policy.NewRateWindow(cfg.Policy.RateLimits)
	bounds := cfg.Display.AutomationBounds
	now := time.Now()
	rejected := 0

	for i, action := range plan.Actions {
		if err := action.Validate(); err != nil {
			rejected++
			logger.Warn("Step invalid", zap.Int("step", i), zap.Error(err))
			continue
		}
		verdict := policy.Evaluate(action, cfg.Policy.Rules, window, now)
		if !verdict.Allowed {
			rejected++
			logger.Warn("Step denied by policy",
				zap.Int("step", i),
				zap.String("rule", verdict.Rule),
				zap.String("reason", verdict.Reason),
			)
			continue
		}
		if action.Descriptor == nil && action.Type == schemas.ActionClick && !bounds.Contains(action.Target) {
			rejected++
			logger.Warn("Step target outside automation display",
				zap.Int("step", i),
				zap.Stringer("target", action.Target),
				zap.Stringer("bounds", bounds),
			)
			continue
		}
		logger.Info("Step admissible", zap.Int("step", i), zap.String("type", string(action.Type)))
	}

	logger.Info("Dry run complete",
		zap.String("plan_id", plan.ID),
		zap.Int("steps", len(plan.Actions)),
		zap.Int("rejected", rejected),
	)
	if rejected > 0 {
		return fmt.Errorf("dry run rejected %d of %d steps", rejected, len(plan.Actions))
	}
	return nil
}

// simPorts builds an in-process virtual display backend shaped by the
// configured display layout. Real OS input and capture drivers plug in
// through the same Ports surface.
func simPorts(cfg *config.Config) service.Ports {
	backend := sim.NewBackend()
	auto := sim.NewDisplay(schemas.DisplayID(cfg.Display.AutomationID), cfg.Display.AutomationBounds)
	auto.Paint(cfg.Display.AutomationBounds, color.RGBA{R: 40, G: 40, B: 48, A: 255})
	backend.AddDisplay(auto)
	user := sim.NewDisplay(schemas.DisplayID(cfg.Display.UserID), cfg.Display.UserBounds)
	user.Paint(cfg.Display.UserBounds, color.RGBA{R: 16, G: 16, B: 20, A: 255})
	backend.AddDisplay(user)

	return service.Ports{
		Input:   backend,
		Screen:  backend,
		Prober:  backend,
		Sampler: sim.NewSampler(),
		Trigger: sim.NewTrigger(),
	}
}
