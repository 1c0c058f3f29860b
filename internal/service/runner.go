// File: internal/service/runner.go
// Description: Supervised plan execution. Runs the background loops the
// engine depends on (activity sampling, emergency trigger watch,
// encroachment polling) alongside the plan itself.

package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/draugr-dev/overseer-cli/api/schemas"
)

// RunPlan executes one plan under full supervision. The background loops are
// torn down when the plan finishes; a loop failure cancels the plan.
func (c *Components) RunPlan(ctx context.Context, plan schemas.ActionPlan) (schemas.PlanOutcome, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gCtx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return c.Monitor.Run(gCtx)
	})
	g.Go(func() error {
		return c.Watcher.Run(gCtx)
	})
	g.Go(func() error {
		c.Isolation.WatchEncroachment(gCtx, c.Config.Isolation.EncroachmentInterval, func() {
			c.Flag.Trip("automation display encroached on user display")
		})
		return nil
	})
	g.Go(func() error {
		// The trigger signal tears down the whole supervised run at once
		// instead of waiting for the next abort poll.
		select {
		case <-gCtx.Done():
		case <-c.Watcher.Tripped():
			c.log.Warn("Emergency trigger observed; cancelling plan supervision")
			cancel()
		}
		return nil
	})

	var outcome schemas.PlanOutcome
	var runErr error
	g.Go(func() error {
		defer cancel()
		outcome, runErr = c.Orchestrator.RunPlan(gCtx, plan)
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		c.log.Error("Background loop failed during plan", zap.Error(err))
		if runErr == nil {
			runErr = err
		}
	}
	return outcome, runErr
}

// Serve pulls plans from the source until the context ends, executing each
// under supervision and reporting its outcome back. A tripped abort flag
// stops the loop: the operator must reset before any further plan runs.
func (c *Components) Serve(ctx context.Context, source schemas.PlanSource) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.Flag.Set() {
			return fmt.Errorf("%s: %w", c.Flag.Reason(), schemas.ErrAborted)
		}

		plan, err := source.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("failed to fetch next plan: %w", err)
		}

		outcome, err := c.RunPlan(ctx, plan)
		if err != nil {
			return err
		}
		if err := source.Report(ctx, outcome); err != nil {
			c.log.Error("Failed to report plan outcome",
				zap.String("plan", outcome.PlanID), zap.Error(err))
		}
	}
}
