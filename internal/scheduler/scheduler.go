// File: internal/scheduler/scheduler.go
// Description: The dispatch gate between the pending-action queue and the
// display. It decides when an action may proceed, never whether to reorder:
// the orchestrator calls Gate once per action, in plan order. Every wait is
// bounded and re-checks the abort flag each tick.

package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/draugr-dev/overseer-cli/api/schemas"
	"github.com/draugr-dev/overseer-cli/internal/config"
	"github.com/draugr-dev/overseer-cli/internal/emergency"
)

// ActivityReader is the slice of the activity monitor the scheduler needs.
type ActivityReader interface {
	Latest() *schemas.ActivitySample
}

// Scheduler gates dispatch on the user's current activity level.
type Scheduler struct {
	cfg      config.SchedulerConfig
	activity ActivityReader
	flag     *emergency.Flag
	log      *zap.Logger
	now      func() time.Time

	lastDispatch time.Time
}

// New creates a scheduler over the monitor's classification stream.
func New(cfg config.SchedulerConfig, activity ActivityReader, flag *emergency.Flag, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		activity: activity,
		flag:     flag,
		log:      logger.Named("scheduler"),
		now:      time.Now,
	}
}

// Gate blocks until automation may dispatch the next action: idle proceeds
// immediately, light is throttled, intensive and critical wait for the
// level to drop. Degrades to ErrTimeout after the configured maximum wait
// rather than blocking a plan forever.
func (s *Scheduler) Gate(ctx context.Context) error {
	poll := s.cfg.PollInterval
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	deadline := s.now().Add(s.cfg.MaxWait)
	waitLogged := false

	for {
		if s.flag.Set() {
			return schemas.ErrAborted
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		level := s.currentLevel()
		switch level {
		case schemas.ActivityIdle:
			s.lastDispatch = s.now()
			return nil
		case schemas.ActivityLight:
			if gap := s.now().Sub(s.lastDispatch); gap >= s.cfg.LightThrottle {
				s.lastDispatch = s.now()
				return nil
			}
		case schemas.ActivityIntensive, schemas.ActivityCritical:
			if !waitLogged {
				s.log.Info("Holding dispatch for user activity", zap.String("level", string(level)))
				waitLogged = true
			}
		}

		if s.cfg.MaxWait > 0 && s.now().After(deadline) {
			return fmt.Errorf("scheduler gate at level %s: %w", level, schemas.ErrTimeout)
		}

		timer := time.NewTimer(poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// currentLevel treats a monitor that has not yet produced a sample as idle;
// the monitor is started before any plan begins, so this only covers the
// first sampling interval.
func (s *Scheduler) currentLevel() schemas.ActivityLevel {
	if sample := s.activity.Latest(); sample != nil {
		return sample.Level
	}
	return schemas.ActivityIdle
}
