// File: internal/orchestrator/orchestrator.go
// Description: The top-level control loop. Consumes an action plan and
// drives recognition, permission, isolation, scheduling, execution, and
// verification per step, writing the audit trail as it goes. Actions run
// strictly sequentially in plan order; the abort flag is polled between
// every state transition, so Aborted is reachable from any state within
// one transition.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/draugr-dev/overseer-cli/api/schemas"
	"github.com/draugr-dev/overseer-cli/internal/config"
	"github.com/draugr-dev/overseer-cli/internal/emergency"
)

// Locator resolves element descriptors against screenshots.
type Locator interface {
	Locate(ctx context.Context, shot schemas.Screenshot, desc schemas.ElementDescriptor) (schemas.RecognitionResult, error)
}

// PermissionEvaluator is the permission guard boundary.
type PermissionEvaluator interface {
	Evaluate(action schemas.Action, now time.Time) schemas.Verdict
}

// IsolationChecker is the isolation manager boundary.
type IsolationChecker interface {
	CheckBounds(id schemas.DisplayID, p schemas.Point) bool
	UserDisplayEncroached(ctx context.Context) bool
}

// DispatchGate is the scheduler boundary.
type DispatchGate interface {
	Gate(ctx context.Context) error
}

// Controller is the display session boundary.
type Controller interface {
	Display() schemas.DisplayID
	MoveTo(ctx context.Context, display schemas.DisplayID, p schemas.Point) error
	Click(ctx context.Context, display schemas.DisplayID, p schemas.Point) error
	TypeText(ctx context.Context, display schemas.DisplayID, text string) error
	KeyCombo(ctx context.Context, display schemas.DisplayID, keys []string) error
	Screenshot(ctx context.Context, display schemas.DisplayID) (schemas.Screenshot, error)
}

// AuditTrail is the audit log boundary.
type AuditTrail interface {
	BeginPlan()
	Append(ctx context.Context, rec schemas.AuditRecord) (schemas.AuditRecord, error)
	Flush(ctx context.Context, outcome schemas.PlanOutcome, sink schemas.EvidenceSink) error
}

// Evidence stores step screenshots and returns their reference.
type Evidence interface {
	Save(shot schemas.Screenshot) (string, error)
}

// CancelRegistry lets the emergency watcher preempt in-flight operations.
type CancelRegistry interface {
	RegisterCancel(cancel context.CancelFunc) (release func())
}

// Orchestrator executes action plans.
type Orchestrator struct {
	cfg            config.EngineConfig
	defaultTimeout time.Duration
	verifyTimeout  time.Duration

	locator  Locator
	guard    PermissionEvaluator
	iso      IsolationChecker
	gate     DispatchGate
	session  Controller
	trail    AuditTrail
	evidence Evidence
	sink     schemas.EvidenceSink
	flag     *emergency.Flag
	cancels  CancelRegistry
	verifier Verifier

	log *zap.Logger
	now func() time.Time
}

// New wires an orchestrator. evidence, sink, and cancels may be nil.
// verifyTimeout bounds how long Verifying waits for the expected change to
// appear; zero means a single post-action check.
func New(
	cfg config.EngineConfig,
	defaultTimeout time.Duration,
	verifyTimeout time.Duration,
	locator Locator,
	guard PermissionEvaluator,
	iso IsolationChecker,
	gate DispatchGate,
	session Controller,
	trail AuditTrail,
	evidence Evidence,
	sink schemas.EvidenceSink,
	flag *emergency.Flag,
	cancels CancelRegistry,
	verifier Verifier,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if locator == nil || guard == nil || iso == nil || gate == nil ||
		session == nil || trail == nil || flag == nil || verifier == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	return &Orchestrator{
		cfg:            cfg,
		defaultTimeout: defaultTimeout,
		verifyTimeout:  verifyTimeout,
		locator:        locator,
		guard:          guard,
		iso:            iso,
		gate:           gate,
		session:        session,
		trail:          trail,
		evidence:       evidence,
		sink:           sink,
		flag:           flag,
		cancels:        cancels,
		verifier:       verifier,
		log:            logger.Named("orchestrator"),
		now:            time.Now,
	}, nil
}

// stepResult carries everything runStep learned about one action.
type stepResult struct {
	outcome     schemas.StepState
	err         error
	located     *schemas.RecognitionResult
	verdict     *schemas.Verdict
	isolationOK bool
	evidenceRef string
}

// RunPlan executes the plan to completion, rejection, failure, or abort.
// The returned outcome always names the first failing step and carries the
// full audit trail.
func (o *Orchestrator) RunPlan(ctx context.Context, plan schemas.ActionPlan) (schemas.PlanOutcome, error) {
	if err := plan.Validate(); err != nil {
		return schemas.PlanOutcome{}, err
	}
	o.trail.BeginPlan()
	o.log.Info("Plan started",
		zap.String("plan", plan.ID),
		zap.String("workflow", plan.Workflow),
		zap.Int("actions", len(plan.Actions)),
	)

	outcome := schemas.PlanOutcome{
		PlanID:          plan.ID,
		Workflow:        plan.Workflow,
		Result:          schemas.PlanCompleted,
		FirstFailedStep: -1,
	}

	// Audit writes must land even when the plan context is torn down by an
	// emergency trigger; the trail is append-only and complete or it is
	// worthless.
	auditCtx := context.WithoutCancel(ctx)

	for i, action := range plan.Actions {
		res := o.runStep(ctx, plan, i, action)
		// A failure that coincides with a tripped flag is an abort; the
		// operator signal takes precedence over the local failure class.
		if res.outcome == schemas.StepFailed && o.flag.Set() {
			res = abortResult(res, fmt.Errorf("%s: %w", o.flag.Reason(), schemas.ErrAborted))
		}

		rec := schemas.AuditRecord{
			PlanID:            plan.ID,
			StepIndex:         i,
			Action:            action,
			Location:          res.located,
			PermissionVerdict: res.verdict,
			IsolationOK:       res.isolationOK,
			Outcome:           res.outcome,
			FailureClass:      schemas.ClassifyFailure(res.err),
			EvidenceRef:       res.evidenceRef,
		}
		if res.located != nil {
			rec.Confidence = res.located.Confidence
		}
		if res.err != nil {
			rec.Reason = res.err.Error()
		}
		// The record is written before the step is considered complete;
		// failing to persist it fails the step.
		if _, auditErr := o.trail.Append(auditCtx, rec); auditErr != nil && res.err == nil {
			res.outcome = schemas.StepFailed
			res.err = auditErr
		}

		if res.outcome == schemas.StepCompleted {
			continue
		}
		if action.Optional && res.outcome != schemas.StepAborted {
			o.log.Warn("Optional step failed; continuing",
				zap.Int("step", i), zap.Error(res.err))
			continue
		}

		outcome.FirstFailedStep = i
		if res.err != nil {
			outcome.Reason = res.err.Error()
		}
		switch res.outcome {
		case schemas.StepAborted:
			outcome.Result = schemas.PlanAborted
		case schemas.StepRejected:
			outcome.Result = schemas.PlanRejected
		default:
			outcome.Result = schemas.PlanFailed
		}
		break
	}

	outcome.FinishedAt = o.now().UTC()
	if err := o.trail.Flush(auditCtx, outcome, o.sink); err != nil {
		o.log.Error("Evidence flush failed", zap.Error(err))
	}
	o.log.Info("Plan finished",
		zap.String("plan", plan.ID),
		zap.String("result", string(outcome.Result)),
		zap.Int("first_failed_step", outcome.FirstFailedStep),
	)
	return outcome, nil
}

// abortErr returns the abort error when the flag is set, nil otherwise.
// Called between every state transition.
func (o *Orchestrator) abortErr() error {
	if o.flag.Set() {
		reason := o.flag.Reason()
		if reason == "" {
			reason = "abort flag set"
		}
		return fmt.Errorf("%s: %w", reason, schemas.ErrAborted)
	}
	return nil
}

// runStep drives one action through the per-step state machine:
// Pending -> Locating -> PermissionCheck -> IsolationCheck -> SchedulerWait
// -> Executing -> Verifying -> Completed | Rejected | Failed, with Aborted
// reachable from every state.
func (o *Orchestrator) runStep(ctx context.Context, plan schemas.ActionPlan, idx int, action schemas.Action) stepResult {
	res := stepResult{outcome: schemas.StepPending}
	stepLog := o.log.With(zap.String("plan", plan.ID), zap.Int("step", idx), zap.String("type", string(action.Type)))

	if err := o.abortErr(); err != nil {
		return abortResult(res, err)
	}

	// -- Locating --
	var preShot schemas.Screenshot
	needsPre := action.Descriptor != nil || verifiable(action.Type)
	if needsPre {
		shot, err := o.session.Screenshot(ctx, action.Display)
		if err != nil {
			res.outcome, res.err = schemas.StepFailed, err
			if errors.Is(err, schemas.ErrAborted) {
				res.outcome = schemas.StepAborted
			}
			return res
		}
		preShot = shot
		if o.evidence != nil {
			if ref, err := o.evidence.Save(shot); err == nil {
				res.evidenceRef = ref
			} else {
				stepLog.Warn("Failed to store evidence screenshot", zap.Error(err))
			}
		}
	}
	if action.Descriptor != nil {
		if err := o.abortErr(); err != nil {
			return abortResult(res, err)
		}
		located, err := o.locator.Locate(ctx, preShot, *action.Descriptor)
		if err != nil {
			res.outcome, res.err = schemas.StepFailed, err
			return res
		}
		res.located = &located
		action.Target = located.Center()
		stepLog.Debug("Element located",
			zap.String("strategy", string(located.Strategy)),
			zap.Float64("confidence", located.Confidence),
			zap.String("target", action.Target.String()),
		)
	}

	// -- PermissionCheck --
	if err := o.abortErr(); err != nil {
		return abortResult(res, err)
	}
	verdict := o.guard.Evaluate(action, o.now())
	res.verdict = &verdict
	if !verdict.Allowed {
		res.outcome = schemas.StepRejected
		res.err = fmt.Errorf("%s: %w", verdict.Reason, schemas.ErrPermissionDenied)
		return res
	}

	// -- IsolationCheck --
	if err := o.abortErr(); err != nil {
		return abortResult(res, err)
	}
	if targeted(action) {
		if !o.iso.CheckBounds(action.Display, action.Target) {
			res.outcome = schemas.StepRejected
			res.err = fmt.Errorf("point %s outside registered bounds of %s: %w",
				action.Target, action.Display, schemas.ErrIsolationViolation)
			// A violation is grounds to re-check environment drift straight
			// away rather than waiting for the periodic poll.
			if o.iso.UserDisplayEncroached(ctx) {
				o.flag.Trip("user display encroachment detected")
			}
			return res
		}
	}
	res.isolationOK = true

	// -- SchedulerWait --
	if err := o.abortErr(); err != nil {
		return abortResult(res, err)
	}
	if err := o.gate.Gate(ctx); err != nil {
		if errors.Is(err, schemas.ErrAborted) {
			return abortResult(res, err)
		}
		res.outcome, res.err = schemas.StepFailed, err
		return res
	}

	// -- Executing --
	if err := o.abortErr(); err != nil {
		return abortResult(res, err)
	}
	if err := o.executeWithRetry(ctx, action, stepLog); err != nil {
		if errors.Is(err, schemas.ErrAborted) {
			return abortResult(res, err)
		}
		res.outcome, res.err = schemas.StepFailed, err
		return res
	}

	// -- Verifying --
	if err := o.abortErr(); err != nil {
		return abortResult(res, err)
	}
	if verifiable(action.Type) {
		if err := o.verify(ctx, preShot, action, res.located, stepLog); err != nil {
			if errors.Is(err, schemas.ErrAborted) {
				return abortResult(res, err)
			}
			res.outcome, res.err = schemas.StepFailed, err
			return res
		}
	}

	res.outcome = schemas.StepCompleted
	return res
}

func abortResult(res stepResult, err error) stepResult {
	res.outcome = schemas.StepAborted
	res.err = err
	return res
}

// targeted reports whether the action resolves to a display coordinate
// the isolation manager must approve.
func targeted(action schemas.Action) bool {
	return action.Type == schemas.ActionClick
}

// verifiable reports whether the action type gets post-action verification.
func verifiable(t schemas.ActionType) bool {
	switch t {
	case schemas.ActionClick, schemas.ActionTypeText, schemas.ActionKeyCombo:
		return true
	}
	return false
}

// executeWithRetry dispatches the action, retrying transient execution
// errors up to the configured bound. The in-flight context is registered
// with the emergency watcher so a trigger preempts it without waiting for
// the timeout.
func (o *Orchestrator) executeWithRetry(ctx context.Context, action schemas.Action, stepLog *zap.Logger) error {
	timeout := action.Timeout
	if timeout <= 0 {
		timeout = o.defaultTimeout
	}

	var err error
	for attempt := 0; attempt <= o.cfg.ExecuteRetries; attempt++ {
		if abortErr := o.abortErr(); abortErr != nil {
			return abortErr
		}
		if attempt > 0 {
			stepLog.Warn("Retrying action execution", zap.Int("attempt", attempt), zap.Error(err))
		}

		execCtx, cancel := context.WithTimeout(ctx, timeout)
		var release func()
		if o.cancels != nil {
			release = o.cancels.RegisterCancel(cancel)
		}
		err = o.execute(execCtx, action)
		if release != nil {
			release()
		}
		cancel()

		if err == nil {
			return nil
		}
		// A context death caused by the trigger is an abort, not a timeout.
		if o.flag.Set() {
			return fmt.Errorf("%s: %w", o.flag.Reason(), schemas.ErrAborted)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("action %s after %s: %w", action.Type, timeout, schemas.ErrTimeout)
		}
		if !schemas.Retryable(err) {
			return err
		}
	}
	return err
}

// execute dispatches one action to the display session.
func (o *Orchestrator) execute(ctx context.Context, action schemas.Action) error {
	switch action.Type {
	case schemas.ActionClick:
		return o.session.Click(ctx, action.Display, action.Target)
	case schemas.ActionTypeText:
		return o.session.TypeText(ctx, action.Display, action.Text)
	case schemas.ActionKeyCombo:
		return o.session.KeyCombo(ctx, action.Display, action.Keys)
	case schemas.ActionWait:
		return o.executeWait(ctx, action)
	case schemas.ActionScreenshot:
		_, err := o.session.Screenshot(ctx, action.Display)
		return err
	default:
		return fmt.Errorf("unknown action type %q", action.Type)
	}
}

// executeWait either sleeps for the configured duration or polls
// recognition until the awaited element appears, both bounded by the
// action's context and re-checking the abort flag each tick.
func (o *Orchestrator) executeWait(ctx context.Context, action schemas.Action) error {
	cond := action.Wait
	poll := o.cfg.AbortPollInterval
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}

	if cond.Descriptor == nil {
		deadline := o.now().Add(cond.Duration)
		for o.now().Before(deadline) {
			if err := o.abortErr(); err != nil {
				return err
			}
			remaining := time.Until(deadline)
			if remaining > poll {
				remaining = poll
			}
			timer := time.NewTimer(remaining)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		return nil
	}

	for {
		if err := o.abortErr(); err != nil {
			return err
		}
		shot, err := o.session.Screenshot(ctx, action.Display)
		if err != nil {
			return err
		}
		if _, err := o.locator.Locate(ctx, shot, *cond.Descriptor); err == nil {
			return nil
		} else if !errors.Is(err, schemas.ErrNotFound) {
			return err
		}
		timer := time.NewTimer(poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("waiting for element: %w", schemas.ErrTimeout)
		case <-timer.C:
		}
	}
}

// verify re-captures the display and applies the configured heuristic,
// polling until the expected change appears or the verify timeout elapses.
// Effects that render after the input lands are given the window; only a
// window with no observed change fails the step as NoEffect. The abort flag
// is re-checked each tick.
func (o *Orchestrator) verify(ctx context.Context, preShot schemas.Screenshot, action schemas.Action, located *schemas.RecognitionResult, stepLog *zap.Logger) error {
	poll := o.cfg.AbortPollInterval
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	deadline := o.now().Add(o.verifyTimeout)

	for {
		postShot, err := o.session.Screenshot(ctx, action.Display)
		if err != nil {
			return err
		}
		err = o.verifier.Verify(ctx, preShot, postShot, action, located)
		if err == nil {
			return nil
		}
		if !errors.Is(err, schemas.ErrNoEffect) {
			return err
		}
		if o.verifyTimeout <= 0 || !o.now().Add(poll).Before(deadline) {
			stepLog.Warn("No observable effect after action",
				zap.Duration("window", o.verifyTimeout))
			return fmt.Errorf("action %s: %w", action.Type, schemas.ErrNoEffect)
		}
		if abortErr := o.abortErr(); abortErr != nil {
			return abortErr
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
