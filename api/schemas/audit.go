// File: api/schemas/audit.go
package schemas

import "time"

// StepState is a node in the per-action state machine.
type StepState string

const (
	StepPending         StepState = "pending"
	StepLocating        StepState = "locating"
	StepPermissionCheck StepState = "permission_check"
	StepIsolationCheck  StepState = "isolation_check"
	StepSchedulerWait   StepState = "scheduler_wait"
	StepExecuting       StepState = "executing"
	StepVerifying       StepState = "verifying"
	StepCompleted       StepState = "completed"
	StepRejected        StepState = "rejected"
	StepFailed          StepState = "failed"
	StepAborted         StepState = "aborted"
)

// Terminal reports whether the state ends a step.
func (s StepState) Terminal() bool {
	switch s {
	case StepCompleted, StepRejected, StepFailed, StepAborted:
		return true
	}
	return false
}

// AuditRecord is the append-only ground truth of what the automation did.
// Exactly one record exists per attempted action, written before the action
// is considered complete.
type AuditRecord struct {
	ID        string `json:"id"`
	PlanID    string `json:"plan_id"`
	StepIndex int    `json:"step_index"`

	Action Action `json:"action"`

	// Verdict chain.
	Location          *RecognitionResult `json:"location,omitempty"`
	Confidence        float64            `json:"confidence,omitempty"`
	PermissionVerdict *Verdict           `json:"permission_verdict,omitempty"`
	IsolationOK       bool               `json:"isolation_ok"`

	Outcome      StepState    `json:"outcome"`
	FailureClass FailureClass `json:"failure_class,omitempty"`
	Reason       string       `json:"reason,omitempty"`

	// EvidenceRef points at the screenshot captured for this step, if any.
	EvidenceRef string `json:"evidence_ref,omitempty"`

	At time.Time `json:"at"`
}

// PlanResult is the terminal outcome of a whole plan.
type PlanResult string

const (
	PlanCompleted PlanResult = "completed"
	PlanRejected  PlanResult = "rejected"
	PlanFailed    PlanResult = "failed"
	PlanAborted   PlanResult = "aborted"
)

// PlanOutcome is returned to the planning collaborator and flushed to the
// evidence sink. It always names the first failing step and carries the
// full audit trail, never a bare failure.
type PlanOutcome struct {
	PlanID          string        `json:"plan_id"`
	Workflow        string        `json:"workflow"`
	Result          PlanResult    `json:"result"`
	FirstFailedStep int           `json:"first_failed_step"` // -1 when completed
	Reason          string        `json:"reason,omitempty"`
	Records         []AuditRecord `json:"records"`
	FinishedAt      time.Time     `json:"finished_at"`
}
