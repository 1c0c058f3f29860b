// File: api/schemas/errors.go
package schemas

import "errors"

// Step failure taxonomy. Recognition exhaustion and transient execution
// errors are retried locally; policy-level rejections and aborts never are.
var (
	// ErrNotFound means the recognition chain was exhausted without an
	// above-threshold match.
	ErrNotFound = errors.New("element not found")

	// ErrPermissionDenied means a policy rule vetoed the action.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrIsolationViolation means a resolved coordinate fell outside the
	// registered automation display bounds.
	ErrIsolationViolation = errors.New("isolation violation")

	// ErrWrongDisplay means a display session was asked to act on a display
	// it was not constructed for. Always fails closed.
	ErrWrongDisplay = errors.New("wrong display")

	// ErrNoEffect means post-action verification observed no expected change.
	ErrNoEffect = errors.New("no observable effect")

	// ErrTimeout means a bounded wait expired.
	ErrTimeout = errors.New("timed out")

	// ErrAborted means the emergency stop flag was observed. Fatal to the
	// whole plan, never retried.
	ErrAborted = errors.New("emergency stop")

	// ErrTemplateMissing means the template library has no entry for a key.
	ErrTemplateMissing = errors.New("template missing")
)

// FailureClass buckets a step failure for audit records and plan outcomes.
type FailureClass string

const (
	FailureNone               FailureClass = ""
	FailureNotFound           FailureClass = "not_found"
	FailurePermissionDenied   FailureClass = "permission_denied"
	FailureIsolationViolation FailureClass = "isolation_violation"
	FailureExecutionError     FailureClass = "execution_error"
	FailureNoEffect           FailureClass = "no_effect"
	FailureTimeout            FailureClass = "timeout"
	FailureAborted            FailureClass = "aborted"
)

// ClassifyFailure maps an error to its audit failure class.
func ClassifyFailure(err error) FailureClass {
	switch {
	case err == nil:
		return FailureNone
	case errors.Is(err, ErrAborted):
		return FailureAborted
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrTemplateMissing):
		return FailureNotFound
	case errors.Is(err, ErrPermissionDenied):
		return FailurePermissionDenied
	case errors.Is(err, ErrIsolationViolation), errors.Is(err, ErrWrongDisplay):
		return FailureIsolationViolation
	case errors.Is(err, ErrNoEffect):
		return FailureNoEffect
	case errors.Is(err, ErrTimeout):
		return FailureTimeout
	default:
		return FailureExecutionError
	}
}

// Retryable reports whether a step-local retry is permitted for the error.
// Policy rejections and aborts propagate immediately.
func Retryable(err error) bool {
	switch ClassifyFailure(err) {
	case FailureExecutionError, FailureTimeout:
		return true
	default:
		return false
	}
}
