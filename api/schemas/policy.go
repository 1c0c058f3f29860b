// File: api/schemas/policy.go
package schemas

import "time"

// Effect is a policy rule's verdict when its predicate matches.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// RateLimitSpec caps how often actions of a given type may execute.
type RateLimitSpec struct {
	ActionType ActionType    `json:"action_type" mapstructure:"action_type"`
	MaxEvents  int           `json:"max_events" mapstructure:"max_events"`
	Interval   time.Duration `json:"interval" mapstructure:"interval"`
}

// PolicyRule is a predicate over an action plus a verdict and reason. The
// active rule set is loaded once at startup and never mutated mid-plan.
type PolicyRule struct {
	Name   string `json:"name" mapstructure:"name"`
	Effect Effect `json:"effect" mapstructure:"effect"`
	Reason string `json:"reason" mapstructure:"reason"`

	// Matchers. A rule matches when every non-empty matcher matches.
	DeniedZones  []Rect       `json:"denied_zones,omitempty" mapstructure:"denied_zones"`
	ActionTypes  []ActionType `json:"action_types,omitempty" mapstructure:"action_types"`
	Applications []string     `json:"applications,omitempty" mapstructure:"applications"`
}

// Verdict is the outcome of evaluating an action against the rule set.
type Verdict struct {
	Allowed bool   `json:"allowed"`
	Rule    string `json:"rule,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// ActivityLevel classifies how busy the user currently is.
type ActivityLevel string

const (
	ActivityIdle      ActivityLevel = "idle"
	ActivityLight     ActivityLevel = "light"
	ActivityIntensive ActivityLevel = "intensive"
	ActivityCritical  ActivityLevel = "critical"
)

// ActivitySample is one observation of the user display's input and focus
// state. Samples are retained only in a short rolling window.
type ActivitySample struct {
	At             time.Time     `json:"at"`
	KeyboardActive bool          `json:"keyboard_active"`
	MouseActive    bool          `json:"mouse_active"`
	FocusedProcess string        `json:"focused_process"`
	Level          ActivityLevel `json:"level"`
}
