// File: api/schemas/action.go
package schemas

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"
)

// ActionType discriminates the primitive automation steps.
type ActionType string

const (
	ActionClick      ActionType = "click"
	ActionTypeText   ActionType = "type"
	ActionKeyCombo   ActionType = "key_combo"
	ActionWait       ActionType = "wait"
	ActionScreenshot ActionType = "screenshot"
)

// WaitCondition describes what an ActionWait step is waiting for.
type WaitCondition struct {
	// Descriptor, when set, makes the wait poll recognition until the
	// element appears (or the action times out).
	Descriptor *ElementDescriptor `json:"descriptor,omitempty"`
	// Duration, when Descriptor is nil, is a plain timed pause.
	Duration time.Duration `json:"duration,omitempty"`
}

// Action is a single primitive automation step. The zero value is invalid;
// plans are decoded or constructed and then validated.
type Action struct {
	Type    ActionType `json:"type"`
	Display DisplayID  `json:"display"`

	// Target is the resolved coordinate for click-like actions. When
	// Descriptor is set, Target is filled in just before execution.
	Target Point `json:"target,omitempty"`

	// Descriptor, when present, is resolved to coordinates by the
	// recognition engine immediately before the action executes.
	Descriptor *ElementDescriptor `json:"descriptor,omitempty"`

	Text string   `json:"text,omitempty"` // ActionTypeText payload
	Keys []string `json:"keys,omitempty"` // ActionKeyCombo payload

	Wait *WaitCondition `json:"wait,omitempty"`

	// App names the application this action targets, for policy matching.
	App string `json:"app,omitempty"`

	Timeout time.Duration `json:"timeout,omitempty"`

	// Optional marks a step whose failure does not fail the whole plan.
	Optional bool `json:"optional,omitempty"`
}

// Validate checks the action carries the payload its type requires.
func (a Action) Validate() error {
	if a.Display == "" {
		return fmt.Errorf("action %q has no target display", a.Type)
	}
	switch a.Type {
	case ActionClick:
		if a.Descriptor == nil && (a.Target == Point{}) {
			return fmt.Errorf("click action requires a descriptor or a target point")
		}
	case ActionTypeText:
		if a.Text == "" {
			return fmt.Errorf("type action requires text")
		}
	case ActionKeyCombo:
		if len(a.Keys) == 0 {
			return fmt.Errorf("key_combo action requires keys")
		}
	case ActionWait:
		if a.Wait == nil || (a.Wait.Descriptor == nil && a.Wait.Duration <= 0) {
			return fmt.Errorf("wait action requires a condition")
		}
	case ActionScreenshot:
		// No payload beyond the display.
	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
	if a.Descriptor != nil {
		if err := a.Descriptor.Validate(); err != nil {
			return fmt.Errorf("action %q: %w", a.Type, err)
		}
	}
	return nil
}

// ActionPlan is an ordered, immutable sequence of actions. Re-planning
// produces a new plan with a new ID; a plan is never mutated in place.
type ActionPlan struct {
	ID        string    `json:"id"`
	Workflow  string    `json:"workflow"`
	CreatedAt time.Time `json:"created_at"`
	Actions   []Action  `json:"actions"`
}

// NewActionPlan stamps a plan with a fresh id and creation time.
func NewActionPlan(workflow string, actions []Action) ActionPlan {
	return ActionPlan{
		ID:        uuid.NewString(),
		Workflow:  workflow,
		CreatedAt: time.Now().UTC(),
		Actions:   actions,
	}
}

// Validate checks every action in the plan.
func (p ActionPlan) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("plan has no id")
	}
	if len(p.Actions) == 0 {
		return fmt.Errorf("plan %s has no actions", p.ID)
	}
	for i, a := range p.Actions {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("plan %s step %d: %w", p.ID, i, err)
		}
	}
	return nil
}

// DecodePlan parses a plan from its JSON encoding and validates it.
func DecodePlan(data []byte) (ActionPlan, error) {
	var p ActionPlan
	if err := json.Unmarshal(data, &p); err != nil {
		return ActionPlan{}, fmt.Errorf("failed to decode plan: %w", err)
	}
	if err := p.Validate(); err != nil {
		return ActionPlan{}, err
	}
	return p, nil
}

// EncodePlan serializes a plan to JSON.
func EncodePlan(p ActionPlan) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode plan %s: %w", p.ID, err)
	}
	return data, nil
}
