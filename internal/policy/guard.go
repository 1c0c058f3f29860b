// File: internal/policy/guard.go
// Description: Pure policy evaluator. Explicit deny rules are checked
// before anything else so a safety-critical denial can never be masked by a
// permissive catch-all added later. The sliding rate window is the only
// mutable state, and it is an explicit input so a verdict can be reproduced
// in a test.

package policy

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/draugr-dev/overseer-cli/api/schemas"
)

// Guard evaluates actions against the startup rule set. Policy content is
// loaded once and never mutated mid-plan.
type Guard struct {
	rules  []schemas.PolicyRule
	window *RateWindow
	log    *zap.Logger
}

// NewGuard builds a guard over a fixed rule set and rate window.
func NewGuard(rules []schemas.PolicyRule, window *RateWindow, logger *zap.Logger) *Guard {
	return &Guard{
		rules:  rules,
		window: window,
		log:    logger.Named("policy"),
	}
}

// Evaluate applies the guard's rule set and rate window to the action.
func (g *Guard) Evaluate(action schemas.Action, now time.Time) schemas.Verdict {
	v := Evaluate(action, g.rules, g.window, now)
	if !v.Allowed {
		g.log.Warn("Action denied",
			zap.String("type", string(action.Type)),
			zap.String("rule", v.Rule),
			zap.String("reason", v.Reason),
		)
	}
	return v
}

// Evaluate is the pure evaluation function. Identical inputs (action, rule
// set, window state, clock) always produce the identical verdict.
// Evaluation order: explicit deny rules, then the rate limit, then default
// allow. The first matching deny short-circuits.
func Evaluate(action schemas.Action, rules []schemas.PolicyRule, window *RateWindow, now time.Time) schemas.Verdict {
	for _, rule := range rules {
		if rule.Effect != schemas.EffectDeny {
			continue
		}
		if ruleMatches(rule, action) {
			return schemas.Verdict{
				Allowed: false,
				Rule:    rule.Name,
				Reason:  denyReason(rule),
			}
		}
	}

	if window != nil {
		if ok, spec := window.AllowAt(action.Type, now); !ok {
			return schemas.Verdict{
				Allowed: false,
				Rule:    "rate_limit",
				Reason: fmt.Sprintf("rate limit exceeded for %s: %d per %s",
					action.Type, spec.MaxEvents, spec.Interval),
			}
		}
	}

	return schemas.Verdict{Allowed: true}
}

// ruleMatches applies the rule's predicate: every specified matcher
// category must match the action (categories AND together, entries within
// a category OR together). A rule with no matchers matches everything.
func ruleMatches(rule schemas.PolicyRule, action schemas.Action) bool {
	if len(rule.ActionTypes) > 0 && !containsType(rule.ActionTypes, action.Type) {
		return false
	}
	if len(rule.Applications) > 0 && !containsFold(rule.Applications, action.App) {
		return false
	}
	if len(rule.DeniedZones) > 0 && !inAnyZone(rule.DeniedZones, action.Target) {
		return false
	}
	return true
}

func denyReason(rule schemas.PolicyRule) string {
	if rule.Reason != "" {
		return rule.Reason
	}
	return fmt.Sprintf("denied by rule %q", rule.Name)
}

func containsType(types []schemas.ActionType, t schemas.ActionType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

func containsFold(apps []string, app string) bool {
	for _, x := range apps {
		if strings.EqualFold(x, app) {
			return true
		}
	}
	return false
}

func inAnyZone(zones []schemas.Rect, p schemas.Point) bool {
	for _, z := range zones {
		if z.Contains(p) {
			return true
		}
	}
	return false
}
