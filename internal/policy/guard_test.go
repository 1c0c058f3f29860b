package policy_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/draugr-dev/overseer-cli/api/schemas"
	"github.com/draugr-dev/overseer-cli/internal/policy"
)

func fixedNow(t *testing.T) time.Time {
	ts, err := time.Parse(time.RFC3339, "2026-03-01T09:00:00Z")
	require.NoError(t, err)
	return ts
}

func clickAt(x, y int) schemas.Action {
	return schemas.Action{
		Type:    schemas.ActionClick,
		Display: "display-automation",
		Target:  schemas.Point{X: x, Y: y},
		App:     "calculator",
	}
}

func TestEvaluate_DefaultAllow(t *testing.T) {
	v := policy.Evaluate(clickAt(50, 50), nil, nil, fixedNow(t))
	assert.True(t, v.Allowed)
	assert.Empty(t, v.Rule)
}

func TestEvaluate_DenyRuleShortCircuits(t *testing.T) {
	rules := []schemas.PolicyRule{
		{
			Name:         "no-system-settings",
			Effect:       schemas.EffectDeny,
			Reason:       "system settings are off limits",
			Applications: []string{"Settings"},
		},
		{
			Name:        "no-destructive-chords",
			Effect:      schemas.EffectDeny,
			ActionTypes: []schemas.ActionType{schemas.ActionKeyCombo},
		},
	}

	action := clickAt(10, 10)
	action.App = "settings" // matching is case folded
	v := policy.Evaluate(action, rules, nil, fixedNow(t))
	require.False(t, v.Allowed)
	assert.Equal(t, "no-system-settings", v.Rule)
	assert.Equal(t, "system settings are off limits", v.Reason)

	chord := schemas.Action{Type: schemas.ActionKeyCombo, Display: "display-automation", Keys: []string{"ctrl", "q"}}
	v = policy.Evaluate(chord, rules, nil, fixedNow(t))
	require.False(t, v.Allowed)
	assert.Equal(t, "no-destructive-chords", v.Rule)
	// A rule without an explicit reason gets a derived one.
	assert.Contains(t, v.Reason, "no-destructive-chords")
}

func TestEvaluate_MatcherCategoriesAndTogether(t *testing.T) {
	// The rule only fires when BOTH the action type and the zone match.
	rules := []schemas.PolicyRule{{
		Name:        "no-clicks-in-tray",
		Effect:      schemas.EffectDeny,
		ActionTypes: []schemas.ActionType{schemas.ActionClick},
		DeniedZones: []schemas.Rect{{X: 0, Y: 1000, Width: 1920, Height: 80}},
	}}

	inZone := clickAt(500, 1040)
	assert.False(t, policy.Evaluate(inZone, rules, nil, fixedNow(t)).Allowed)

	outsideZone := clickAt(500, 500)
	assert.True(t, policy.Evaluate(outsideZone, rules, nil, fixedNow(t)).Allowed)

	typeInZone := schemas.Action{Type: schemas.ActionTypeText, Display: "display-automation", Target: schemas.Point{X: 500, Y: 1040}, Text: "x"}
	assert.True(t, policy.Evaluate(typeInZone, rules, nil, fixedNow(t)).Allowed)
}

func TestEvaluate_EmptyRuleMatchesEverything(t *testing.T) {
	rules := []schemas.PolicyRule{{Name: "lockdown", Effect: schemas.EffectDeny, Reason: "engine locked down"}}

	for _, action := range []schemas.Action{
		clickAt(1, 1),
		{Type: schemas.ActionScreenshot, Display: "display-automation"},
	} {
		v := policy.Evaluate(action, rules, nil, fixedNow(t))
		assert.False(t, v.Allowed)
		assert.Equal(t, "lockdown", v.Rule)
	}
}

func TestEvaluate_AllowRulesNeverOverrideDeny(t *testing.T) {
	// An allow rule listed first must not mask a later deny.
	rules := []schemas.PolicyRule{
		{Name: "blanket-allow", Effect: schemas.EffectAllow},
		{Name: "deny-clicks", Effect: schemas.EffectDeny, ActionTypes: []schemas.ActionType{schemas.ActionClick}},
	}
	v := policy.Evaluate(clickAt(5, 5), rules, nil, fixedNow(t))
	assert.False(t, v.Allowed)
	assert.Equal(t, "deny-clicks", v.Rule)
}

func TestEvaluate_RateWindow(t *testing.T) {
	window := policy.NewRateWindow([]schemas.RateLimitSpec{
		{ActionType: schemas.ActionClick, MaxEvents: 3, Interval: time.Minute},
	})
	now := fixedNow(t)

	for i := 0; i < 3; i++ {
		v := policy.Evaluate(clickAt(i, i), nil, window, now)
		require.True(t, v.Allowed, "click %d should pass", i)
	}

	v := policy.Evaluate(clickAt(9, 9), nil, window, now)
	require.False(t, v.Allowed)
	assert.Equal(t, "rate_limit", v.Rule)
	assert.Contains(t, v.Reason, "rate limit exceeded")

	// Unlimited action types are unaffected by click exhaustion.
	shot := schemas.Action{Type: schemas.ActionScreenshot, Display: "display-automation"}
	assert.True(t, policy.Evaluate(shot, nil, window, now).Allowed)

	// The window refills once the interval has passed.
	later := now.Add(2 * time.Minute)
	assert.True(t, policy.Evaluate(clickAt(9, 9), nil, window, later).Allowed)
}

func TestEvaluate_Purity(t *testing.T) {
	// Identical inputs (including window state) produce identical verdicts.
	rules := []schemas.PolicyRule{
		{Name: "no-teams", Effect: schemas.EffectDeny, Applications: []string{"teams"}},
	}
	action := clickAt(77, 33)
	action.App = "Teams"
	now := fixedNow(t)

	first := policy.Evaluate(action, rules, nil, now)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, policy.Evaluate(action, rules, nil, now))
	}
}

func TestGuard_Evaluate(t *testing.T) {
	window := policy.NewRateWindow(nil)
	guard := policy.NewGuard(
		[]schemas.PolicyRule{{Name: "deny-waits", Effect: schemas.EffectDeny, ActionTypes: []schemas.ActionType{schemas.ActionWait}}},
		window,
		zaptest.NewLogger(t),
	)

	wait := schemas.Action{Type: schemas.ActionWait, Display: "display-automation", Wait: &schemas.WaitCondition{Duration: time.Second}}
	assert.False(t, guard.Evaluate(wait, fixedNow(t)).Allowed)
	assert.True(t, guard.Evaluate(clickAt(1, 1), fixedNow(t)).Allowed)
}
