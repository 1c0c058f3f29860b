// File: internal/policy/ratewindow.go
package policy

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/draugr-dev/overseer-cli/api/schemas"
)

// RateWindow tracks recent action dispatch per action type. It is the only
// mutable state the permission guard owns; it is passed explicitly into
// Evaluate so a denial can be reproduced.
type RateWindow struct {
	mu       sync.Mutex
	specs    map[schemas.ActionType]schemas.RateLimitSpec
	limiters map[schemas.ActionType]*rate.Limiter
}

// NewRateWindow builds a window from the configured per-type limits.
// Action types without a spec are unlimited.
func NewRateWindow(specs []schemas.RateLimitSpec) *RateWindow {
	w := &RateWindow{
		specs:    make(map[schemas.ActionType]schemas.RateLimitSpec, len(specs)),
		limiters: make(map[schemas.ActionType]*rate.Limiter, len(specs)),
	}
	for _, s := range specs {
		if s.MaxEvents <= 0 || s.Interval <= 0 {
			continue
		}
		w.specs[s.ActionType] = s
		w.limiters[s.ActionType] = rate.NewLimiter(
			rate.Limit(float64(s.MaxEvents)/s.Interval.Seconds()),
			s.MaxEvents,
		)
	}
	return w
}

// AllowAt consumes one event for the action type at the given instant.
// Returns false and the violated spec when the window is exhausted.
func (w *RateWindow) AllowAt(t schemas.ActionType, now time.Time) (bool, schemas.RateLimitSpec) {
	w.mu.Lock()
	defer w.mu.Unlock()
	limiter, ok := w.limiters[t]
	if !ok {
		return true, schemas.RateLimitSpec{}
	}
	if limiter.AllowN(now, 1) {
		return true, schemas.RateLimitSpec{}
	}
	return false, w.specs[t]
}
