// File: internal/isolation/manager.go
// Description: Spatial isolation between the user display and the
// automation display. The registration table is written only at session
// setup and read on every action; the lock is never held across an
// action's execution.

package isolation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/draugr-dev/overseer-cli/api/schemas"
)

// BoundsProber reads the current geometry of a display from the
// environment, so the manager can detect drift (e.g. a resolution change)
// after registration.
type BoundsProber interface {
	CurrentBounds(ctx context.Context, id schemas.DisplayID) (schemas.Rect, error)
}

type registration struct {
	role   schemas.DisplayRole
	bounds schemas.Rect
}

// Manager maintains the registered identity and bounds of exactly two
// displays and rejects any coordinate outside its registered target.
type Manager struct {
	mu       sync.RWMutex
	displays map[schemas.DisplayID]registration
	prober   BoundsProber
	log      *zap.Logger
}

// NewManager creates an empty manager. prober may be nil; encroachment
// checks then always report false.
func NewManager(prober BoundsProber, logger *zap.Logger) *Manager {
	return &Manager{
		displays: make(map[schemas.DisplayID]registration),
		prober:   prober,
		log:      logger.Named("isolation"),
	}
}

// RegisterDisplay records a display's role and bounds. Each role may be
// registered once; a second registration for the same role is an error.
func (m *Manager) RegisterDisplay(id schemas.DisplayID, role schemas.DisplayRole, bounds schemas.Rect) error {
	if bounds.Empty() {
		return fmt.Errorf("display %s: empty bounds", id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for existing, reg := range m.displays {
		if reg.role == role && existing != id {
			return fmt.Errorf("role %s already registered to display %s", role, existing)
		}
	}
	m.displays[id] = registration{role: role, bounds: bounds}
	m.log.Info("Registered display",
		zap.String("display", string(id)),
		zap.String("role", string(role)),
		zap.String("bounds", bounds.String()),
	)
	return nil
}

// CheckBounds reports whether the point lies inside the registered bounds
// of the display. Unregistered displays always fail.
func (m *Manager) CheckBounds(id schemas.DisplayID, p schemas.Point) bool {
	m.mu.RLock()
	reg, ok := m.displays[id]
	m.mu.RUnlock()
	return ok && reg.bounds.Contains(p)
}

// AutomationDisplay returns the display registered with the automation role.
func (m *Manager) AutomationDisplay() (schemas.DisplayID, bool) {
	return m.displayByRole(schemas.RoleAutomation)
}

// UserDisplay returns the display registered with the user role.
func (m *Manager) UserDisplay() (schemas.DisplayID, bool) {
	return m.displayByRole(schemas.RoleUser)
}

func (m *Manager) displayByRole(role schemas.DisplayRole) (schemas.DisplayID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, reg := range m.displays {
		if reg.role == role {
			return id, true
		}
	}
	return "", false
}

// Bounds returns the registered bounds for a display.
func (m *Manager) Bounds(id schemas.DisplayID) (schemas.Rect, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	reg, ok := m.displays[id]
	return reg.bounds, ok
}

// UserDisplayEncroached re-probes the automation display's live geometry
// and reports whether it now overlaps the registered user display bounds.
// Environment drift here is grounds for a plan-level abort.
func (m *Manager) UserDisplayEncroached(ctx context.Context) bool {
	if m.prober == nil {
		return false
	}

	autoID, ok := m.AutomationDisplay()
	if !ok {
		return false
	}
	userID, ok := m.UserDisplay()
	if !ok {
		return false
	}

	live, err := m.prober.CurrentBounds(ctx, autoID)
	if err != nil {
		m.log.Warn("Failed to probe automation display bounds", zap.Error(err))
		return false
	}

	m.mu.RLock()
	userBounds := m.displays[userID].bounds
	registered := m.displays[autoID].bounds
	m.mu.RUnlock()

	if live != registered {
		m.log.Warn("Automation display geometry drifted",
			zap.String("registered", registered.String()),
			zap.String("live", live.String()),
		)
	}
	return live.Intersects(userBounds)
}

// WatchEncroachment polls for environment drift until the context ends and
// invokes onEncroach (once per detection) when the automation display
// encroaches on the user display.
func (m *Manager) WatchEncroachment(ctx context.Context, interval time.Duration, onEncroach func()) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.UserDisplayEncroached(ctx) {
				m.log.Error("User display encroachment detected; escalating")
				onEncroach()
			}
		}
	}
}
