package isolation_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/draugr-dev/overseer-cli/api/schemas"
	"github.com/draugr-dev/overseer-cli/internal/isolation"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	userDisplay = schemas.DisplayID("display-user")
	autoDisplay = schemas.DisplayID("display-automation")
)

var (
	userBounds = schemas.Rect{X: 0, Y: 0, Width: 1920, Height: 1080}
	autoBounds = schemas.Rect{X: 1920, Y: 100, Width: 1280, Height: 980}
)

// fakeProber reports configurable live bounds per display.
type fakeProber struct {
	mu     sync.Mutex
	bounds map[schemas.DisplayID]schemas.Rect
}

func (p *fakeProber) set(id schemas.DisplayID, r schemas.Rect) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bounds == nil {
		p.bounds = make(map[schemas.DisplayID]schemas.Rect)
	}
	p.bounds[id] = r
}

func (p *fakeProber) CurrentBounds(_ context.Context, id schemas.DisplayID) (schemas.Rect, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bounds[id], nil
}

func newTestManager(t *testing.T, prober isolation.BoundsProber) *isolation.Manager {
	m := isolation.NewManager(prober, zaptest.NewLogger(t))
	require.NoError(t, m.RegisterDisplay(userDisplay, schemas.RoleUser, userBounds))
	require.NoError(t, m.RegisterDisplay(autoDisplay, schemas.RoleAutomation, autoBounds))
	return m
}

func TestRegisterDisplay_RoleUniqueness(t *testing.T) {
	m := newTestManager(t, nil)

	err := m.RegisterDisplay("display-third", schemas.RoleAutomation, schemas.Rect{X: 0, Y: 0, Width: 10, Height: 10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")

	err = m.RegisterDisplay("display-empty", schemas.RoleUser, schemas.Rect{})
	assert.ErrorContains(t, err, "empty bounds")

	// Re-registering the same display under its existing role is fine
	// (e.g. after a geometry refresh).
	assert.NoError(t, m.RegisterDisplay(autoDisplay, schemas.RoleAutomation, autoBounds))
}

func TestCheckBounds(t *testing.T) {
	m := newTestManager(t, nil)

	// A point well inside the user display is outside the automation
	// display's registered bounds and must be rejected for it.
	assert.False(t, m.CheckBounds(autoDisplay, schemas.Point{X: 50, Y: 50}))

	assert.True(t, m.CheckBounds(autoDisplay, schemas.Point{X: 2000, Y: 500}))
	assert.True(t, m.CheckBounds(userDisplay, schemas.Point{X: 50, Y: 50}))

	// Registered edge semantics: top-left in, bottom-right out.
	assert.True(t, m.CheckBounds(autoDisplay, schemas.Point{X: 1920, Y: 100}))
	assert.False(t, m.CheckBounds(autoDisplay, schemas.Point{X: 3200, Y: 100}))

	// Unregistered displays always fail.
	assert.False(t, m.CheckBounds("display-ghost", schemas.Point{X: 1, Y: 1}))
}

func TestRoleLookups(t *testing.T) {
	m := newTestManager(t, nil)

	id, ok := m.AutomationDisplay()
	require.True(t, ok)
	assert.Equal(t, autoDisplay, id)

	id, ok = m.UserDisplay()
	require.True(t, ok)
	assert.Equal(t, userDisplay, id)

	b, ok := m.Bounds(autoDisplay)
	require.True(t, ok)
	assert.Equal(t, autoBounds, b)
}

func TestUserDisplayEncroached(t *testing.T) {
	prober := &fakeProber{}
	prober.set(autoDisplay, autoBounds)
	m := newTestManager(t, prober)

	assert.False(t, m.UserDisplayEncroached(context.Background()))

	// The automation display drifts left over the user display.
	prober.set(autoDisplay, schemas.Rect{X: 1000, Y: 100, Width: 1280, Height: 980})
	assert.True(t, m.UserDisplayEncroached(context.Background()))

	// Drift that stays clear of the user display is not an encroachment.
	prober.set(autoDisplay, schemas.Rect{X: 2000, Y: 100, Width: 1280, Height: 980})
	assert.False(t, m.UserDisplayEncroached(context.Background()))
}

func TestUserDisplayEncroached_NoProber(t *testing.T) {
	m := newTestManager(t, nil)
	assert.False(t, m.UserDisplayEncroached(context.Background()))
}

func TestWatchEncroachment(t *testing.T) {
	prober := &fakeProber{}
	prober.set(autoDisplay, schemas.Rect{X: 1000, Y: 100, Width: 1280, Height: 980})
	m := newTestManager(t, prober)

	ctx, cancel := context.WithCancel(context.Background())
	detected := make(chan struct{}, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.WatchEncroachment(ctx, 10*time.Millisecond, func() {
			select {
			case detected <- struct{}{}:
			default:
			}
		})
	}()

	select {
	case <-detected:
	case <-time.After(2 * time.Second):
		t.Fatal("encroachment was never detected")
	}
	cancel()
	<-done
}
