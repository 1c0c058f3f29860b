package display_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/draugr-dev/overseer-cli/api/schemas"
	"github.com/draugr-dev/overseer-cli/internal/config"
	"github.com/draugr-dev/overseer-cli/internal/display"
	"github.com/draugr-dev/overseer-cli/internal/emergency"
	"github.com/draugr-dev/overseer-cli/internal/sim"
)

const (
	autoDisplay  = schemas.DisplayID("display-automation")
	otherDisplay = schemas.DisplayID("display-user")
)

var autoBounds = schemas.Rect{X: 0, Y: 0, Width: 640, Height: 480}

type sessionFixture struct {
	backend *sim.Backend
	screen  *sim.Display
	flag    *emergency.Flag
	session *display.Session
}

func newSessionFixture(t *testing.T, synth config.SynthesisConfig) *sessionFixture {
	backend := sim.NewBackend()
	screen := sim.NewDisplay(autoDisplay, autoBounds)
	backend.AddDisplay(screen)
	flag := emergency.NewFlag()
	return &sessionFixture{
		backend: backend,
		screen:  screen,
		flag:    flag,
		session: display.NewSession(autoDisplay, backend, backend, flag, synth, zaptest.NewLogger(t)),
	}
}

func TestSession_WrongDisplayFailsClosed(t *testing.T) {
	f := newSessionFixture(t, config.SynthesisConfig{})
	ctx := context.Background()
	p := schemas.Point{X: 10, Y: 10}

	assert.ErrorIs(t, f.session.MoveTo(ctx, otherDisplay, p), schemas.ErrWrongDisplay)
	assert.ErrorIs(t, f.session.Click(ctx, otherDisplay, p), schemas.ErrWrongDisplay)
	assert.ErrorIs(t, f.session.TypeText(ctx, otherDisplay, "hi"), schemas.ErrWrongDisplay)
	assert.ErrorIs(t, f.session.KeyCombo(ctx, otherDisplay, []string{"ctrl", "s"}), schemas.ErrWrongDisplay)
	_, err := f.session.Screenshot(ctx, otherDisplay)
	assert.ErrorIs(t, err, schemas.ErrWrongDisplay)

	// Nothing reached the backend.
	assert.Empty(t, f.screen.Events())
}

func TestSession_ClickDispatchesMovePressRelease(t *testing.T) {
	f := newSessionFixture(t, config.SynthesisConfig{})
	target := schemas.Point{X: 300, Y: 200}

	require.NoError(t, f.session.Click(context.Background(), autoDisplay, target))

	events := f.screen.Events()
	require.NotEmpty(t, events)

	// The final three events are the arrival, press, and release, all at
	// the exact target.
	last := events[len(events)-3:]
	assert.Equal(t, "move", last[0].Kind)
	assert.Equal(t, target, last[0].Point)
	assert.Equal(t, "press", last[1].Kind)
	assert.Equal(t, target, last[1].Point)
	assert.Equal(t, "release", last[2].Kind)
	assert.Equal(t, target, last[2].Point)
}

func TestSession_TrajectoryEndsOnTarget(t *testing.T) {
	synth := config.SynthesisConfig{
		Enabled:        true,
		MoveStepPx:     20,
		NoiseAmplitude: 3,
	}
	f := newSessionFixture(t, synth)
	target := schemas.Point{X: 500, Y: 400}

	require.NoError(t, f.session.MoveTo(context.Background(), autoDisplay, target))

	events := f.screen.Events()
	require.Greater(t, len(events), 3, "a long move should produce intermediate waypoints")
	for _, ev := range events {
		assert.Equal(t, "move", ev.Kind)
	}
	assert.Equal(t, target, events[len(events)-1].Point)
}

func TestSession_TypeText(t *testing.T) {
	f := newSessionFixture(t, config.SynthesisConfig{})

	require.NoError(t, f.session.TypeText(context.Background(), autoDisplay, "42="))

	events := f.screen.Events()
	require.Len(t, events, 3)
	assert.Equal(t, "4", events[0].Key)
	assert.Equal(t, "2", events[1].Key)
	assert.Equal(t, "=", events[2].Key)
}

func TestSession_AbortStopsTypingMidString(t *testing.T) {
	f := newSessionFixture(t, config.SynthesisConfig{})

	// Trip the flag from the backend after the third key lands.
	f.backend.OnEvent = func(_ schemas.DisplayID, ev sim.Event) {
		if ev.Kind == "key" && len(f.screen.Events()) == 3 {
			f.flag.Trip("operator abort")
		}
	}

	err := f.session.TypeText(context.Background(), autoDisplay, "a very long confidential string")
	require.ErrorIs(t, err, schemas.ErrAborted)
	assert.Len(t, f.screen.Events(), 3, "no key may follow the abort")
}

func TestSession_AbortBlocksNewOperations(t *testing.T) {
	f := newSessionFixture(t, config.SynthesisConfig{})
	f.flag.Trip("already aborted")

	assert.ErrorIs(t, f.session.Click(context.Background(), autoDisplay, schemas.Point{X: 1, Y: 1}), schemas.ErrAborted)
	_, err := f.session.Screenshot(context.Background(), autoDisplay)
	assert.ErrorIs(t, err, schemas.ErrAborted)
	assert.Empty(t, f.screen.Events())
}

func TestSession_KeyCombo(t *testing.T) {
	f := newSessionFixture(t, config.SynthesisConfig{})

	require.NoError(t, f.session.KeyCombo(context.Background(), autoDisplay, []string{"ctrl", "shift", "s"}))

	events := f.screen.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "chord", events[0].Kind)
	assert.Equal(t, []string{"ctrl", "shift", "s"}, events[0].Keys)
}

func TestSession_ScreenshotStampsIdentity(t *testing.T) {
	f := newSessionFixture(t, config.SynthesisConfig{})

	shot, err := f.session.Screenshot(context.Background(), autoDisplay)
	require.NoError(t, err)
	assert.Equal(t, autoDisplay, shot.Display)
	assert.False(t, shot.CapturedAt.IsZero())
	require.NotNil(t, shot.Image)
	assert.Equal(t, autoBounds.Width, shot.Image.Bounds().Dx())
}

func TestSession_ContextCancellation(t *testing.T) {
	f := newSessionFixture(t, config.SynthesisConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, f.session.MoveTo(ctx, autoDisplay, schemas.Point{X: 9, Y: 9}), context.Canceled)
}
