// File: internal/display/session.go
// Description: Owns one display target and executes primitive actions,
// nothing else. The session performs no policy checks; it trusts the
// orchestrator, but independently re-validates the display identity it is
// asked to act on, failing closed rather than silently acting on the wrong
// screen.

package display

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/draugr-dev/overseer-cli/api/schemas"
	"github.com/draugr-dev/overseer-cli/internal/config"
	"github.com/draugr-dev/overseer-cli/internal/emergency"
)

// Session is the controller for a single display.
type Session struct {
	display schemas.DisplayID
	exec    schemas.InputExecutor
	screen  schemas.ScreenSource
	flag    *emergency.Flag
	synth   *Synthesizer
	log     *zap.Logger

	// mu serializes input dispatch and protects the cursor position.
	mu         sync.Mutex
	currentPos schemas.Point

	// captureMu serializes screenshots on this display to avoid tearing.
	captureMu sync.Mutex
}

// NewSession binds a controller to its display identity at construction.
func NewSession(
	display schemas.DisplayID,
	exec schemas.InputExecutor,
	screen schemas.ScreenSource,
	flag *emergency.Flag,
	cfg config.SynthesisConfig,
	logger *zap.Logger,
) *Session {
	return &Session{
		display: display,
		exec:    exec,
		screen:  screen,
		flag:    flag,
		synth:   NewSynthesizer(cfg, 0),
		log:     logger.Named("display").With(zap.String("display", string(display))),
	}
}

// Display returns the identity this session was constructed for.
func (s *Session) Display() schemas.DisplayID {
	return s.display
}

// guard is the defense-in-depth check run by every operation: the intended
// display must match the constructed identity, and the abort flag must be
// clear.
func (s *Session) guard(display schemas.DisplayID) error {
	if display != s.display {
		return fmt.Errorf("session bound to %s asked to act on %s: %w",
			s.display, display, schemas.ErrWrongDisplay)
	}
	if s.flag.Set() {
		return schemas.ErrAborted
	}
	return nil
}

// MoveTo moves the cursor to the point along a synthesized trajectory.
func (s *Session) MoveTo(ctx context.Context, display schemas.DisplayID, p schemas.Point) error {
	if err := s.guard(display); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.moveLocked(ctx, p)
}

func (s *Session) moveLocked(ctx context.Context, p schemas.Point) error {
	waypoints := s.synth.Trajectory(s.currentPos, p)
	for _, wp := range waypoints {
		if s.flag.Set() {
			return schemas.ErrAborted
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.exec.MouseMove(ctx, s.display, wp); err != nil {
			return fmt.Errorf("mouse move to %s: %w", wp, err)
		}
		s.currentPos = wp
		if d := s.synth.MovePause(); d > 0 {
			if err := s.exec.Sleep(ctx, d); err != nil {
				return err
			}
		}
	}
	s.currentPos = p
	return nil
}

// Click moves to the point and presses and releases the primary button,
// holding for a synthesized interval.
func (s *Session) Click(ctx context.Context, display schemas.DisplayID, p schemas.Point) error {
	if err := s.guard(display); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.moveLocked(ctx, p); err != nil {
		return err
	}
	if s.flag.Set() {
		return schemas.ErrAborted
	}
	if err := s.exec.MousePress(ctx, s.display, p); err != nil {
		return fmt.Errorf("mouse press at %s: %w", p, err)
	}
	if err := s.exec.Sleep(ctx, s.synth.ClickHold()); err != nil {
		return err
	}
	if err := s.exec.MouseRelease(ctx, s.display, p); err != nil {
		return fmt.Errorf("mouse release at %s: %w", p, err)
	}
	s.log.Debug("Clicked", zap.String("point", p.String()))
	return nil
}

// TypeText presses each rune in sequence with synthesized inter-key
// cadence. The abort flag is re-checked between keys so a long string
// cannot outlive an emergency stop.
func (s *Session) TypeText(ctx context.Context, display schemas.DisplayID, text string) error {
	if err := s.guard(display); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range text {
		if s.flag.Set() {
			return schemas.ErrAborted
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.exec.KeyPress(ctx, s.display, string(r)); err != nil {
			return fmt.Errorf("key press %q: %w", r, err)
		}
		if err := s.exec.Sleep(ctx, s.synth.KeyInterval()); err != nil {
			return err
		}
	}
	s.log.Debug("Typed text", zap.Int("runes", len([]rune(text))))
	return nil
}

// KeyCombo dispatches a chord (e.g. ctrl+s) as a single structured event.
func (s *Session) KeyCombo(ctx context.Context, display schemas.DisplayID, keys []string) error {
	if err := s.guard(display); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.exec.KeyChord(ctx, s.display, keys); err != nil {
		return fmt.Errorf("key chord %v: %w", keys, err)
	}
	return nil
}

// Screenshot captures the display. Only one capture may be in flight per
// display at a time.
func (s *Session) Screenshot(ctx context.Context, display schemas.DisplayID) (schemas.Screenshot, error) {
	if err := s.guard(display); err != nil {
		return schemas.Screenshot{}, err
	}
	s.captureMu.Lock()
	defer s.captureMu.Unlock()

	shot, err := s.screen.Capture(ctx, s.display)
	if err != nil {
		return schemas.Screenshot{}, fmt.Errorf("capture %s: %w", s.display, err)
	}
	if shot.CapturedAt.IsZero() {
		shot.CapturedAt = time.Now().UTC()
	}
	shot.Display = s.display
	return shot, nil
}
