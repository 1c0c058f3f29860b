// File: internal/orchestrator/verify.go
// Post-action verification. What "expected change" means varies across
// applications, so the heuristic is pluggable and its strictness comes from
// configuration: re-recognition, pixel diff, or off.

package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/draugr-dev/overseer-cli/api/schemas"
	"github.com/draugr-dev/overseer-cli/internal/config"
	"github.com/draugr-dev/overseer-cli/internal/imaging"
)

// Verifier decides whether an executed action had its expected effect.
// Returns nil when the effect is observed, ErrNoEffect when it is not.
type Verifier interface {
	Verify(ctx context.Context, before, after schemas.Screenshot, action schemas.Action, located *schemas.RecognitionResult) error
}

// NewVerifier selects the heuristic configured under verify.mode.
func NewVerifier(cfg config.VerifyConfig, locator Locator) (Verifier, error) {
	switch cfg.Mode {
	case "off":
		return noopVerifier{}, nil
	case "pixel_diff":
		return &pixelDiffVerifier{minDelta: cfg.MinPixelDelta}, nil
	case "recognition":
		return &recognitionVerifier{
			locator:  locator,
			fallback: &pixelDiffVerifier{minDelta: cfg.MinPixelDelta},
		}, nil
	default:
		return nil, fmt.Errorf("unknown verify mode %q", cfg.Mode)
	}
}

type noopVerifier struct{}

func (noopVerifier) Verify(context.Context, schemas.Screenshot, schemas.Screenshot, schemas.Action, *schemas.RecognitionResult) error {
	return nil
}

// pixelDiffVerifier expects some fraction of pixels in the target region
// (or the whole screen when no location is known) to have changed.
type pixelDiffVerifier struct {
	minDelta float64
}

// pixel values within this distance count as unchanged, absorbing
// anti-aliasing and capture noise.
const diffTolerance = 12

func (v *pixelDiffVerifier) Verify(_ context.Context, before, after schemas.Screenshot, _ schemas.Action, located *schemas.RecognitionResult) error {
	if before.Image == nil || after.Image == nil {
		return nil // nothing to compare; do not fail the step on missing evidence
	}
	bg := imaging.ToGray(before.Image)
	ag := imaging.ToGray(after.Image)
	if located != nil {
		// The located box is in screen space; the captures are local to
		// the display's origin.
		region := inflate(located.Box, 20).Translate(-after.Origin.X, -after.Origin.Y)
		bg = imaging.Crop(bg, region)
		ag = imaging.Crop(ag, region)
	}
	if imaging.DiffRatio(bg, ag, diffTolerance) < v.minDelta {
		return schemas.ErrNoEffect
	}
	return nil
}

// recognitionVerifier re-runs recognition for the acted-on descriptor and
// expects its state to have changed: the element disappeared, moved, or
// re-scored. When the action had no descriptor it falls back to pixel diff.
type recognitionVerifier struct {
	locator  Locator
	fallback Verifier
}

func (v *recognitionVerifier) Verify(ctx context.Context, before, after schemas.Screenshot, action schemas.Action, located *schemas.RecognitionResult) error {
	if action.Descriptor == nil || located == nil {
		return v.fallback.Verify(ctx, before, after, action, located)
	}

	res, err := v.locator.Locate(ctx, after, *action.Descriptor)
	if err != nil {
		if errors.Is(err, schemas.ErrNotFound) {
			// The element is gone; that is a state change.
			return nil
		}
		// Recognition broke outright; fall back rather than fail the step
		// on verification machinery.
		return v.fallback.Verify(ctx, before, after, action, located)
	}

	if res.Box != located.Box || confidenceShifted(res.Confidence, located.Confidence) {
		return nil
	}
	// Same element, same place, same score: look for any pixel change
	// around it before declaring the action void.
	return v.fallback.Verify(ctx, before, after, action, located)
}

func confidenceShifted(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d > 0.05
}

func inflate(r schemas.Rect, margin int) schemas.Rect {
	return schemas.Rect{
		X:      r.X - margin,
		Y:      r.Y - margin,
		Width:  r.Width + 2*margin,
		Height: r.Height + 2*margin,
	}
}
