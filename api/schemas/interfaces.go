// File: api/schemas/interfaces.go
// Description: Interface boundaries for the external collaborators this
// engine consumes. Everything behind these interfaces is out of scope:
// the engine specifies only how their output is consumed.

package schemas

import (
	"context"
	"image"
	"time"
)

// Screenshot is an opaque capture of one display at one instant.
type Screenshot struct {
	Display DisplayID
	Image   image.Image
	// Origin is the screen coordinate of the capture's top-left pixel.
	// Recognition results are translated by it, so locations downstream of
	// the engine are always in screen space regardless of where the
	// captured display sits.
	Origin     Point
	CapturedAt time.Time
	// Ref is the evidence reference under which the capture was stored.
	Ref string
}

// VisionQueryKind selects the provider-side strategy.
type VisionQueryKind string

const (
	VisionQueryText     VisionQueryKind = "text"
	VisionQuerySemantic VisionQueryKind = "semantic"
)

// VisionQuery asks the external vision/OCR provider to find something in an
// image. Exactly one of Text or Query is set, per Kind.
type VisionQuery struct {
	Kind  VisionQueryKind
	Text  string // text pattern to find (OCR mode)
	Query string // natural-language description (semantic mode)
}

// VisionProvider is the external vision/OCR collaborator. It is best
// effort: it may be slow, return nothing, or fail outright. Callers must
// tolerate errors as a not-found equivalent, never propagate them as fatal.
type VisionProvider interface {
	Locate(ctx context.Context, img image.Image, query VisionQuery) ([]Candidate, error)
}

// EvidenceSink receives the audit record stream at plan completion or
// abort. The engine emits structured records only; formatting is external.
type EvidenceSink interface {
	Flush(ctx context.Context, outcome PlanOutcome) error
}

// TriggerSource abstracts the operating-system global hotkey or input hook
// that delivers the emergency-stop signal. Subscribe registers a single
// callback invoked on every trigger; the returned func unsubscribes.
type TriggerSource interface {
	Subscribe(fn func()) (unsubscribe func(), err error)
}

// InputExecutor dispatches primitive input events to a concrete display
// backend. It is the lowest layer of the display session and performs no
// policy checks of its own.
type InputExecutor interface {
	MouseMove(ctx context.Context, display DisplayID, p Point) error
	MousePress(ctx context.Context, display DisplayID, p Point) error
	MouseRelease(ctx context.Context, display DisplayID, p Point) error
	KeyPress(ctx context.Context, display DisplayID, key string) error
	KeyChord(ctx context.Context, display DisplayID, keys []string) error
	Sleep(ctx context.Context, d time.Duration) error
}

// ScreenSource captures the current contents of a display.
type ScreenSource interface {
	Capture(ctx context.Context, display DisplayID) (Screenshot, error)
}

// PlanSource supplies action plans from the external intent/planning
// service and receives their outcome in return.
type PlanSource interface {
	Next(ctx context.Context) (ActionPlan, error)
	Report(ctx context.Context, outcome PlanOutcome) error
}
