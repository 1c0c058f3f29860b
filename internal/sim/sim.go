// File: internal/sim/sim.go
// Description: In-memory display backend. Implements the engine's platform
// ports (input executor, screen source, activity sampler, trigger source,
// bounds prober) against a virtual framebuffer, so the engine can run end
// to end without an operating-system integration. Used by dry runs and by
// the integration tests.

package sim

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"time"

	"github.com/draugr-dev/overseer-cli/api/schemas"
	"github.com/draugr-dev/overseer-cli/internal/activity"
)

// Display is a virtual display with a framebuffer and an event journal.
type Display struct {
	id     schemas.DisplayID
	bounds schemas.Rect

	mu     sync.Mutex
	frame  *image.RGBA
	cursor schemas.Point
	events []Event
}

// Event is one dispatched input event, recorded for assertions.
type Event struct {
	Kind  string // "move", "press", "release", "key", "chord"
	Point schemas.Point
	Key   string
	Keys  []string
	At    time.Time
}

// NewDisplay creates a virtual display filled with a flat background.
func NewDisplay(id schemas.DisplayID, bounds schemas.Rect) *Display {
	frame := image.NewRGBA(image.Rect(0, 0, bounds.Width, bounds.Height))
	draw.Draw(frame, frame.Bounds(), &image.Uniform{C: color.RGBA{R: 32, G: 32, B: 40, A: 255}}, image.Point{}, draw.Src)
	return &Display{id: id, bounds: bounds, frame: frame}
}

// Paint fills a region of the framebuffer, for arranging test scenes.
func (d *Display) Paint(r schemas.Rect, c color.Color) {
	d.mu.Lock()
	defer d.mu.Unlock()
	draw.Draw(d.frame, image.Rect(r.X-d.bounds.X, r.Y-d.bounds.Y, r.X-d.bounds.X+r.Width, r.Y-d.bounds.Y+r.Height),
		&image.Uniform{C: c}, image.Point{}, draw.Src)
}

// PaintImage blits an image into the framebuffer at the given origin.
func (d *Display) PaintImage(origin schemas.Point, img image.Image) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b := img.Bounds()
	dst := image.Rect(origin.X-d.bounds.X, origin.Y-d.bounds.Y,
		origin.X-d.bounds.X+b.Dx(), origin.Y-d.bounds.Y+b.Dy())
	draw.Draw(d.frame, dst, img, b.Min, draw.Src)
}

// Events returns a copy of the event journal.
func (d *Display) Events() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Event, len(d.events))
	copy(out, d.events)
	return out
}

// Backend multiplexes virtual displays behind the platform ports.
type Backend struct {
	mu       sync.Mutex
	displays map[schemas.DisplayID]*Display

	// OnEvent, when set, observes every dispatched event (e.g. to mutate
	// the framebuffer in reaction to a click).
	OnEvent func(id schemas.DisplayID, ev Event)
}

// NewBackend creates an empty backend.
func NewBackend() *Backend {
	return &Backend{displays: make(map[schemas.DisplayID]*Display)}
}

// AddDisplay registers a virtual display.
func (b *Backend) AddDisplay(d *Display) {
	b.mu.Lock()
	b.displays[d.id] = d
	b.mu.Unlock()
}

// Display returns a registered virtual display.
func (b *Backend) Display(id schemas.DisplayID) (*Display, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.displays[id]
	return d, ok
}

func (b *Backend) record(ctx context.Context, id schemas.DisplayID, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d, ok := b.Display(id)
	if !ok {
		return fmt.Errorf("sim: unknown display %s", id)
	}
	ev.At = time.Now()
	d.mu.Lock()
	d.events = append(d.events, ev)
	if ev.Kind == "move" || ev.Kind == "press" || ev.Kind == "release" {
		d.cursor = ev.Point
	}
	d.mu.Unlock()
	if b.OnEvent != nil {
		b.OnEvent(id, ev)
	}
	return nil
}

// -- schemas.InputExecutor --

func (b *Backend) MouseMove(ctx context.Context, id schemas.DisplayID, p schemas.Point) error {
	return b.record(ctx, id, Event{Kind: "move", Point: p})
}

func (b *Backend) MousePress(ctx context.Context, id schemas.DisplayID, p schemas.Point) error {
	return b.record(ctx, id, Event{Kind: "press", Point: p})
}

func (b *Backend) MouseRelease(ctx context.Context, id schemas.DisplayID, p schemas.Point) error {
	return b.record(ctx, id, Event{Kind: "release", Point: p})
}

func (b *Backend) KeyPress(ctx context.Context, id schemas.DisplayID, key string) error {
	return b.record(ctx, id, Event{Kind: "key", Key: key})
}

func (b *Backend) KeyChord(ctx context.Context, id schemas.DisplayID, keys []string) error {
	return b.record(ctx, id, Event{Kind: "chord", Keys: keys})
}

func (b *Backend) Sleep(ctx context.Context, d time.Duration) error {
	// Virtual time: honor cancellation but do not actually dwell, so
	// simulated plans run fast.
	return ctx.Err()
}

// -- schemas.ScreenSource --

func (b *Backend) Capture(ctx context.Context, id schemas.DisplayID) (schemas.Screenshot, error) {
	if err := ctx.Err(); err != nil {
		return schemas.Screenshot{}, err
	}
	d, ok := b.Display(id)
	if !ok {
		return schemas.Screenshot{}, fmt.Errorf("sim: unknown display %s", id)
	}
	d.mu.Lock()
	clone := image.NewRGBA(d.frame.Bounds())
	copy(clone.Pix, d.frame.Pix)
	d.mu.Unlock()
	return schemas.Screenshot{
		Display:    id,
		Image:      clone,
		Origin:     schemas.Point{X: d.bounds.X, Y: d.bounds.Y},
		CapturedAt: time.Now().UTC(),
	}, nil
}

// -- isolation.BoundsProber --

func (b *Backend) CurrentBounds(ctx context.Context, id schemas.DisplayID) (schemas.Rect, error) {
	d, ok := b.Display(id)
	if !ok {
		return schemas.Rect{}, fmt.Errorf("sim: unknown display %s", id)
	}
	return d.bounds, nil
}

// Sampler is a static activity sampler reporting a configurable state.
type Sampler struct {
	mu  sync.Mutex
	raw activity.RawSample
}

// NewSampler starts quiescent (no input, no focused process).
func NewSampler() *Sampler {
	return &Sampler{}
}

// Set replaces the reported state.
func (s *Sampler) Set(raw activity.RawSample) {
	s.mu.Lock()
	s.raw = raw
	s.mu.Unlock()
}

func (s *Sampler) Sample(ctx context.Context) (activity.RawSample, error) {
	if err := ctx.Err(); err != nil {
		return activity.RawSample{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.raw, nil
}

// Trigger is an in-process trigger source; Fire delivers the signal to
// every subscriber, standing in for the OS hotkey hook.
type Trigger struct {
	mu   sync.Mutex
	subs map[int]func()
	next int
}

// NewTrigger creates a trigger source with no subscribers.
func NewTrigger() *Trigger {
	return &Trigger{subs: make(map[int]func())}
}

func (t *Trigger) Subscribe(fn func()) (func(), error) {
	t.mu.Lock()
	id := t.next
	t.next++
	t.subs[id] = fn
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
	}, nil
}

// Fire invokes every subscriber on the caller's goroutine.
func (t *Trigger) Fire() {
	t.mu.Lock()
	fns := make([]func(), 0, len(t.subs))
	for _, fn := range t.subs {
		fns = append(fns, fn)
	}
	t.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
