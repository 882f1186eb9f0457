package overlay

import "sync"

// PointerType discriminates raw pointer events forwarded from the page.
type PointerType string

const (
	PointerDown PointerType = "down"
	PointerMove PointerType = "move"
	PointerUp   PointerType = "up"
)

// PrimaryButton is the only button that initiates a drag.
const PrimaryButton = 0

// PointerEvent is one raw pointer sample in screen coordinates.
type PointerEvent struct {
	Type   PointerType
	X      float64
	Y      float64
	Button int
}

// PositionUpdate is the drag controller's output: a clamped widget position
// and whether it should be committed to the position store (only on
// release).
type PositionUpdate struct {
	Position Position
	Commit   bool
}

// dragSession holds the transient capture taken at pointer-down. It exists
// only between press and release.
type dragSession struct {
	startPointer Position
	startOrigin  Position
}

// DragController is a two-state machine (idle / dragging) that converts raw
// pointer events into clamped position updates. It owns the widget's
// authoritative origin; the in-page handlers only provide the cosmetic 1:1
// visual tracking. Safe for concurrent use: the host reads the origin while
// the session's event pump advances the machine.
type DragController struct {
	mu      sync.Mutex
	bounds  Bounds
	origin  Position
	session *dragSession
}

// NewDragController starts idle at the given origin.
func NewDragController(origin Position, bounds Bounds) *DragController {
	return &DragController{bounds: bounds, origin: Clamp(origin, bounds)}
}

// Origin returns the current widget origin.
func (c *DragController) Origin() Position {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.origin
}

// Dragging reports whether a drag session is in progress.
func (c *DragController) Dragging() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

// SetBounds replaces the clamping box, re-clamping the current origin. Used
// when the viewport changes size.
func (c *DragController) SetBounds(b Bounds) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bounds = b
	c.origin = Clamp(c.origin, b)
}

// Handle advances the state machine with one pointer event. The returned
// update is meaningful only when ok is true: moves yield uncommitted
// positions applied to the widget immediately, release yields the final
// re-clamped position with Commit set, to be persisted exactly once.
func (c *DragController) Handle(ev PointerEvent) (PositionUpdate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Type {
	case PointerDown:
		if c.session != nil || ev.Button != PrimaryButton {
			return PositionUpdate{}, false
		}
		c.session = &dragSession{
			startPointer: Position{X: ev.X, Y: ev.Y},
			startOrigin:  c.origin,
		}
		return PositionUpdate{}, false

	case PointerMove:
		if c.session == nil {
			return PositionUpdate{}, false
		}
		candidate := Position{
			X: c.session.startOrigin.X + ev.X - c.session.startPointer.X,
			Y: c.session.startOrigin.Y + ev.Y - c.session.startPointer.Y,
		}
		c.origin = Clamp(candidate, c.bounds)
		return PositionUpdate{Position: c.origin}, true

	case PointerUp:
		if c.session == nil {
			return PositionUpdate{}, false
		}
		c.session = nil
		c.origin = Clamp(c.origin, c.bounds)
		return PositionUpdate{Position: c.origin, Commit: true}, true
	}
	return PositionUpdate{}, false
}
