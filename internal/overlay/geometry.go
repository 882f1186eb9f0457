// Package overlay implements the in-page widget the agent host injects into
// every page it drives: position persistence, drag handling, run-state
// mirroring, and the message relay between the page and the agent.
package overlay

// Position is a viewport-relative pixel coordinate of the widget's top-left
// corner.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Bounds describes the clamping box for widget positions: the viewport
// dimensions, the widget diameter, and the minimum margin kept from every
// viewport edge.
type Bounds struct {
	ViewportWidth  float64
	ViewportHeight float64
	WidgetSize     float64
	Margin         float64
}

// Clamp constrains p so the whole widget stays inside the viewport with the
// configured margin on both axes. Clamp is pure and idempotent; it is applied
// both when restoring a saved position (the viewport may have shrunk since
// the save) and when committing a new one.
func Clamp(p Position, b Bounds) Position {
	return Position{
		X: clampAxis(p.X, b.Margin, b.ViewportWidth-b.WidgetSize-b.Margin),
		Y: clampAxis(p.Y, b.Margin, b.ViewportHeight-b.WidgetSize-b.Margin),
	}
}

// DefaultPosition places the widget in the bottom-right corner. Used on first
// run when no saved position exists.
func DefaultPosition(b Bounds) Position {
	return Clamp(Position{
		X: b.ViewportWidth - b.WidgetSize - b.Margin,
		Y: b.ViewportHeight - b.WidgetSize - b.Margin,
	}, b)
}

func clampAxis(v, lo, hi float64) float64 {
	if hi < lo {
		// Degenerate viewport smaller than widget + margins; pin to the margin.
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
