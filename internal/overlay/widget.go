package overlay

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/go-rod/rod"
)

// blockedSchemes is the closed set of browser-internal schemes the widget
// refuses to construct on. Injection there would be inert or rejected by the
// browser.
var blockedSchemes = []string{
	"chrome://",
	"chrome-extension://",
	"devtools://",
	"edge://",
	"about:",
	"view-source:",
	"data:",
	"blob:",
}

// BlockedURL reports whether the widget must skip injection for the given
// page URL.
func BlockedURL(url string) bool {
	for _, prefix := range blockedSchemes {
		if strings.HasPrefix(url, prefix) {
			return true
		}
	}
	return false
}

// InjectResult describes the outcome of an injection attempt.
type InjectResult string

const (
	// Injected means the widget DOM was created by this call.
	Injected InjectResult = "injected"
	// AlreadyPresent means the identity marker was found; the call was a
	// no-op.
	AlreadyPresent InjectResult = "exists"
	// NoDocumentBody means the page's structural root was unavailable even
	// after the one permitted retry.
	NoDocumentBody InjectResult = "no-body"
)

// Widget drives the injected overlay element on one page. All methods are
// best-effort: a page that navigated away or blocks script evaluation yields
// errors the caller downgrades to "feature absent", never a page breakage.
type Widget struct {
	page   *rod.Page
	marker string
	size   float64
	margin float64
}

// NewWidget binds a widget driver to a page. A zero size falls back to the
// default diameter.
func NewWidget(page *rod.Page, marker string, size, margin float64) *Widget {
	if marker == "" {
		marker = DefaultMarkerID
	}
	if size <= 0 {
		size = 48
	}
	return &Widget{page: page, marker: marker, size: size, margin: margin}
}

// Size returns the widget diameter in pixels.
func (w *Widget) Size() float64 { return w.size }

// Inject constructs the widget DOM at pos. When the document body does not
// exist yet, it waits for the page load event and retries exactly once;
// still no body means the attempt is abandoned.
func (w *Widget) Inject(ctx context.Context, pos Position) (InjectResult, error) {
	res, err := w.eval(ctx, injectScript, w.marker, w.size, w.margin, pos.X, pos.Y)
	if err != nil {
		return NoDocumentBody, err
	}
	if InjectResult(res) != NoDocumentBody {
		return InjectResult(res), nil
	}

	if err := w.page.Context(ctx).WaitLoad(); err != nil {
		return NoDocumentBody, err
	}
	res, err = w.eval(ctx, injectScript, w.marker, w.size, w.margin, pos.X, pos.Y)
	if err != nil {
		return NoDocumentBody, err
	}
	return InjectResult(res), nil
}

// RenderBadge reflects the run state onto the badge element.
func (w *Widget) RenderBadge(ctx context.Context, s RunState) error {
	_, err := w.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:      renderBadgeScript,
		JSArgs:  []interface{}{w.marker, BadgeVisible(s), s.CurrentStep},
		ByValue: true,
	})
	return err
}

// ApplyPosition moves the widget to a clamped, host-authoritative position.
func (w *Widget) ApplyPosition(ctx context.Context, pos Position) error {
	_, err := w.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:      applyPositionScript,
		JSArgs:  []interface{}{w.marker, pos.X, pos.Y},
		ByValue: true,
	})
	return err
}

// QueueEntry is one element drained from the page-side event queue: either a
// pointer sample or a channel message.
type QueueEntry struct {
	T      string          `json:"t"`
	PT     string          `json:"pt"`
	X      float64         `json:"x"`
	Y      float64         `json:"y"`
	Button int             `json:"button"`
	M      json.RawMessage `json:"m"`
}

// Pointer converts a pointer-kind entry into a PointerEvent.
func (e QueueEntry) Pointer() PointerEvent {
	return PointerEvent{Type: PointerType(e.PT), X: e.X, Y: e.Y, Button: e.Button}
}

// DrainQueue empties the page-side queue and returns its entries in order.
func (w *Widget) DrainQueue(ctx context.Context) ([]QueueEntry, error) {
	res, err := w.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:      drainQueueScript,
		ByValue: true,
	})
	if err != nil || res == nil || res.Value.Nil() {
		return nil, err
	}

	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var entries []QueueEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (w *Widget) eval(ctx context.Context, js string, args ...interface{}) (string, error) {
	res, err := w.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:      js,
		JSArgs:  args,
		ByValue: true,
	})
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}
