package overlay

import (
	"context"
	"encoding/json"
	"sync"
)

// BadgeRenderer paints the mirrored run state onto the widget. Implemented
// by *Widget; tests substitute fakes.
type BadgeRenderer interface {
	RenderBadge(ctx context.Context, s RunState) error
}

// IntentSink receives the widget's outbound side panel toggles.
type IntentSink interface {
	ToggleSidePanel(sessionID string)
}

// MultiSink fans one intent out to several sinks.
func MultiSink(sinks ...IntentSink) IntentSink {
	return multiSink(sinks)
}

type multiSink []IntentSink

func (m multiSink) ToggleSidePanel(sessionID string) {
	for _, s := range m {
		s.ToggleSidePanel(sessionID)
	}
}

// Relay translates between the page's message channel and the host. It owns
// the session's RunState: every accepted broadcast reduces the state and
// re-renders the badge synchronously, so the badge always reflects the most
// recent mutation. Messages from unknown sources, unknown types, or with a
// broken shape are dropped without any state change.
type Relay struct {
	sessionID string
	renderer  BadgeRenderer
	sink      IntentSink

	mu    sync.Mutex
	state RunState
}

// NewRelay starts with the inactive initial state.
func NewRelay(sessionID string, renderer BadgeRenderer, sink IntentSink) *Relay {
	return &Relay{
		sessionID: sessionID,
		renderer:  renderer,
		sink:      sink,
		state:     NewRunState(),
	}
}

// Reset drops the mirrored state back to the initial one. Called on
// navigation: run state lives only for one page's lifetime.
func (r *Relay) Reset() {
	r.mu.Lock()
	r.state = NewRunState()
	r.mu.Unlock()
}

// State returns the current mirrored run state.
func (r *Relay) State() RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// HandleMessage dispatches one raw channel message. Broadcast messages
// mutate the mirrored state; widget intents are forwarded to the sink;
// everything else is ignored.
func (r *Relay) HandleMessage(ctx context.Context, raw json.RawMessage) {
	if b, ok := ParseBroadcast(raw); ok {
		r.mu.Lock()
		r.state = Reduce(r.state, b)
		next := r.state
		r.mu.Unlock()
		if r.renderer != nil {
			// Render failure means the page went away; the state stays
			// consistent for the next page.
			_ = r.renderer.RenderBadge(ctx, next)
		}
		return
	}

	if _, ok := ParseIntent(raw); ok {
		if r.sink != nil {
			r.sink.ToggleSidePanel(r.sessionID)
		}
		return
	}
}
