package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"agent-overlay-server/internal/browser"
	"agent-overlay-server/internal/overlay"
)

// OverlayBroadcastTool delivers an agent status message to a session's widget.
type OverlayBroadcastTool struct {
	sessions *browser.SessionManager
}

func (t *OverlayBroadcastTool) Name() string { return "overlay-broadcast" }
func (t *OverlayBroadcastTool) Description() string {
	return `Send an agent status broadcast to the overlay widget.

MESSAGE SHAPES (message must include source "agent"):
- {"source":"agent","type":"ACTION","step":N,"action":{"type":"CLICK"}}
  Updates the step badge. action.type "DONE" deactivates the run.
- {"source":"agent","type":"STATE_UPDATE","state":{"progress":{"phase":"running","estimatedProgress":0.5}}}
  Updates phase/progress. phase "completed" deactivates the run.

Messages with a different source, an unknown type, or a broken shape are
silently dropped; the widget state never changes on malformed input.

ADDRESSING:
- session_id: deliver to one session
- omit session_id: deliver to every session with an overlay

Returns: {delivered: N, state} where state is the session's run state after
the broadcast (single-session form only).`
}
func (t *OverlayBroadcastTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"session_id": map[string]interface{}{
				"type":        "string",
				"description": "Target session; omit to broadcast to all sessions",
			},
			"message": map[string]interface{}{
				"type":        "object",
				"description": "Raw broadcast message object",
			},
		},
		"required": []string{"message"},
	}
}
func (t *OverlayBroadcastTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	msg, ok := args["message"]
	if !ok {
		return nil, fmt.Errorf("message is required")
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}

	sessionID := getStringArg(args, "session_id")
	if sessionID == "" {
		delivered := t.sessions.DeliverAll(ctx, raw)
		return map[string]interface{}{"delivered": delivered}, nil
	}

	if err := t.sessions.Deliver(ctx, sessionID, raw); err != nil {
		return nil, err
	}

	result := map[string]interface{}{"delivered": 1}
	if state, _, ok := t.sessions.OverlayState(sessionID); ok {
		result["state"] = state
	}
	return result, nil
}

// OverlayStatusTool reports a session's mirrored run state and widget position.
type OverlayStatusTool struct {
	sessions *browser.SessionManager
}

func (t *OverlayStatusTool) Name() string { return "overlay-status" }
func (t *OverlayStatusTool) Description() string {
	return `Inspect the overlay widget on a session.

Returns: {state: {phase, estimatedProgress, currentStep, active},
          badge_visible, position: {x, y}}

badge_visible is true only while the run is active and a step has been
reported. Position is the widget's current top-left corner in viewport
coordinates.`
}
func (t *OverlayStatusTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"session_id": map[string]interface{}{
				"type":        "string",
				"description": "Session to inspect",
			},
		},
		"required": []string{"session_id"},
	}
}
func (t *OverlayStatusTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	sessionID := getStringArg(args, "session_id")
	if sessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}

	state, pos, ok := t.sessions.OverlayState(sessionID)
	if !ok {
		return nil, fmt.Errorf("session %s has no overlay attached", sessionID)
	}

	return map[string]interface{}{
		"state":         state,
		"badge_visible": overlay.BadgeVisible(state),
		"position":      pos,
	}, nil
}

// Intent is one widget intent queued for agent consumption.
type Intent struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	At        time.Time `json:"at"`
}

// IntentBuffer queues widget intents until an agent polls them. It implements
// overlay.IntentSink. The buffer is bounded; when full, the oldest intents
// fall off.
type IntentBuffer struct {
	mu      sync.Mutex
	intents []Intent
	max     int
}

// NewIntentBuffer creates a buffer holding at most max intents (<=0 means 256).
func NewIntentBuffer(max int) *IntentBuffer {
	if max <= 0 {
		max = 256
	}
	return &IntentBuffer{max: max}
}

// ToggleSidePanel queues a toggle intent.
func (b *IntentBuffer) ToggleSidePanel(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.intents = append(b.intents, Intent{
		Type:      overlay.TypeToggleSidePanel,
		SessionID: sessionID,
		At:        time.Now(),
	})
	if len(b.intents) > b.max {
		b.intents = b.intents[len(b.intents)-b.max:]
	}
}

// Drain returns all queued intents and clears the buffer.
func (b *IntentBuffer) Drain() []Intent {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.intents
	b.intents = nil
	return out
}

// PollIntentsTool hands queued widget intents to the agent.
type PollIntentsTool struct {
	intents *IntentBuffer
}

func (t *PollIntentsTool) Name() string { return "poll-intents" }
func (t *PollIntentsTool) Description() string {
	return `Collect widget intents emitted since the last poll.

The overlay widget emits a TOGGLE_SIDE_PANEL intent on every click. Intents
queue up in the host until polled; polling drains the queue.

Returns: {intents: [{type, session_id, at}]}`
}
func (t *PollIntentsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *PollIntentsTool) Execute(_ context.Context, _ map[string]interface{}) (interface{}, error) {
	intents := t.intents.Drain()
	if intents == nil {
		intents = []Intent{}
	}
	return map[string]interface{}{"intents": intents}, nil
}
