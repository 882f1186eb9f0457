package overlay

import "encoding/json"

// Source tags distinguish overlay traffic from unrelated noise on the page's
// message channel. Everything without a recognized tag is dropped.
const (
	// SourceAgent marks inbound broadcasts from the automation agent.
	SourceAgent = "agent"
	// SourceWidget marks outbound messages emitted by the injected widget.
	SourceWidget = "agent-mini-overlay"
)

// Message type discriminators on the wire.
const (
	TypeAction          = "ACTION"
	TypeStateUpdate     = "STATE_UPDATE"
	TypeToggleSidePanel = "TOGGLE_SIDE_PANEL"
)

// ActionDone is the terminal action kind: the agent has finished its run.
const ActionDone = "DONE"

// envelope is the raw wire shape shared by all channel messages. Fields
// beyond the discriminators are populated per message kind.
type envelope struct {
	Source string          `json:"source"`
	Type   string          `json:"type"`
	Step   *int            `json:"step,omitempty"`
	Action *actionBody     `json:"action,omitempty"`
	State  json.RawMessage `json:"state,omitempty"`
}

type actionBody struct {
	Type string `json:"type"`
}

type stateBody struct {
	Progress *progressBody `json:"progress"`
}

type progressBody struct {
	Phase             string   `json:"phase"`
	EstimatedProgress *float64 `json:"estimatedProgress"`
}

// Broadcast is an inbound agent message after decoding, keyed by its wire
// type. Unknown or malformed payloads never become a Broadcast; they are
// ignored at the parse step.
type Broadcast interface {
	broadcast()
}

// ActionTaken reports a single agent action. Step is nil when the payload
// carried no step number.
type ActionTaken struct {
	Step       *int
	ActionType string
}

// StateUpdated carries the agent's coarse run progress.
type StateUpdated struct {
	Phase             Phase
	EstimatedProgress float64
}

// ToggleIntent is the widget's outbound intent to toggle the companion side
// panel. Fire-and-forget: no acknowledgment, no retry.
type ToggleIntent struct{}

func (ActionTaken) broadcast()  {}
func (StateUpdated) broadcast() {}

// ParseBroadcast decodes an inbound agent broadcast. The second return is
// false when the message is not from the agent, has an unknown type, or is
// missing its required shape; callers drop such messages silently.
func ParseBroadcast(raw json.RawMessage) (Broadcast, bool) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, false
	}
	if env.Source != SourceAgent {
		return nil, false
	}

	switch env.Type {
	case TypeAction:
		if env.Action == nil || env.Action.Type == "" {
			return nil, false
		}
		return ActionTaken{Step: env.Step, ActionType: env.Action.Type}, true

	case TypeStateUpdate:
		if len(env.State) == 0 {
			return nil, false
		}
		var body stateBody
		if err := json.Unmarshal(env.State, &body); err != nil {
			return nil, false
		}
		update := StateUpdated{Phase: PhaseNavigating, EstimatedProgress: 0}
		if body.Progress != nil {
			if body.Progress.Phase != "" {
				update.Phase = Phase(body.Progress.Phase)
			}
			if body.Progress.EstimatedProgress != nil {
				update.EstimatedProgress = *body.Progress.EstimatedProgress
			}
		}
		return update, true

	default:
		return nil, false
	}
}

// ParseIntent decodes an outbound widget message. Only the side panel toggle
// is recognized today.
func ParseIntent(raw json.RawMessage) (ToggleIntent, bool) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ToggleIntent{}, false
	}
	if env.Source != SourceWidget || env.Type != TypeToggleSidePanel {
		return ToggleIntent{}, false
	}
	return ToggleIntent{}, true
}
