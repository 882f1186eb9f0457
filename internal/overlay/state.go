package overlay

// Phase is the coarse lifecycle stage of the agent's run as reported by
// STATE_UPDATE broadcasts.
type Phase string

const (
	PhaseNavigating Phase = "navigating"
	PhaseRunning    Phase = "running"
	PhaseCompleted  Phase = "completed"
)

// RunState mirrors the agent's broadcast state for one page. It is derived,
// ephemeral, and mutated exclusively through Reduce; nothing here is ever
// persisted.
type RunState struct {
	Phase             Phase   `json:"phase"`
	EstimatedProgress float64 `json:"estimated_progress"`
	CurrentStep       int     `json:"current_step"`
	Active            bool    `json:"active"`
}

// NewRunState is the state before any broadcast arrives: not active, no
// steps taken.
func NewRunState() RunState {
	return RunState{Phase: PhaseNavigating}
}

// Reduce produces the next run state from the previous one and an inbound
// broadcast. Pure: same inputs, same output.
func Reduce(prev RunState, b Broadcast) RunState {
	next := prev
	switch m := b.(type) {
	case ActionTaken:
		if m.Step != nil {
			next.CurrentStep = *m.Step
		}
		next.Active = m.ActionType != ActionDone

	case StateUpdated:
		next.Phase = m.Phase
		next.EstimatedProgress = m.EstimatedProgress
		next.Active = m.Phase != PhaseCompleted
	}
	return next
}

// BadgeVisible reports whether the step badge should be shown. This is the
// single source of truth for badge visibility.
func BadgeVisible(s RunState) bool {
	return s.Active && s.CurrentStep > 0
}
