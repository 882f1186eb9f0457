package overlay

import (
	"context"
	"encoding/json"
	"testing"
)

type fakeRenderer struct {
	renders []RunState
}

func (f *fakeRenderer) RenderBadge(_ context.Context, s RunState) error {
	f.renders = append(f.renders, s)
	return nil
}

type fakeSink struct {
	toggles []string
}

func (f *fakeSink) ToggleSidePanel(sessionID string) {
	f.toggles = append(f.toggles, sessionID)
}

func TestRelayBroadcastUpdatesAndRenders(t *testing.T) {
	renderer := &fakeRenderer{}
	sink := &fakeSink{}
	relay := NewRelay("sess-1", renderer, sink)
	ctx := context.Background()

	relay.HandleMessage(ctx, json.RawMessage(`{"source":"agent","type":"ACTION","step":3,"action":{"type":"CLICK"}}`))

	state := relay.State()
	if state.CurrentStep != 3 || !state.Active {
		t.Errorf("unexpected state after action: %+v", state)
	}
	if len(renderer.renders) != 1 {
		t.Fatalf("expected exactly one render, got %d", len(renderer.renders))
	}
	if !BadgeVisible(renderer.renders[0]) {
		t.Error("badge must be visible for step 3 while active")
	}
	if len(sink.toggles) != 0 {
		t.Error("broadcast must not trigger intents")
	}
}

func TestRelayCompletionHidesBadge(t *testing.T) {
	renderer := &fakeRenderer{}
	relay := NewRelay("sess-1", renderer, nil)
	ctx := context.Background()

	relay.HandleMessage(ctx, json.RawMessage(`{"source":"agent","type":"ACTION","step":5,"action":{"type":"CLICK"}}`))
	relay.HandleMessage(ctx, json.RawMessage(`{"source":"agent","type":"STATE_UPDATE","state":{"progress":{"phase":"completed","estimatedProgress":1}}}`))

	state := relay.State()
	if state.Active {
		t.Error("expected inactive after completion")
	}
	last := renderer.renders[len(renderer.renders)-1]
	if BadgeVisible(last) {
		t.Error("badge must be hidden after completion regardless of prior step")
	}
}

func TestRelayIgnoresForeignTraffic(t *testing.T) {
	renderer := &fakeRenderer{}
	sink := &fakeSink{}
	relay := NewRelay("sess-1", renderer, sink)
	ctx := context.Background()

	relay.HandleMessage(ctx, json.RawMessage(`{"source":"other-extension","type":"ACTION","step":9,"action":{"type":"CLICK"}}`))
	relay.HandleMessage(ctx, json.RawMessage(`{"foo":"bar"}`))
	relay.HandleMessage(ctx, json.RawMessage(`garbage`))

	if got := relay.State(); got != NewRunState() {
		t.Errorf("state changed by foreign traffic: %+v", got)
	}
	if len(renderer.renders) != 0 {
		t.Error("foreign traffic must not trigger renders")
	}
	if len(sink.toggles) != 0 {
		t.Error("foreign traffic must not trigger intents")
	}
}

func TestRelayForwardsToggleIntent(t *testing.T) {
	sink := &fakeSink{}
	relay := NewRelay("sess-42", nil, sink)

	relay.HandleMessage(context.Background(), json.RawMessage(`{"source":"agent-mini-overlay","type":"TOGGLE_SIDE_PANEL"}`))

	if len(sink.toggles) != 1 || sink.toggles[0] != "sess-42" {
		t.Errorf("expected one toggle for sess-42, got %v", sink.toggles)
	}
}

func TestMultiSinkFansOut(t *testing.T) {
	a, b := &fakeSink{}, &fakeSink{}
	MultiSink(a, b).ToggleSidePanel("sess-1")
	if len(a.toggles) != 1 || len(b.toggles) != 1 {
		t.Errorf("expected both sinks toggled, got %d and %d", len(a.toggles), len(b.toggles))
	}
}

func TestBlockedURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://example.com/page", false},
		{"http://localhost:3000", false},
		{"chrome://settings", true},
		{"chrome-extension://abcdef/popup.html", true},
		{"devtools://devtools/bundled/inspector.html", true},
		{"about:blank", true},
		{"edge://flags", true},
		{"view-source:https://example.com", true},
		{"data:text/html,<h1>hi</h1>", true},
		{"blob:https://example.com/uuid", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := BlockedURL(tt.url); got != tt.want {
				t.Errorf("BlockedURL(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}
