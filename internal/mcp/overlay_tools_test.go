package mcp

import (
	"context"
	"testing"
)

func TestOverlayBroadcastTool(t *testing.T) {
	tool := &OverlayBroadcastTool{}

	t.Run("name", func(t *testing.T) {
		if name := tool.Name(); name != "overlay-broadcast" {
			t.Errorf("expected name 'overlay-broadcast', got %q", name)
		}
	})

	t.Run("description", func(t *testing.T) {
		if desc := tool.Description(); desc == "" {
			t.Error("expected non-empty description")
		}
	})

	t.Run("schema requires message", func(t *testing.T) {
		schema := tool.InputSchema()
		required, _ := schema["required"].([]string)
		if len(required) != 1 || required[0] != "message" {
			t.Errorf("expected message to be required, got %v", required)
		}
	})

	t.Run("rejects missing message", func(t *testing.T) {
		if _, err := tool.Execute(context.Background(), map[string]interface{}{}); err == nil {
			t.Error("expected error for missing message")
		}
	})
}

func TestOverlayStatusTool(t *testing.T) {
	tool := &OverlayStatusTool{}

	t.Run("name", func(t *testing.T) {
		if name := tool.Name(); name != "overlay-status" {
			t.Errorf("expected name 'overlay-status', got %q", name)
		}
	})

	t.Run("rejects missing session_id", func(t *testing.T) {
		if _, err := tool.Execute(context.Background(), map[string]interface{}{}); err == nil {
			t.Error("expected error for missing session_id")
		}
	})
}

func TestIntentBufferQueueAndDrain(t *testing.T) {
	buf := NewIntentBuffer(0)

	buf.ToggleSidePanel("sess-1")
	buf.ToggleSidePanel("sess-2")

	intents := buf.Drain()
	if len(intents) != 2 {
		t.Fatalf("expected 2 intents, got %d", len(intents))
	}
	if intents[0].SessionID != "sess-1" || intents[1].SessionID != "sess-2" {
		t.Errorf("unexpected order: %+v", intents)
	}

	if got := buf.Drain(); len(got) != 0 {
		t.Errorf("expected empty buffer after drain, got %d", len(got))
	}
}

func TestIntentBufferBounded(t *testing.T) {
	buf := NewIntentBuffer(3)

	for i := 0; i < 5; i++ {
		buf.ToggleSidePanel("sess")
	}

	if got := len(buf.Drain()); got != 3 {
		t.Errorf("expected buffer capped at 3, got %d", got)
	}
}

func TestPollIntentsTool(t *testing.T) {
	buf := NewIntentBuffer(0)
	tool := &PollIntentsTool{intents: buf}

	if name := tool.Name(); name != "poll-intents" {
		t.Errorf("expected name 'poll-intents', got %q", name)
	}

	buf.ToggleSidePanel("sess-1")
	result, err := tool.Execute(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	payload := result.(map[string]interface{})
	intents := payload["intents"].([]Intent)
	if len(intents) != 1 || intents[0].SessionID != "sess-1" {
		t.Errorf("unexpected intents: %+v", intents)
	}

	// Empty poll returns an empty slice, not null.
	result, err = tool.Execute(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := result.(map[string]interface{})["intents"].([]Intent); got == nil {
		t.Error("expected non-nil empty slice")
	}
}
