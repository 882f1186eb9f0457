package codes

import (
	"testing"
	"time"
)

func TestMailboxPublishConsume(t *testing.T) {
	m := NewMailbox(time.Minute)

	m.Publish("acct-1", "123456")

	code, ok := m.Consume("acct-1")
	if !ok || code != "123456" {
		t.Fatalf("Consume = (%q, %v), want (123456, true)", code, ok)
	}

	// Single consumption: a second read finds nothing.
	if _, ok := m.Consume("acct-1"); ok {
		t.Error("expected second Consume to fail")
	}
}

func TestMailboxReplacesPendingCode(t *testing.T) {
	m := NewMailbox(time.Minute)

	m.Publish("acct-1", "111111")
	m.Publish("acct-1", "222222")

	code, ok := m.Consume("acct-1")
	if !ok || code != "222222" {
		t.Errorf("Consume = (%q, %v), want newest code", code, ok)
	}
}

func TestMailboxExpiry(t *testing.T) {
	m := NewMailbox(time.Minute)
	now := time.Now()
	m.now = func() time.Time { return now }

	m.Publish("acct-1", "123456")
	now = now.Add(2 * time.Minute)

	if _, ok := m.Consume("acct-1"); ok {
		t.Error("expected expired code to be unconsumable")
	}
	// The expired entry was removed on the failed consume.
	if m.Peek("acct-1") {
		t.Error("expected nothing pending after expiry")
	}
}

func TestMailboxAccountIsolation(t *testing.T) {
	m := NewMailbox(time.Minute)

	m.Publish("acct-1", "111111")

	if _, ok := m.Consume("acct-2"); ok {
		t.Error("expected no code for other account")
	}
	if !m.Peek("acct-1") {
		t.Error("expected acct-1 code untouched")
	}
}

func TestMailboxSweep(t *testing.T) {
	m := NewMailbox(time.Minute)
	now := time.Now()
	m.now = func() time.Time { return now }

	m.Publish("stale", "111111")
	now = now.Add(30 * time.Second)
	m.Publish("fresh", "222222")
	now = now.Add(45 * time.Second) // stale is past TTL, fresh is not

	if removed := m.Sweep(); removed != 1 {
		t.Errorf("Sweep removed %d, want 1", removed)
	}
	if m.Peek("stale") {
		t.Error("stale code should be gone")
	}
	if !m.Peek("fresh") {
		t.Error("fresh code should remain")
	}
}
