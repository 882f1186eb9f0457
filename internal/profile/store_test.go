package profile

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "profiles.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "acct-1", "preferences", json.RawMessage(`{"theme":"dark"}`)); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := s.Get(ctx, "acct-1", "preferences")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var prefs struct {
		Theme string `json:"theme"`
	}
	if err := json.Unmarshal(got, &prefs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if prefs.Theme != "dark" {
		t.Errorf("theme = %q, want dark", prefs.Theme)
	}
}

func TestStoreOverwrite(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "acct-1", "k", json.RawMessage(`1`)); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, "acct-1", "k", json.RawMessage(`2`)); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, "acct-1", "k")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "2" {
		t.Errorf("value = %s, want 2", got)
	}
}

func TestStoreAccountIsolation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "acct-1", "k", json.RawMessage(`"mine"`)); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Get(ctx, "acct-2", "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for other account, got %v", err)
	}
}

func TestStoreDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "acct-1", "k", json.RawMessage(`true`)); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "acct-1", "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "acct-1", "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete(ctx, "acct-1", "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for double delete, got %v", err)
	}
}

func TestStoreList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, key := range []string{"b", "a", "c"} {
		if err := s.Set(ctx, "acct-1", key, json.RawMessage(`{}`)); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Set(ctx, "acct-2", "z", json.RawMessage(`{}`)); err != nil {
		t.Fatal(err)
	}

	entries, err := s.List(ctx, "acct-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, want := range []string{"a", "b", "c"} {
		if entries[i].Key != want {
			t.Errorf("entries[%d].Key = %q, want %q", i, entries[i].Key, want)
		}
	}
}

func TestStoreRejectsInvalidJSON(t *testing.T) {
	s := openTestStore(t)

	if err := s.Set(context.Background(), "acct-1", "k", json.RawMessage(`{broken`)); err == nil {
		t.Error("expected error for invalid JSON value")
	}
}
