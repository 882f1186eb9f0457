package overlay

import (
	"encoding/json"

	"github.com/go-rod/rod"
)

// DefaultStorageKey is the namespaced localStorage key holding the saved
// widget position, scoped to the page's storage partition.
const DefaultStorageKey = "agent-mini-overlay.position"

// PositionStore persists the widget position across page loads. Load returns
// false when nothing usable is saved; Save is best-effort and never reports
// failure. Storage problems must not break the host page, so neither call
// surfaces errors.
type PositionStore interface {
	Load() (Position, bool)
	Save(Position)
}

// pageStore keeps the position in the page's own localStorage, matching the
// per-origin persistence a user expects from an in-page widget. Pages that
// block storage access simply behave as if nothing was saved.
type pageStore struct {
	page *rod.Page
	key  string
}

// NewPageStore builds a store over the given page's localStorage.
func NewPageStore(page *rod.Page, key string) PositionStore {
	if key == "" {
		key = DefaultStorageKey
	}
	return &pageStore{page: page, key: key}
}

func (s *pageStore) Load() (Position, bool) {
	res, err := s.page.Evaluate(&rod.EvalOptions{
		JS: `(key) => {
			try {
				return localStorage.getItem(key);
			} catch (e) {
				return null;
			}
		}`,
		JSArgs:  []interface{}{s.key},
		ByValue: true,
	})
	if err != nil || res == nil || res.Value.Nil() {
		return Position{}, false
	}
	return decodePosition(res.Value.Str())
}

func (s *pageStore) Save(pos Position) {
	raw, err := json.Marshal(pos)
	if err != nil {
		return
	}
	_, _ = s.page.Evaluate(&rod.EvalOptions{
		JS: `(key, value) => {
			try {
				localStorage.setItem(key, value);
			} catch (e) {}
		}`,
		JSArgs:  []interface{}{s.key, string(raw)},
		ByValue: true,
	})
}

// decodePosition parses a stored position, rejecting payloads with missing
// or non-numeric fields.
func decodePosition(raw string) (Position, bool) {
	var fields struct {
		X *float64 `json:"x"`
		Y *float64 `json:"y"`
	}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return Position{}, false
	}
	if fields.X == nil || fields.Y == nil {
		return Position{}, false
	}
	return Position{X: *fields.X, Y: *fields.Y}, true
}

// MemoryStore is an in-process PositionStore used by tests and as a fallback
// when no page is attached yet.
type MemoryStore struct {
	pos   Position
	saved bool
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Load() (Position, bool) { return m.pos, m.saved }

func (m *MemoryStore) Save(pos Position) {
	m.pos = pos
	m.saved = true
}
