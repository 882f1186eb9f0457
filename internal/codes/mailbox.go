// Package codes is an in-memory relay for verification codes: an external
// channel (mail hook, SMS bridge) publishes a code, and the agent consumes it
// exactly once while filling a login form.
package codes

import (
	"sync"
	"time"
)

// DefaultTTL bounds how long an unconsumed code stays deliverable.
const DefaultTTL = 5 * time.Minute

type entry struct {
	code      string
	expiresAt time.Time
}

// Mailbox holds at most one pending code per account. Publishing replaces
// any previous code; consuming removes it.
type Mailbox struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	pending map[string]entry
}

// NewMailbox creates a mailbox with the given code lifetime; ttl <= 0 uses
// DefaultTTL.
func NewMailbox(ttl time.Duration) *Mailbox {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Mailbox{
		ttl:     ttl,
		now:     time.Now,
		pending: make(map[string]entry),
	}
}

// Publish stores a code for the account, replacing any pending one and
// restarting the expiry clock.
func (m *Mailbox) Publish(account, code string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pending[account] = entry{
		code:      code,
		expiresAt: m.now().Add(m.ttl),
	}
}

// Consume returns the pending code for the account and removes it. Returns
// false when nothing is pending or the code has expired.
func (m *Mailbox) Consume(account string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.pending[account]
	if !ok {
		return "", false
	}
	delete(m.pending, account)
	if m.now().After(e.expiresAt) {
		return "", false
	}
	return e.code, true
}

// Peek reports whether a live code is pending without consuming it.
func (m *Mailbox) Peek(account string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.pending[account]
	return ok && !m.now().After(e.expiresAt)
}

// Sweep drops expired entries. Called periodically by the host so
// abandoned codes do not accumulate.
func (m *Mailbox) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	now := m.now()
	for account, e := range m.pending {
		if now.After(e.expiresAt) {
			delete(m.pending, account)
			removed++
		}
	}
	return removed
}
