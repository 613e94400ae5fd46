package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is how long an untouched session is kept.
const DefaultTTL = 30 * time.Minute

// Manager keys sessions by an opaque ID stored in a cookie.
type Manager struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a Manager that expires idle sessions after ttl.
func NewManager(ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Get returns the session for id, creating a new one when id is unknown.
// The second result reports whether a new session was created.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if s, ok := m.sessions[id]; ok && id != "" {
		s.touch(now)
		return s, false
	}
	s := New(uuid.NewString())
	s.touch(now)
	m.sessions[s.ID] = s
	return s, true
}

// Len reports how many sessions are tracked.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep removes sessions idle for longer than the TTL. Sessions with an
// upload in flight are kept. It returns the number removed.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for id, s := range m.sessions {
		idle, busy := s.idleSince(now)
		if busy || idle < m.ttl {
			continue
		}
		delete(m.sessions, id)
		removed++
	}
	return removed
}
