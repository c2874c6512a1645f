// Package store holds SessionStore implementations for process memory and Redis.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/savaki/socialauth/internal/models"
)

// Memory keeps sessions in process memory. Entries older than ttl are
// treated as missing. Safe for concurrent use.
type Memory struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]memoryEntry
	now      func() time.Time
}

type memoryEntry struct {
	session   models.Session
	expiresAt time.Time
}

// NewMemory returns an empty store. A ttl <= 0 keeps sessions until deleted.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:      ttl,
		sessions: map[string]memoryEntry{},
		now:      time.Now,
	}
}

func (m *Memory) Save(_ context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := memoryEntry{session: copySession(session)}
	if m.ttl > 0 {
		entry.expiresAt = m.now().Add(m.ttl)
	}
	m.sessions[session.ID] = entry
	return nil
}

// Find returns a copy of the stored session, or nil, nil when absent or expired.
func (m *Memory) Find(_ context.Context, id string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	if !entry.expiresAt.IsZero() && m.now().After(entry.expiresAt) {
		delete(m.sessions, id)
		return nil, nil
	}

	session := copySession(&entry.session)
	return &session, nil
}

// copySession copies the session along with its profile
func copySession(s *models.Session) models.Session {
	c := *s
	if s.Profile != nil {
		profile := *s.Profile
		c.Profile = &profile
	}
	return c
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, id)
	return nil
}
