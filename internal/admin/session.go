package admin

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"labdesk/internal/gateway"
)

// Session is one signed-in administrator. It owns the list and edit surfaces
// of that browser session.
type Session struct {
	ID           string
	Credential   gateway.Session
	Identity     gateway.Identity
	CreatedAt    time.Time
	LastActiveAt time.Time

	List *ListSurface
	Edit *EditSurface
}

// Touch updates the last activity timestamp.
func (s *Session) Touch() {
	s.LastActiveAt = time.Now()
}

// IsExpired returns true if the session has exceeded the given max age.
func (s *Session) IsExpired(maxAge time.Duration) bool {
	return maxAge > 0 && time.Since(s.CreatedAt) > maxAge
}

// IsIdle returns true if the session has been idle longer than the timeout.
func (s *Session) IsIdle(timeout time.Duration) bool {
	return timeout > 0 && time.Since(s.LastActiveAt) > timeout
}

// close stops any in-flight work of the surfaces.
func (s *Session) close() {
	s.List.Stop()
	s.Edit.Close()
}

// SessionManager handles session creation, lookup, and cleanup.
type SessionManager struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	maxAge      time.Duration
	idleTimeout time.Duration
	surfaces    func(gateway.Session) (*ListSurface, *EditSurface)
}

// NewSessionManager creates a session manager with the given timeouts.
// surfaces builds the per-session surfaces bound to the session credential.
func NewSessionManager(maxAge, idleTimeout time.Duration, surfaces func(gateway.Session) (*ListSurface, *EditSurface)) *SessionManager {
	return &SessionManager{
		sessions:    make(map[string]*Session),
		maxAge:      maxAge,
		idleTimeout: idleTimeout,
		surfaces:    surfaces,
	}
}

// Create registers a session for an authenticated administrator.
func (m *SessionManager) Create(cred gateway.Session, who gateway.Identity) *Session {
	now := time.Now()
	s := &Session{
		ID:           uuid.New().String(),
		Credential:   cred,
		Identity:     who,
		CreatedAt:    now,
		LastActiveAt: now,
	}
	s.List, s.Edit = m.surfaces(cred)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// Get retrieves a session by ID and marks it active. Returns nil if not found,
// expired or idle.
func (m *SessionManager) Get(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil
	}
	if s.IsExpired(m.maxAge) || s.IsIdle(m.idleTimeout) {
		delete(m.sessions, id)
		s.close()
		return nil
	}
	s.Touch()
	return s
}

// Remove deletes a session.
func (m *SessionManager) Remove(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		s.close()
	}
}

// Len returns the number of live sessions.
func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Cleanup removes all expired and idle sessions.
func (m *SessionManager) Cleanup() {
	var stale []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if s.IsExpired(m.maxAge) || s.IsIdle(m.idleTimeout) {
			delete(m.sessions, id)
			stale = append(stale, s)
		}
	}
	m.mu.Unlock()
	for _, s := range stale {
		s.close()
	}
}

// Sweep runs Cleanup every interval until ctx is done.
func (m *SessionManager) Sweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Cleanup()
		}
	}
}
