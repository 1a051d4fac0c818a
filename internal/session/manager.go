package session

import (
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/hangout/internal/apperror"
	"github.com/sakif/hangout/internal/model"
)

// Manager owns every live session.
//
// A single mutex guards the map and the sessions in it. Update runs the
// caller's function under that lock, so a session is never observed half
// modified.
type Manager struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	idleTimeout time.Duration // 0 disables expiry
	now         func() time.Time
}

// NewManager creates a Manager. Sessions untouched for idleTimeout expire.
func NewManager(idleTimeout time.Duration) *Manager {
	return &Manager{
		sessions:    make(map[string]*Session),
		idleTimeout: idleTimeout,
		now:         time.Now,
	}
}

// Create starts a session for u and returns a copy of it.
func (m *Manager) Create(u *model.User) *Session {
	now := m.now()
	s := &Session{
		ID:         xid.New().String(),
		UserID:     u.ID,
		Email:      u.Email,
		Name:       u.Name,
		Whiteboard: []Stroke{},
		Volume:     DefaultVolume,
		CreatedAt:  now,
		LastActive: now,
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	return s.clone()
}

// Get returns a copy of the session and marks it active.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	s.LastActive = m.now()
	return s.clone(), nil
}

// Update applies fn to the live session under the manager lock. If fn
// returns an error the session is left as it was.
func (m *Manager) Update(id string, fn func(*Session) error) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.lookup(id)
	if err != nil {
		return nil, err
	}

	draft := s.clone()
	if err := fn(draft); err != nil {
		return nil, err
	}
	draft.ID, draft.UserID = s.ID, s.UserID // identity is not editable
	draft.LastActive = m.now()
	m.sessions[id] = draft

	return draft.clone(), nil
}

// Destroy removes the session. Unknown ids are ignored.
func (m *Manager) Destroy(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// ForUser returns copies of every live session belonging to userID.
func (m *Manager) ForUser(userID int64) []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Session
	for _, s := range m.sessions {
		if s.UserID == userID && !m.expired(s) {
			out = append(out, s.clone())
		}
	}
	return out
}

// Sweep drops expired sessions and returns how many were removed.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, s := range m.sessions {
		if m.expired(s) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Len is the number of stored sessions, expired or not.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// lookup must be called with mu held.
func (m *Manager) lookup(id string) (*Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, apperror.NotFound("session", id)
	}
	if m.expired(s) {
		delete(m.sessions, id)
		return nil, apperror.NotFound("session", id)
	}
	return s, nil
}

func (m *Manager) expired(s *Session) bool {
	return m.idleTimeout > 0 && m.now().Sub(s.LastActive) > m.idleTimeout
}
