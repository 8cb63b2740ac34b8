// Package history keeps chat transports' questionnaire sessions in memory.
// The engine itself is stateless; a session is just the caller-held
// conversation state plus UI scratch data.
package history

import (
	"sync"

	"watchwise/internal/conversation"
	"watchwise/internal/synth"
)

// Session is one user's in-progress questionnaire.
type Session struct {
	State conversation.State
	// Selected holds checkbox options toggled on for the current question.
	Selected []string
	// Batch is the last set of cards sent, keyed by recommendation id.
	Batch map[string]synth.Recommendation
}

// Toggle flips option in Selected and reports whether it is now selected.
func (s *Session) Toggle(option string) bool {
	for i, o := range s.Selected {
		if o == option {
			s.Selected = append(s.Selected[:i], s.Selected[i+1:]...)
			return false
		}
	}
	s.Selected = append(s.Selected, option)
	return true
}

func (s *Session) IsSelected(option string) bool {
	for _, o := range s.Selected {
		if o == option {
			return true
		}
	}
	return false
}

type Manager struct {
	mu       sync.RWMutex
	sessions map[int64]Session
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[int64]Session)}
}

// Get returns the user's session and whether one exists.
func (m *Manager) Get(userID int64) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[userID]
	if ok {
		s.Selected = append([]string(nil), s.Selected...)
	}
	return s, ok
}

func (m *Manager) Put(userID int64, s Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[userID] = s
}

func (m *Manager) Reset(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
}

// Len is the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
