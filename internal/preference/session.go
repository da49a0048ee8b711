package preference

import (
	"sync"

	"newsbot/internal/model"
)

// State is the step of the preference flow a session is in.
type State int

// Flow states.
const (
	StateSources State = iota
	StateCategories
	StateSaved
)

// Session is one user's in-progress edit. It is never persisted.
type Session struct {
	State      State
	Sources    map[string]bool
	Categories map[string]map[string]bool
	// Open is the source whose categories are shown in StateCategories.
	Open string

	mu sync.Mutex
}

func newSession() *Session {
	return &Session{
		State:      StateSources,
		Sources:    make(map[string]bool),
		Categories: make(map[string]map[string]bool),
	}
}

// SelectedSources returns the selected sources in catalog order.
func (s *Session) SelectedSources(catalog model.Catalog) []string {
	var out []string
	for _, src := range catalog {
		if s.Sources[src.Name] {
			out = append(out, src.Name)
		}
	}
	return out
}

// SelectedCategories returns the selected labels of a source in catalog order.
func (s *Session) SelectedCategories(src model.Source) []string {
	var out []string
	for _, c := range src.Categories {
		if s.Categories[src.Name][c] {
			out = append(out, c)
		}
	}
	return out
}

// Preferences converts the session into the shape the subscription store
// persists. Only selected sources and known labels are included.
func (s *Session) Preferences(catalog model.Catalog) model.Preferences {
	prefs := model.Preferences{Categories: make(map[string][]string)}
	for _, src := range catalog {
		if !s.Sources[src.Name] {
			continue
		}
		prefs.Sources = append(prefs.Sources, src.Name)
		prefs.Categories[src.Name] = s.SelectedCategories(src)
	}
	return prefs
}

func (s *Session) setCategory(source, category string, on bool) {
	set := s.Categories[source]
	if set == nil {
		set = make(map[string]bool)
		s.Categories[source] = set
	}
	if on {
		set[category] = true
		return
	}
	delete(set, category)
}

// Sessions is the keyed store of live sessions, one per user.
type Sessions struct {
	mu       sync.Mutex
	sessions map[int64]*Session
}

// NewSessions creates an empty session store.
func NewSessions() *Sessions {
	return &Sessions{sessions: make(map[int64]*Session)}
}

// Get returns the live session of a user.
func (s *Sessions) Get(userID int64) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	return sess, ok
}

// Put installs sess as the user's session, replacing any previous one.
func (s *Sessions) Put(userID int64, sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[userID] = sess
}

// PutIfAbsent installs sess unless the user already has a session, and
// returns whichever session is installed afterwards.
func (s *Sessions) PutIfAbsent(userID int64, sess *Session) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.sessions[userID]; ok {
		return cur
	}
	s.sessions[userID] = sess
	return sess
}

// Discard drops the user's session if it is still sess.
func (s *Sessions) Discard(userID int64, sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[userID] == sess {
		delete(s.sessions, userID)
	}
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
