package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kyiku/tangram-back/internal/model"
)

// sessionEntry holds a session and its last access time for expiry checking.
type sessionEntry struct {
	Session  *Session
	LastSeen time.Time
}

// SessionStore manages puzzle sessions in memory.
type SessionStore struct {
	sessions map[string]*sessionEntry
	mu       sync.RWMutex
	expiry   time.Duration // 0 means no expiry
	cfg      Config
}

// NewSessionStore creates a new SessionStore with no expiry.
func NewSessionStore(cfg Config) *SessionStore {
	return NewSessionStoreWithExpiry(cfg, 0)
}

// NewSessionStoreWithExpiry creates a new SessionStore whose sessions
// expire after the given idle duration.
func NewSessionStoreWithExpiry(cfg Config, expiry time.Duration) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*sessionEntry),
		expiry:   expiry,
		cfg:      cfg,
	}
}

// Create starts a session on lvl for playerID and returns it with its ID.
func (s *SessionStore) Create(playerID string, lvl *model.Level) (*Session, string) {
	sessionID := uuid.New().String()
	sess := New(sessionID, playerID, lvl, s.cfg)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = &sessionEntry{
		Session:  sess,
		LastSeen: time.Now(),
	}

	return sess, sessionID
}

// Get retrieves a session by ID and refreshes its expiry.
// Returns nil and false if the session does not exist or has expired.
func (s *SessionStore) Get(sessionID string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.sessions[sessionID]
	if !exists {
		return nil, false
	}

	if s.expired(entry, time.Now()) {
		delete(s.sessions, sessionID)
		return nil, false
	}

	entry.LastSeen = time.Now()
	return entry.Session, true
}

// Delete removes a session by ID.
func (s *SessionStore) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Count returns the number of stored sessions.
func (s *SessionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep removes every expired session and returns how many were removed.
func (s *SessionStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, entry := range s.sessions {
		if s.expired(entry, now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

func (s *SessionStore) expired(entry *sessionEntry, now time.Time) bool {
	return s.expiry > 0 && now.Sub(entry.LastSeen) > s.expiry
}
