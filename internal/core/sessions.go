package core

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"intake-chat/internal/logger"
	"intake-chat/pkg"
)

// Session is one patient's intake conversation.
type Session struct {
	ID        string
	CreatedAt time.Time
	State     *State

	mu              sync.Mutex
	lastSeen        time.Time
	ready           bool
	patientMessages int
}

// Touch records activity on the session.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// MarkReady flags the record as ready for insertion. It returns true only
// the first time.
func (s *Session) MarkReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return false
	}
	s.ready = true
	return true
}

func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// PatientMessages returns how many patient messages were sent so far.
func (s *Session) PatientMessages() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.patientMessages
}

func (s *Session) countPatientMessage() {
	s.mu.Lock()
	s.patientMessages++
	s.mu.Unlock()
}

// Reset clears the intake state and the session counters.
func (s *Session) Reset() {
	s.State.Reset()
	s.mu.Lock()
	s.ready = false
	s.patientMessages = 0
	s.mu.Unlock()
}

// View builds the JSON representation of the session.
func (s *Session) View() pkg.SessionView {
	snap := s.State.Snapshot()
	return pkg.SessionView{
		ID:            s.ID,
		CreatedAt:     s.CreatedAt,
		Record:        snap.Record,
		Completed:     snap.Completed,
		CurrentPrompt: snap.Turn,
		History:       s.State.History(),
		Progress:      s.State.Progress(),
		ReadyToInsert: s.Ready(),
	}
}

// SessionStore keeps intake sessions in memory. Sessions idle for longer
// than the TTL are removed by Sweep; a zero TTL keeps them forever.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
}

func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create starts a new empty session.
func (st *SessionStore) Create() *Session {
	now := st.now()
	sess := &Session{
		ID:        uuid.New().String(),
		CreatedAt: now.UTC(),
		State:     NewState(),
		lastSeen:  now,
	}
	st.mu.Lock()
	st.sessions[sess.ID] = sess
	st.mu.Unlock()
	logger.ForSession(sess.ID).Info("Session created")
	return sess
}

// Get returns the session and marks it as active.
func (st *SessionStore) Get(id string) (*Session, error) {
	st.mu.RLock()
	sess, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.Touch(st.now())
	return sess, nil
}

// Delete ends a session. Unknown ids yield ErrSessionNotFound.
func (st *SessionStore) Delete(id string) error {
	st.mu.Lock()
	_, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	logger.ForSession(id).Info("Session deleted")
	return nil
}

func (st *SessionStore) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// List returns all sessions, newest first.
func (st *SessionStore) List() []*Session {
	st.mu.RLock()
	out := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, s)
	}
	st.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Sweep removes idle sessions and returns how many were removed.
func (st *SessionStore) Sweep() int {
	if st.ttl <= 0 {
		return 0
	}
	cutoff := st.now().Add(-st.ttl)
	st.mu.Lock()
	defer st.mu.Unlock()
	removed := 0
	for id, s := range st.sessions {
		if s.LastSeen().Before(cutoff) {
			delete(st.sessions, id)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is cancelled.
func (st *SessionStore) Run(ctx context.Context, interval time.Duration) {
	if st.ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := st.Sweep(); n > 0 {
				logger.WithField("removed", n).Info("Evicted idle sessions")
			}
		}
	}
}
