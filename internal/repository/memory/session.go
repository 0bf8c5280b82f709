package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Rrens/inspection-service/internal/domain"
	"github.com/jonboulle/clockwork"
)

// SessionStore keeps sessions in process memory.
// Records are cloned on the way in and out so callers never share state with the map.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
	clock    clockwork.Clock
}

// Option configures a SessionStore
type Option func(*SessionStore)

// WithClock overrides the clock used for claim leases
func WithClock(clock clockwork.Clock) Option {
	return func(s *SessionStore) {
		s.clock = clock
	}
}

// NewSessionStore creates an empty in-memory session store
func NewSessionStore(opts ...Option) *SessionStore {
	s := &SessionStore{
		sessions: make(map[string]*domain.Session),
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stores a new session
func (s *SessionStore) Create(ctx context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.ID]; ok {
		return domain.ErrSessionExists
	}
	s.sessions[session.ID] = session.Clone()
	return nil
}

// Get retrieves a session by ID
func (s *SessionStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	return session.Clone(), nil
}

// Claim marks the session as held by a finalizer. A live claim hides the
// session from other finalizers until it is released or the lease expires.
func (s *SessionStore) Claim(ctx context.Context, id string, lease time.Duration) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}

	now := s.clock.Now()
	if session.ClaimedAt != nil && now.Sub(*session.ClaimedAt) < lease {
		return nil, fmt.Errorf("session %s already claimed: %w", id, domain.ErrNotFound)
	}

	session.ClaimedAt = &now
	session.ClaimToken = domain.NewClaimToken()
	return session.Clone(), nil
}

// Release clears the claim so the session can be finalized again.
// A claim that has since been taken over is left in place.
func (s *SessionStore) Release(ctx context.Context, id, claimToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session, ok := s.sessions[id]; ok && session.ClaimToken == claimToken {
		session.ClaimedAt = nil
		session.ClaimToken = ""
	}
	return nil
}

// Delete removes a session. Deleting a missing session is not an error.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}

// Purge removes sessions created before the cutoff
func (s *SessionStore) Purge(ctx context.Context, createdBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, session := range s.sessions {
		if session.CreatedAt.Before(createdBefore) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

// Ping always succeeds
func (s *SessionStore) Ping(ctx context.Context) error {
	return nil
}

// Len returns the number of stored sessions
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
