package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Rrens/inspection-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "apv:session:"
	claimKeyPrefix   = "apv:claim:"
)

// claimScript sets the claim marker only when the session exists and no live
// claim is held, and returns the session payload in the same round trip.
var claimScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return false
end
if not redis.call('SET', KEYS[2], ARGV[1], 'NX', 'PX', ARGV[2]) then
	return false
end
return redis.call('GET', KEYS[1])
`)

// releaseScript deletes the claim marker only while it still holds the caller's token
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// SessionStore keeps sessions as JSON values with a TTL.
// Redis expiry enforces retention, so no janitor is needed.
type SessionStore struct {
	client *Client
	ttl    time.Duration
}

// NewSessionStore creates a Redis-backed session store. A zero ttl keeps sessions until finalized.
func NewSessionStore(client *Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

func sessionKey(id string) string { return sessionKeyPrefix + id }
func claimKey(id string) string   { return claimKeyPrefix + id }

// Create stores a new session. SETNX guards against ID collisions.
func (s *SessionStore) Create(ctx context.Context, session *domain.Session) error {
	stored := session.Clone()
	stored.ClaimedAt = nil

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ok, err := s.client.rdb.SetNX(ctx, sessionKey(session.ID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	if !ok {
		return domain.ErrSessionExists
	}
	return nil
}

// Get retrieves a session by ID
func (s *SessionStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	data, err := s.client.rdb.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return decodeSession(data)
}

// Claim takes the finalize lease. The claim key expires with the lease.
func (s *SessionStore) Claim(ctx context.Context, id string, lease time.Duration) (*domain.Session, error) {
	now := time.Now().UTC()
	token := domain.NewClaimToken()
	leaseMillis := max(lease.Milliseconds(), 1)

	data, err := claimScript.Run(ctx, s.client.rdb,
		[]string{sessionKey(id), claimKey(id)},
		token, leaseMillis,
	).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("session %s not available: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to claim session: %w", err)
	}

	session, err := decodeSession([]byte(data))
	if err != nil {
		return nil, err
	}
	session.ClaimedAt = &now
	session.ClaimToken = token
	return session, nil
}

// Release drops the claim marker if it still carries claimToken
func (s *SessionStore) Release(ctx context.Context, id, claimToken string) error {
	if err := releaseScript.Run(ctx, s.client.rdb, []string{claimKey(id)}, claimToken).Err(); err != nil {
		return fmt.Errorf("failed to release session: %w", err)
	}
	return nil
}

// Delete removes the session and its claim marker
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if err := s.client.rdb.Del(ctx, sessionKey(id), claimKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Ping verifies Redis connectivity
func (s *SessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func decodeSession(data []byte) (*domain.Session, error) {
	var session domain.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	session.State = domain.StateOpen
	return &session, nil
}
