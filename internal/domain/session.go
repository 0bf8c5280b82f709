package domain

import (
	"context"
	"crypto/rand"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
)

// SessionState represents the lifecycle state of an inspection session
type SessionState string

const (
	StateOpen      SessionState = "OPEN"
	StateFinalized SessionState = "FINALIZED"
)

// MaxQuestions is the hard upper bound on questions per session.
const MaxQuestions = 200

const sessionIDBytes = 16

// Session represents one in-progress inspection run
type Session struct {
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	Questions []string     `json:"questions"`
	OwnerCode string       `json:"owner_code,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	State     SessionState `json:"state"`
	// ClaimedAt is set while a finalize holds the session.
	ClaimedAt *time.Time `json:"claimed_at,omitempty"`
	// ClaimToken identifies the claim that produced this snapshot.
	ClaimToken string `json:"-"`
}

// Clone returns a deep copy so stores never share slices with callers
func (s *Session) Clone() *Session {
	clone := *s
	clone.Questions = slices.Clone(s.Questions)
	if s.ClaimedAt != nil {
		claimedAt := *s.ClaimedAt
		clone.ClaimedAt = &claimedAt
	}
	return &clone
}

// View returns the public summary of the session
func (s *Session) View() SessionView {
	return SessionView{
		ID:            s.ID,
		Title:         s.Title,
		QuestionCount: len(s.Questions),
		State:         s.State,
		CreatedAt:     s.CreatedAt,
	}
}

// SessionView is the read-only summary served to viewers. It never carries the owner code.
type SessionView struct {
	ID            string       `json:"sessionId"`
	Title         string       `json:"title"`
	QuestionCount int          `json:"questionCount"`
	State         SessionState `json:"state"`
	CreatedAt     time.Time    `json:"createdAt"`
}

// CreateSessionInput represents session creation data
type CreateSessionInput struct {
	Title     string   `json:"title" validate:"required,notblank,max=500"`
	Questions []string `json:"questions" validate:"required,min=1,max=200,dive,max=2000"`
}

// CreateSessionResult is returned to the client after creation
type CreateSessionResult struct {
	SessionID string `json:"sessionId"`
	PublicURL string `json:"publicUrl"`
}

// FinalizeResult is returned to the client after a successful finalize
type FinalizeResult struct {
	PDFURL   string `json:"pdfUrl"`
	FileName string `json:"fileName"`
}

// SessionStore defines the interface for session persistence.
// Claim is the only way to start a finalize: it atomically marks the session
// so that concurrent finalizers observe ErrNotFound.
type SessionStore interface {
	Create(ctx context.Context, session *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Claim(ctx context.Context, id string, lease time.Duration) (*Session, error)
	// Release drops the claim only while claimToken still holds it.
	Release(ctx context.Context, id, claimToken string) error
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

// SessionPurger is implemented by stores that need an external janitor to enforce retention
type SessionPurger interface {
	Purge(ctx context.Context, createdBefore time.Time) (int64, error)
}

// NewClaimToken returns a unique token for one finalize claim
func NewClaimToken() string {
	return uuid.NewString()
}

// NewSessionID returns an unguessable, URL-safe session identifier
func NewSessionID() (string, error) {
	buf := make([]byte, sessionIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base58.Encode(buf), nil
}
