package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Rrens/inspection-service/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

const (
	maxIDAttempts = 5

	defaultFinalizeTimeout = 30 * time.Second
	defaultClaimLease      = 2 * time.Minute
	cleanupTimeout         = 5 * time.Second
)

// Renderer produces the report bytes for a session
type Renderer interface {
	Render(ctx context.Context, session *domain.Session) ([]byte, error)
}

// SessionServiceConfig holds the tunables for SessionService
type SessionServiceConfig struct {
	PublicBaseURL   string
	FinalizeTimeout time.Duration
	ClaimLease      time.Duration
}

// SessionService owns the inspection session lifecycle: create, view, finalize
type SessionService struct {
	store     domain.SessionStore
	artifacts domain.ArtifactStore
	renderer  Renderer
	validate  *validator.Validate
	metrics   *Metrics
	clock     clockwork.Clock
	newID     func() (string, error)

	publicBaseURL   string
	finalizeTimeout time.Duration
	claimLease      time.Duration
}

// Option configures a SessionService
type Option func(*SessionService)

// WithClock sets the clock used for timestamps
func WithClock(clock clockwork.Clock) Option {
	return func(s *SessionService) {
		s.clock = clock
	}
}

// WithMetrics enables lifecycle metrics
func WithMetrics(m *Metrics) Option {
	return func(s *SessionService) {
		s.metrics = m
	}
}

// WithIDGenerator overrides session ID generation
func WithIDGenerator(fn func() (string, error)) Option {
	return func(s *SessionService) {
		s.newID = fn
	}
}

// NewSessionService creates a new session service
func NewSessionService(
	store domain.SessionStore,
	artifacts domain.ArtifactStore,
	renderer Renderer,
	cfg SessionServiceConfig,
	opts ...Option,
) *SessionService {
	s := &SessionService{
		store:           store,
		artifacts:       artifacts,
		renderer:        renderer,
		validate:        newValidator(),
		clock:           clockwork.NewRealClock(),
		newID:           domain.NewSessionID,
		publicBaseURL:   strings.TrimSuffix(cfg.PublicBaseURL, "/"),
		finalizeTimeout: cfg.FinalizeTimeout,
		claimLease:      cfg.ClaimLease,
	}
	if s.finalizeTimeout <= 0 {
		s.finalizeTimeout = defaultFinalizeTimeout
	}
	if s.claimLease <= 0 {
		s.claimLease = defaultClaimLease
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSession validates the input and stores a new OPEN session.
// The owner code is taken from the caller identity when one is present.
func (s *SessionService) CreateSession(ctx context.Context, input domain.CreateSessionInput, identity *domain.Identity) (*domain.CreateSessionResult, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, validationError(err)
	}

	session := &domain.Session{
		Title:     input.Title,
		Questions: append([]string(nil), input.Questions...),
		CreatedAt: s.clock.Now().UTC(),
		State:     domain.StateOpen,
	}
	if identity != nil {
		session.OwnerCode = identity.OwnerCode
	}

	for attempt := 1; ; attempt++ {
		id, err := s.newID()
		if err != nil {
			return nil, fmt.Errorf("%w: failed to generate session id: %v", domain.ErrStorage, err)
		}
		session.ID = id

		err = s.store.Create(ctx, session)
		if err == nil {
			break
		}
		if errors.Is(err, domain.ErrSessionExists) && attempt < maxIDAttempts {
			continue
		}
		return nil, fmt.Errorf("%w: failed to create session: %v", domain.ErrStorage, err)
	}

	s.metrics.sessionCreated()
	zerolog.Ctx(ctx).Info().
		Str("session_id", session.ID).
		Int("questions", len(session.Questions)).
		Bool("owner_code", session.OwnerCode != "").
		Msg("Session created")

	return &domain.CreateSessionResult{
		SessionID: session.ID,
		PublicURL: s.SessionURL(session.ID),
	}, nil
}

// GetSessionView returns the public summary of an open session
func (s *SessionService) GetSessionView(ctx context.Context, id string) (*domain.SessionView, error) {
	session, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: failed to get session: %v", domain.ErrStorage, err)
	}

	view := session.View()
	return &view, nil
}

// FinalizeSession renders the session into a report, publishes it and retires
// the session. It succeeds at most once per session: concurrent or repeated
// calls get ErrNotFound. On failure the session stays OPEN and can be retried.
func (s *SessionService) FinalizeSession(ctx context.Context, id string, identity *domain.Identity) (*domain.FinalizeResult, error) {
	logger := zerolog.Ctx(ctx).With().Str("session_id", id).Logger()
	if identity != nil {
		logger = logger.With().Str("subject", identity.Subject).Logger()
	}

	session, err := s.store.Claim(ctx, id, s.claimLease)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.metrics.finalizeFailed(err)
			return nil, err
		}
		err = fmt.Errorf("%w: failed to claim session: %v", domain.ErrStorage, err)
		s.metrics.finalizeFailed(err)
		return nil, err
	}

	started := s.clock.Now()

	artifact, err := s.publish(ctx, session)
	if err != nil {
		s.metrics.finalizeFailed(err)
		logger.Warn().Err(err).Str("kind", string(domain.KindOf(err))).Msg("Finalize failed, session left open")

		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()
		if rerr := s.store.Release(releaseCtx, id, session.ClaimToken); rerr != nil {
			logger.Error().Err(rerr).Msg("Failed to release session claim")
		}
		return nil, err
	}

	deleteCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := s.store.Delete(deleteCtx, id); err != nil {
		// The claim still blocks other finalizers until the lease runs out
		logger.Error().Err(err).Msg("Failed to retire finalized session")
	}

	s.metrics.sessionFinalized(s.clock.Since(started))
	logger.Info().
		Str("file_name", artifact.FileName).
		Str("state", string(domain.StateFinalized)).
		Msg("Session finalized")

	return &domain.FinalizeResult{
		PDFURL:   artifact.PublicURL,
		FileName: artifact.FileName,
	}, nil
}

// publish renders and stores the report within the finalize timeout
func (s *SessionService) publish(ctx context.Context, session *domain.Session) (*domain.Artifact, error) {
	ctx, cancel := context.WithTimeout(ctx, s.finalizeTimeout)
	defer cancel()

	data, err := s.renderer.Render(ctx, session)
	if err != nil {
		if errors.Is(err, domain.ErrRender) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrRender, err)
	}

	artifact, err := s.artifacts.Store(ctx, domain.ArtifactFileName(session), data)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrStorage) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return artifact, nil
}

// SessionURL returns the public view URL for a session
func (s *SessionService) SessionURL(id string) string {
	return s.publicBaseURL + "/sessions/" + url.PathEscape(id)
}

// Ping checks the session store
func (s *SessionService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
