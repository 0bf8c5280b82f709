package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Rrens/inspection-service/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const sessionColumns = `id, title, questions, owner_code, created_at, claimed_at, claim_token`

// SessionRepository implements domain.SessionStore
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{pool: db.Pool}
}

func (r *SessionRepository) Create(ctx context.Context, session *domain.Session) error {
	questions := session.Questions
	if questions == nil {
		questions = []string{}
	}

	query := `
		INSERT INTO inspection_sessions (id, title, questions, owner_code, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query,
		session.ID,
		session.Title,
		questions,
		nullable(session.OwnerCode),
		session.CreatedAt,
	)
	if err != nil {
		err = mapPostgresError(err)
		if errors.Is(err, domain.ErrSessionExists) {
			return err
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *SessionRepository) Get(ctx context.Context, id string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM inspection_sessions WHERE id = $1`
	return r.scan(r.pool.QueryRow(ctx, query, id), id)
}

// Claim takes the finalize lease. The row lock taken by UPDATE makes the
// check-and-set atomic across instances.
func (r *SessionRepository) Claim(ctx context.Context, id string, lease time.Duration) (*domain.Session, error) {
	query := `
		UPDATE inspection_sessions
		SET claimed_at = now(), claim_token = $3
		WHERE id = $1
		  AND (claimed_at IS NULL OR claimed_at <= now() - ($2::bigint * interval '1 millisecond'))
		RETURNING ` + sessionColumns
	return r.scan(r.pool.QueryRow(ctx, query, id, lease.Milliseconds(), domain.NewClaimToken()), id)
}

// Release clears the claim only while claimToken still holds it
func (r *SessionRepository) Release(ctx context.Context, id, claimToken string) error {
	query := `
		UPDATE inspection_sessions
		SET claimed_at = NULL, claim_token = NULL
		WHERE id = $1 AND claim_token = $2
	`
	_, err := r.pool.Exec(ctx, query, id, claimToken)
	if err != nil {
		return fmt.Errorf("failed to release session: %w", mapPostgresError(err))
	}
	return nil
}

func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM inspection_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", mapPostgresError(err))
	}
	return nil
}

// Purge removes sessions created before the cutoff
func (r *SessionRepository) Purge(ctx context.Context, createdBefore time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM inspection_sessions WHERE created_at < $1`, createdBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", mapPostgresError(err))
	}
	return tag.RowsAffected(), nil
}

func (r *SessionRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *SessionRepository) scan(row pgx.Row, id string) (*domain.Session, error) {
	var (
		s          domain.Session
		ownerCode  *string
		claimToken *string
	)
	err := row.Scan(
		&s.ID,
		&s.Title,
		&s.Questions,
		&ownerCode,
		&s.CreatedAt,
		&s.ClaimedAt,
		&claimToken,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get session: %w", mapPostgresError(err))
	}

	if ownerCode != nil {
		s.OwnerCode = *ownerCode
	}
	if claimToken != nil {
		s.ClaimToken = *claimToken
	}
	s.State = domain.StateOpen
	return &s, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
