package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Rrens/inspection-service/internal/config"
	"github.com/Rrens/inspection-service/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS inspection_sessions (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	questions  TEXT NOT NULL,
	owner_code TEXT,
	created_at INTEGER NOT NULL,
	claimed_at INTEGER,
	claim_token TEXT
);
CREATE INDEX IF NOT EXISTS idx_inspection_sessions_created_at ON inspection_sessions (created_at);
`

const sessionColumns = `id, title, questions, owner_code, created_at, claimed_at, claim_token`

// SessionStore persists sessions in a single SQLite file
type SessionStore struct {
	db *sql.DB
}

// NewSessionStore opens (or creates) the database file and applies the schema
func NewSessionStore(ctx context.Context, cfg config.SQLiteConfig) (*SessionStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// A single writer keeps claims serialized
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply sqlite schema: %w", err)
	}

	return &SessionStore{db: db}, nil
}

// Close closes the database
func (s *SessionStore) Close() error {
	return s.db.Close()
}

// Create stores a new session
func (s *SessionStore) Create(ctx context.Context, session *domain.Session) error {
	questions, err := json.Marshal(session.Questions)
	if err != nil {
		return fmt.Errorf("failed to encode questions: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO inspection_sessions (id, title, questions, owner_code, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, session.ID, session.Title, string(questions), nullString(session.OwnerCode), session.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read insert result: %w", err)
	}
	if n == 0 {
		return domain.ErrSessionExists
	}
	return nil
}

// Get retrieves a session by ID
func (s *SessionStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM inspection_sessions WHERE id = ?`, id)
	return scanSession(row, id)
}

// Claim takes the finalize lease in a single UPDATE so concurrent callers cannot both win
func (s *SessionStore) Claim(ctx context.Context, id string, lease time.Duration) (*domain.Session, error) {
	now := time.Now()
	row := s.db.QueryRowContext(ctx, `
		UPDATE inspection_sessions
		SET claimed_at = ?, claim_token = ?
		WHERE id = ? AND (claimed_at IS NULL OR claimed_at <= ?)
		RETURNING `+sessionColumns,
		now.UnixNano(), domain.NewClaimToken(), id, now.Add(-lease).UnixNano(),
	)
	return scanSession(row, id)
}

// Release clears the claim only while claimToken still holds it
func (s *SessionStore) Release(ctx context.Context, id, claimToken string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE inspection_sessions SET claimed_at = NULL, claim_token = NULL WHERE id = ? AND claim_token = ?`,
		id, claimToken,
	)
	if err != nil {
		return fmt.Errorf("failed to release session: %w", err)
	}
	return nil
}

// Delete removes a session
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM inspection_sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Purge removes sessions created before the cutoff
func (s *SessionStore) Purge(ctx context.Context, createdBefore time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM inspection_sessions WHERE created_at < ?`, createdBefore.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	return res.RowsAffected()
}

// Ping verifies database connectivity
func (s *SessionStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func scanSession(row *sql.Row, id string) (*domain.Session, error) {
	var (
		session   domain.Session
		questions string
		ownerCode sql.NullString
		createdAt int64
		claimedAt  sql.NullInt64
		claimToken sql.NullString
	)

	err := row.Scan(&session.ID, &session.Title, &questions, &ownerCode, &createdAt, &claimedAt, &claimToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if err := json.Unmarshal([]byte(questions), &session.Questions); err != nil {
		return nil, fmt.Errorf("failed to decode questions: %w", err)
	}
	session.OwnerCode = ownerCode.String
	session.ClaimToken = claimToken.String
	session.CreatedAt = time.Unix(0, createdAt).UTC()
	session.State = domain.StateOpen
	if claimedAt.Valid {
		t := time.Unix(0, claimedAt.Int64).UTC()
		session.ClaimedAt = &t
	}

	return &session, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
