package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/Rrens/inspection-service/internal/config"
	"github.com/Rrens/inspection-service/internal/domain"
	"github.com/go-sql-driver/mysql"
)

const errDuplicateEntry = 1062

const schema = `
CREATE TABLE IF NOT EXISTS inspection_sessions (
	id          VARCHAR(64)  NOT NULL PRIMARY KEY,
	title       TEXT         NOT NULL,
	questions   JSON         NOT NULL,
	owner_code  VARCHAR(255) NULL,
	created_at  DATETIME(6)  NOT NULL,
	claimed_at  DATETIME(6)  NULL,
	claim_token VARCHAR(64)  NULL,
	INDEX idx_inspection_sessions_created_at (created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4
`

const sessionColumns = `id, title, questions, owner_code, created_at, claimed_at, claim_token`

// SessionStore persists sessions in a MySQL table
type SessionStore struct {
	db *sql.DB
}

// DSN builds the driver connection string for cfg
func DSN(cfg config.MySQLConfig) string {
	c := mysql.NewConfig()
	c.User = cfg.User
	c.Passwd = cfg.Password
	c.Net = "tcp"
	c.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	c.DBName = cfg.Database
	c.ParseTime = true
	c.Loc = time.UTC
	c.Params = map[string]string{"charset": "utf8mb4"}
	return c.FormatDSN()
}

// NewSessionStore connects to MySQL and creates the sessions table if needed
func NewSessionStore(ctx context.Context, cfg config.MySQLConfig) (*SessionStore, error) {
	return Open(ctx, DSN(cfg), cfg.MaxOpenConns)
}

// Open connects with an explicit DSN
func Open(ctx context.Context, dsn string, maxOpenConns int) (*SessionStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}

	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply mysql schema: %w", err)
	}

	return &SessionStore{db: db}, nil
}

// Close closes the connection pool
func (s *SessionStore) Close() error {
	return s.db.Close()
}

// Create stores a new session
func (s *SessionStore) Create(ctx context.Context, session *domain.Session) error {
	questions := session.Questions
	if questions == nil {
		questions = []string{}
	}
	encoded, err := json.Marshal(questions)
	if err != nil {
		return fmt.Errorf("failed to encode questions: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO inspection_sessions (id, title, questions, owner_code, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, session.ID, session.Title, string(encoded), nullString(session.OwnerCode), session.CreatedAt.UTC())
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == errDuplicateEntry {
			return domain.ErrSessionExists
		}
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// Get retrieves a session by ID
func (s *SessionStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM inspection_sessions WHERE id = ?`, id)
	return scanSession(row, id)
}

// Claim takes the finalize lease. MySQL has no UPDATE .. RETURNING, so the
// conditional UPDATE decides the winner and the row is read back by token.
func (s *SessionStore) Claim(ctx context.Context, id string, lease time.Duration) (*domain.Session, error) {
	now := time.Now().UTC()
	token := domain.NewClaimToken()

	res, err := s.db.ExecContext(ctx, `
		UPDATE inspection_sessions
		SET claimed_at = ?, claim_token = ?
		WHERE id = ? AND (claimed_at IS NULL OR claimed_at <= ?)
	`, now, token, id, now.Add(-lease))
	if err != nil {
		return nil, fmt.Errorf("failed to claim session: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read claim result: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("session %s not available: %w", id, domain.ErrNotFound)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM inspection_sessions WHERE id = ? AND claim_token = ?`,
		id, token,
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
	res, err := s.db.ExecContext(ctx, `DELETE FROM inspection_sessions WHERE created_at < ?`, createdBefore.UTC())
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
		session    domain.Session
		questions  []byte
		ownerCode  sql.NullString
		claimedAt  sql.NullTime
		claimToken sql.NullString
	)

	err := row.Scan(&session.ID, &session.Title, &questions, &ownerCode, &session.CreatedAt, &claimedAt, &claimToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if err := json.Unmarshal(questions, &session.Questions); err != nil {
		return nil, fmt.Errorf("failed to decode questions: %w", err)
	}
	session.OwnerCode = ownerCode.String
	session.ClaimToken = claimToken.String
	session.State = domain.StateOpen
	if claimedAt.Valid {
		t := claimedAt.Time.UTC()
		session.ClaimedAt = &t
	}

	return &session, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
