package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/xiaot623/medeval/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT UNIQUE,
			role TEXT NOT NULL,
			department TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			evaluator_id TEXT NOT NULL,
			subject_id TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			completed_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_subject ON sessions(subject_id, started_at)`,
		// At most one open session per (evaluator, subject).
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_open_pair ON sessions(evaluator_id, subject_id) WHERE completed_at IS NULL`,
		`CREATE TABLE IF NOT EXISTS messages (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			message_id TEXT NOT NULL UNIQUE,
			session_id TEXT NOT NULL,
			sender TEXT NOT NULL CHECK (sender IN ('user', 'assistant')),
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at, seq)`,
		`CREATE TABLE IF NOT EXISTS summaries (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			summary_id TEXT NOT NULL UNIQUE,
			session_id TEXT NOT NULL UNIQUE,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	// Lease columns were added after the first schema; SQLite has limited ALTER TABLE support.
	if err := s.ensureColumn("sessions", "lease_token", "ALTER TABLE sessions ADD COLUMN lease_token TEXT"); err != nil {
		return err
	}
	if err := s.ensureColumn("sessions", "lease_expires_ms", "ALTER TABLE sessions ADD COLUMN lease_expires_ms INTEGER NOT NULL DEFAULT 0"); err != nil {
		return err
	}

	return nil
}

func (s *SQLiteStore) ensureColumn(tableName, columnName, ddl string) error {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dfltValue sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		if name == columnName {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	_, err = s.db.Exec(ddl)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSubject inserts a directory entry.
func (s *SQLiteStore) CreateSubject(ctx context.Context, subject *domain.Subject) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (user_id, name, email, role, department) VALUES (?, ?, ?, ?, ?)`,
		subject.UserID, subject.Name, nullString(subject.Email), subject.Role, subject.Department)
	return err
}

// GetSubject retrieves a directory entry by ID.
func (s *SQLiteStore) GetSubject(ctx context.Context, userID string) (*domain.Subject, error) {
	var subject domain.Subject
	var email sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, name, email, role, department FROM users WHERE user_id = ?`,
		userID).Scan(&subject.UserID, &subject.Name, &email, &subject.Role, &subject.Department)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	subject.Email = email.String
	return &subject, nil
}

// FindOrCreateOpenSession returns the open session for the session's
// (evaluator, subject) pair, inserting the given one if none is open.
// The boolean result is true when the given session was inserted.
func (s *SQLiteStore) FindOrCreateOpenSession(ctx context.Context, session *domain.Session) (*domain.Session, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := scanSession(tx.QueryRowContext(ctx,
		`SELECT session_id, evaluator_id, subject_id, started_at, completed_at FROM sessions
		 WHERE evaluator_id = ? AND subject_id = ? AND completed_at IS NULL
		 ORDER BY started_at DESC LIMIT 1`,
		session.EvaluatorID, session.SubjectID))
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (session_id, evaluator_id, subject_id, started_at) VALUES (?, ?, ?, ?)`,
		session.SessionID, session.EvaluatorID, session.SubjectID, session.StartedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			// Another writer created the open session between our read and insert.
			_ = tx.Rollback()
			existing, ferr := s.FindOpenSession(ctx, session.EvaluatorID, session.SubjectID)
			if ferr != nil {
				return nil, false, ferr
			}
			if existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return session, true, nil
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	return scanSession(s.db.QueryRowContext(ctx,
		`SELECT session_id, evaluator_id, subject_id, started_at, completed_at FROM sessions WHERE session_id = ?`,
		sessionID))
}

// FindOpenSession returns the most recently started open session for the pair.
func (s *SQLiteStore) FindOpenSession(ctx context.Context, evaluatorID, subjectID string) (*domain.Session, error) {
	return scanSession(s.db.QueryRowContext(ctx,
		`SELECT session_id, evaluator_id, subject_id, started_at, completed_at FROM sessions
		 WHERE evaluator_id = ? AND subject_id = ? AND completed_at IS NULL
		 ORDER BY started_at DESC LIMIT 1`,
		evaluatorID, subjectID))
}

// CloseSession sets completed_at if it is not already set.
func (s *SQLiteStore) CloseSession(ctx context.Context, sessionID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET completed_at = ? WHERE session_id = ? AND completed_at IS NULL`,
		at.UTC(), sessionID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ListSubjectSessions lists a subject's sessions, newest first.
func (s *SQLiteStore) ListSubjectSessions(ctx context.Context, subjectID string) ([]domain.SessionOverview, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.session_id, s.evaluator_id, COALESCE(u.name, ''), s.started_at, s.completed_at, sm.content
		 FROM sessions s
		 LEFT JOIN users u ON u.user_id = s.evaluator_id
		 LEFT JOIN summaries sm ON sm.session_id = s.session_id
		 WHERE s.subject_id = ?
		 ORDER BY s.started_at DESC`,
		subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	overviews := []domain.SessionOverview{}
	for rows.Next() {
		var o domain.SessionOverview
		var completedAt sql.NullTime
		var summary sql.NullString
		if err := rows.Scan(&o.SessionID, &o.EvaluatorID, &o.EvaluatorName, &o.StartedAt, &completedAt, &summary); err != nil {
			return nil, err
		}
		if completedAt.Valid {
			t := completedAt.Time
			o.CompletedAt = &t
		}
		if summary.Valid {
			text := summary.String
			o.Summary = &text
		}
		overviews = append(overviews, o)
	}
	return overviews, rows.Err()
}

// AppendMessage persists one transcript message. The stored created_at is
// never earlier than the latest message already in the session.
func (s *SQLiteStore) AppendMessage(ctx context.Context, message *domain.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	createdAt := message.CreatedAt.UTC()
	var last time.Time
	err = tx.QueryRowContext(ctx,
		`SELECT created_at FROM messages WHERE session_id = ? ORDER BY created_at DESC, seq DESC LIMIT 1`,
		message.SessionID).Scan(&last)
	if err != nil && err != sql.ErrNoRows {
		return err
	}
	if err == nil && createdAt.Before(last) {
		createdAt = last.UTC()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (message_id, session_id, sender, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		message.MessageID, message.SessionID, message.Sender, message.Content, createdAt)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	message.CreatedAt = createdAt
	return nil
}

// ListMessages retrieves the full transcript of a session in conversation order.
func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, session_id, sender, content, created_at FROM messages
		 WHERE session_id = ? ORDER BY created_at ASC, seq ASC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(&msg.MessageID, &msg.SessionID, &msg.Sender, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// GetSummary retrieves the summary of a session.
func (s *SQLiteStore) GetSummary(ctx context.Context, sessionID string) (*domain.Summary, error) {
	return scanSummary(s.db.QueryRowContext(ctx,
		`SELECT summary_id, session_id, content, created_at FROM summaries WHERE session_id = ?`,
		sessionID))
}

// GetPriorSummary returns the newest summary of an earlier session for the
// subject whose evaluator belongs to the given department.
func (s *SQLiteStore) GetPriorSummary(ctx context.Context, q PriorSummaryQuery) (*domain.Summary, error) {
	return scanSummary(s.db.QueryRowContext(ctx,
		`SELECT sm.summary_id, sm.session_id, sm.content, sm.created_at
		 FROM summaries sm
		 JOIN sessions s ON s.session_id = sm.session_id
		 JOIN users u ON u.user_id = s.evaluator_id
		 WHERE s.subject_id = ? AND u.department = ? AND s.session_id <> ? AND s.started_at < ?
		 ORDER BY sm.created_at DESC, sm.seq DESC
		 LIMIT 1`,
		q.SubjectID, q.EvaluatorDepartment, q.ExcludeSessionID, q.StartedBefore.UTC()))
}

// SaveSummaryAndClose stores the session summary and closes the session in
// one transaction.
func (s *SQLiteStore) SaveSummaryAndClose(ctx context.Context, summary *domain.Summary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	createdAt := summary.CreatedAt.UTC()
	res, err := tx.ExecContext(ctx,
		`UPDATE sessions SET completed_at = ? WHERE session_id = ? AND completed_at IS NULL`,
		createdAt, summary.SessionID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE session_id = ?`, summary.SessionID).Scan(&exists)
		if err == sql.ErrNoRows {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		return ErrSessionClosed
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO summaries (summary_id, session_id, content, created_at) VALUES (?, ?, ?, ?)`,
		summary.SummaryID, summary.SessionID, summary.Content, createdAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSummaryExists
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	summary.CreatedAt = createdAt
	return nil
}

// AcquireSessionLease takes the session's exclusive lease if it is free or expired.
func (s *SQLiteStore) AcquireSessionLease(ctx context.Context, sessionID, token string, now time.Time, ttl time.Duration) (bool, error) {
	nowMs := now.UnixMilli()
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET lease_token = ?, lease_expires_ms = ?
		 WHERE session_id = ? AND (lease_token IS NULL OR lease_expires_ms <= ?)`,
		token, nowMs+ttl.Milliseconds(), sessionID, nowMs)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ReleaseSessionLease frees the lease if it is still held by token.
func (s *SQLiteStore) ReleaseSessionLease(ctx context.Context, sessionID, token string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET lease_token = NULL, lease_expires_ms = 0 WHERE session_id = ? AND lease_token = ?`,
		sessionID, token)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var session domain.Session
	var completedAt sql.NullTime
	err := row.Scan(&session.SessionID, &session.EvaluatorID, &session.SubjectID, &session.StartedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t := completedAt.Time
		session.CompletedAt = &t
	}
	return &session, nil
}

func scanSummary(row rowScanner) (*domain.Summary, error) {
	var summary domain.Summary
	err := row.Scan(&summary.SummaryID, &summary.SessionID, &summary.Content, &summary.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
