// Package repository defines the storage interface and its SQLite implementation.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/xiaot623/medeval/internal/domain"
)

var (
	// ErrSessionClosed is returned when a close-dependent write finds the session already closed.
	ErrSessionClosed = errors.New("session already closed")
	// ErrSummaryExists is returned when a session already has a summary.
	ErrSummaryExists = errors.New("summary already exists for session")
	// ErrSessionNotFound is returned by writes that target a missing session.
	ErrSessionNotFound = errors.New("session not found")
)

// PriorSummaryQuery selects the cross-session context for a subject.
type PriorSummaryQuery struct {
	SubjectID           string
	EvaluatorDepartment string
	ExcludeSessionID    string
	StartedBefore       time.Time
}

// Store defines the interface for data persistence.
type Store interface {
	// Directory operations
	CreateSubject(ctx context.Context, subject *domain.Subject) error
	GetSubject(ctx context.Context, userID string) (*domain.Subject, error)

	// Session operations
	FindOrCreateOpenSession(ctx context.Context, session *domain.Session) (*domain.Session, bool, error)
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	FindOpenSession(ctx context.Context, evaluatorID, subjectID string) (*domain.Session, error)
	CloseSession(ctx context.Context, sessionID string, at time.Time) (bool, error)
	ListSubjectSessions(ctx context.Context, subjectID string) ([]domain.SessionOverview, error)

	// Transcript operations
	AppendMessage(ctx context.Context, message *domain.Message) error
	ListMessages(ctx context.Context, sessionID string) ([]domain.Message, error)

	// Summary operations
	GetSummary(ctx context.Context, sessionID string) (*domain.Summary, error)
	GetPriorSummary(ctx context.Context, q PriorSummaryQuery) (*domain.Summary, error)
	SaveSummaryAndClose(ctx context.Context, summary *domain.Summary) error

	// Per-session serialization
	AcquireSessionLease(ctx context.Context, sessionID, token string, now time.Time, ttl time.Duration) (bool, error)
	ReleaseSessionLease(ctx context.Context, sessionID, token string) error

	// Lifecycle
	Close() error
}
