package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xiaot623/medeval/internal/domain"
)

// StartSession returns the open session for the evaluator and subject,
// creating one if none exists.
func (s *Service) StartSession(ctx context.Context, p domain.Principal, subjectID string) (*domain.StartSessionResponse, error) {
	if err := s.authorize(ctx, p, domain.ActionSessionStart, subjectID); err != nil {
		return nil, err
	}
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return nil, domain.Validation("subject_id is required")
	}

	subject, err := s.store.GetSubject(ctx, subjectID)
	if err != nil {
		return nil, domain.Persistence(err, "failed to look up subject")
	}
	if subject == nil {
		return nil, domain.Validation("subject not found")
	}
	if subject.Role != domain.RoleTrainee {
		return nil, domain.Validation("selected user is not a trainee")
	}

	session, created, err := s.store.FindOrCreateOpenSession(ctx, &domain.Session{
		SessionID:   uuid.New().String(),
		EvaluatorID: p.ActorID,
		SubjectID:   subjectID,
		StartedAt:   s.now(),
	})
	if err != nil {
		s.logger.Error("failed to create session", zap.String("subject_id", subjectID), zap.Error(err))
		return nil, domain.Persistence(err, "failed to create session")
	}
	if created {
		s.logger.Info("session started",
			zap.String("session_id", session.SessionID),
			zap.String("evaluator_id", session.EvaluatorID),
			zap.String("subject_id", session.SubjectID))
	}

	return &domain.StartSessionResponse{
		SessionID:   session.SessionID,
		EvaluatorID: session.EvaluatorID,
		SubjectID:   session.SubjectID,
		StartedAt:   session.StartedAt,
		Resumed:     !created,
	}, nil
}

// FindOpenSession returns the id of the evaluator's open session for subjectID, or nil.
func (s *Service) FindOpenSession(ctx context.Context, p domain.Principal, subjectID string) (*string, error) {
	if err := s.authorize(ctx, p, domain.ActionSessionFindOpen, subjectID); err != nil {
		return nil, err
	}
	if subjectID == "" {
		return nil, domain.Validation("subject_id is required")
	}
	session, err := s.store.FindOpenSession(ctx, p.ActorID, subjectID)
	if err != nil {
		return nil, domain.Persistence(err, "failed to find open session")
	}
	if session == nil {
		return nil, nil
	}
	return &session.SessionID, nil
}

// CloseSession marks a session completed. Closing an already closed session
// is a no-op; the returned bool reports whether this call closed it.
func (s *Service) CloseSession(ctx context.Context, sessionID string) (bool, error) {
	if _, err := s.loadSession(ctx, sessionID); err != nil {
		return false, err
	}
	closed, err := s.store.CloseSession(ctx, sessionID, s.now())
	if err != nil {
		return false, domain.Persistence(err, "failed to close session")
	}
	if closed {
		s.publisher.Publish(domain.SessionEvent{
			Type:      domain.EventTypeSessionClosed,
			SessionID: sessionID,
			Ts:        s.now().UnixMilli(),
		})
	}
	return closed, nil
}

// GetTranscript returns the ordered messages of a session.
func (s *Service) GetTranscript(ctx context.Context, p domain.Principal, sessionID string) ([]domain.Message, error) {
	if err := s.authorize(ctx, p, domain.ActionSessionRead, ""); err != nil {
		return nil, err
	}
	if _, err := s.loadSession(ctx, sessionID); err != nil {
		return nil, err
	}
	messages, err := s.store.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, domain.Persistence(err, "failed to read transcript")
	}
	return messages, nil
}

// ListSubjectSessions lists every session of a subject with its evaluator
// and summary, newest first.
func (s *Service) ListSubjectSessions(ctx context.Context, p domain.Principal, subjectID string) ([]domain.SessionOverview, error) {
	if err := s.authorize(ctx, p, domain.ActionSubjectSessions, subjectID); err != nil {
		return nil, err
	}
	sessions, err := s.store.ListSubjectSessions(ctx, subjectID)
	if err != nil {
		return nil, domain.Persistence(err, "failed to list sessions")
	}
	if sessions == nil {
		sessions = []domain.SessionOverview{}
	}
	return sessions, nil
}
