package service

import (
	"context"

	"github.com/xiaot623/medeval/internal/domain"
	"github.com/xiaot623/medeval/internal/prompt"
	"github.com/xiaot623/medeval/internal/repository"
)

// PriorSummary returns the newest summary from an earlier session of the same
// subject whose evaluator shares the current evaluator's department.
func (s *Service) PriorSummary(ctx context.Context, session *domain.Session) (*domain.Summary, error) {
	evaluator, err := s.store.GetSubject(ctx, session.EvaluatorID)
	if err != nil {
		return nil, domain.Persistence(err, "failed to look up evaluator")
	}
	if evaluator == nil {
		return nil, nil
	}
	prior, err := s.store.GetPriorSummary(ctx, repository.PriorSummaryQuery{
		SubjectID:           session.SubjectID,
		EvaluatorDepartment: evaluator.Department,
		ExcludeSessionID:    session.SessionID,
		StartedBefore:       session.StartedAt,
	})
	if err != nil {
		return nil, domain.Persistence(err, "failed to look up prior summary")
	}
	return prior, nil
}

// instructions assembles the model instructions for a session at call time.
func (s *Service) instructions(ctx context.Context, session *domain.Session) (string, error) {
	subject, err := s.store.GetSubject(ctx, session.SubjectID)
	if err != nil {
		return "", domain.Persistence(err, "failed to look up subject")
	}
	if subject == nil {
		return "", domain.NotFound("subject %s not found", session.SubjectID)
	}
	prior, err := s.PriorSummary(ctx, session)
	if err != nil {
		return "", err
	}
	return prompt.BuildInstructions(prompt.SubjectInfo(subject), prompt.CriteriaHeader, prior), nil
}
