package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xiaot623/medeval/internal/adapter/llm"
	"github.com/xiaot623/medeval/internal/domain"
	"github.com/xiaot623/medeval/internal/prompt"
	"github.com/xiaot623/medeval/internal/repository"
)

// Finalize summarizes the transcript, stores the summary and closes the
// session. A closed session cannot be finalized again.
func (s *Service) Finalize(ctx context.Context, p domain.Principal, sessionID string) (*domain.FinalizeResponse, error) {
	if err := s.authorize(ctx, p, domain.ActionSessionFinalize, ""); err != nil {
		return nil, err
	}
	if _, err := s.loadSession(ctx, sessionID); err != nil {
		return nil, err
	}

	var resp *domain.FinalizeResponse
	err := s.withSessionLock(ctx, sessionID, func(ctx context.Context) error {
		session, messages, err := s.openTranscript(ctx, sessionID)
		if err != nil {
			return err
		}
		if len(messages) == 0 {
			return domain.Validation("session has no messages to summarize")
		}

		text, err := s.generate(ctx, sessionID, &llm.GenerateRequest{
			System:      prompt.SummarySystem,
			Turns:       []llm.Turn{{Role: llm.RoleUser, Content: prompt.SummaryRequest(messages)}},
			MaxTokens:   summaryMaxTokens,
			Temperature: llm.Float64(summaryTemperature),
		})
		if err != nil {
			return err
		}
		if strings.TrimSpace(text) == "" {
			text = prompt.SummaryFallback
		}

		summary := &domain.Summary{
			SummaryID: uuid.New().String(),
			SessionID: session.SessionID,
			Content:   text,
			CreatedAt: s.now(),
		}
		if err := s.store.SaveSummaryAndClose(ctx, summary); err != nil {
			switch {
			case errors.Is(err, repository.ErrSessionNotFound):
				return domain.NotFound("session %s not found", sessionID)
			case errors.Is(err, repository.ErrSessionClosed), errors.Is(err, repository.ErrSummaryExists):
				return domain.Validation("session is closed")
			}
			s.logger.Error("failed to store summary", zap.String("session_id", sessionID), zap.Error(err))
			return domain.Persistence(err, "failed to store summary")
		}

		s.logger.Info("session finalized", zap.String("session_id", sessionID), zap.String("summary_id", summary.SummaryID))
		s.publisher.Publish(domain.SessionEvent{
			Type:      domain.EventTypeSessionClosed,
			SessionID: sessionID,
			Ts:        s.now().UnixMilli(),
		})
		resp = &domain.FinalizeResponse{SummaryID: summary.SummaryID, Summary: summary.Content}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}
