package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xiaot623/medeval/internal/adapter/llm"
	"github.com/xiaot623/medeval/internal/domain"
	"github.com/xiaot623/medeval/internal/prompt"
)

// State derives the conversation state from a session and its transcript.
func State(session *domain.Session, messages []domain.Message) domain.SessionState {
	switch {
	case session.Closed():
		return domain.SessionStateClosed
	case len(messages) == 0:
		return domain.SessionStateInit
	default:
		return domain.SessionStateActive
	}
}

// SubmitTurn executes one conversation turn and returns the assistant reply.
//
// The init sentinel on a fresh session asks for the opening question without
// storing a user message. If the previous user message is still unanswered,
// resubmitting the same text re-asks the model instead of storing it twice.
func (s *Service) SubmitTurn(ctx context.Context, p domain.Principal, sessionID, input string) (string, error) {
	if err := s.authorize(ctx, p, domain.ActionSessionTurn, ""); err != nil {
		return "", err
	}
	if strings.TrimSpace(input) == "" {
		return "", domain.Validation("message is required")
	}
	if _, err := s.loadSession(ctx, sessionID); err != nil {
		return "", err
	}

	var reply string
	err := s.withSessionLock(ctx, sessionID, func(ctx context.Context) error {
		session, messages, err := s.openTranscript(ctx, sessionID)
		if err != nil {
			return err
		}

		if input == domain.InitSentinel {
			if State(session, messages) == domain.SessionStateActive {
				if last := lastFrom(messages, domain.SenderAssistant); last != nil {
					reply = last.Content
					return nil
				}
				return domain.Validation("session has already started")
			}
			reply, err = s.answer(ctx, session, messages)
			return err
		}

		if last := lastMessage(messages); last != nil && last.Sender == domain.SenderUser {
			if last.Content != input {
				return domain.Validation("previous message is still awaiting a reply; retry it before sending a new one")
			}
			s.logger.Info("re-asking unanswered turn", zap.String("session_id", sessionID))
		} else {
			userMsg, err := s.appendMessage(ctx, sessionID, domain.SenderUser, input)
			if err != nil {
				return err
			}
			messages = append(messages, *userMsg)
		}

		reply, err = s.answer(ctx, session, messages)
		return err
	})
	if err != nil {
		return "", err
	}
	return reply, nil
}

// RetryLastTurn asks the model again for the trailing unanswered user message.
func (s *Service) RetryLastTurn(ctx context.Context, p domain.Principal, sessionID string) (string, error) {
	if err := s.authorize(ctx, p, domain.ActionSessionTurn, ""); err != nil {
		return "", err
	}
	if _, err := s.loadSession(ctx, sessionID); err != nil {
		return "", err
	}

	var reply string
	err := s.withSessionLock(ctx, sessionID, func(ctx context.Context) error {
		session, messages, err := s.openTranscript(ctx, sessionID)
		if err != nil {
			return err
		}
		if last := lastMessage(messages); last == nil || last.Sender != domain.SenderUser {
			return domain.Validation("no unanswered message to retry")
		}
		reply, err = s.answer(ctx, session, messages)
		return err
	})
	if err != nil {
		return "", err
	}
	return reply, nil
}

// openTranscript reloads the session under the lease and rejects closed sessions.
func (s *Service) openTranscript(ctx context.Context, sessionID string) (*domain.Session, []domain.Message, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if session.Closed() {
		return nil, nil, domain.Validation("session is closed")
	}
	messages, err := s.store.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, nil, domain.Persistence(err, "failed to read transcript")
	}
	return session, messages, nil
}

// answer calls the model on the stored transcript and persists its reply.
func (s *Service) answer(ctx context.Context, session *domain.Session, messages []domain.Message) (string, error) {
	instructions, err := s.instructions(ctx, session)
	if err != nil {
		return "", err
	}

	reply, err := s.generate(ctx, session.SessionID, &llm.GenerateRequest{
		System:      instructions,
		Turns:       conversationTurns(messages),
		MaxTokens:   turnMaxTokens,
		Temperature: llm.Float64(turnTemperature),
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(reply) == "" {
		return "", domain.UpstreamModel(nil, "assessment model returned an empty reply")
	}

	if _, err := s.appendMessage(ctx, session.SessionID, domain.SenderAssistant, reply); err != nil {
		return "", err
	}
	return reply, nil
}

// generate performs one bounded model call.
func (s *Service) generate(ctx context.Context, sessionID string, req *llm.GenerateRequest) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.config.ModelTimeout)
	defer cancel()

	text, err := s.model.Generate(callCtx, req)
	if err != nil {
		s.logger.Error("assessment model call failed", zap.String("session_id", sessionID), zap.Error(err))
		return "", domain.UpstreamModel(err, "assessment model call failed")
	}
	return text, nil
}

func (s *Service) appendMessage(ctx context.Context, sessionID string, sender domain.Sender, content string) (*domain.Message, error) {
	msg := &domain.Message{
		MessageID: uuid.New().String(),
		SessionID: sessionID,
		Sender:    sender,
		Content:   content,
		CreatedAt: s.now(),
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		s.logger.Error("failed to persist message", zap.String("session_id", sessionID), zap.Error(err))
		return nil, domain.Persistence(err, "failed to persist message")
	}
	s.publishMessage(msg)
	return msg, nil
}

// conversationTurns maps the transcript to model turns. The transcript opens
// with the assistant greeting, so the framing user turn is put in front.
func conversationTurns(messages []domain.Message) []llm.Turn {
	turns := make([]llm.Turn, 0, len(messages)+1)
	if len(messages) == 0 || messages[0].Sender == domain.SenderAssistant {
		turns = append(turns, llm.Turn{Role: llm.RoleUser, Content: prompt.BeginTurn})
	}
	for _, m := range messages {
		role := llm.RoleUser
		if m.Sender == domain.SenderAssistant {
			role = llm.RoleAssistant
		}
		turns = append(turns, llm.Turn{Role: role, Content: m.Content})
	}
	return turns
}

func lastMessage(messages []domain.Message) *domain.Message {
	if len(messages) == 0 {
		return nil
	}
	return &messages[len(messages)-1]
}

func lastFrom(messages []domain.Message, sender domain.Sender) *domain.Message {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Sender == sender {
			return &messages[i]
		}
	}
	return nil
}
