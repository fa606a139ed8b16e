// Package service implements the evaluation session lifecycle: session
// management, conversation turns and summarization.
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xiaot623/medeval/internal/adapter/llm"
	"github.com/xiaot623/medeval/internal/config"
	"github.com/xiaot623/medeval/internal/domain"
	"github.com/xiaot623/medeval/internal/policy"
	"github.com/xiaot623/medeval/internal/repository"
)

// Generation parameters for the assessment model.
const (
	turnMaxTokens      = 600
	turnTemperature    = 0.3
	summaryMaxTokens   = 800
	summaryTemperature = 0.2
)

// Publisher receives live session events.
type Publisher interface {
	Publish(event domain.SessionEvent)
}

type nopPublisher struct{}

func (nopPublisher) Publish(domain.SessionEvent) {}

type Service struct {
	store        repository.Store
	model        llm.Model
	policyEngine *policy.Engine
	publisher    Publisher
	config       *config.Config
	logger       *zap.Logger
	now          func() time.Time
}

func New(store repository.Store, model llm.Model, policyEngine *policy.Engine, publisher Publisher, cfg *config.Config, logger *zap.Logger) *Service {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:        store,
		model:        model,
		policyEngine: policyEngine,
		publisher:    publisher,
		config:       cfg,
		logger:       logger,
		now:          time.Now,
	}
}

// authorize applies the role gate before any core work runs.
func (s *Service) authorize(ctx context.Context, p domain.Principal, action domain.Action, subjectID string) error {
	if p.ActorID == "" {
		return domain.Unauthenticated("missing actor identity")
	}
	return s.policyEngine.Authorize(ctx, p, action, subjectID)
}

// loadSession returns the session or a NotFound error.
func (s *Service) loadSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	if sessionID == "" {
		return nil, domain.Validation("session_id is required")
	}
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, domain.Persistence(err, "failed to get session")
	}
	if session == nil {
		return nil, domain.NotFound("session %s not found", sessionID)
	}
	return session, nil
}

func (s *Service) publishMessage(msg *domain.Message) {
	m := *msg
	s.publisher.Publish(domain.SessionEvent{
		Type:      domain.EventTypeMessage,
		SessionID: msg.SessionID,
		Ts:        s.now().UnixMilli(),
		Message:   &m,
	})
}
