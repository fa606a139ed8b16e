package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xiaot623/medeval/internal/config"
	"github.com/xiaot623/medeval/internal/domain"
	"github.com/xiaot623/medeval/internal/policy"
	"github.com/xiaot623/medeval/internal/repository"
	"github.com/xiaot623/medeval/internal/testutil"
)

var (
	evaluator = domain.Principal{ActorID: testutil.Evaluator.UserID, Role: domain.RoleEvaluator}
	trainee   = domain.Principal{ActorID: testutil.Trainee.UserID, Role: domain.RoleTrainee}
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.SessionEvent
}

func (p *recordingPublisher) Publish(ev domain.SessionEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) Events() []domain.SessionEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.SessionEvent(nil), p.events...)
}

type testEnv struct {
	svc       *Service
	store     *repository.SQLiteStore
	model     *testutil.FakeModel
	publisher *recordingPublisher
	cfg       *config.Config
}

func newTestEnv(t *testing.T, replies ...string) *testEnv {
	t.Helper()
	return newTestEnvOnStore(t, testutil.NewTestSQLiteStore(t), replies...)
}

func newTestEnvOnStore(t *testing.T, store *repository.SQLiteStore, replies ...string) *testEnv {
	t.Helper()
	ctx := context.Background()

	testutil.SeedSubjects(t, store, testutil.Evaluator, testutil.Trainee)

	engine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	require.NoError(t, err)

	cfg := &config.Config{
		ModelTimeout:    2 * time.Second,
		SessionLockWait: 2 * time.Second,
	}
	model := testutil.NewFakeModel(replies...)
	pub := &recordingPublisher{}
	return &testEnv{
		svc:       New(store, model, engine, pub, cfg, zap.NewNop()),
		store:     store,
		model:     model,
		publisher: pub,
		cfg:       cfg,
	}
}

func (e *testEnv) start(t *testing.T) string {
	t.Helper()
	resp, err := e.svc.StartSession(context.Background(), evaluator, testutil.Trainee.UserID)
	require.NoError(t, err)
	return resp.SessionID
}

func (e *testEnv) transcript(t *testing.T, sessionID string) []domain.Message {
	t.Helper()
	messages, err := e.store.ListMessages(context.Background(), sessionID)
	require.NoError(t, err)
	return messages
}

func senders(messages []domain.Message) []domain.Sender {
	out := make([]domain.Sender, len(messages))
	for i, m := range messages {
		out[i] = m.Sender
	}
	return out
}
