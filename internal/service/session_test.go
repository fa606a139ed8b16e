package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/medeval/internal/domain"
	"github.com/xiaot623/medeval/internal/testutil"
)

func TestStartSessionCreatesThenResumes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.svc.StartSession(ctx, evaluator, testutil.Trainee.UserID)
	require.NoError(t, err)
	assert.False(t, first.Resumed)
	assert.Equal(t, testutil.Evaluator.UserID, first.EvaluatorID)

	session, err := env.store.GetSession(ctx, first.SessionID)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Nil(t, session.CompletedAt)

	second, err := env.svc.StartSession(ctx, evaluator, testutil.Trainee.UserID)
	require.NoError(t, err)
	assert.True(t, second.Resumed)
	assert.Equal(t, first.SessionID, second.SessionID)

	open, err := env.svc.FindOpenSession(ctx, evaluator, testutil.Trainee.UserID)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, first.SessionID, *open)
}

func TestStartSessionRejectsNonTrainee(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.StartSession(ctx, evaluator, testutil.Evaluator.UserID)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindValidation))
	assert.EqualError(t, err, "selected user is not a trainee")

	_, err = env.svc.StartSession(ctx, evaluator, "nobody")
	assert.True(t, domain.IsKind(err, domain.KindValidation))
	assert.EqualError(t, err, "subject not found")

	sessions, err := env.store.ListSubjectSessions(ctx, testutil.Evaluator.UserID)
	require.NoError(t, err)
	assert.Empty(t, sessions)
	open, err := env.store.FindOpenSession(ctx, evaluator.ActorID, testutil.Evaluator.UserID)
	require.NoError(t, err)
	assert.Nil(t, open)
}

func TestStartSessionRoleGate(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.StartSession(context.Background(), trainee, testutil.Trainee.UserID)
	assert.True(t, domain.IsKind(err, domain.KindForbidden))

	_, err = env.svc.StartSession(context.Background(), domain.Principal{Role: domain.RoleEvaluator}, testutil.Trainee.UserID)
	assert.True(t, domain.IsKind(err, domain.KindUnauthenticated))
}

func TestFindOpenSessionNone(t *testing.T) {
	env := newTestEnv(t)

	open, err := env.svc.FindOpenSession(context.Background(), evaluator, testutil.Trainee.UserID)
	require.NoError(t, err)
	assert.Nil(t, open)
}

func TestCloseSessionIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessionID := env.start(t)

	closed, err := env.svc.CloseSession(ctx, sessionID)
	require.NoError(t, err)
	assert.True(t, closed)

	session, err := env.store.GetSession(ctx, sessionID)
	require.NoError(t, err)
	require.NotNil(t, session.CompletedAt)
	completedAt := *session.CompletedAt

	closed, err = env.svc.CloseSession(ctx, sessionID)
	require.NoError(t, err)
	assert.False(t, closed)

	session, err = env.store.GetSession(ctx, sessionID)
	require.NoError(t, err)
	assert.True(t, completedAt.Equal(*session.CompletedAt))

	_, err = env.svc.CloseSession(ctx, "missing")
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
}

func TestGetTranscriptNotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.GetTranscript(context.Background(), evaluator, "missing")
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
}

func TestListSubjectSessions(t *testing.T) {
	env := newTestEnv(t, "greeting", "summary text")
	ctx := context.Background()
	sessionID := env.start(t)

	_, err := env.svc.SubmitTurn(ctx, evaluator, sessionID, domain.InitSentinel)
	require.NoError(t, err)
	_, err = env.svc.Finalize(ctx, evaluator, sessionID)
	require.NoError(t, err)

	sessions, err := env.svc.ListSubjectSessions(ctx, trainee, testutil.Trainee.UserID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, sessionID, sessions[0].SessionID)
	assert.Equal(t, testutil.Evaluator.Name, sessions[0].EvaluatorName)
	require.NotNil(t, sessions[0].Summary)
	assert.Equal(t, "summary text", *sessions[0].Summary)
	assert.NotNil(t, sessions[0].CompletedAt)

	_, err = env.svc.ListSubjectSessions(ctx, trainee, "someone-else")
	assert.True(t, domain.IsKind(err, domain.KindForbidden))

	_, err = env.svc.ListSubjectSessions(ctx, evaluator, testutil.Trainee.UserID)
	assert.True(t, domain.IsKind(err, domain.KindForbidden))
}
