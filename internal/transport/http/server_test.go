package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xiaot623/medeval/internal/auth"
	"github.com/xiaot623/medeval/internal/config"
	"github.com/xiaot623/medeval/internal/domain"
	"github.com/xiaot623/medeval/internal/hub"
	"github.com/xiaot623/medeval/internal/policy"
	"github.com/xiaot623/medeval/internal/service"
	"github.com/xiaot623/medeval/internal/testutil"
)

type testServer struct {
	e        *echo.Echo
	hub      *hub.Hub
	verifier *auth.Verifier
}

func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	db := testutil.NewTestSQLiteStore(t)
	testutil.SeedSubjects(t, db, testutil.Evaluator, testutil.Trainee)
	engine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	require.NoError(t, err)

	h := hub.New(zap.NewNop())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})

	cfg.ModelTimeout = time.Second
	cfg.SessionLockWait = time.Second
	svc := service.New(db, testutil.NewFakeModel("Welcome, first question?"), engine, h, cfg, zap.NewNop())
	verifier := auth.NewVerifier("test-secret")
	return &testServer{
		e:        NewServer(cfg, svc, verifier, h, zap.NewNop()),
		hub:      h,
		verifier: verifier,
	}
}

func (s *testServer) token(t *testing.T, p domain.Principal) string {
	t.Helper()
	token, err := s.verifier.Issue(p, time.Hour)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(method, target, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body domain.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Code
}

func TestServerRouting(t *testing.T) {
	s := newTestServer(t, &config.Config{})

	rec := s.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/v1/me/sessions", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthenticated", errorCode(t, rec))

	rec = s.do(http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorCode(t, rec))

	evaluatorToken := s.token(t, domain.Principal{ActorID: testutil.Evaluator.UserID, Role: domain.RoleEvaluator})
	rec = s.do(http.MethodPost, "/v1/sessions", evaluatorToken, `{"subject_id":"`+testutil.Trainee.UserID+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	traineeToken := s.token(t, domain.Principal{ActorID: testutil.Trainee.UserID, Role: domain.RoleTrainee})
	rec = s.do(http.MethodGet, "/v1/me/sessions", traineeToken, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), testutil.Evaluator.Name)
}

func TestServerRateLimit(t *testing.T) {
	s := newTestServer(t, &config.Config{RateLimitPerMinute: 1})

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health", "", "").Code)
	rec := s.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", errorCode(t, rec))
}

func TestServerRateLimitAllowsBurstPerMinute(t *testing.T) {
	s := newTestServer(t, &config.Config{RateLimitPerMinute: 10})

	for i := 0; i < 10; i++ {
		require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health", "", "").Code, "request %d", i)
	}
	assert.Equal(t, http.StatusTooManyRequests, s.do(http.MethodGet, "/health", "", "").Code)
}

func TestServerStreamsSessionEvents(t *testing.T) {
	s := newTestServer(t, &config.Config{})
	srv := httptest.NewServer(s.e)
	defer srv.Close()

	token := s.token(t, domain.Principal{ActorID: testutil.Evaluator.UserID, Role: domain.RoleEvaluator})
	rec := s.do(http.MethodPost, "/v1/sessions", token, `{"subject_id":"`+testutil.Trainee.UserID+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var started domain.StartSessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/sessions/" + started.SessionID + "/stream?access_token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return s.hub.SubscriberCount(started.SessionID) == 1 }, time.Second, 5*time.Millisecond)

	rec = s.do(http.MethodPost, "/v1/sessions/"+started.SessionID+"/turns", token, `{"message":"__system_init"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev domain.SessionEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, domain.EventTypeMessage, ev.Type)
	require.NotNil(t, ev.Message)
	assert.Equal(t, domain.SenderAssistant, ev.Message.Sender)
	assert.Equal(t, "Welcome, first question?", ev.Message.Content)
}
