package hub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xiaot623/medeval/internal/domain"
)

func receive(t *testing.T, conn *Connection) domain.SessionEvent {
	t.Helper()
	select {
	case data, ok := <-conn.Send:
		require.True(t, ok, "send channel closed")
		var ev domain.SessionEvent
		require.NoError(t, json.Unmarshal(data, &ev))
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return domain.SessionEvent{}
}

func TestHubPublishToSessionSubscribers(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	h := New(zap.NewNop())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	a := h.NewConnection(nil, "s1")
	b := h.NewConnection(nil, "s2")
	h.Register(a)
	h.Register(b)
	require.Eventually(t, func() bool { return h.SubscriberCount("s1") == 1 && h.SubscriberCount("s2") == 1 }, time.Second, 5*time.Millisecond)

	h.Publish(domain.SessionEvent{
		Type:      domain.EventTypeMessage,
		SessionID: "s1",
		Message:   &domain.Message{MessageID: "m1", Sender: domain.SenderAssistant, Content: "hello"},
	})

	ev := receive(t, a)
	assert.Equal(t, domain.EventTypeMessage, ev.Type)
	assert.Equal(t, "hello", ev.Message.Content)
	assert.NotZero(t, ev.Ts)

	select {
	case <-b.Send:
		t.Fatal("subscriber of another session received the event")
	case <-time.After(50 * time.Millisecond):
	}

	h.Unregister(a)
	require.Eventually(t, func() bool { return h.SubscriberCount("s1") == 0 }, time.Second, 5*time.Millisecond)
	_, ok := <-a.Send
	assert.False(t, ok)

	cancel()
	<-stopped
	_, ok = <-b.Send
	assert.False(t, ok, "stopping the hub closes remaining subscribers")
}

func TestHubStoppedDoesNotBlock(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	h := New(zap.NewNop())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	conn := h.NewConnection(nil, "s1")
	h.Register(conn)
	h.Unregister(conn)
	h.Publish(domain.SessionEvent{Type: domain.EventTypeSessionClosed, SessionID: "s1"})
	_, ok := <-conn.Send
	assert.False(t, ok)
}
