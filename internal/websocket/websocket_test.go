package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cloudvault/internal/events"
	"cloudvault/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSubscriber struct {
	patterns []string
	messages map[string][]byte
}

func (f *fakeSubscriber) PSubscribe(ctx context.Context, patterns []string, handler func(channel string, payload []byte)) error {
	f.patterns = patterns
	for channel, payload := range f.messages {
		handler(channel, payload)
	}
	<-ctx.Done()
	return ctx.Err()
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func TestHubRoutesByUserChannel(t *testing.T) {
	hub := startHub(t)
	alice, bob := uuid.New(), uuid.New()
	a := &Client{ID: "a", UserID: alice, Channel: events.UserChannel(alice), Send: make(chan []byte, 1)}
	b := &Client{ID: "b", UserID: bob, Channel: events.UserChannel(bob), Send: make(chan []byte, 1)}
	hub.Register(a)
	hub.Register(b)
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	hub.Broadcast(events.UserChannel(alice), []byte("hello"))
	assert.Equal(t, []byte("hello"), <-a.Send)
	assert.Empty(t, b.Send)

	hub.Unregister(a)
	require.Eventually(t, func() bool { return hub.SubscriberCount(events.UserChannel(alice)) == 0 }, time.Second, 5*time.Millisecond)
	_, open := <-a.Send
	assert.False(t, open)

	// Unregistering twice must not close Send again.
	hub.Unregister(a)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSendMessageDropsWhenFull(t *testing.T) {
	c := &Client{Send: make(chan []byte, 1)}
	c.SendMessage([]byte("1"))
	c.SendMessage([]byte("2"))
	assert.Len(t, c.Send, 1)
}

func TestRedisBridgeForwardsUserChannels(t *testing.T) {
	hub := startHub(t)
	userID := uuid.New()
	client := &Client{ID: "c", UserID: userID, Channel: events.UserChannel(userID), Send: make(chan []byte, 1)}
	hub.Register(client)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	sub := &fakeSubscriber{messages: map[string][]byte{events.UserChannel(userID): []byte(`{"event_type":"encryption.key_exchange","payload":{}}`)}}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewRedisBridge(sub, hub, nil).Run(ctx) }()

	select {
	case msg := <-client.Send:
		assert.Contains(t, string(msg), "encryption.key_exchange")
	case <-time.After(time.Second):
		t.Fatal("message not forwarded")
	}
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, []string{events.UserChannelPattern}, sub.patterns)
}

func TestRedisBridgeDropsMalformedMessages(t *testing.T) {
	hub := startHub(t)
	userID := uuid.New()
	client := &Client{ID: "c", UserID: userID, Channel: events.UserChannel(userID), Send: make(chan []byte, 1)}
	hub.Register(client)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	sub := &fakeSubscriber{messages: map[string][]byte{events.UserChannel(userID): []byte(`{"payload":"no type"}`)}}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewRedisBridge(sub, hub, nil).Run(ctx) }()

	select {
	case msg := <-client.Send:
		t.Fatalf("unexpected message %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestConnectStreamsUserChannel(t *testing.T) {
	hub := startHub(t)
	auth := services.NewAuthService("secret", time.Minute)
	userID := uuid.New()
	token, err := auth.IssueAccessToken(userID)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/ws", NewHandler(auth, hub, nil).Connect)
	srv := httptest.NewServer(r)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := gorilla.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := gorilla.DefaultDialer.Dial(wsURL+"?token="+token, nil)
	require.NoError(t, err)
	defer conn.Close()

	channel := events.UserChannel(userID)
	require.Eventually(t, func() bool { return hub.SubscriberCount(channel) == 1 }, time.Second, 5*time.Millisecond)

	hub.Broadcast(channel, []byte(`{"eventType":"encryption.enabled"}`))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"eventType":"encryption.enabled"}`, string(msg))

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.SubscriberCount(channel) == 0 }, 2*time.Second, 10*time.Millisecond)
}
