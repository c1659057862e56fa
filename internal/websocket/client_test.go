package websocket

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/points-economy/internal/domain"
	"github.com/stretchr/testify/require"
)

// testClient builds a client without a live connection; handleMessage
// and the send buffer are exercised directly.
func testClient(hub *Hub) *Client {
	return &Client{
		id:            "test-client",
		hub:           hub,
		send:          make(chan []byte, 256),
		subscriptions: make(map[string]bool),
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func recvMessage(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.send:
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
		return Message{}
	}
}

func TestValidChannel(t *testing.T) {
	require.True(t, validChannel("user:alice"))
	require.True(t, validChannel("leaderboard:global:all"))
	require.False(t, validChannel("user:"))
	require.False(t, validChannel("leaderboard:"))
	require.False(t, validChannel("admin:alice"))
	require.False(t, validChannel(""))
}

func TestSubscribeRejectsUnknownNamespace(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	go hub.Run()
	defer hub.Stop()

	client := testClient(hub)
	client.handleMessage(&ClientMessage{Type: MessageTypeSubscribe, Channel: "admin:alice"})

	msg := recvMessage(t, client)
	require.Equal(t, MessageTypeError, msg.Type)
	require.Zero(t, hub.GetSubscriberCount("admin:alice"))
}

func TestSubscribeUserChannelReceivesHeistPush(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	go hub.Run()
	defer hub.Stop()

	client := testClient(hub)
	hub.Register(client)

	client.handleMessage(&ClientMessage{Type: MessageTypeSubscribe, Channel: UserChannel("victim")})
	ack := recvMessage(t, client)
	require.Equal(t, "subscribed", ack.Type)

	require.Eventually(t, func() bool {
		return hub.GetSubscriberCount(UserChannel("victim")) == 1
	}, time.Second, 5*time.Millisecond)

	hub.NotifyHeist(domain.HeistAttempt{
		ThiefID:      "thief",
		VictimID:     "victim",
		Outcome:      domain.OutcomeSuccess,
		PointsStolen: 20,
		Timestamp:    time.Now(),
	})

	push := recvMessage(t, client)
	require.Equal(t, MessageTypeHeistNotification, push.Type)
	require.Equal(t, UserChannel("victim"), push.Channel)
}

func TestSubscribeIsIdempotent(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	go hub.Run()
	defer hub.Stop()

	client := testClient(hub)
	channel := LeaderboardChannel(domain.Scope{Type: domain.ScopeGlobal}, domain.PeriodAllTime)

	client.handleMessage(&ClientMessage{Type: MessageTypeSubscribe, Channel: channel})
	client.handleMessage(&ClientMessage{Type: MessageTypeSubscribe, Channel: channel})

	require.Equal(t, "subscribed", recvMessage(t, client).Type)
	require.Equal(t, "subscribed", recvMessage(t, client).Type)
	require.Len(t, client.subscriptions, 1)
}

func TestSubscriptionCap(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	go hub.Run()
	defer hub.Stop()

	client := testClient(hub)
	for i := 0; i < maxSubscriptions; i++ {
		client.handleMessage(&ClientMessage{
			Type:    MessageTypeSubscribe,
			Channel: fmt.Sprintf("user:u%d", i),
		})
		require.Equal(t, "subscribed", recvMessage(t, client).Type)
	}

	client.handleMessage(&ClientMessage{Type: MessageTypeSubscribe, Channel: "user:overflow"})
	msg := recvMessage(t, client)
	require.Equal(t, MessageTypeError, msg.Type)
	require.Len(t, client.subscriptions, maxSubscriptions)
}

func TestUnsubscribeIgnoresChannelsNotHeld(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	go hub.Run()
	defer hub.Stop()

	client := testClient(hub)
	client.handleMessage(&ClientMessage{Type: MessageTypeUnsubscribe, Channel: "user:alice"})

	select {
	case data := <-client.send:
		t.Fatalf("unexpected reply: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeHeldChannel(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	go hub.Run()
	defer hub.Stop()

	client := testClient(hub)
	client.handleMessage(&ClientMessage{Type: MessageTypeSubscribe, Channel: "user:alice"})
	require.Equal(t, "subscribed", recvMessage(t, client).Type)
	require.Eventually(t, func() bool {
		return hub.GetSubscriberCount("user:alice") == 1
	}, time.Second, 5*time.Millisecond)

	client.handleMessage(&ClientMessage{Type: MessageTypeUnsubscribe, Channel: "user:alice"})
	require.Equal(t, "unsubscribed", recvMessage(t, client).Type)
	require.Empty(t, client.subscriptions)
	require.Eventually(t, func() bool {
		return hub.GetSubscriberCount("user:alice") == 0
	}, time.Second, 5*time.Millisecond)
}
