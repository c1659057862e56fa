package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/points-economy/internal/domain"
)

// Message types
const (
	MessageTypeHeistNotification = "heist_notification"
	MessageTypeLeaderboardUpdate = "leaderboard_update"
	MessageTypeSubscribe         = "subscribe"
	MessageTypeUnsubscribe       = "unsubscribe"
	MessageTypePing              = "ping"
	MessageTypePong              = "pong"
	MessageTypeError             = "error"
)

// Channel name helpers. Clients subscribe to their own user channel for
// heist pushes and to leaderboard channels for ranking refreshes.
func UserChannel(userID string) string {
	return "user:" + userID
}

func LeaderboardChannel(scope domain.Scope, period domain.Period) string {
	return "leaderboard:" + scope.Key() + ":" + string(period)
}

// Message represents a WebSocket message
type Message struct {
	Type      string      `json:"type"`
	Channel   string      `json:"channel,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// HeistNotification is the victim-facing payload pushed after a
// committed heist.
type HeistNotification struct {
	ThiefID      string    `json:"thief_id"`
	VictimID     string    `json:"victim_id"`
	PointsStolen int64     `json:"points_stolen"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Hub maintains the set of active clients and routes messages to channel
// subscribers. It implements the heist engine's notifier: delivery is
// best-effort and can never block or undo a committed heist.
type Hub struct {
	// Registered clients by channel
	clients map[string]map[*Client]bool

	// All connected clients
	allClients map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Inbound messages to route
	broadcast chan *Message

	// Subscription requests
	subscribe chan *subscriptionRequest

	// Unsubscription requests
	unsubscribe chan *subscriptionRequest

	// Mutex for thread-safe operations
	mu sync.RWMutex

	// Logger
	logger *slog.Logger

	// Context for shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

type subscriptionRequest struct {
	client  *Client
	channel string
}

// NewHub creates a new Hub
func NewHub(logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:     make(map[string]map[*Client]bool),
		allClients:  make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *Message, 256),
		subscribe:   make(chan *subscriptionRequest, 64),
		unsubscribe: make(chan *subscriptionRequest, 64),
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.allClients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.allClients[client]; ok {
				delete(h.allClients, client)
				// Remove from all channel subscriptions
				for channel, clients := range h.clients {
					if _, ok := clients[client]; ok {
						delete(clients, client)
						if len(clients) == 0 {
							delete(h.clients, channel)
						}
					}
				}
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", "client_id", client.id)

		case req := <-h.subscribe:
			h.mu.Lock()
			if _, ok := h.clients[req.channel]; !ok {
				h.clients[req.channel] = make(map[*Client]bool)
			}
			h.clients[req.channel][req.client] = true
			h.mu.Unlock()
			h.logger.Debug("client subscribed", "client_id", req.client.id, "channel", req.channel)

		case req := <-h.unsubscribe:
			h.mu.Lock()
			if clients, ok := h.clients[req.channel]; ok {
				delete(clients, req.client)
				if len(clients) == 0 {
					delete(h.clients, req.channel)
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client unsubscribed", "client_id", req.client.id, "channel", req.channel)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

// broadcastMessage sends a message to the channel's subscribers, or to
// everyone when no channel is set.
func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	if message.Channel != "" {
		if clients, ok := h.clients[message.Channel]; ok {
			for client := range clients {
				select {
				case client.send <- data:
				default:
					// Client's buffer is full, skip
					h.logger.Warn("client buffer full, skipping", "client_id", client.id)
				}
			}
		}
	} else {
		for client := range h.allClients {
			select {
			case client.send <- data:
			default:
				h.logger.Warn("client buffer full, skipping", "client_id", client.id)
			}
		}
	}
}

// NotifyHeist pushes a committed heist to the victim's channel. Dropped
// when the broadcast queue is full; the ledger is already committed and
// the push is purely informational.
func (h *Hub) NotifyHeist(attempt domain.HeistAttempt) {
	message := &Message{
		Type:    MessageTypeHeistNotification,
		Channel: UserChannel(attempt.VictimID),
		Data: HeistNotification{
			ThiefID:      attempt.ThiefID,
			VictimID:     attempt.VictimID,
			PointsStolen: attempt.PointsStolen,
			OccurredAt:   attempt.Timestamp,
		},
		Timestamp: time.Now(),
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping heist notification")
	}
}

// BroadcastLeaderboard pushes a refreshed snapshot to the scope's
// subscribers.
func (h *Hub) BroadcastLeaderboard(snapshot *domain.LeaderboardSnapshot) {
	message := &Message{
		Type:      MessageTypeLeaderboardUpdate,
		Channel:   LeaderboardChannel(snapshot.Scope, snapshot.Period),
		Data:      snapshot,
		Timestamp: time.Now(),
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping leaderboard update")
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribe adds a client to a channel
func (h *Hub) Subscribe(client *Client, channel string) {
	h.subscribe <- &subscriptionRequest{
		client:  client,
		channel: channel,
	}
}

// Unsubscribe removes a client from a channel
func (h *Hub) Unsubscribe(client *Client, channel string) {
	h.unsubscribe <- &subscriptionRequest{
		client:  client,
		channel: channel,
	}
}

// GetSubscriberCount returns the number of subscribers for a channel
func (h *Hub) GetSubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if clients, ok := h.clients[channel]; ok {
		return len(clients)
	}
	return 0
}

// GetTotalConnections returns the total number of connected clients
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}
