// Package realtime is the publish sink for UI updates. Channels are
// deterministic functions of conversation and mailbox slugs; the state
// machine publishes exactly two event names through it.
package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// MessageType represents the type of WebSocket frame
type MessageType string

const (
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeUnsubscribe MessageType = "unsubscribe"
	MessageTypeEvent       MessageType = "event"
	MessageTypeError       MessageType = "error"
)

// Realtime event names published by the conversation state machine
const (
	EventConversationUpdated       = "conversation.updated"
	EventConversationStatusChanged = "conversation.statusChanged"
)

// ConversationChannel returns the per-conversation channel name
func ConversationChannel(slug string) string {
	return "conversation:" + slug
}

// MailboxListChannel returns the mailbox-wide conversation-list channel name
func MailboxListChannel(mailboxSlug string) string {
	return "mailbox:" + mailboxSlug + ":conversations"
}

// Publisher is the sink interface consumed by the conversation service
type Publisher interface {
	Publish(channel, event string, data interface{})
}

// WSMessage represents a WebSocket frame
type WSMessage struct {
	Type    MessageType `json:"type"`
	Channel string      `json:"channel,omitempty"`
	Event   string      `json:"event,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Hub maintains the set of active clients and their channel subscriptions
type Hub struct {
	clients map[*Client]bool

	// Channel subscriptions: channel name -> set of clients
	subscriptions map[string]map[*Client]bool

	register    chan *Client
	unregister  chan *Client
	subscribe   chan *subscriptionRequest
	unsubscribe chan *subscriptionRequest
	broadcast   chan *broadcastMessage

	mu sync.RWMutex

	logger *slog.Logger
}

type subscriptionRequest struct {
	client  *Client
	channel string
}

type broadcastMessage struct {
	channel string
	frame   []byte
}

// NewHub creates a new Hub instance
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:       make(map[*Client]bool),
		subscriptions: make(map[string]map[*Client]bool),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		subscribe:     make(chan *subscriptionRequest),
		unsubscribe:   make(chan *subscriptionRequest),
		broadcast:     make(chan *broadcastMessage, 256),
		logger:        logger,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			if h.logger != nil {
				h.logger.Debug("client registered")
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				for channel, subscribers := range h.subscriptions {
					delete(subscribers, client)
					if len(subscribers) == 0 {
						delete(h.subscriptions, channel)
					}
				}
			}
			h.mu.Unlock()
			if h.logger != nil {
				h.logger.Debug("client unregistered")
			}

		case req := <-h.subscribe:
			h.mu.Lock()
			if h.subscriptions[req.channel] == nil {
				h.subscriptions[req.channel] = make(map[*Client]bool)
			}
			h.subscriptions[req.channel][req.client] = true
			h.mu.Unlock()
			if h.logger != nil {
				h.logger.Debug("client subscribed", slog.String("channel", req.channel))
			}

		case req := <-h.unsubscribe:
			h.mu.Lock()
			if subscribers, ok := h.subscriptions[req.channel]; ok {
				delete(subscribers, req.client)
				if len(subscribers) == 0 {
					delete(h.subscriptions, req.channel)
				}
			}
			h.mu.Unlock()
			if h.logger != nil {
				h.logger.Debug("client unsubscribed", slog.String("channel", req.channel))
			}

		case msg := <-h.broadcast:
			h.mu.RLock()
			subscribers := h.subscriptions[msg.channel]
			for client := range subscribers {
				select {
				case client.send <- msg.frame:
				default:
					// Client buffer full, skip
				}
			}
			h.mu.RUnlock()
		}
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

// Subscribe subscribes a client to a channel
func (h *Hub) Subscribe(client *Client, channel string) {
	h.subscribe <- &subscriptionRequest{client: client, channel: channel}
}

// Unsubscribe unsubscribes a client from a channel
func (h *Hub) Unsubscribe(client *Client, channel string) {
	h.unsubscribe <- &subscriptionRequest{client: client, channel: channel}
}

// Publish broadcasts a named event to all subscribers of a channel
func (h *Hub) Publish(channel, event string, data interface{}) {
	msg := WSMessage{
		Type:    MessageTypeEvent,
		Channel: channel,
		Event:   event,
		Data:    data,
	}

	frame, err := json.Marshal(msg)
	if err != nil {
		if h.logger != nil {
			h.logger.Error("failed to marshal broadcast frame", slog.Any("error", err))
		}
		return
	}

	h.broadcast <- &broadcastMessage{channel: channel, frame: frame}
}
