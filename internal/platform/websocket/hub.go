// Package websocket fans domain events out to connected clients. Clients
// subscribe to topics such as "conversation/<id>" or "user/<id>" and receive
// every event published to those topics.
package websocket

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/feelwell/feelwell/internal/platform/auth"
)

// Event types.
const (
	EventMessageAppended     = "message.appended"
	EventConversationCreated = "conversation.created"
	EventConversationUpdated = "conversation.updated"
	EventConversationClosed  = "conversation.closed"
	EventConversationDeleted = "conversation.deleted"
	EventDirectMessageSent   = "direct_message.sent"
	EventDirectMessageRead   = "direct_message.read"
	EventDirectMessageDelete = "direct_message.deleted"
	EventAppointmentCreated  = "appointment.created"
	EventAppointmentUpdated  = "appointment.updated"
	EventAppointmentDeleted  = "appointment.deleted"
)

// Event is a real-time notification sent to subscribed clients.
type Event struct {
	Type         string          `json:"type"`
	Topic        string          `json:"topic"`
	ResourceType string          `json:"resourceType"`
	ResourceID   string          `json:"resourceId,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	Data         json.RawMessage `json:"data,omitempty"`
}

// ClientMessage is an inbound subscribe/unsubscribe request.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// EventPublisher delivers events to subscribers, locally or through a broker.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

func ConversationTopic(id string) string { return "conversation/" + id }

func UserTopic(id string) string { return "user/" + id }

// NewEvent builds an event for topic with data marshalled to JSON. A value
// that cannot be marshalled is dropped from the event.
func NewEvent(eventType, topic, resourceType, resourceID string, data interface{}) Event {
	evt := Event{
		Type:         eventType,
		Topic:        topic,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Timestamp:    time.Now().UTC(),
	}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			evt.Data = raw
		}
	}
	return evt
}

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is a single WebSocket connection and its subscriptions.
type Client struct {
	ID     string
	UserID string
	Roles  []string
	Topics []string
	Send   chan []byte
	hub    *Hub
	conn   Conn
}

func (c *Client) isAdmin() bool {
	for _, r := range c.Roles {
		if r == auth.RoleAdmin {
			return true
		}
	}
	return false
}

// CanSubscribe checks the shape of topic against the client. A user topic is
// private to its owner; admins may read any topic. Conversation topics are
// further checked by the hub's ConversationAuthorizer.
func (c *Client) CanSubscribe(topic string) bool {
	if c.isAdmin() {
		return true
	}
	switch {
	case strings.HasPrefix(topic, "user/"):
		return c.UserID != "" && topic == UserTopic(c.UserID)
	case strings.HasPrefix(topic, "conversation/"):
		return len(topic) > len("conversation/")
	default:
		return false
	}
}

// ConversationAuthorizer decides whether the caller in ctx may read a
// conversation.
type ConversationAuthorizer interface {
	CanAccessConversation(ctx context.Context, conversationID string) bool
}

const authorizeTimeout = 5 * time.Second

// Hub tracks clients and their topic subscriptions.
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]map[*Client]struct{} // topic -> set of clients
	all        map[*Client]struct{}
	authorizer ConversationAuthorizer
	logger     zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
		logger:  logger,
	}
}

// AuthorizeConversations sets the check applied to conversation topic
// subscriptions. Without one, only admins may subscribe to them.
func (h *Hub) AuthorizeConversations(a ConversationAuthorizer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.authorizer = a
}

func (h *Hub) allowed(client *Client, topic string) bool {
	if !client.CanSubscribe(topic) {
		return false
	}
	id, ok := strings.CutPrefix(topic, "conversation/")
	if !ok || client.isAdmin() {
		return true
	}

	h.mu.RLock()
	a := h.authorizer
	h.mu.RUnlock()
	if a == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), authorizeTimeout)
	defer cancel()
	return a.CanAccessConversation(auth.WithUser(ctx, client.UserID, client.Roles), id)
}

// Register adds a client to the hub and subscribes it to its initial topics.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	for _, topic := range client.Topics {
		h.addLocked(topic, client)
	}
}

func (h *Hub) addLocked(topic string, client *Client) {
	if h.clients[topic] == nil {
		h.clients[topic] = make(map[*Client]struct{})
	}
	h.clients[topic][client] = struct{}{}
}

func (h *Hub) removeLocked(topic string, client *Client) {
	if subscribers, ok := h.clients[topic]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.clients, topic)
		}
	}
}

// Unregister removes a client from every topic and closes its Send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	for _, topic := range client.Topics {
		h.removeLocked(topic, client)
	}
	delete(h.all, client)
	close(client.Send)
}

// Subscribe adds the topics the client is allowed to see and returns the
// ones it was refused.
func (h *Hub) Subscribe(client *Client, topics []string) []string {
	var granted, denied []string
	for _, topic := range topics {
		if h.allowed(client, topic) {
			granted = append(granted, topic)
		} else {
			denied = append(denied, topic)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, topic := range granted {
		if _, already := h.clients[topic][client]; already {
			continue
		}
		h.addLocked(topic, client)
		client.Topics = append(client.Topics, topic)
	}
	return denied
}

func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	removeSet := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		removeSet[t] = struct{}{}
		h.removeLocked(t, client)
	}

	remaining := make([]string, 0, len(client.Topics))
	for _, t := range client.Topics {
		if _, rm := removeSet[t]; !rm {
			remaining = append(remaining, t)
		}
	}
	client.Topics = remaining
}

// ProcessMessage dispatches a client request to Subscribe or Unsubscribe.
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) []string {
	switch msg.Action {
	case "subscribe":
		return h.Subscribe(client, msg.Topics)
	case "unsubscribe":
		h.Unsubscribe(client, msg.Topics)
	}
	return nil
}

// Broadcast sends an event to all clients subscribed to the given topic.
func (h *Hub) Broadcast(topic string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn().Err(err).Str("topic", topic).Msg("marshal websocket event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[topic] {
		select {
		case client.Send <- data:
		default:
			h.logger.Warn().Str("client_id", client.ID).Str("topic", topic).Msg("websocket client buffer full, dropping event")
		}
	}
}

// Publish broadcasts the event to subscribers of its topic on this instance.
func (h *Hub) Publish(_ context.Context, event Event) error {
	h.Broadcast(event.Topic, event)
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}
