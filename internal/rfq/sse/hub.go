package sse

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 事件类型
const (
	EventQuoteUpdate  = "quote_update"
	EventQuoteRemoved = "quote_removed"
	EventQuoteList    = "quote_list"
	EventToast        = "toast"
)

const clientBuffer = 64

// Event represents a Server-Sent Event
type Event struct {
	EventType string `json:"event"`
	Data      string `json:"data"`
}

// Client represents a connected subscriber
type Client struct {
	ID     string
	UserID string
	Events chan Event
}

// Hub fans view-state changes and toasts out to every subscriber. A slow
// subscriber loses events instead of blocking the publisher.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *zap.Logger
}

// NewHub creates a new Hub
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

// Register adds a new client to the hub
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	h.logger.Debug("sse client registered", zap.String("id", client.ID), zap.String("user", client.UserID), zap.Int("total", len(h.clients)))
}

// Unregister removes a client from the hub and closes its channel.
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, ok := h.clients[clientID]; ok {
		close(client.Events)
		delete(h.clients, clientID)
		h.logger.Debug("sse client unregistered", zap.String("id", clientID), zap.Int("total", len(h.clients)))
	}
}

// Subscribe registers a buffered client for userID. The returned func
// unregisters it and is safe to call more than once.
func (h *Hub) Subscribe(userID string) (*Client, func()) {
	client := &Client{
		ID:     fmt.Sprintf("%s_%d_%s", userID, time.Now().UnixNano(), uuid.New().String()[:8]),
		UserID: userID,
		Events: make(chan Event, clientBuffer),
	}
	h.Register(client)
	var once sync.Once
	return client, func() { once.Do(func() { h.Unregister(client.ID) }) }
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends an event to all connected clients
func (h *Hub) Broadcast(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.Events <- event:
		default:
			h.logger.Warn("sse client buffer full, skipping event", zap.String("id", client.ID), zap.String("event", event.EventType))
		}
	}
}

// Publish encodes payload as JSON and broadcasts it.
func (h *Hub) Publish(eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("sse encode payload", zap.String("event", eventType), zap.Error(err))
		return
	}
	h.Broadcast(Event{EventType: eventType, Data: string(data)})
}
