package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dom/social-backend/internal/domain"
	"github.com/dom/social-backend/internal/eventbus"
	"go.uber.org/zap"
)

// Hub fans post events out to every connected feed client.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	stop       chan struct{}
	stopOnce   sync.Once
	done       chan struct{} // closed when Run() exits
	stopped    bool
	logger     *zap.Logger
	mu         sync.RWMutex
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		logger:     logger.Named("feed"),
	}
}

func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.stop:
			h.mu.Lock()
			h.stopped = true
			for client := range h.clients {
				client.Close()
			}
			h.clients = make(map[*Client]bool)
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if !h.stopped {
				h.clients[client] = true
			}
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			h.mu.Unlock()

		case data := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.trySend(data) {
					// Slow consumer; drop it rather than stall the feed.
					delete(h.clients, client)
					client.Close()
					h.logger.Warn("dropped slow feed client", zap.String("user_id", client.userID.String()))
				}
			}
			h.mu.Unlock()
		}
	}
}

// Stop closes every client and blocks until Run has exited. It may be
// called any number of times, concurrently.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
	<-h.done
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.Close()
	}
}

// Unregister is safe to call after the hub stopped.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues msg for every client. It returns false when the hub is
// stopped or its queue is full.
func (h *Hub) Broadcast(msg *Message) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal feed message", zap.Error(err))
		return false
	}
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case h.broadcast <- data:
		return true
	default:
		h.logger.Warn("feed broadcast queue full", zap.String("type", string(msg.Type)))
		return false
	}
}

func (h *Hub) Subscriptions() map[string]eventbus.Handler {
	return map[string]eventbus.Handler{
		domain.TopicPostCreated: h.HandleEvent,
		domain.TopicPostDeleted: h.HandleEvent,
	}
}

// HandleEvent forwards a post event to connected clients. The feed is
// best effort, so a full queue is logged and not treated as a failure.
func (h *Hub) HandleEvent(_ context.Context, event *domain.Event) error {
	var msgType MessageType
	switch event.Topic {
	case domain.TopicPostCreated:
		msgType = MessageTypePostCreated
	case domain.TopicPostDeleted:
		msgType = MessageTypePostDeleted
	default:
		return fmt.Errorf("feed: unexpected topic %q", event.Topic)
	}

	msg := &Message{
		Type:      msgType,
		Payload:   event.Data,
		Timestamp: event.OccurredAt.UnixMilli(),
		EventID:   event.ID,
	}
	h.Broadcast(msg)
	return nil
}
