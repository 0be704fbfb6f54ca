package handlers

import (
	"net/http"

	"github.com/dom/social-backend/internal/service"
	"github.com/dom/social-backend/internal/websocket"
	ws "github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = ws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// FeedHandler upgrades authenticated clients onto the live post feed.
type FeedHandler struct {
	hub         *websocket.Hub
	authService *service.AuthService
	logger      *zap.Logger
}

func NewFeedHandler(hub *websocket.Hub, authService *service.AuthService, logger *zap.Logger) *FeedHandler {
	return &FeedHandler{
		hub:         hub,
		authService: authService,
		logger:      logger.Named("feed_handler"),
	}
}

func (h *FeedHandler) Handle(w http.ResponseWriter, r *http.Request) {
	// Browsers cannot set headers on a websocket handshake.
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "Token required", http.StatusUnauthorized)
		return
	}

	claims, err := h.authService.ValidateToken(token)
	if err != nil {
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}
	userID, err := claims.UserID()
	if err != nil {
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := websocket.NewClient(h.hub, conn, userID)
	h.hub.Register(client)

	if msg, err := websocket.NewMessage(websocket.MessageTypeConnected, websocket.ConnectedPayload{UserID: userID.String()}); err == nil {
		client.Send(msg)
	}

	go client.WritePump()
	go client.ReadPump()
}
