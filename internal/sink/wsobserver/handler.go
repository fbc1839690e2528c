package wsobserver

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades HTTP requests to WebSocket connections and registers
// them with a Hub.
type Handler struct {
	hub    *Hub
	auth   Authenticator
	logger zerolog.Logger
}

// NewHandler builds a Handler serving connections into hub.
func NewHandler(hub *Hub, auth Authenticator, logger zerolog.Logger) *Handler {
	return &Handler{hub: hub, auth: auth, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if _, err := h.auth.Authenticate(r); err != nil {
		h.logger.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket authentication failed")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := NewClient(uuid.New().String(), h.hub, conn)
	h.hub.register <- client
	go client.Run()
}
