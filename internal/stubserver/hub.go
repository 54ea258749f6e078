package stubserver

import (
	"context"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Pnishada/service-desk/internal/api/dto"
)

// Hub is the live notification fan-out: one websocket endpoint,
// authenticated by an access token supplied as a query parameter at connect
// time, delivering frames to the sessions of the addressed user.
type Hub struct {
	upgrader websocket.Upgrader
	tokens   *TokenManager
	logger   *zap.Logger
	server   *http.Server

	mu    sync.Mutex
	conns map[*websocket.Conn]int64
}

// NewHub builds the hub.
func NewHub(tokens *TokenManager, logger *zap.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		tokens: tokens,
		logger: logger,
		conns:  make(map[*websocket.Conn]int64),
	}
}

// Serve runs the hub on the given listener until Shutdown.
func (h *Hub) Serve(ln net.Listener) {
	h.server = &http.Server{Handler: h}
	go func() {
		if err := h.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			h.logger.Warn("notification hub stopped", zap.Error(err))
		}
	}()
}

// Shutdown closes the hub and every open connection.
func (h *Hub) Shutdown(ctx context.Context) {
	h.mu.Lock()
	for conn := range h.conns {
		_ = conn.Close()
	}
	h.conns = make(map[*websocket.Conn]int64)
	h.mu.Unlock()

	if h.server != nil {
		_ = h.server.Shutdown(ctx)
	}
}

// ServeHTTP upgrades an authenticated request to a websocket subscription.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, err := h.tokens.Parse(r.URL.Query().Get("token"), TokenKindAccess)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	userID := claims.UserID()
	h.mu.Lock()
	h.conns[conn] = userID
	h.mu.Unlock()
	h.logger.Debug("notification client connected", zap.Int64("user_id", userID))

	// Drain until the peer goes away; the hub never expects inbound frames.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		h.mu.Lock()
		delete(h.conns, conn)
		h.mu.Unlock()
		_ = conn.Close()
	}()
}

// Broadcast delivers a notification frame to every session of the user.
func (h *Hub) Broadcast(userID int64, payload dto.NotificationPayload) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, owner := range h.conns {
		if owner != userID {
			continue
		}
		if err := conn.WriteJSON(payload); err != nil {
			h.logger.Debug("notification write failed", zap.Error(err))
		}
	}
}

// BroadcastRaw sends an arbitrary text frame to every session of the user.
// Tests use it to exercise the client's malformed-frame handling.
func (h *Hub) BroadcastRaw(userID int64, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, owner := range h.conns {
		if owner != userID {
			continue
		}
		_ = conn.WriteMessage(websocket.TextMessage, data)
	}
}
