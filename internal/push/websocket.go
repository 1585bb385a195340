package push

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashvetsov/chatline/internal/identity"
	"github.com/ashvetsov/chatline/internal/store"
	"github.com/coder/websocket"
)

// WebSocketHandler upgrades HTTP requests into push sessions. Each accepted
// connection becomes one Session bound to the authenticated identity for its
// whole lifetime.
type WebSocketHandler struct {
	repo          store.Repository
	registry      *Registry
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a new push channel handler.
func NewWebSocketHandler(repo store.Repository, registry *Registry, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		repo:          repo,
		registry:      registry,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// clientFrame is what clients may send upstream. The push channel is
// one-directional for messages; only keepalive frames are accepted.
type clientFrame struct {
	Type string `json:"type"`
}

// ServeHTTP implements http.Handler for the WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	slog.Info("Push connection request", "user_id", userID, "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}

	sess := newWSSession(userID, ws)
	defer sess.Close("session ended")

	h.registry.Register(sess)
	defer h.registry.Unregister(userID, sess.ID())

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go sess.writeLoop(ctx)

	h.readLoop(ctx, ws, sess, userID)
	slog.Info("Push session ended", "user_id", userID, "session_id", sess.ID())
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

// readLoop consumes client frames until the connection drops. Its only jobs
// are keepalive and noticing the disconnect that unregisters the session.
func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, sess *wsSession, userID string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "user_id", userID, "session_id", sess.ID())
			} else if ctx.Err() == nil {
				slog.Warn("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		if frame.Type == "ping" {
			if err := ws.Write(ctx, websocket.MessageText, []byte(`{"type":"pong"}`)); err != nil {
				slog.Debug("Failed to send pong", "error", err, "user_id", userID)
				return
			}
		}

		// Update last seen asynchronously with timeout.
		go func() {
			updateCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := h.repo.UpdateLastSeen(updateCtx, userID, time.Now()); err != nil {
				slog.Warn("Failed to update last seen", "error", err)
			}
		}()
	}
}
