// internal/app/features/socket/handler.go
package socket

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/dalemusser/studyhub/internal/app/system/auth"
	"github.com/dalemusser/studyhub/internal/app/system/realtime"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handler upgrades GET /socket to a websocket and hands it to the router.
type Handler struct {
	Router      *realtime.Router
	RequireAuth bool
	Log         *zap.Logger

	upgrader websocket.Upgrader
}

// NewHandler creates a socket handler. allowedOrigins lists the browser
// origins permitted to connect; "*" allows any, and an empty list allows
// only same-origin requests. When requireAuth is set, anonymous upgrades are
// refused with 401.
func NewHandler(router *realtime.Router, allowedOrigins []string, requireAuth bool, logger *zap.Logger) *Handler {
	h := &Handler{
		Router:      router,
		RequireAuth: requireAuth,
		Log:         logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

// ServeSocket handles GET /socket.
func (h *Handler) ServeSocket(w http.ResponseWriter, r *http.Request) {
	var userID string
	if u, ok := auth.CurrentUser(r); ok {
		userID = u.ID
	}
	if userID == "" && h.RequireAuth {
		http.Error(w, "Not authorized", http.StatusUnauthorized)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.Log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	if _, err := h.Router.Serve(ws, userID, h.Log); err != nil {
		h.Log.Warn("socket rejected", zap.Error(err))
		_ = ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server shutting down"))
		_ = ws.Close()
	}
}

// originChecker returns nil (gorilla's same-origin check) for an empty list.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		o = strings.TrimRight(strings.ToLower(strings.TrimSpace(o)), "/")
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		if o != "" {
			set[o] = struct{}{}
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// non-browser clients
			return true
		}
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			return false
		}
		_, ok := set[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}
