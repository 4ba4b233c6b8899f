package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/rajeshbanoth/randomchat/internal/chathub"
)

// upgrader builds the per-handler websocket upgrader. An empty origin
// allowlist admits everything, which is the local-development mode.
func (h *Handler) upgrader() websocket.Upgrader {
	allowed := h.cfg.AllowedOrigins
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, a := range allowed {
				if strings.EqualFold(origin, a) {
					return true
				}
			}
			return false
		},
	}
}

// bearerToken pulls the JWT from the Authorization header, falling
// back to the token query parameter for browser WebSocket clients that
// cannot set headers.
func bearerToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return auth[len("Bearer "):]
	}
	return c.Query("token")
}

// ServeWebSocket authenticates the peer, upgrades the connection and
// hands it to the hub.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	tokenString := bearerToken(c)
	if tokenString == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization token missing"})
		return
	}

	peerID, err := h.validateToken(tokenString)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token or expired"})
		return
	}

	up := h.upgrader()
	conn, err := up.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := chathub.NewWebSocketClient(peerID, h.Hub, conn, h.log.Logger)
	h.Hub.Attach(client)
	client.Run()
}
