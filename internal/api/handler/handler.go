package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/rajeshbanoth/randomchat/internal/chathub"
	"github.com/rajeshbanoth/randomchat/internal/config"
)

// Handler carries the hub and configuration into the HTTP layer.
type Handler struct {
	Hub *chathub.Hub
	cfg config.Config
	log *logrus.Entry
}

func NewHandler(hub *chathub.Hub, cfg config.Config, log *logrus.Logger) *Handler {
	if log == nil {
		log = logrus.New()
	}
	return &Handler{
		Hub: hub,
		cfg: cfg,
		log: log.WithField("component", "api"),
	}
}

// Routes mounts every endpoint on the router.
func (h *Handler) Routes(r *gin.Engine) {
	r.GET("/token", h.IssueToken)
	r.GET("/ws", h.ServeWebSocket)
	r.GET("/health", h.Health)
	r.GET("/stats", h.Stats)
	r.GET("/ice-config", h.ICEConfig)
}

// Health is the liveness probe.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now()})
}

// Stats exposes the hub snapshot over plain HTTP for dashboards.
func (h *Handler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.Hub.Snapshot())
}

// ICEConfig hands clients the STUN/TURN servers to build their
// RTCPeerConnection with. Credentials pass through from config.
func (h *Handler) ICEConfig(c *gin.Context) {
	servers := make([]gin.H, 0, len(h.cfg.StunServers)+1)
	for _, url := range h.cfg.StunServers {
		servers = append(servers, gin.H{"urls": url})
	}
	if h.cfg.TurnURL != "" {
		servers = append(servers, gin.H{
			"urls":       h.cfg.TurnURL,
			"username":   h.cfg.TurnUsername,
			"credential": h.cfg.TurnCredential,
		})
	}
	c.JSON(http.StatusOK, gin.H{"iceServers": servers})
}
