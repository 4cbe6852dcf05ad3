package handlers

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"

	"github.com/AtRiskMedia/reportcache-go/internal/application/container"
	"github.com/AtRiskMedia/reportcache-go/internal/domain/entities/research"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/security"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// SysOpHandlers handles operator login, administration and live streams.
type SysOpHandlers struct {
	container *container.Container
	upgrader  websocket.Upgrader
}

// NewSysOpHandlers creates new SysOp handlers
func NewSysOpHandlers(container *container.Container) *SysOpHandlers {
	origins := container.Config.CORSOrigins
	return &SysOpHandlers{
		container: container,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(origins, origin)
			},
		},
	}
}

// Login exchanges the operator password for a sysop token.
func (h *SysOpHandlers) Login(c *gin.Context) {
	var request struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": bindingMessage(err, "password is required")})
		return
	}

	cfg := h.container.Config
	if cfg.SysopPasswordHash == "" || cfg.JWTSecret == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Sysop access is not configured"})
		return
	}
	if !security.CheckPassword(cfg.SysopPasswordHash, request.Password) {
		h.container.Logger.Auth().Warn("Failed sysop login", "ip", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid password"})
		return
	}

	token, err := security.GenerateSysopToken(cfg.JWTSecret, cfg.SysopTokenTTL)
	if err != nil {
		h.container.Logger.Auth().Error("Failed to sign sysop token", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
		return
	}
	h.container.Logger.Auth().Info("Sysop logged in", "ip", c.ClientIP())
	c.JSON(http.StatusOK, gin.H{"success": true, "token": token, "expiresIn": cfg.SysopTokenTTL.String()})
}

// AssignSubscription sets a user's tier.
func (h *SysOpHandlers) AssignSubscription(c *gin.Context) {
	var req struct {
		UserID string `json:"userId" binding:"required"`
		Email  string `json:"email"`
		Tier   string `json:"tier" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": bindingMessage(err, "userId and tier are required")})
		return
	}

	tier, err := h.container.SubscriptionService.AssignTier(c.Request.Context(), req.UserID, req.Email, req.Tier)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "userId": req.UserID, "tier": tier})
}

// GetUserUsage reports any user's consumption.
func (h *SysOpHandlers) GetUserUsage(c *gin.Context) {
	usage, err := h.container.QuotaLedger.CurrentUsage(c.Request.Context(), c.Param("userId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, usage)
}

// PurgeCache drops one cached artifact, addressed by its key string.
func (h *SysOpHandlers) PurgeCache(c *gin.Context) {
	key, err := research.ParseCacheKey(c.Query("key"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	purged, err := h.container.Coordinator.Purge(c.Request.Context(), key)
	if err != nil {
		writeError(c, err)
		return
	}
	if !purged {
		c.JSON(http.StatusNotFound, gin.H{"error": "No cached entry for key"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "key": key.String()})
}

// GetActivity summarizes live activity.
func (h *SysOpHandlers) GetActivity(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"flightsInProgress": h.container.Guard.InFlight(),
		"eventClients":      h.container.EventHub.ClientCount(),
		"logSubscribers":    h.container.LogBroadcaster.SubscriberCount(),
		"droppedLogLines":   h.container.LogBroadcaster.Dropped(),
		"performance":       h.container.PerfTracker.GetOverallStats(),
		"alerts":            h.container.PerfTracker.GetAlerts(),
	})
}

// GetLogLevels returns the current level of every channel.
func (h *SysOpHandlers) GetLogLevels(c *gin.Context) {
	c.JSON(http.StatusOK, h.container.Logger.GetChannelLevels())
}

// SetLogLevel changes one channel's level at runtime.
func (h *SysOpHandlers) SetLogLevel(c *gin.Context) {
	var req struct {
		Channel string `json:"channel" binding:"required"`
		Level   string `json:"level" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": bindingMessage(err, "channel and level are required")})
		return
	}

	level, err := logging.ParseLevel(req.Level)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.container.Logger.SetChannelLevel(logging.Channel(req.Channel), level); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "channel": req.Channel, "level": level.String()})
}

// StreamLogs handles the SSE connection for live log streaming.
func (h *SysOpHandlers) StreamLogs(c *gin.Context) {
	broadcaster := h.container.LogBroadcaster
	if broadcaster == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Log stream not available"})
		return
	}

	level, err := logging.ParseLevel(c.DefaultQuery("level", "INFO"))
	if err != nil {
		level = slog.LevelInfo
	}
	client := broadcaster.Subscribe(logging.AppliedFilters{
		Channel: logging.Channel(c.DefaultQuery("channel", "all")),
		Level:   level,
	})
	defer broadcaster.Unsubscribe(client)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	fmt.Fprintf(c.Writer, ": connection established\n\n")
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case message, ok := <-client.Channel:
			if !ok {
				return false
			}
			fmt.Fprintf(w, "data: %s\n\n", message)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// StreamEvents upgrades to a websocket carrying coordinator events.
func (h *SysOpHandlers) StreamEvents(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.container.Logger.Events().Warn("Websocket upgrade failed", "error", err.Error())
		return
	}
	h.container.EventHub.Serve(conn)
}
