package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"watchtower/internal/bus"
	"watchtower/internal/resolver"
	"watchtower/internal/websocket"
	"watchtower/pkg/logging"
)

// WatchtowerHandlers serves the WebSocket endpoint and the admin surface.
type WatchtowerHandlers struct {
	hub       *websocket.Hub
	broker    *bus.Broker
	resolver  *resolver.Resolver
	logger    logging.Logger
	startTime time.Time
}

// NewWatchtowerHandlers creates the handler set.
func NewWatchtowerHandlers(hub *websocket.Hub, broker *bus.Broker, res *resolver.Resolver, logger logging.Logger) *WatchtowerHandlers {
	return &WatchtowerHandlers{
		hub:       hub,
		broker:    broker,
		resolver:  res,
		logger:    logger,
		startTime: time.Now(),
	}
}

// HandleWebSocket upgrades the connection and hands it to the hub.
func (h *WatchtowerHandlers) HandleWebSocket(c *gin.Context) {
	h.hub.ServeWS(c.Writer, c.Request)
}

// HandleStats returns broker and hub statistics.
func (h *WatchtowerHandlers) HandleStats(c *gin.Context) {
	stats := h.broker.Stats()
	c.JSON(http.StatusOK, gin.H{
		"uptime_seconds":     time.Since(h.startTime).Seconds(),
		"messages_published": stats.MessagesPublished,
		"messages_succeeded": stats.MessagesSucceeded,
		"messages_failed":    stats.MessagesFailed,
		"registered_types":   stats.RegisteredTypes,
		"subscribers":        stats.Subscribers,
		"hub":                h.hub.Stats(),
	})
}

// HandleInvalidateCache expires the resolver's routing cache so the next
// event reloads from the store. Used after editing cameras or angle ranges.
func (h *WatchtowerHandlers) HandleInvalidateCache(c *gin.Context) {
	h.resolver.Invalidate()
	h.logger.Info("Routing cache invalidated via admin API")
	c.JSON(http.StatusOK, gin.H{"status": "invalidated"})
}

// HandlePublish accepts an event over HTTP and runs it through the broker.
// Intended for integration checks and manual testing, not production feeds.
func (h *WatchtowerHandlers) HandlePublish(c *gin.Context) {
	var req struct {
		Type    string      `json:"type" binding:"required"`
		Payload bus.Payload `json:"payload" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := h.broker.Publish(c.Request.Context(), bus.MessageType(req.Type), req.Payload)
	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, result)
}

// HandleNotFound is the fallback route.
func (h *WatchtowerHandlers) HandleNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"error": "endpoint not found",
		"path":  c.Request.URL.Path,
	})
}
