package feed

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-booking/pkg/logger"
	"github.com/jwalitptl/clinic-booking/pkg/messaging"
)

const defaultHeartbeat = 25 * time.Second

// Handler streams change notices to clients as server-sent events. A notice only says what
// changed; clients re-read the affected data.
type Handler struct {
	broker    messaging.Broker
	channel   string
	heartbeat time.Duration
	logger    *logger.Logger
}

func NewHandler(broker messaging.Broker, channel string, heartbeat time.Duration, logger *logger.Logger) *Handler {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &Handler{
		broker:    broker,
		channel:   channel,
		heartbeat: heartbeat,
		logger:    logger,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/changes", h.Stream)
}

func (h *Handler) Stream(c *gin.Context) {
	ctx := c.Request.Context()
	messages, err := h.broker.Subscribe(ctx, h.channel)
	if err != nil {
		h.logger.Error(err, "Failed to subscribe to change feed", "channel", h.channel)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "message": "change feed unavailable"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.SSEvent("ready", h.channel)
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case msg, ok := <-messages:
			if !ok {
				return false
			}
			c.SSEvent("change", string(msg))
			return true
		case <-ticker.C:
			c.SSEvent("ping", time.Now().UTC().Format(time.RFC3339))
			return true
		}
	})
}
