package handler

import (
	"errors"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sentinel-reserve/sentinel/internal/feed"
	"github.com/sentinel-reserve/sentinel/internal/state"
	"go.uber.org/zap"
)

// heartbeatInterval is how often the current state is re-sent to subscribers
// even when nothing has changed.
const heartbeatInterval = 1 * time.Second

// StreamHandler serves the live server-sent-events feed: one event per
// committed transition plus a fixed heartbeat for as long as the client
// stays connected.
type StreamHandler struct {
	store       state.Store
	broadcaster *feed.Broadcaster
	logger      *zap.Logger
}

// NewStreamHandler creates a StreamHandler.
func NewStreamHandler(store state.Store, broadcaster *feed.Broadcaster, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{store: store, broadcaster: broadcaster, logger: logger}
}

// Register mounts the stream route.
func (h *StreamHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/stream", h.Stream)
}

// Stream handles GET /stream.
func (h *StreamHandler) Stream(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	updates, cancel := h.broadcaster.Subscribe()
	SetStreamSubscribers(h.broadcaster.Subscribers())
	defer func() {
		cancel()
		SetStreamSubscribers(h.broadcaster.Subscribers())
	}()

	// Initial snapshot, if a state exists yet.
	current, err := h.store.Current(c.Request.Context())
	if err != nil && !errors.Is(err, state.ErrNotFound) {
		h.logger.Error("stream initial state", zap.Error(err))
		return
	}
	if err == nil {
		c.SSEvent("state", feed.FromState(current))
		c.Writer.Flush()
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case u, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent("state", u)
			return true
		case <-heartbeat.C:
			s, err := h.store.Current(c.Request.Context())
			if err != nil {
				// Nothing to report yet; keep the connection open.
				return true
			}
			c.SSEvent("state", feed.FromState(s))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
