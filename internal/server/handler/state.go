// Package handler exposes the sentinel core over HTTP using Gin.
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sentinel-reserve/sentinel/internal/state"
	"go.uber.org/zap"
)

// StateHandler serves the current system state and its version history.
type StateHandler struct {
	store  state.Store
	logger *zap.Logger
}

// NewStateHandler creates a StateHandler.
func NewStateHandler(store state.Store, logger *zap.Logger) *StateHandler {
	return &StateHandler{store: store, logger: logger}
}

// Register mounts the state routes on the given router group.
func (h *StateHandler) Register(rg *gin.RouterGroup) {
	s := rg.Group("/state")
	{
		s.GET("", h.Current)
		s.GET("/history", h.History)
	}
}

// Current handles GET /state.
func (h *StateHandler) Current(c *gin.Context) {
	s, err := h.store.Current(c.Request.Context())
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no system state found"})
			return
		}
		h.logger.Error("state current", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read system state"})
		return
	}
	c.JSON(http.StatusOK, s)
}

// History handles GET /state/history?limit=N.
func (h *StateHandler) History(c *gin.Context) {
	limit := parseLimit(c, 50)
	states, err := h.store.History(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("state history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read state history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"states": states, "count": len(states)})
}

// parseLimit reads the limit query parameter, falling back to def.
// Values are capped at 1000.
func parseLimit(c *gin.Context, def int) int {
	limit := def
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 1000 {
		limit = 1000
	}
	return limit
}
