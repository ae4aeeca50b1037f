package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sentinel-reserve/sentinel/internal/engine"
	"github.com/sentinel-reserve/sentinel/internal/scenario"
	"github.com/sentinel-reserve/sentinel/internal/state"
	"go.uber.org/zap"
)

// CrisisHandler exposes crisis triggers, reset, and the scenario catalog.
type CrisisHandler struct {
	engine *engine.Engine
	auth   *Middleware
	logger *zap.Logger
}

// NewCrisisHandler creates a CrisisHandler.
func NewCrisisHandler(eng *engine.Engine, auth *Middleware, logger *zap.Logger) *CrisisHandler {
	return &CrisisHandler{engine: eng, auth: auth, logger: logger}
}

// Register mounts the crisis routes. Trigger and reset require an operator
// token when authentication is configured.
func (h *CrisisHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/scenarios", h.Scenarios)
	cr := rg.Group("/crisis", h.auth.RequireOperator())
	{
		cr.POST("/trigger", h.Trigger)
		cr.POST("/reset", h.Reset)
	}
}

// TriggerRequest is the body of POST /crisis/trigger.
type TriggerRequest struct {
	ScenarioID string `json:"scenario_id" binding:"required"`
}

// Scenarios handles GET /scenarios.
func (h *CrisisHandler) Scenarios(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"scenarios": scenario.All()})
}

// Trigger handles POST /crisis/trigger.
func (h *CrisisHandler) Trigger(c *gin.Context) {
	var req TriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "scenario_id is required"})
		return
	}

	committed, err := h.engine.Trigger(c.Request.Context(), req.ScenarioID, operatorName(c))
	if err != nil {
		switch {
		case errors.Is(err, scenario.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown scenario", "scenario_id": req.ScenarioID})
		case errors.Is(err, engine.ErrInvalidTransition):
			c.JSON(http.StatusConflict, gin.H{"error": "crisis can only be triggered from normal mode", "scenario_id": req.ScenarioID})
		case errors.Is(err, state.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "no system state found; reset to seed the baseline"})
		case errors.Is(err, state.ErrVersionConflict):
			c.JSON(http.StatusConflict, gin.H{"error": "concurrent transition in progress, retry"})
		default:
			h.logger.Error("crisis trigger", zap.String("scenario", req.ScenarioID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to trigger scenario"})
		}
		return
	}
	RecordTransition("trigger_" + req.ScenarioID)
	c.JSON(http.StatusOK, committed)
}

// Reset handles POST /crisis/reset.
func (h *CrisisHandler) Reset(c *gin.Context) {
	committed, err := h.engine.Reset(c.Request.Context(), operatorName(c))
	if err != nil {
		h.logger.Error("crisis reset", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reset system"})
		return
	}
	RecordTransition("reset")
	c.JSON(http.StatusOK, committed)
}
