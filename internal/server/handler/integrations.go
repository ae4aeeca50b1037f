package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sentinel-reserve/sentinel/internal/connectors"
	"go.uber.org/zap"
)

// IntegrationsHandler reports the health of the external custody and
// compliance connectors.
type IntegrationsHandler struct {
	manager *connectors.Manager
	logger  *zap.Logger
}

// NewIntegrationsHandler creates an IntegrationsHandler.
func NewIntegrationsHandler(manager *connectors.Manager, logger *zap.Logger) *IntegrationsHandler {
	return &IntegrationsHandler{manager: manager, logger: logger}
}

// Register mounts the integrations routes.
func (h *IntegrationsHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/integrations/health", h.Health)
}

// Health handles GET /integrations/health.
func (h *IntegrationsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, h.manager.HealthCheck(c.Request.Context()))
}
