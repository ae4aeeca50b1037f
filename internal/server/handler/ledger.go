package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sentinel-reserve/sentinel/internal/ledger"
	"go.uber.org/zap"
)

// LedgerHandler exposes read-only endpoints for the audit and governance
// ledgers.
type LedgerHandler struct {
	ledgers ledger.Writer
	logger  *zap.Logger
}

// NewLedgerHandler creates a LedgerHandler.
func NewLedgerHandler(ledgers ledger.Writer, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{ledgers: ledgers, logger: logger}
}

// Register mounts the ledger routes on the given router group.
func (h *LedgerHandler) Register(rg *gin.RouterGroup) {
	l := rg.Group("/ledger")
	{
		l.GET("/audit", h.Audit)
		l.GET("/governance", h.Governance)
		l.GET("/verify", h.Verify)
	}
}

// Audit handles GET /ledger/audit?limit=N — newest entries first.
func (h *LedgerHandler) Audit(c *gin.Context) {
	limit := parseLimit(c, 100)
	entries, err := h.ledgers.AuditEntries(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("ledger audit query", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query audit ledger"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

// Governance handles GET /ledger/governance?limit=N — newest entries first.
func (h *LedgerHandler) Governance(c *gin.Context) {
	limit := parseLimit(c, 100)
	entries, err := h.ledgers.GovernanceEntries(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("ledger governance query", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query governance ledger"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

// Verify handles GET /ledger/verify — recomputes the governance hash chain
// from genesis and reports integrity.
func (h *LedgerHandler) Verify(c *gin.Context) {
	ctx := c.Request.Context()

	if err := h.ledgers.VerifyGovernance(ctx); err != nil {
		if errors.Is(err, ledger.ErrIntegrity) {
			h.logger.Warn("governance ledger integrity check failed", zap.Error(err))
			c.JSON(http.StatusOK, gin.H{"valid": false, "error": err.Error()})
			return
		}
		h.logger.Error("ledger verify", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify ledger"})
		return
	}

	root, err := h.ledgers.GovernanceRoot(ctx)
	if err != nil {
		h.logger.Error("ledger root", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read ledger root"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "root": root})
}
