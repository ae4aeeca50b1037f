package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sentinel-reserve/sentinel/internal/proofpack"
	"github.com/sentinel-reserve/sentinel/internal/state"
	"go.uber.org/zap"
)

// ProofPackHandler exposes sealing, retrieval, and bundle export of proof
// packs.
type ProofPackHandler struct {
	sealer *proofpack.Sealer
	auth   *Middleware
	logger *zap.Logger
}

// NewProofPackHandler creates a ProofPackHandler.
func NewProofPackHandler(sealer *proofpack.Sealer, auth *Middleware, logger *zap.Logger) *ProofPackHandler {
	return &ProofPackHandler{sealer: sealer, auth: auth, logger: logger}
}

// Register mounts the proof-pack routes. Sealing requires an operator token;
// retrieval is read-only and open.
func (h *ProofPackHandler) Register(rg *gin.RouterGroup) {
	p := rg.Group("/proofpacks")
	{
		p.POST("", h.auth.RequireOperator(), h.Seal)
		p.GET("", h.List)
		p.GET("/:id", h.Get)
		p.GET("/:id/bundle", h.Bundle)
	}
}

// Seal handles POST /proofpacks.
func (h *ProofPackHandler) Seal(c *gin.Context) {
	pack, err := h.sealer.Seal(c.Request.Context())
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no system state found; nothing to seal"})
			return
		}
		h.logger.Error("proof pack seal", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to seal proof pack"})
		return
	}
	RecordProofPack()
	c.JSON(http.StatusCreated, gin.H{
		"id":                 pack.ID,
		"generated_at":       pack.GeneratedAt,
		"content_hash":       pack.ContentHash,
		"auth_tag":           pack.AuthTag,
		"audit_entries":      len(pack.Audit),
		"governance_entries": len(pack.Governance),
		"bundle_url":         "/api/v1/proofpacks/" + pack.ID + "/bundle",
	})
}

// List handles GET /proofpacks?limit=N.
func (h *ProofPackHandler) List(c *gin.Context) {
	limit := parseLimit(c, 20)
	packs, err := h.sealer.List(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("proof pack list", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list proof packs"})
		return
	}
	metas := make([]gin.H, 0, len(packs))
	for _, p := range packs {
		metas = append(metas, gin.H{
			"id":           p.ID,
			"generated_at": p.GeneratedAt,
			"content_hash": p.ContentHash,
		})
	}
	c.JSON(http.StatusOK, gin.H{"packs": metas, "count": len(metas)})
}

// Get handles GET /proofpacks/:id — the full pack as JSON, with a freshly
// computed verification verdict.
func (h *ProofPackHandler) Get(c *gin.Context) {
	pack, err := h.sealer.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, proofpack.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "proof pack not found", "id": c.Param("id")})
			return
		}
		h.logger.Error("proof pack get", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load proof pack"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pack": pack, "verdict": h.sealer.Verify(pack)})
}

// Bundle handles GET /proofpacks/:id/bundle — the exportable tar.gz archive.
func (h *ProofPackHandler) Bundle(c *gin.Context) {
	pack, err := h.sealer.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, proofpack.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "proof pack not found", "id": c.Param("id")})
			return
		}
		h.logger.Error("proof pack bundle load", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load proof pack"})
		return
	}

	data, err := proofpack.WriteBundle(pack)
	if err != nil {
		h.logger.Error("proof pack bundle write", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build bundle"})
		return
	}

	name := fmt.Sprintf("proofpack-%s.tar.gz",
		strings.ReplaceAll(pack.GeneratedAt.UTC().Format(time.RFC3339), ":", ""))
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "application/gzip", data)
}
