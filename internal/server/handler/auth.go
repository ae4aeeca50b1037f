package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sentinel-reserve/sentinel/internal/auth"
	"go.uber.org/zap"
)

const operatorKey = "operator"

// Middleware carries the operator-token gate shared by protected handlers.
type Middleware struct {
	tokens *auth.TokenIssuer
	logger *zap.Logger
}

// NewMiddleware creates the auth middleware. When no operator credential is
// configured the gate is open and the actor defaults to "operator".
func NewMiddleware(tokens *auth.TokenIssuer, logger *zap.Logger) *Middleware {
	return &Middleware{tokens: tokens, logger: logger}
}

// RequireOperator rejects requests without a valid operator bearer token,
// unless authentication is disabled.
func (m *Middleware) RequireOperator() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.tokens.Enabled() {
			c.Set(operatorKey, "operator")
			c.Next()
			return
		}
		raw := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if raw == "" || raw == c.GetHeader("Authorization") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "operator token required"})
			return
		}
		claims, err := m.tokens.Verify(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid operator token"})
			return
		}
		c.Set(operatorKey, claims.Operator)
		c.Next()
	}
}

// operatorName returns the authenticated operator for audit attribution.
func operatorName(c *gin.Context) string {
	if v, ok := c.Get(operatorKey); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "operator"
}

// AuthHandler exposes the operator login endpoint.
type AuthHandler struct {
	tokens *auth.TokenIssuer
	logger *zap.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(tokens *auth.TokenIssuer, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{tokens: tokens, logger: logger}
}

// Register mounts the auth routes.
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/auth/token", h.Token)
}

// TokenRequest is the body of POST /auth/token.
type TokenRequest struct {
	Operator string `json:"operator"`
	Password string `json:"password" binding:"required"`
}

// Token handles POST /auth/token.
func (h *AuthHandler) Token(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password is required"})
		return
	}
	if req.Operator == "" {
		req.Operator = "operator"
	}

	token, err := h.tokens.Login(req.Operator, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		h.logger.Error("operator login", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}
