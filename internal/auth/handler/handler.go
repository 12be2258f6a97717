// Package handler exposes the authentication HTTP endpoints.
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"whatsapp_portal_backend/internal/auth/service"
	"whatsapp_portal_backend/platform/httpkit"
	"whatsapp_portal_backend/platform/validator"
)

// Handler handles authentication requests.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new auth handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

type loginRequest struct {
	AgentID  string `json:"agent_id" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	AgentID     string    `json:"agent_id"`
	DisplayName string    `json:"display_name"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Login verifies credentials and issues an access token.
// POST /api/v1/auth/login
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "BAD_REQUEST", "invalid request", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "BAD_REQUEST", "validation failed", nil)
		return
	}

	session, err := h.svc.Login(c.Request.Context(), req.AgentID, req.Password)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, loginResponse{
		AgentID:     session.AgentID,
		DisplayName: session.DisplayName,
		AccessToken: session.AccessToken,
		ExpiresAt:   session.ExpiresAt,
	})
}

// Logout acknowledges a client-side token drop. Tokens are stateless, so
// there is nothing to revoke server-side.
// POST /api/v1/auth/logout
func (h *Handler) Logout(c *gin.Context) {
	httpkit.OK(c, gin.H{"ok": true})
}
