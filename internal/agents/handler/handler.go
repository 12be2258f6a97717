// Package handler exposes the agent profile HTTP endpoints.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"whatsapp_portal_backend/internal/agents/service"
	"whatsapp_portal_backend/internal/agents/transport"
	"whatsapp_portal_backend/platform/httpkit"
	"whatsapp_portal_backend/platform/validator"
)

// Handler handles HTTP requests for agent profiles.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new agents handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// Get returns the calling agent's profile.
// GET /api/v1/profile
func (h *Handler) Get(c *gin.Context) {
	agent, ok := httpkit.MustGetAgent(c)
	if !ok {
		return
	}

	profile, err := h.svc.Profile(c.Request.Context(), agent.ID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewProfileResponse(profile))
}

// Update stores the calling agent's presentation settings.
// POST /api/v1/profile
func (h *Handler) Update(c *gin.Context) {
	agent, ok := httpkit.MustGetAgent(c)
	if !ok {
		return
	}

	var req transport.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "BAD_REQUEST", "invalid request", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "BAD_REQUEST", "validation failed", err.Error())
		return
	}

	usePrefix := true
	if req.UsePrefix != nil {
		usePrefix = *req.UsePrefix
	}

	profile, err := h.svc.UpdateProfile(c.Request.Context(), agent.ID, req.DisplayName, usePrefix)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewProfileResponse(profile))
}
