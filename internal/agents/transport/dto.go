// Package transport defines the agent profile DTOs.
package transport

import "whatsapp_portal_backend/internal/agents/repository"

// UpdateProfileRequest sets the agent's presentation settings.
type UpdateProfileRequest struct {
	DisplayName string `json:"display_name" validate:"required,max=120"`
	UsePrefix   *bool  `json:"use_prefix"`
}

// ProfileResponse is the wire shape of an agent profile.
type ProfileResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	UsePrefix   bool   `json:"use_prefix"`
}

// NewProfileResponse maps a stored profile onto the wire shape.
func NewProfileResponse(p *repository.Profile) ProfileResponse {
	return ProfileResponse{ID: p.ID, DisplayName: p.DisplayName, UsePrefix: p.UsePrefix}
}
