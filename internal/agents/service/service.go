// Package service resolves agent display names and manages profiles.
package service

import (
	"context"
	"strings"

	"whatsapp_portal_backend/internal/agents/repository"
	"whatsapp_portal_backend/platform/apperr"
	"whatsapp_portal_backend/platform/config"
	"whatsapp_portal_backend/platform/logger"
)

// Service manages agent profiles and display-name resolution.
type Service struct {
	repo repository.Repository
	cfg  config.AgentDirectoryConfig
	log  *logger.Logger
}

func New(repo repository.Repository, cfg config.AgentDirectoryConfig, log *logger.Logger) *Service {
	return &Service{repo: repo, cfg: cfg, log: log}
}

// Profile returns the agent's stored profile, or defaults when none exists.
func (s *Service) Profile(ctx context.Context, agentID string) (*repository.Profile, error) {
	profile, err := s.repo.Get(ctx, agentID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return &repository.Profile{
				ID:          agentID,
				DisplayName: s.resolveName(agentID, ""),
				UsePrefix:   true,
			}, nil
		}
		return nil, err
	}
	if profile.DisplayName == "" {
		profile.DisplayName = s.resolveName(agentID, "")
	}
	return profile, nil
}

// UpdateProfile stores the agent's presentation settings.
func (s *Service) UpdateProfile(ctx context.Context, agentID, displayName string, usePrefix bool) (*repository.Profile, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, apperr.BadRequest("display_name is required")
	}
	if err := s.repo.Upsert(ctx, agentID, displayName, usePrefix); err != nil {
		return nil, err
	}
	return s.Profile(ctx, agentID)
}

// Presentation resolves the display name and prefix setting for outbound
// messages. The configured identity map wins; then the stored profile; then
// the caller-provided fallback; finally a capitalized slug of the agent id.
func (s *Service) Presentation(ctx context.Context, agentID, fallbackName string) (string, bool) {
	if mapped, ok := s.cfg.GetAgentDisplayNames()[agentID]; ok {
		return mapped, s.usePrefix(ctx, agentID)
	}

	profile, err := s.repo.Get(ctx, agentID)
	if err == nil && profile.DisplayName != "" {
		return profile.DisplayName, profile.UsePrefix
	}
	if err != nil && !apperr.Is(err, apperr.KindNotFound) {
		s.log.DatabaseError("agent_presentation", err)
	}

	if fallbackName != "" && fallbackName != agentID {
		return fallbackName, true
	}
	return s.resolveName(agentID, fallbackName), true
}

func (s *Service) usePrefix(ctx context.Context, agentID string) bool {
	profile, err := s.repo.Get(ctx, agentID)
	if err != nil {
		return true
	}
	return profile.UsePrefix
}

// resolveName derives a readable name from an agent id like
// "ana.souza@example.com" when no explicit mapping exists.
func (s *Service) resolveName(agentID, fallback string) string {
	if mapped, ok := s.cfg.GetAgentDisplayNames()[agentID]; ok {
		return mapped
	}
	if fallback != "" {
		return fallback
	}

	local := agentID
	if at := strings.IndexByte(local, '@'); at > 0 {
		local = local[:at]
	}
	local = strings.NewReplacer(".", " ", "_", " ", "-", " ").Replace(local)

	words := strings.Fields(local)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	if len(words) == 0 {
		return agentID
	}
	return strings.Join(words, " ")
}
