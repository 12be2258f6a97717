// Package service implements agent authentication: password verification and
// access-token issuance.
package service

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"whatsapp_portal_backend/internal/auth/repository"
	"whatsapp_portal_backend/platform/apperr"
	"whatsapp_portal_backend/platform/config"
	"whatsapp_portal_backend/platform/httpkit"
	"whatsapp_portal_backend/platform/logger"
)

const msgInvalidCredentials = "invalid credentials"

// Session is an issued access token with its identity.
type Session struct {
	AgentID     string
	DisplayName string
	AccessToken string
	ExpiresAt   time.Time
}

// Service handles agent login.
type Service struct {
	repo repository.Repository
	cfg  config.AuthServiceConfig
	log  *logger.Logger
	now  func() time.Time
}

func New(repo repository.Repository, cfg config.AuthServiceConfig, log *logger.Logger) *Service {
	return &Service{repo: repo, cfg: cfg, log: log, now: time.Now}
}

// Login verifies the password and issues a signed access token.
// Unknown agents and wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, agentID, password string) (*Session, error) {
	agentID = strings.ToLower(strings.TrimSpace(agentID))
	if agentID == "" || password == "" {
		return nil, apperr.Unauthorized(msgInvalidCredentials)
	}

	creds, err := s.repo.Credentials(ctx, agentID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			s.log.AuthEvent("login", agentID, false, "unknown agent")
			return nil, apperr.Unauthorized(msgInvalidCredentials)
		}
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(password)) != nil {
		s.log.AuthEvent("login", agentID, false, "wrong password")
		return nil, apperr.Unauthorized(msgInvalidCredentials)
	}

	now := s.now()
	expiresAt := now.Add(s.cfg.GetAccessTokenTTL())
	claims := httpkit.AgentClaims{
		DisplayName: creds.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   creds.AgentID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.GetJWTAccessSecret()))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "sign token", err)
	}

	s.log.AuthEvent("login", agentID, true, "")
	return &Session{
		AgentID:     creds.AgentID,
		DisplayName: creds.DisplayName,
		AccessToken: token,
		ExpiresAt:   expiresAt,
	}, nil
}
