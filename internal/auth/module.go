// Package auth provides the authentication bounded context: agent login and
// token issuance.
package auth

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"whatsapp_portal_backend/internal/auth/handler"
	"whatsapp_portal_backend/internal/auth/repository"
	"whatsapp_portal_backend/internal/auth/service"
	apphttp "whatsapp_portal_backend/internal/http"
	"whatsapp_portal_backend/platform/config"
	"whatsapp_portal_backend/platform/logger"
	"whatsapp_portal_backend/platform/validator"
)

// Module is the auth bounded context implementing http.Module.
type Module struct {
	handler *handler.Handler
}

// NewModule creates and initializes the auth module.
func NewModule(pool *pgxpool.Pool, cfg config.AuthServiceConfig, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, cfg, log)
	return &Module{handler: handler.New(svc, val)}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "auth"
}

// RegisterRoutes mounts auth routes. Login is public but rate limited per IP;
// logout requires a valid token.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	authGroup := ctx.V1.Group("/auth")
	authGroup.POST("/login", ctx.AuthRateLimiter.RateLimitByIP(), m.handler.Login)
	authGroup.POST("/logout", ctx.AuthMiddleware, m.handler.Logout)
}
