// Package agents provides the agent-profile bounded context: display names,
// outbound-message prefixes, and the directory used by other modules to
// resolve agent presentation.
package agents

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"whatsapp_portal_backend/internal/agents/handler"
	"whatsapp_portal_backend/internal/agents/repository"
	"whatsapp_portal_backend/internal/agents/service"
	apphttp "whatsapp_portal_backend/internal/http"
	"whatsapp_portal_backend/platform/config"
	"whatsapp_portal_backend/platform/logger"
	"whatsapp_portal_backend/platform/validator"
)

// Module is the agents bounded context implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates and initializes the agents module.
func NewModule(pool *pgxpool.Pool, cfg config.AgentDirectoryConfig, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, cfg, log)
	return &Module{
		handler: handler.New(svc, val),
		service: svc,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "agents"
}

// Service returns the service layer; the conversations module uses it as the
// agent directory for outbound message presentation.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts profile routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Protected.GET("/profile", m.handler.Get)
	ctx.Protected.POST("/profile", m.handler.Update)
}
