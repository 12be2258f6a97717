// Package conversations provides the WhatsApp conversation bounded context:
// the handoff state machine, the 24h service window, reopen templates, and
// delivery reconciliation.
package conversations

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"whatsapp_portal_backend/internal/conversations/handler"
	"whatsapp_portal_backend/internal/conversations/repository"
	"whatsapp_portal_backend/internal/conversations/service"
	"whatsapp_portal_backend/internal/events"
	apphttp "whatsapp_portal_backend/internal/http"
	"whatsapp_portal_backend/platform/config"
	"whatsapp_portal_backend/platform/logger"
	"whatsapp_portal_backend/platform/validator"
)

// ModuleConfig combines the config interfaces the module needs.
type ModuleConfig interface {
	config.TemplateConfig
	config.SweepConfig
}

// Module is the conversations bounded context implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	repo    repository.Repository
}

// NewModule creates and initializes the conversations module.
func NewModule(
	pool *pgxpool.Pool,
	provider service.MessageProvider,
	directory service.AgentDirectory,
	bus events.Bus,
	cfg ModuleConfig,
	val *validator.Validator,
	log *logger.Logger,
) *Module {
	repo := repository.NewPostgresRepository(pool)
	window := service.NewWindowEvaluator(repo, log)
	svc := service.NewService(repo, provider, window, directory, bus, cfg, cfg, log)
	h := handler.New(svc, val)

	return &Module{
		handler: h,
		service: svc,
		repo:    repo,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "conversations"
}

// Service returns the service layer for external use (the sweep worker).
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts conversation routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	conv := ctx.Admin.Group("/conversations")
	conv.GET("", m.handler.List)
	conv.GET("/:id", m.handler.Get)
	conv.GET("/:id/messages", m.handler.Messages)
	conv.POST("/:id/claim", m.handler.Claim)
	conv.POST("/:id/handoff", m.handler.Handoff)
	conv.POST("/:id/takeover", m.handler.Takeover)
	conv.POST("/:id/resolve", m.handler.Resolve)
	conv.POST("/:id/reopen", m.handler.Reopen)
	conv.POST("/:id/send", ctx.SendRateLimiter.RateLimitByParam("id"), m.handler.Send)
	conv.POST("/:id/user-name", m.handler.UpdateUserName)
	conv.GET("/:id/window-status", m.handler.WindowStatus)
	conv.GET("/:id/window-debug", m.handler.WindowDebug)

	ctx.Admin.GET("/media/:id/:message_id", m.handler.Media)
	ctx.Admin.POST("/reopen-outdated-conversations", m.handler.ReopenOutdated)
}
