// Package webhook receives messaging-provider callbacks: delivery status
// updates for outbound messages, authenticated by the provider's request
// signature.
package webhook

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"whatsapp_portal_backend/internal/conversations/service"
	apphttp "whatsapp_portal_backend/internal/http"
	"whatsapp_portal_backend/internal/twilio"
	"whatsapp_portal_backend/platform/config"
	"whatsapp_portal_backend/platform/httpkit"
	"whatsapp_portal_backend/platform/logger"
)

// deliveryReconciler applies provider delivery callbacks to stored messages.
type deliveryReconciler interface {
	ReconcileDelivery(ctx context.Context, cb service.DeliveryCallback) (bool, error)
}

// Module is the webhook bounded context implementing http.Module.
type Module struct {
	conversations deliveryReconciler
	cfg           config.TwilioConfig
	log           *logger.Logger
}

// NewModule creates and initializes the webhook module.
func NewModule(conversations *service.Service, cfg config.TwilioConfig, log *logger.Logger) *Module {
	return &Module{conversations: conversations, cfg: cfg, log: log}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "webhook"
}

// RegisterRoutes mounts provider callback routes. They are public but
// signature-authenticated.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.V1.POST("/webhooks/twilio/status", m.verifySignature, m.Status)
}

// verifySignature checks the provider's request signature before any
// callback is processed.
func (m *Module) verifySignature(c *gin.Context) {
	token := m.cfg.GetTwilioAuthTokenSig()
	if token == "" {
		m.log.Warn("provider signature validation disabled, no auth token configured")
		c.Next()
		return
	}

	if err := c.Request.ParseForm(); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "BAD_REQUEST", "malformed callback", nil)
		c.Abort()
		return
	}

	signature := c.GetHeader("X-Twilio-Signature")
	if !twilio.ValidateSignature(token, callbackURL(c), c.Request.PostForm, signature) {
		m.log.Warn("rejected provider callback with bad signature", "path", c.Request.URL.Path)
		httpkit.Error(c, http.StatusForbidden, "FORBIDDEN", "invalid signature", nil)
		c.Abort()
		return
	}
	c.Next()
}

// callbackURL reconstructs the externally visible request URL the provider
// signed, honoring reverse-proxy forwarding headers.
func callbackURL(c *gin.Context) string {
	scheme := c.GetHeader("X-Forwarded-Proto")
	if scheme == "" {
		if c.Request.TLS != nil {
			scheme = "https"
		} else {
			scheme = "http"
		}
	}
	host := c.GetHeader("X-Forwarded-Host")
	if host == "" {
		host = c.Request.Host
	}
	return scheme + "://" + host + c.Request.URL.RequestURI()
}

// Status applies a delivery-status callback to the stored message.
// POST /api/v1/webhooks/twilio/status
func (m *Module) Status(c *gin.Context) {
	matched, err := m.conversations.ReconcileDelivery(c.Request.Context(), service.DeliveryCallback{
		To:          c.PostForm("To"),
		ProviderSID: c.PostForm("MessageSid"),
		Status:      c.PostForm("MessageStatus"),
		ErrorCode:   c.PostForm("ErrorCode"),
		ErrorMsg:    c.PostForm("ErrorMessage"),
	})
	if err != nil {
		// Non-2xx responses make the provider retry the callback.
		httpkit.Error(c, http.StatusInternalServerError, "INTERNAL", "callback processing failed", nil)
		return
	}
	httpkit.OK(c, gin.H{"matched": matched})
}
