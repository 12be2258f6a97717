// Package handler exposes the conversations HTTP endpoints.
package handler

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"whatsapp_portal_backend/internal/conversations/domain"
	"whatsapp_portal_backend/internal/conversations/service"
	"whatsapp_portal_backend/internal/conversations/transport"
	"whatsapp_portal_backend/platform/httpkit"
	"whatsapp_portal_backend/platform/validator"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Handler handles HTTP requests for conversations.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new conversations handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// List retrieves conversations filtered by status and ownership.
// GET /api/v1/admin/conversations
func (h *Handler) List(c *gin.Context) {
	var req transport.ListConversationsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "BAD_REQUEST", msgInvalidRequest, nil)
		return
	}

	query := service.ListQuery{
		Mine:   req.Mine,
		Limit:  req.Limit,
		Cursor: req.Cursor,
	}
	if req.Status != "" {
		query.Statuses = strings.Split(req.Status, ",")
	}
	if req.Mine {
		agent, ok := httpkit.MustGetAgent(c)
		if !ok {
			return
		}
		query.Agent = agent.ID
	}

	page, err := h.svc.List(c.Request.Context(), query)
	if httpkit.HandleError(c, err) {
		return
	}

	resp := transport.ListConversationsResponse{
		Conversations: make([]transport.ConversationResponse, 0, len(page.Conversations)),
		NextCursor:    page.NextCursor,
	}
	for i := range page.Conversations {
		resp.Conversations = append(resp.Conversations, transport.NewConversationResponse(&page.Conversations[i]))
	}
	httpkit.OK(c, resp)
}

// Get retrieves a single conversation.
// GET /api/v1/admin/conversations/:id
func (h *Handler) Get(c *gin.Context) {
	conv, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewConversationResponse(conv))
}

// Messages retrieves a conversation's message history, newest first.
// GET /api/v1/admin/conversations/:id/messages
func (h *Handler) Messages(c *gin.Context) {
	var req transport.ListMessagesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "BAD_REQUEST", msgInvalidRequest, nil)
		return
	}

	page, err := h.svc.Messages(c.Request.Context(), c.Param("id"), req.Limit, req.Cursor)
	if httpkit.HandleError(c, err) {
		return
	}

	resp := transport.ListMessagesResponse{
		Messages:   make([]transport.MessageResponse, 0, len(page.Messages)),
		NextCursor: page.NextCursor,
	}
	for i := range page.Messages {
		resp.Messages = append(resp.Messages, transport.NewMessageResponse(&page.Messages[i]))
	}
	httpkit.OK(c, resp)
}

// Claim assigns a queued conversation to the calling agent.
// POST /api/v1/admin/conversations/:id/claim
func (h *Handler) Claim(c *gin.Context) {
	h.transition(c, h.svc.Claim)
}

// Handoff pulls a conversation from the bot to the calling agent.
// POST /api/v1/admin/conversations/:id/handoff
func (h *Handler) Handoff(c *gin.Context) {
	h.transition(c, h.svc.Handoff)
}

// Takeover reassigns an owned conversation to the calling agent.
// POST /api/v1/admin/conversations/:id/takeover
func (h *Handler) Takeover(c *gin.Context) {
	h.transition(c, h.svc.Takeover)
}

// Resolve closes out a conversation.
// POST /api/v1/admin/conversations/:id/resolve
func (h *Handler) Resolve(c *gin.Context) {
	h.transition(c, h.svc.Resolve)
}

// Send delivers an agent free-text reply.
// POST /api/v1/admin/conversations/:id/send
func (h *Handler) Send(c *gin.Context) {
	agent, ok := httpkit.MustGetAgent(c)
	if !ok {
		return
	}

	var req transport.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "BAD_REQUEST", msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "BAD_REQUEST", msgValidationFailed, err.Error())
		return
	}

	msg, err := h.svc.Send(c.Request.Context(), service.SendRequest{
		ConversationID:  c.Param("id"),
		Text:            req.Text,
		ClientRequestID: req.ClientRequestID,
	}, agent)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewMessageResponse(msg))
}

// Reopen dispatches a re-engagement template for one conversation.
// POST /api/v1/admin/conversations/:id/reopen
func (h *Handler) Reopen(c *gin.Context) {
	agent, ok := httpkit.MustGetAgent(c)
	if !ok {
		return
	}

	result, err := h.svc.Reopen(c.Request.Context(), c.Param("id"), agent)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ReopenResponse{
		Conversation: transport.NewConversationResponse(result.Conversation),
		TemplateSID:  result.TemplateSID,
		TemplateName: result.TemplateName,
		ProviderSID:  result.ProviderSID,
	})
}

// ReopenOutdated runs the fleet-wide batch reopen sweep inline.
// POST /api/v1/admin/reopen-outdated-conversations
func (h *Handler) ReopenOutdated(c *gin.Context) {
	agent, ok := httpkit.MustGetAgent(c)
	if !ok {
		return
	}

	report, err := h.svc.SweepReopen(c.Request.Context(), agent.ID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, report)
}

// UpdateUserName sets the end user's display name.
// POST /api/v1/admin/conversations/:id/user-name
func (h *Handler) UpdateUserName(c *gin.Context) {
	agent, ok := httpkit.MustGetAgent(c)
	if !ok {
		return
	}

	var req transport.UpdateUserNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "BAD_REQUEST", msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "BAD_REQUEST", msgValidationFailed, err.Error())
		return
	}

	if err := h.svc.UpdateUserName(c.Request.Context(), c.Param("id"), req.UserName, agent); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"ok": true})
}

// WindowStatus reports the 24h service-window evaluation.
// GET /api/v1/admin/conversations/:id/window-status
func (h *Handler) WindowStatus(c *gin.Context) {
	conv, status, err := h.svc.WindowStatus(c.Request.Context(), c.Param("id"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewWindowStatusResponse(conv, status))
}

// WindowDebug reports the evaluation plus the full inbound history.
// GET /api/v1/admin/conversations/:id/window-debug
func (h *Handler) WindowDebug(c *gin.Context) {
	conv, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if httpkit.HandleError(c, err) {
		return
	}
	debug, err := h.svc.DebugWindow(c.Request.Context(), c.Param("id"))
	if httpkit.HandleError(c, err) {
		return
	}

	resp := transport.WindowDebugResponse{
		WindowStatusResponse: transport.NewWindowStatusResponse(conv, debug.Status),
		SnapshotAt:           debug.SnapshotAt,
		InboundHistory:       debug.InboundHistory,
	}
	if resp.InboundHistory == nil {
		resp.InboundHistory = []time.Time{}
	}
	httpkit.OK(c, resp)
}

// Media streams a message attachment through the provider.
// GET /api/v1/admin/media/:id/:message_id
func (h *Handler) Media(c *gin.Context) {
	body, contentType, err := h.svc.Media(c.Request.Context(), c.Param("id"), c.Param("message_id"))
	if httpkit.HandleError(c, err) {
		return
	}
	defer func() {
		_ = body.Close()
	}()

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Cache-Control", "private, max-age=86400")
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, body)
}

// transition runs a claim-style state change for the calling agent.
func (h *Handler) transition(c *gin.Context, op func(ctx context.Context, id string, agent httpkit.Agent) (*domain.Conversation, error)) {
	agent, ok := httpkit.MustGetAgent(c)
	if !ok {
		return
	}

	conv, err := op(c.Request.Context(), c.Param("id"), agent)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewConversationResponse(conv))
}
