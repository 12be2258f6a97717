// Package transport defines the request/response DTOs for the conversations
// HTTP surface.
package transport

import (
	"time"

	"whatsapp_portal_backend/internal/conversations/domain"
	"whatsapp_portal_backend/internal/conversations/service"
)

// ListConversationsRequest filters the conversation listing.
type ListConversationsRequest struct {
	Status string `form:"status"`
	Mine   bool   `form:"mine"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=200"`
	Cursor string `form:"cursor"`
}

// ListMessagesRequest paginates a conversation's history.
type ListMessagesRequest struct {
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=200"`
	Cursor string `form:"cursor"`
}

// SendMessageRequest is an agent free-text send.
type SendMessageRequest struct {
	Text            string `json:"text" validate:"required,max=4096"`
	ClientRequestID string `json:"client_request_id" validate:"omitempty,uuid4"`
}

// UpdateUserNameRequest sets the end user's display name.
type UpdateUserNameRequest struct {
	UserName string `json:"user_name" validate:"required,max=120"`
}

// ConversationResponse is the wire shape of a conversation.
type ConversationResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Assignee     string `json:"assignee,omitempty"`
	AssigneeName string `json:"assignee_name,omitempty"`

	UserName string `json:"user_name,omitempty"`

	LastInboundAt   *time.Time `json:"last_inbound_at,omitempty"`
	LastMessageText string     `json:"last_message_text,omitempty"`
	LastMessageBy   string     `json:"last_message_by,omitempty"`

	LastReopenTemplateAt     *time.Time `json:"last_reopen_template_at,omitempty"`
	LastReopenTemplateByName string     `json:"last_reopen_template_by_name,omitempty"`
	ReopenedAt               *time.Time `json:"reopened_at,omitempty"`
	ReopenedBy               string     `json:"reopened_by,omitempty"`

	HandoffActive    bool     `json:"handoff_active"`
	HandoffRequested bool     `json:"handoff_requested"`
	Tags             []string `json:"tags,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewConversationResponse maps a domain conversation onto the wire shape.
func NewConversationResponse(conv *domain.Conversation) ConversationResponse {
	return ConversationResponse{
		ID:                       conv.ID,
		Status:                   string(conv.Status),
		Assignee:                 conv.Assignee,
		AssigneeName:             conv.AssigneeName,
		UserName:                 conv.SessionParameters.UserName(),
		LastInboundAt:            conv.LastInboundAt,
		LastMessageText:          conv.LastMessageText,
		LastMessageBy:            conv.LastMessageBy,
		LastReopenTemplateAt:     conv.LastReopenTemplateAt,
		LastReopenTemplateByName: conv.LastReopenTemplateByName,
		ReopenedAt:               conv.ReopenedAt,
		ReopenedBy:               conv.ReopenedBy,
		HandoffActive:            conv.HandoffActive,
		HandoffRequested:         conv.SessionParameters.HandoffRequested(),
		Tags:                     conv.Tags,
		CreatedAt:                conv.CreatedAt,
		UpdatedAt:                conv.UpdatedAt,
	}
}

// ListConversationsResponse is one page of conversations.
type ListConversationsResponse struct {
	Conversations []ConversationResponse `json:"conversations"`
	NextCursor    string                 `json:"next_cursor,omitempty"`
}

// MessageResponse is the wire shape of a message.
type MessageResponse struct {
	ID          string    `json:"id"`
	Direction   string    `json:"direction"`
	By          string    `json:"by"`
	DisplayName string    `json:"display_name,omitempty"`
	Text        string    `json:"text"`
	MediaURL    string    `json:"media_url,omitempty"`
	MediaType   string    `json:"media_type,omitempty"`
	TS          time.Time `json:"ts"`

	ProviderSID  string `json:"provider_sid,omitempty"`
	Status       string `json:"status,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	TemplateSID  string `json:"template_sid,omitempty"`
	TemplateName string `json:"template_name,omitempty"`
	IsTemplate   bool   `json:"is_template,omitempty"`
}

// NewMessageResponse maps a domain message onto the wire shape.
func NewMessageResponse(msg *domain.Message) MessageResponse {
	return MessageResponse{
		ID:           msg.ID,
		Direction:    string(msg.Direction),
		By:           msg.By,
		DisplayName:  msg.DisplayName,
		Text:         msg.Text,
		MediaURL:     msg.MediaURL,
		MediaType:    msg.MediaType,
		TS:           msg.TS,
		ProviderSID:  msg.ProviderSID,
		Status:       msg.Status,
		ErrorCode:    msg.ErrorCode,
		ErrorMessage: msg.ErrorMessage,
		TemplateSID:  msg.TemplateSID,
		TemplateName: msg.TemplateName,
		IsTemplate:   msg.IsTemplate,
	}
}

// ListMessagesResponse is one page of messages, newest first.
type ListMessagesResponse struct {
	Messages   []MessageResponse `json:"messages"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

// ReopenResponse reports a dispatched reopen template.
type ReopenResponse struct {
	Conversation ConversationResponse `json:"conversation"`
	TemplateSID  string               `json:"template_sid"`
	TemplateName string               `json:"template_name"`
	ProviderSID  string               `json:"provider_sid"`
}

// WindowStatusResponse reports the 24h service-window evaluation.
type WindowStatusResponse struct {
	ConversationID string     `json:"conversation_id"`
	Status         string     `json:"status"`
	OutsideWindow  bool       `json:"outside_window"`
	LastInboundAt  *time.Time `json:"last_inbound_at,omitempty"`
	HoursSince     float64    `json:"hours_since_inbound"`
	Source         string     `json:"source"`
}

// NewWindowStatusResponse maps an evaluation onto the wire shape.
func NewWindowStatusResponse(conv *domain.Conversation, st service.WindowStatus) WindowStatusResponse {
	return WindowStatusResponse{
		ConversationID: conv.ID,
		Status:         string(conv.Status),
		OutsideWindow:  st.Outside,
		LastInboundAt:  st.LastInboundAt,
		HoursSince:     st.HoursSince,
		Source:         st.Source,
	}
}

// WindowDebugResponse adds the full inbound history to the evaluation.
type WindowDebugResponse struct {
	WindowStatusResponse
	SnapshotAt     *time.Time  `json:"snapshot_at,omitempty"`
	InboundHistory []time.Time `json:"inbound_history"`
}
