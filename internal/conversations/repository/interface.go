package repository

import (
	"context"
	"time"

	"whatsapp_portal_backend/internal/conversations/domain"
)

// ListParams filters and paginates the conversation listing.
type ListParams struct {
	// Statuses filters on raw stored status values (legacy "pending" included
	// when callers ask for pending_handoff).
	Statuses []string
	// Assignee restricts to conversations owned by that agent.
	Assignee string
	Limit    int
	// CursorAt/CursorID continue after the given (updated_at, id) pair.
	CursorAt *time.Time
	CursorID string
}

// MessageListParams paginates a conversation's message history, newest first.
type MessageListParams struct {
	Limit    int
	CursorAt *time.Time
	CursorID string
}

// ReopenUpdate is the bookkeeping applied to a conversation after a reopen
// template send succeeded. All fields are written in a single statement so an
// interrupted sweep never leaves a half-updated conversation.
type ReopenUpdate struct {
	// Status the conversation lands in. Always set.
	Status domain.Status
	// Assignee/AssigneeName; empty clears the columns.
	Assignee     string
	AssigneeName string

	ReopenedBy string

	TemplateSID    string
	TemplateBy     string
	TemplateByName string

	LastMessageText string
	LastMessageBy   string
}

// DeliveryPatch is a provider delivery-status callback applied to a message.
type DeliveryPatch struct {
	Status       string
	ErrorCode    string
	ErrorMessage string
}

// Repository is the persistence boundary for conversations and messages.
type Repository interface {
	Get(ctx context.Context, id string) (*domain.Conversation, error)
	List(ctx context.Context, params ListParams) ([]domain.Conversation, error)
	// ListByRawStatus returns all conversations stored with exactly the given
	// raw status value, for the batch sweep.
	ListByRawStatus(ctx context.Context, rawStatus string) ([]domain.Conversation, error)

	// State transitions. Each is an atomic conditional update keyed on the
	// conversation id and the expected current state; a lost race returns
	// a conflict error rather than overwriting.
	ClaimPending(ctx context.Context, id, agentID, agentName string) error
	HandoffFromBot(ctx context.Context, id, agentID, agentName string) error
	Takeover(ctx context.Context, id, agentID, agentName string) error
	Resolve(ctx context.Context, id string) error
	// MarkSent flips claimed→active (or keeps active) for an agent send,
	// requiring the assignee to be unset or the caller, and updates the
	// denormalized last-message summary.
	MarkSent(ctx context.Context, id, agentID, agentName, lastText, lastBy string) error

	ApplyReopen(ctx context.Context, id string, upd ReopenUpdate) error

	// SetLastInboundAt backfills the materialized window cache.
	SetLastInboundAt(ctx context.Context, id string, ts time.Time) error
	// SetUserName writes the canonical string shape into session parameters,
	// replacing either legacy shape, and stamps who changed it and when.
	SetUserName(ctx context.Context, id, userName, updatedBy string) error

	AppendMessage(ctx context.Context, msg *domain.Message) error
	ListMessages(ctx context.Context, conversationID string, params MessageListParams) ([]domain.Message, error)
	// RecentMessages returns up to limit messages ordered by ts descending,
	// for the window evaluator's inbound scan.
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error)
	// FindInboundMessages returns all inbound messages, newest first, for the
	// window debug surface.
	FindInboundMessages(ctx context.Context, conversationID string) ([]domain.Message, error)
	GetMessage(ctx context.Context, conversationID, messageID string) (*domain.Message, error)

	// ApplyDelivery merges a delivery patch into the message carrying the
	// provider sid. Returns false when no such message exists (callback
	// noise). Idempotent: replays converge to the same row state.
	ApplyDelivery(ctx context.Context, conversationID, providerSID string, patch DeliveryPatch) (bool, error)
}
