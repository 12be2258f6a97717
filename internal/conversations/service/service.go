package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"whatsapp_portal_backend/internal/conversations/domain"
	"whatsapp_portal_backend/internal/conversations/repository"
	"whatsapp_portal_backend/internal/events"
	"whatsapp_portal_backend/platform/apperr"
	"whatsapp_portal_backend/platform/config"
	"whatsapp_portal_backend/platform/cursor"
	"whatsapp_portal_backend/platform/httpkit"
	"whatsapp_portal_backend/platform/logger"
	"whatsapp_portal_backend/platform/phone"
)

// MessageProvider is the outbound side of the messaging provider. Send
// methods return the provider's message sid and initial delivery status.
type MessageProvider interface {
	Configured() bool
	// SendText's clientRequestID, when non-empty, marks the send as safe
	// for the provider client to retry.
	SendText(ctx context.Context, to, body, clientRequestID string) (sid, status string, err error)
	SendTemplate(ctx context.Context, to, contentSID string, variables map[string]string) (sid, status string, err error)
	FetchMedia(ctx context.Context, mediaURL string) (io.ReadCloser, string, error)
}

// AgentDirectory resolves agent presentation settings for outbound messages.
type AgentDirectory interface {
	// Presentation returns the display name used on outbound messages and
	// whether the message body gets the name prefix.
	Presentation(ctx context.Context, agentID, fallbackName string) (displayName string, usePrefix bool)
}

// Service implements the conversation lifecycle operations.
type Service struct {
	repo      repository.Repository
	provider  MessageProvider
	window    *WindowEvaluator
	directory AgentDirectory
	bus       events.Bus
	cfg       config.TemplateConfig
	sweepCfg  config.SweepConfig
	log       *logger.Logger
	now       func() time.Time
}

func NewService(
	repo repository.Repository,
	provider MessageProvider,
	window *WindowEvaluator,
	directory AgentDirectory,
	bus events.Bus,
	cfg config.TemplateConfig,
	sweepCfg config.SweepConfig,
	log *logger.Logger,
) *Service {
	return &Service{
		repo:      repo,
		provider:  provider,
		window:    window,
		directory: directory,
		bus:       bus,
		cfg:       cfg,
		sweepCfg:  sweepCfg,
		log:       log,
		now:       time.Now,
	}
}

// Get returns a single conversation with its status normalized.
func (s *Service) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	conv, err := s.repo.Get(ctx, phone.NormalizeE164(id))
	if err != nil {
		return nil, err
	}
	conv.Status = domain.NormalizeStatus(string(conv.Status))
	return conv, nil
}

// ListQuery filters the conversation listing.
type ListQuery struct {
	// Statuses are canonical status values to include; empty means all.
	Statuses []string
	// Mine restricts to conversations assigned to Agent.
	Mine  bool
	Agent string

	Limit  int
	Cursor string
}

// ListPage is one page of conversations plus the cursor for the next.
type ListPage struct {
	Conversations []domain.Conversation
	NextCursor    string
}

// List returns conversations ordered by most recent activity. Asking for
// pending_handoff also matches rows still stored with the legacy "pending"
// value.
func (s *Service) List(ctx context.Context, q ListQuery) (*ListPage, error) {
	params := repository.ListParams{Limit: q.Limit}

	for _, raw := range q.Statuses {
		st := domain.NormalizeStatus(strings.TrimSpace(raw))
		if !st.Valid() {
			return nil, apperr.BadRequest(fmt.Sprintf("unknown status %q", raw))
		}
		params.Statuses = append(params.Statuses, string(st))
		if st == domain.StatusPendingHandoff {
			params.Statuses = append(params.Statuses, "pending")
		}
	}
	if q.Mine {
		if q.Agent == "" {
			return nil, apperr.BadRequest("mine filter requires an agent identity")
		}
		params.Assignee = q.Agent
	}
	if q.Cursor != "" {
		page, ok := cursor.Decode(q.Cursor)
		if !ok {
			return nil, apperr.BadRequest("invalid cursor")
		}
		params.CursorAt = &page.At
		params.CursorID = page.ID
	}

	conversations, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, err
	}
	for i := range conversations {
		conversations[i].Status = domain.NormalizeStatus(string(conversations[i].Status))
	}

	out := &ListPage{Conversations: conversations}
	if n := len(conversations); n > 0 && n == normalizeLimit(q.Limit) {
		last := conversations[n-1]
		out.NextCursor = cursor.Encode(cursor.Page{At: last.UpdatedAt, ID: last.ID})
	}
	return out, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 200 {
		return 50
	}
	return limit
}

// MessagePage is one page of a conversation's history, newest first.
type MessagePage struct {
	Messages   []domain.Message
	NextCursor string
}

// Messages returns a conversation's message history, newest first.
func (s *Service) Messages(ctx context.Context, conversationID string, limit int, pageCursor string) (*MessagePage, error) {
	if _, err := s.Get(ctx, conversationID); err != nil {
		return nil, err
	}

	params := repository.MessageListParams{Limit: limit}
	if pageCursor != "" {
		page, ok := cursor.Decode(pageCursor)
		if !ok {
			return nil, apperr.BadRequest("invalid cursor")
		}
		params.CursorAt = &page.At
		params.CursorID = page.ID
	}

	messages, err := s.repo.ListMessages(ctx, phone.NormalizeE164(conversationID), params)
	if err != nil {
		return nil, err
	}

	out := &MessagePage{Messages: messages}
	if n := len(messages); n > 0 && n == normalizeLimit(limit) {
		last := messages[n-1]
		out.NextCursor = cursor.Encode(cursor.Page{At: last.TS, ID: last.ID})
	}
	return out, nil
}

// Claim assigns a queued conversation to the calling agent.
// Only pending_handoff conversations can be claimed; the update is
// conditional on the stored status so two agents racing for the same
// conversation resolve to one winner and one conflict.
func (s *Service) Claim(ctx context.Context, id string, agent httpkit.Agent) (*domain.Conversation, error) {
	conv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !conv.Status.Claimable() {
		return nil, apperr.InvalidState("conversation is not awaiting handoff", string(conv.Status))
	}

	if err := s.repo.ClaimPending(ctx, conv.ID, agent.ID, agent.Name()); err != nil {
		return nil, err
	}

	s.log.WithContext(ctx).ConversationEvent("claim", conv.ID, agent.ID, string(conv.Status), string(domain.StatusClaimed))
	s.bus.Publish(ctx, events.ConversationClaimed{
		BaseEvent:      events.NewBaseEvent(),
		ConversationID: conv.ID,
		AgentID:        agent.ID,
		OldStatus:      string(conv.Status),
		NewStatus:      string(domain.StatusClaimed),
	})
	return s.Get(ctx, conv.ID)
}

// Handoff pulls a conversation away from the bot and assigns it to the
// calling agent without waiting for the user to ask for a human.
func (s *Service) Handoff(ctx context.Context, id string, agent httpkit.Agent) (*domain.Conversation, error) {
	conv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !conv.Status.HandoffableFromBot() {
		return nil, apperr.InvalidState("conversation is not with the bot", string(conv.Status))
	}

	if err := s.repo.HandoffFromBot(ctx, conv.ID, agent.ID, agent.Name()); err != nil {
		return nil, err
	}

	s.log.WithContext(ctx).ConversationEvent("handoff", conv.ID, agent.ID, string(conv.Status), string(domain.StatusClaimed))
	s.bus.Publish(ctx, events.ConversationClaimed{
		BaseEvent:      events.NewBaseEvent(),
		ConversationID: conv.ID,
		AgentID:        agent.ID,
		OldStatus:      string(conv.Status),
		NewStatus:      string(domain.StatusClaimed),
	})
	return s.Get(ctx, conv.ID)
}

// Takeover reassigns an owned conversation to the calling agent.
func (s *Service) Takeover(ctx context.Context, id string, agent httpkit.Agent) (*domain.Conversation, error) {
	conv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !conv.Status.Takeoverable() {
		return nil, apperr.InvalidState("conversation has no agent to take over from", string(conv.Status))
	}
	if conv.OwnedBy(agent.ID) {
		return conv, nil
	}

	if err := s.repo.Takeover(ctx, conv.ID, agent.ID, agent.Name()); err != nil {
		return nil, err
	}

	s.log.WithContext(ctx).ConversationEvent("takeover", conv.ID, agent.ID, string(conv.Status), string(conv.Status))
	return s.Get(ctx, conv.ID)
}

// Resolve closes out a conversation. Owned conversations can only be resolved
// by their owner.
func (s *Service) Resolve(ctx context.Context, id string, agent httpkit.Agent) (*domain.Conversation, error) {
	conv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !conv.Status.Resolvable() {
		return nil, apperr.InvalidState("conversation cannot be resolved", string(conv.Status))
	}
	if conv.Owned() && !conv.OwnedBy(agent.ID) {
		return nil, apperr.Forbidden("conversation belongs to another agent")
	}

	if err := s.repo.Resolve(ctx, conv.ID); err != nil {
		return nil, err
	}

	s.log.WithContext(ctx).ConversationEvent("resolve", conv.ID, agent.ID, string(conv.Status), string(domain.StatusResolved))
	s.bus.Publish(ctx, events.ConversationResolved{
		BaseEvent:      events.NewBaseEvent(),
		ConversationID: conv.ID,
		AgentID:        agent.ID,
		OldStatus:      string(conv.Status),
	})
	return s.Get(ctx, conv.ID)
}

// SendRequest is an agent free-text send.
type SendRequest struct {
	ConversationID  string
	Text            string
	ClientRequestID string
}

// Send delivers an agent's free-text reply. The conversation must be claimed
// or active, and unowned or owned by the caller. On success claimed flips to
// active and the caller becomes the owner.
func (s *Service) Send(ctx context.Context, req SendRequest, agent httpkit.Agent) (*domain.Message, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, apperr.BadRequest("text is required")
	}

	conv, err := s.Get(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}
	if conv.Status != domain.StatusClaimed && conv.Status != domain.StatusActive {
		return nil, apperr.InvalidState("conversation is not in an agent-owned state", string(conv.Status))
	}
	if conv.Owned() && !conv.OwnedBy(agent.ID) {
		return nil, apperr.Forbidden("conversation belongs to another agent")
	}

	displayName, usePrefix := s.directory.Presentation(ctx, agent.ID, agent.Name())
	body := text
	if usePrefix {
		body = displayName + ": " + text
	}

	providerSID, providerStatus, err := s.provider.SendText(ctx, conv.ID, body, req.ClientRequestID)
	if err != nil {
		return nil, err
	}

	msg := &domain.Message{
		ID:              uuid.NewString(),
		ConversationID:  conv.ID,
		Direction:       domain.DirectionOut,
		By:              domain.HumanAuthor(agent.ID),
		DisplayName:     displayName,
		Text:            text,
		TS:              s.now().UTC(),
		ProviderSID:     providerSID,
		Status:          providerStatus,
		ClientRequestID: req.ClientRequestID,
	}
	if err := s.repo.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}

	if err := s.repo.MarkSent(ctx, conv.ID, agent.ID, agent.Name(), domain.TruncateSummary(text), msg.By); err != nil {
		// The provider accepted the message; a lost race here only means the
		// conversation moved underneath us.
		s.log.WithContext(ctx).Warn("send state update lost race", "conversation_id", conv.ID, "error", err.Error())
	}

	s.log.WithContext(ctx).ConversationEvent("send", conv.ID, agent.ID, string(conv.Status), string(domain.StatusActive))
	return msg, nil
}

// UpdateUserName sets the end user's display name, replacing either legacy
// session-parameter shape with the canonical string form.
func (s *Service) UpdateUserName(ctx context.Context, id, userName string, agent httpkit.Agent) error {
	userName = strings.TrimSpace(userName)
	if userName == "" {
		return apperr.BadRequest("user_name is required")
	}
	conv, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.SetUserName(ctx, conv.ID, userName, agent.ID); err != nil {
		return err
	}
	s.log.WithContext(ctx).ConversationEvent("update_user_name", conv.ID, agent.ID, string(conv.Status), string(conv.Status))
	return nil
}

// WindowStatus evaluates the 24-hour service window for a conversation.
func (s *Service) WindowStatus(ctx context.Context, id string) (*domain.Conversation, WindowStatus, error) {
	conv, err := s.Get(ctx, id)
	if err != nil {
		return nil, WindowStatus{}, err
	}
	return conv, s.window.Evaluate(ctx, conv), nil
}

// WindowDebug returns the evaluation plus every inbound message timestamp,
// for diagnosing window disagreements.
type WindowDebug struct {
	Status         WindowStatus
	SnapshotAt     *time.Time
	InboundHistory []time.Time
}

func (s *Service) DebugWindow(ctx context.Context, id string) (*WindowDebug, error) {
	conv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	inbound, err := s.repo.FindInboundMessages(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	out := &WindowDebug{
		Status:     s.window.Evaluate(ctx, conv),
		SnapshotAt: conv.LastInboundAt,
	}
	for i := range inbound {
		out.InboundHistory = append(out.InboundHistory, inbound[i].TS)
	}
	return out, nil
}

// Media streams a message attachment through the provider.
func (s *Service) Media(ctx context.Context, conversationID, messageID string) (io.ReadCloser, string, error) {
	msg, err := s.repo.GetMessage(ctx, phone.NormalizeE164(conversationID), messageID)
	if err != nil {
		return nil, "", err
	}
	if msg.MediaURL == "" {
		return nil, "", apperr.NotFound("message has no media")
	}
	return s.provider.FetchMedia(ctx, msg.MediaURL)
}
