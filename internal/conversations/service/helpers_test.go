package service

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"whatsapp_portal_backend/internal/conversations/domain"
	"whatsapp_portal_backend/internal/conversations/repository"
	"whatsapp_portal_backend/internal/events"
	"whatsapp_portal_backend/platform/apperr"
	"whatsapp_portal_backend/platform/logger"
)

// fakeRepo is an in-memory repository mirroring the conditional-update
// semantics of the Postgres implementation.
type fakeRepo struct {
	mu            sync.Mutex
	conversations map[string]*domain.Conversation
	messages      map[string][]domain.Message

	failRecent bool
	backfills  int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		conversations: map[string]*domain.Conversation{},
		messages:      map[string][]domain.Message{},
	}
}

func (f *fakeRepo) put(conv *domain.Conversation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *conv
	f.conversations[conv.ID] = &cp
}

func (f *fakeRepo) addMessage(msg domain.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[msg.ConversationID] = append(f.messages[msg.ConversationID], msg)
}

func (f *fakeRepo) Get(_ context.Context, id string) (*domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.conversations[id]
	if !ok {
		return nil, apperr.NotFound("conversation not found")
	}
	cp := *conv
	return &cp, nil
}

func (f *fakeRepo) List(_ context.Context, params repository.ListParams) ([]domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Conversation
	for _, conv := range f.conversations {
		if len(params.Statuses) > 0 && !contains(params.Statuses, string(conv.Status)) {
			continue
		}
		if params.Assignee != "" && conv.Assignee != params.Assignee {
			continue
		}
		out = append(out, *conv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (f *fakeRepo) ListByRawStatus(_ context.Context, rawStatus string) ([]domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Conversation
	for _, conv := range f.conversations {
		if string(conv.Status) == rawStatus {
			out = append(out, *conv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func (f *fakeRepo) transition(id string, allowed []string, apply func(*domain.Conversation)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.conversations[id]
	if !ok {
		return apperr.NotFound("conversation not found")
	}
	if !contains(allowed, string(conv.Status)) {
		return apperr.Conflict("conversation changed concurrently")
	}
	apply(conv)
	conv.UpdatedAt = time.Now()
	return nil
}

func (f *fakeRepo) ClaimPending(_ context.Context, id, agentID, agentName string) error {
	return f.transition(id, []string{"pending_handoff", "pending"}, func(c *domain.Conversation) {
		c.Status = domain.StatusClaimed
		c.Assignee = agentID
		c.AssigneeName = agentName
		c.HandoffActive = false
		c.SessionParameters = c.SessionParameters.ClearHandoffRequest()
	})
}

func (f *fakeRepo) HandoffFromBot(_ context.Context, id, agentID, agentName string) error {
	return f.transition(id, []string{"bot"}, func(c *domain.Conversation) {
		c.Status = domain.StatusClaimed
		c.Assignee = agentID
		c.AssigneeName = agentName
		c.HandoffActive = false
		c.SessionParameters = c.SessionParameters.ClearHandoffRequest()
	})
}

func (f *fakeRepo) Takeover(_ context.Context, id, agentID, agentName string) error {
	return f.transition(id, []string{"claimed", "active"}, func(c *domain.Conversation) {
		c.Assignee = agentID
		c.AssigneeName = agentName
		c.HandoffActive = false
	})
}

func (f *fakeRepo) Resolve(_ context.Context, id string) error {
	return f.transition(id, []string{"claimed", "active", "bot"}, func(c *domain.Conversation) {
		c.Status = domain.StatusResolved
		c.Assignee = ""
		c.AssigneeName = ""
		c.HandoffActive = false
		c.SessionParameters = c.SessionParameters.ClearHandoffRequest()
	})
}

func (f *fakeRepo) MarkSent(_ context.Context, id, agentID, agentName, lastText, lastBy string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.conversations[id]
	if !ok {
		return apperr.NotFound("conversation not found")
	}
	if string(conv.Status) != "claimed" && string(conv.Status) != "active" {
		return apperr.Conflict("conversation changed concurrently")
	}
	if conv.Assignee != "" && conv.Assignee != agentID {
		return apperr.Conflict("conversation changed concurrently")
	}
	conv.Status = domain.StatusActive
	conv.Assignee = agentID
	conv.AssigneeName = agentName
	conv.LastMessageText = lastText
	conv.LastMessageBy = lastBy
	conv.UpdatedAt = time.Now()
	return nil
}

func (f *fakeRepo) ApplyReopen(_ context.Context, id string, upd repository.ReopenUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.conversations[id]
	if !ok {
		return apperr.NotFound("conversation not found")
	}
	now := time.Now()
	conv.Status = upd.Status
	conv.Assignee = upd.Assignee
	conv.AssigneeName = upd.AssigneeName
	conv.HandoffActive = false
	conv.SessionParameters = conv.SessionParameters.ClearHandoffRequest()
	conv.ReopenedAt = &now
	conv.ReopenedBy = upd.ReopenedBy
	conv.LastReopenTemplateAt = &now
	conv.LastReopenTemplateSID = upd.TemplateSID
	conv.LastReopenTemplateBy = upd.TemplateBy
	conv.LastReopenTemplateByName = upd.TemplateByName
	conv.LastMessageText = upd.LastMessageText
	conv.LastMessageBy = upd.LastMessageBy
	conv.UpdatedAt = now
	return nil
}

func (f *fakeRepo) SetLastInboundAt(_ context.Context, id string, ts time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.conversations[id]
	if !ok {
		return apperr.NotFound("conversation not found")
	}
	if conv.LastInboundAt == nil || conv.LastInboundAt.Before(ts) {
		cp := ts
		conv.LastInboundAt = &cp
	}
	f.backfills++
	return nil
}

func (f *fakeRepo) SetUserName(_ context.Context, id, userName, updatedBy string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.conversations[id]
	if !ok {
		return apperr.NotFound("conversation not found")
	}
	raw := fmt.Sprintf(`{"user_name": %q, "user_name_updated_by": %q}`, userName, updatedBy)
	conv.SessionParameters = domain.ParseSessionParameters([]byte(raw))
	return nil
}

func (f *fakeRepo) AppendMessage(_ context.Context, msg *domain.Message) error {
	f.addMessage(*msg)
	return nil
}

func (f *fakeRepo) ListMessages(_ context.Context, conversationID string, params repository.MessageListParams) ([]domain.Message, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}
	return f.RecentMessages(context.Background(), conversationID, limit)
}

func (f *fakeRepo) RecentMessages(_ context.Context, conversationID string, limit int) ([]domain.Message, error) {
	if f.failRecent {
		return nil, fmt.Errorf("storage unavailable")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := append([]domain.Message(nil), f.messages[conversationID]...)
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].TS.After(msgs[j].TS) })
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func (f *fakeRepo) FindInboundMessages(_ context.Context, conversationID string) ([]domain.Message, error) {
	all, err := f.RecentMessages(context.Background(), conversationID, 1<<30)
	if err != nil {
		return nil, err
	}
	var out []domain.Message
	for _, m := range all {
		if m.Direction == domain.DirectionIn {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetMessage(_ context.Context, conversationID, messageID string) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages[conversationID] {
		if m.ID == messageID {
			cp := m
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("message not found")
}

func (f *fakeRepo) ApplyDelivery(_ context.Context, conversationID, providerSID string, patch repository.DeliveryPatch) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.messages[conversationID]
	for i := range msgs {
		if msgs[i].ProviderSID == providerSID {
			msgs[i].Status = patch.Status
			if patch.ErrorCode != "" {
				msgs[i].ErrorCode = patch.ErrorCode
			}
			if patch.ErrorMessage != "" {
				msgs[i].ErrorMessage = patch.ErrorMessage
			}
			return true, nil
		}
	}
	return false, nil
}

var _ repository.Repository = (*fakeRepo)(nil)

// fakeProvider records sends and returns canned results.
type fakeProvider struct {
	mu        sync.Mutex
	texts     []string
	templates []templateSend
	failWith  error
	nextSID   int
}

type templateSend struct {
	to        string
	sid       string
	variables map[string]string
}

func (p *fakeProvider) Configured() bool { return true }

func (p *fakeProvider) SendText(_ context.Context, to, body, _ string) (string, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return "", "", p.failWith
	}
	p.texts = append(p.texts, to+"|"+body)
	p.nextSID++
	return fmt.Sprintf("SM%04d", p.nextSID), "queued", nil
}

func (p *fakeProvider) SendTemplate(_ context.Context, to, contentSID string, variables map[string]string) (string, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return "", "", p.failWith
	}
	p.templates = append(p.templates, templateSend{to: to, sid: contentSID, variables: variables})
	p.nextSID++
	return fmt.Sprintf("SM%04d", p.nextSID), "queued", nil
}

func (p *fakeProvider) FetchMedia(_ context.Context, _ string) (io.ReadCloser, string, error) {
	return io.NopCloser(strings.NewReader("media")), "image/jpeg", nil
}

func (p *fakeProvider) templateCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.templates)
}

// fakeDirectory returns a fixed presentation.
type fakeDirectory struct {
	name      string
	usePrefix bool
}

func (d fakeDirectory) Presentation(_ context.Context, agentID, fallback string) (string, bool) {
	if d.name != "" {
		return d.name, d.usePrefix
	}
	return fallback, d.usePrefix
}

// fixedTemplateConfig satisfies config.TemplateConfig for tests.
type fixedTemplateConfig struct{}

func (fixedTemplateConfig) GetReopenTemplateSIDDefault() string        { return "HX_default" }
func (fixedTemplateConfig) GetReopenTemplateSIDPendingHandoff() string { return "HX_handoff" }
func (fixedTemplateConfig) GetReopenTemplateSIDBot() string            { return "HX_bot" }
func (fixedTemplateConfig) GetTemplateTimezone() string                { return "America/Sao_Paulo" }
func (fixedTemplateConfig) GetTemplateHonorific() string               { return "Sr(a)" }

type fixedSweepConfig struct{ concurrency int }

func (c fixedSweepConfig) GetSweepInterval() time.Duration { return time.Hour }
func (c fixedSweepConfig) GetSweepConcurrency() int        { return c.concurrency }

func newTestService(repo *fakeRepo, provider *fakeProvider) *Service {
	log := logger.New("development")
	window := NewWindowEvaluator(repo, log)
	svc := NewService(repo, provider, window, fakeDirectory{}, events.NewInMemoryBus(log),
		fixedTemplateConfig{}, fixedSweepConfig{concurrency: 2}, log)
	return svc
}

func hoursAgo(h float64) time.Time {
	return time.Now().Add(-time.Duration(h * float64(time.Hour)))
}

func conversationAt(id string, status domain.Status, lastInbound *time.Time) *domain.Conversation {
	return &domain.Conversation{
		ID:            id,
		Status:        status,
		LastInboundAt: lastInbound,
		CreatedAt:     time.Now().Add(-72 * time.Hour),
		UpdatedAt:     time.Now().Add(-time.Hour),
	}
}

func timePtr(t time.Time) *time.Time { return &t }
