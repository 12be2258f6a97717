package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"whatsapp_portal_backend/internal/conversations/domain"
	"whatsapp_portal_backend/internal/conversations/repository"
	"whatsapp_portal_backend/internal/events"
	"whatsapp_portal_backend/platform/apperr"
	"whatsapp_portal_backend/platform/httpkit"
)

// reopenDedupWindow suppresses a second template to the same conversation
// within this long of the previous one.
const reopenDedupWindow = 24 * time.Hour

// sweepErrorCap bounds how many per-conversation errors a sweep report carries.
const sweepErrorCap = 50

// sweepStatuses are the raw stored status values the batch sweep considers,
// legacy "pending" included. Resolved conversations are never swept.
var sweepStatuses = []string{"bot", "pending_handoff", "pending", "claimed", "active"}

// ReopenResult describes a dispatched reopen template.
type ReopenResult struct {
	Conversation *domain.Conversation
	TemplateSID  string
	TemplateName string
	ProviderSID  string
}

// Reopen dispatches a re-engagement template for one conversation. The
// conversation must be outside the 24-hour service window; inside it the
// agent can simply send a free-text message.
func (s *Service) Reopen(ctx context.Context, id string, agent httpkit.Agent) (*ReopenResult, error) {
	conv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	win := s.window.Evaluate(ctx, conv)
	if !win.Outside {
		return nil, apperr.WindowOpen("service window is still open, send a normal message instead")
	}

	result, err := s.dispatchReopen(ctx, conv, reopenActor{id: agent.ID, name: agent.Name()}, false)
	if err != nil {
		return nil, err
	}
	return result, nil
}

type reopenActor struct {
	id   string
	name string
}

// dispatchReopen sends the template, records the synthetic message, and
// applies the status/audit update. Callers have already checked the window.
func (s *Service) dispatchReopen(ctx context.Context, conv *domain.Conversation, actor reopenActor, batch bool) (*ReopenResult, error) {
	sel, err := selectReopenTemplate(s.cfg, conv.Status)
	if err != nil {
		return nil, err
	}
	variables := reopenTemplateVariables(s.cfg, s.log, conv, s.now())

	providerSID, providerStatus, err := s.provider.SendTemplate(ctx, conv.ID, sel.SID, variables)
	if err != nil {
		return nil, err
	}

	target, assignee, assigneeName := reopenPlacement(conv, actor, batch)
	text := domain.TruncateSummary(templateMessageText(actor.name, batch))

	upd := repository.ReopenUpdate{
		Status:          target,
		Assignee:        assignee,
		AssigneeName:    assigneeName,
		ReopenedBy:      actor.id,
		TemplateSID:     sel.SID,
		TemplateBy:      actor.id,
		TemplateByName:  actor.name,
		LastMessageText: text,
		LastMessageBy:   domain.SystemTemplateAuthor,
	}
	if err := s.repo.ApplyReopen(ctx, conv.ID, upd); err != nil {
		return nil, err
	}

	msg := &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Direction:      domain.DirectionOut,
		By:             domain.SystemTemplateAuthor,
		DisplayName:    actor.name,
		Text:           text,
		TS:             s.now().UTC(),
		ProviderSID:    providerSID,
		Status:         providerStatus,
		TemplateSID:    sel.SID,
		TemplateName:   sel.Name,
		IsTemplate:     true,
	}
	if err := s.repo.AppendMessage(ctx, msg); err != nil {
		s.log.DatabaseError("reopen_append_message", err)
	}

	s.log.WithContext(ctx).ConversationEvent("reopen", conv.ID, actor.id, string(conv.Status), string(target))
	s.bus.Publish(ctx, events.ConversationReopened{
		BaseEvent:      events.NewBaseEvent(),
		ConversationID: conv.ID,
		AgentID:        actor.id,
		TemplateSID:    sel.SID,
		TemplateName:   sel.Name,
		ProviderSID:    providerSID,
		OldStatus:      string(conv.Status),
		NewStatus:      string(target),
		Batch:          batch,
	})

	updated, err := s.Get(ctx, conv.ID)
	if err != nil {
		updated = conv
	}
	return &ReopenResult{
		Conversation: updated,
		TemplateSID:  sel.SID,
		TemplateName: sel.Name,
		ProviderSID:  providerSID,
	}, nil
}

// reopenPlacement decides where a conversation lands after a reopen template.
//
// For an agent-initiated reopen, resolved and queued conversations become
// claimed by that agent; bot conversations stay with the bot; claimed and
// active ones continue as active, owned by the requesting agent.
//
// The batch sweep has no claiming agent: queued conversations stay queued,
// owned ones continue with their owner, and ownerless claimed/active ones
// are demoted back to the handoff queue.
func reopenPlacement(conv *domain.Conversation, actor reopenActor, batch bool) (domain.Status, string, string) {
	if batch {
		switch conv.Status {
		case domain.StatusBot:
			return domain.StatusBot, "", ""
		case domain.StatusPendingHandoff:
			return domain.StatusPendingHandoff, "", ""
		default: // claimed or active
			if conv.Owned() {
				return domain.StatusActive, conv.Assignee, conv.AssigneeName
			}
			return domain.StatusPendingHandoff, "", ""
		}
	}

	switch target := domain.ReopenTarget(conv.Status); target {
	case domain.StatusClaimed:
		return domain.StatusClaimed, actor.id, actor.name
	case domain.StatusBot:
		return domain.StatusBot, "", ""
	default: // active
		return domain.StatusActive, actor.id, actor.name
	}
}

// SweepReport summarizes one batch reopen pass.
type SweepReport struct {
	Checked           int      `json:"checked"`
	ReopenedCount     int      `json:"reopened_count"`
	SkippedRecent     int      `json:"skipped_recent"`
	SkippedWindowOpen int      `json:"skipped_window_open"`
	Errors            []string `json:"errors,omitempty"`
	TruncatedErrors   int      `json:"truncated_errors,omitempty"`
}

// SweepReopen walks every non-resolved conversation and dispatches reopen
// templates to those outside the service window, skipping any that already
// got one in the last 24 hours. Workers run concurrently with a bounded
// limit; a canceled context stops scheduling new conversations.
func (s *Service) SweepReopen(ctx context.Context, actorID string) (*SweepReport, error) {
	seen := map[string]bool{}
	var candidates []domain.Conversation
	for _, raw := range sweepStatuses {
		batch, err := s.repo.ListByRawStatus(ctx, raw)
		if err != nil {
			return nil, err
		}
		for _, conv := range batch {
			if seen[conv.ID] {
				continue
			}
			seen[conv.ID] = true
			conv.Status = domain.NormalizeStatus(string(conv.Status))
			candidates = append(candidates, conv)
		}
	}

	report := &SweepReport{}
	var mu sync.Mutex

	actor := reopenActor{id: actorID, name: actorID}
	now := s.now()

	g, gctx := errgroup.WithContext(ctx)
	limit := s.sweepCfg.GetSweepConcurrency()
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)

	for i := range candidates {
		conv := candidates[i]
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			outcome, errMsg := s.sweepOne(gctx, &conv, actor, now)
			mu.Lock()
			defer mu.Unlock()
			report.Checked++
			switch outcome {
			case sweepReopened:
				report.ReopenedCount++
			case sweepSkippedRecent:
				report.SkippedRecent++
			case sweepSkippedWindow:
				report.SkippedWindowOpen++
			case sweepFailed:
				if len(report.Errors) < sweepErrorCap {
					report.Errors = append(report.Errors, errMsg)
				} else {
					report.TruncatedErrors++
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	s.log.Info("reopen sweep finished",
		"checked", report.Checked,
		"reopened", report.ReopenedCount,
		"skipped_recent", report.SkippedRecent,
		"skipped_window_open", report.SkippedWindowOpen,
		"errors", len(report.Errors)+report.TruncatedErrors,
	)
	return report, nil
}

type sweepOutcome int

const (
	sweepReopened sweepOutcome = iota
	sweepSkippedRecent
	sweepSkippedWindow
	sweepFailed
)

func (s *Service) sweepOne(ctx context.Context, conv *domain.Conversation, actor reopenActor, now time.Time) (sweepOutcome, string) {
	if conv.LastReopenTemplateAt != nil && now.Sub(*conv.LastReopenTemplateAt) < reopenDedupWindow {
		return sweepSkippedRecent, ""
	}

	if win := s.window.Evaluate(ctx, conv); !win.Outside {
		return sweepSkippedWindow, ""
	}

	if _, err := s.dispatchReopen(ctx, conv, actor, true); err != nil {
		return sweepFailed, fmt.Sprintf("%s: %v", conv.ID, err)
	}
	return sweepReopened, ""
}
