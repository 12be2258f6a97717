package service

import (
	"context"
	"time"

	"whatsapp_portal_backend/internal/conversations/domain"
	"whatsapp_portal_backend/internal/conversations/repository"
	"whatsapp_portal_backend/platform/logger"
)

// WhatsApp's customer service window: free-form messages are only deliverable
// within this long after the user's last inbound message.
const serviceWindow = 24 * time.Hour

// windowScanLimit bounds the history scan when the materialized
// last_inbound_at cache is cold.
const windowScanLimit = 25

// WindowStatus is the outcome of a service-window evaluation.
type WindowStatus struct {
	Outside       bool
	LastInboundAt *time.Time
	HoursSince    float64
	// Source says how the inbound timestamp was found: "snapshot" for the
	// materialized field, "scan" for a history walk, "none" when the
	// conversation has no inbound message at all.
	Source string
}

// WindowEvaluator decides whether a conversation is outside the 24-hour
// service window.
type WindowEvaluator struct {
	repo repository.Repository
	log  *logger.Logger
	now  func() time.Time
}

func NewWindowEvaluator(repo repository.Repository, log *logger.Logger) *WindowEvaluator {
	return &WindowEvaluator{repo: repo, log: log, now: time.Now}
}

// Evaluate resolves the window status for conv. The materialized
// last_inbound_at field is the O(1) fast path; a cold cache falls back to
// scanning recent history and backfills the field best-effort. A conversation
// with no inbound message at all is outside the window: the user has never
// written, so no window was ever opened.
//
// Evaluation errors report the window as open, so reopens are refused when
// the state is unknown.
func (w *WindowEvaluator) Evaluate(ctx context.Context, conv *domain.Conversation) WindowStatus {
	now := w.now()

	if conv.LastInboundAt != nil {
		return w.statusFor(conv.ID, conv.LastInboundAt, "snapshot", now)
	}

	messages, err := w.repo.RecentMessages(ctx, conv.ID, windowScanLimit)
	if err != nil {
		w.log.DatabaseError("window_scan", err)
		return WindowStatus{Outside: false, Source: "error"}
	}

	for i := range messages {
		if messages[i].Direction != domain.DirectionIn {
			continue
		}
		ts := messages[i].TS
		if err := w.repo.SetLastInboundAt(ctx, conv.ID, ts); err != nil {
			w.log.DatabaseError("window_backfill", err)
		}
		return w.statusFor(conv.ID, &ts, "scan", now)
	}

	st := WindowStatus{Outside: true, Source: "none"}
	w.log.WindowCheck(conv.ID, "", 0, st.Outside)
	return st
}

func (w *WindowEvaluator) statusFor(conversationID string, lastInbound *time.Time, source string, now time.Time) WindowStatus {
	hours := now.Sub(*lastInbound).Hours()
	st := WindowStatus{
		Outside:       now.Sub(*lastInbound) > serviceWindow,
		LastInboundAt: lastInbound,
		HoursSince:    hours,
		Source:        source,
	}
	w.log.WindowCheck(conversationID, lastInbound.Format(time.RFC3339), hours, st.Outside)
	return st
}
