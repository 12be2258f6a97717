package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"whatsapp_portal_backend/internal/conversations/domain"
	"whatsapp_portal_backend/platform/apperr"
	"whatsapp_portal_backend/platform/cursor"
	"whatsapp_portal_backend/platform/httpkit"
)

var (
	ana   = httpkit.Agent{ID: "ana@example.com", DisplayName: "Ana"}
	bruno = httpkit.Agent{ID: "bruno@example.com", DisplayName: "Bruno"}
)

func TestClaimPendingHandoff(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeProvider{})
	repo.put(conversationAt("+5511999990001", domain.StatusPendingHandoff, nil))

	conv, err := svc.Claim(context.Background(), "+5511999990001", ana)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if conv.Status != domain.StatusClaimed {
		t.Fatalf("expected claimed, got %s", conv.Status)
	}
	if conv.Assignee != ana.ID {
		t.Fatalf("expected assignee %s, got %s", ana.ID, conv.Assignee)
	}
}

func TestClaimLegacyPendingStatus(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeProvider{})
	conv := conversationAt("+5511999990002", "pending", nil)
	repo.put(conv)

	got, err := svc.Claim(context.Background(), "+5511999990002", ana)
	if err != nil {
		t.Fatalf("claim legacy pending: %v", err)
	}
	if got.Status != domain.StatusClaimed {
		t.Fatalf("expected claimed, got %s", got.Status)
	}
}

func TestClaimClearsHandoffFlags(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeProvider{})
	conv := conversationAt("+5511999990021", domain.StatusPendingHandoff, nil)
	conv.HandoffActive = true
	conv.SessionParameters = domain.ParseSessionParameters([]byte(`{"handoff_requested": true, "user_name": "Maria"}`))
	repo.put(conv)

	got, err := svc.Claim(context.Background(), conv.ID, ana)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if got.HandoffActive {
		t.Fatalf("claim must clear handoff_active")
	}
	if got.SessionParameters.HandoffRequested() {
		t.Fatalf("claim must clear the handoff_requested marker")
	}
	if got.SessionParameters.UserName() != "Maria" {
		t.Fatalf("other session parameters must survive, got %q", got.SessionParameters.UserName())
	}
}

func TestTakeoverClearsHandoffActive(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeProvider{})
	conv := conversationAt("+5511999990022", domain.StatusActive, nil)
	conv.Assignee = ana.ID
	conv.AssigneeName = "Ana"
	conv.HandoffActive = true
	repo.put(conv)

	got, err := svc.Takeover(context.Background(), conv.ID, bruno)
	if err != nil {
		t.Fatalf("takeover: %v", err)
	}
	if got.HandoffActive {
		t.Fatalf("takeover must clear handoff_active")
	}
}

func TestClaimRejectsWrongStatus(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeProvider{})
	repo.put(conversationAt("+5511999990003", domain.StatusActive, nil))

	_, err := svc.Claim(context.Background(), "+5511999990003", ana)
	if !apperr.Is(err, apperr.KindInvalidState) {
		t.Fatalf("expected invalid-state error, got %v", err)
	}
	var appErr *apperr.Error
	if e, ok := err.(*apperr.Error); ok {
		appErr = e
	} else {
		t.Fatalf("expected *apperr.Error, got %T", err)
	}
	details, ok := appErr.Details.(map[string]string)
	if !ok || details["status"] != "active" {
		t.Fatalf("expected current status in details, got %#v", appErr.Details)
	}
}

func TestClaimMissingConversation(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeProvider{})

	_, err := svc.Claim(context.Background(), "+5511999990404", ana)
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestHandoffFromBot(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeProvider{})
	repo.put(conversationAt("+5511999990005", domain.StatusBot, nil))

	conv, err := svc.Handoff(context.Background(), "+5511999990005", ana)
	if err != nil {
		t.Fatalf("handoff: %v", err)
	}
	if conv.Status != domain.StatusClaimed || conv.Assignee != ana.ID {
		t.Fatalf("expected claimed by %s, got %s/%s", ana.ID, conv.Status, conv.Assignee)
	}
}

func TestTakeoverReassigns(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeProvider{})
	conv := conversationAt("+5511999990006", domain.StatusActive, nil)
	conv.Assignee = ana.ID
	conv.AssigneeName = "Ana"
	repo.put(conv)

	got, err := svc.Takeover(context.Background(), conv.ID, bruno)
	if err != nil {
		t.Fatalf("takeover: %v", err)
	}
	if got.Assignee != bruno.ID {
		t.Fatalf("expected assignee %s, got %s", bruno.ID, got.Assignee)
	}
	if got.Status != domain.StatusActive {
		t.Fatalf("takeover must not change status, got %s", got.Status)
	}
}

func TestResolveByOwner(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeProvider{})
	conv := conversationAt("+5511999990007", domain.StatusActive, nil)
	conv.Assignee = ana.ID
	conv.HandoffActive = true
	conv.SessionParameters = domain.ParseSessionParameters([]byte(`{"handoff_requested": true}`))
	repo.put(conv)

	got, err := svc.Resolve(context.Background(), conv.ID, ana)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.Status != domain.StatusResolved {
		t.Fatalf("expected resolved, got %s", got.Status)
	}
	if got.Assignee != "" {
		t.Fatalf("resolved conversations must not keep an assignee")
	}
	if got.HandoffActive || got.SessionParameters.HandoffRequested() {
		t.Fatalf("resolve must clear both handoff flags")
	}
}

func TestResolveByOtherAgentForbidden(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeProvider{})
	conv := conversationAt("+5511999990008", domain.StatusClaimed, nil)
	conv.Assignee = ana.ID
	repo.put(conv)

	_, err := svc.Resolve(context.Background(), conv.ID, bruno)
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestResolveResolvedIsInvalid(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeProvider{})
	repo.put(conversationAt("+5511999990009", domain.StatusResolved, nil))

	_, err := svc.Resolve(context.Background(), "+5511999990009", ana)
	if !apperr.Is(err, apperr.KindInvalidState) {
		t.Fatalf("expected invalid-state, got %v", err)
	}
}

func TestSendFlipsClaimedToActive(t *testing.T) {
	repo := newFakeRepo()
	provider := &fakeProvider{}
	svc := newTestService(repo, provider)
	conv := conversationAt("+5511999990010", domain.StatusClaimed, nil)
	conv.Assignee = ana.ID
	repo.put(conv)

	msg, err := svc.Send(context.Background(), SendRequest{ConversationID: conv.ID, Text: "ola"}, ana)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.ProviderSID == "" {
		t.Fatalf("expected provider sid recorded")
	}
	if msg.By != domain.HumanAuthor(ana.ID) {
		t.Fatalf("expected human author, got %s", msg.By)
	}

	got, _ := svc.Get(context.Background(), conv.ID)
	if got.Status != domain.StatusActive {
		t.Fatalf("expected active after send, got %s", got.Status)
	}
	if got.LastMessageText != "ola" {
		t.Fatalf("expected last message summary, got %q", got.LastMessageText)
	}
}

func TestSendByOtherAgentForbidden(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeProvider{})
	conv := conversationAt("+5511999990011", domain.StatusActive, nil)
	conv.Assignee = ana.ID
	repo.put(conv)

	_, err := svc.Send(context.Background(), SendRequest{ConversationID: conv.ID, Text: "oi"}, bruno)
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestSendPrefixesDisplayName(t *testing.T) {
	repo := newFakeRepo()
	provider := &fakeProvider{}
	svc := newTestService(repo, provider)
	svc.directory = fakeDirectory{name: "Ana Souza", usePrefix: true}

	conv := conversationAt("+5511999990012", domain.StatusClaimed, nil)
	conv.Assignee = ana.ID
	repo.put(conv)

	if _, err := svc.Send(context.Background(), SendRequest{ConversationID: conv.ID, Text: "bom dia"}, ana); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(provider.texts) == 0 || !strings.Contains(provider.texts[len(provider.texts)-1], "Ana Souza: bom dia") {
		t.Fatalf("expected prefixed body, got %v", provider.texts)
	}
}

func TestSendRequiresText(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeProvider{})
	conv := conversationAt("+5511999990013", domain.StatusClaimed, nil)
	conv.Assignee = ana.ID
	repo.put(conv)

	_, err := svc.Send(context.Background(), SendRequest{ConversationID: conv.ID, Text: "  "}, ana)
	if !apperr.Is(err, apperr.KindBadRequest) {
		t.Fatalf("expected bad-request, got %v", err)
	}
}

func TestListNormalizesLegacyStatus(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeProvider{})
	repo.put(conversationAt("+5511999990014", "pending", nil))

	page, err := svc.List(context.Background(), ListQuery{Statuses: []string{"pending_handoff"}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Conversations) != 1 {
		t.Fatalf("expected legacy pending row to match, got %d", len(page.Conversations))
	}
	if page.Conversations[0].Status != domain.StatusPendingHandoff {
		t.Fatalf("expected normalized status, got %s", page.Conversations[0].Status)
	}
}

func TestListRejectsUnknownStatus(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeProvider{})

	_, err := svc.List(context.Background(), ListQuery{Statuses: []string{"archived"}})
	if !apperr.Is(err, apperr.KindBadRequest) {
		t.Fatalf("expected bad-request, got %v", err)
	}
}

func TestListCursorRoundTrip(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeProvider{})
	repo.put(conversationAt("+5511999990023", domain.StatusActive, nil))

	page := cursor.Encode(cursor.Page{At: time.Now().Add(-time.Minute), ID: "+5511999990000"})
	if _, err := svc.List(context.Background(), ListQuery{Cursor: page}); err != nil {
		t.Fatalf("list with encoded cursor: %v", err)
	}

	_, err := svc.List(context.Background(), ListQuery{Cursor: "not-a-cursor"})
	if !apperr.Is(err, apperr.KindBadRequest) {
		t.Fatalf("expected bad-request for malformed cursor, got %v", err)
	}

	_, err = svc.Messages(context.Background(), "+5511999990023", 10, "also!bad")
	if !apperr.Is(err, apperr.KindBadRequest) {
		t.Fatalf("expected bad-request for malformed message cursor, got %v", err)
	}
}

func TestUpdateUserName(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeProvider{})
	conv := conversationAt("+5511999990015", domain.StatusActive, nil)
	conv.SessionParameters = domain.ParseSessionParameters([]byte(`{"user_name": {"user_name": "maria"}}`))
	repo.put(conv)

	if err := svc.UpdateUserName(context.Background(), conv.ID, "Maria Silva", ana); err != nil {
		t.Fatalf("update user name: %v", err)
	}
	got, _ := svc.Get(context.Background(), conv.ID)
	if got.SessionParameters.UserName() != "Maria Silva" {
		t.Fatalf("expected canonical name, got %q", got.SessionParameters.UserName())
	}
}

func TestReconcileDeliveryIdempotent(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeProvider{})
	conv := conversationAt("+5511999990016", domain.StatusActive, nil)
	repo.put(conv)
	repo.addMessage(domain.Message{
		ID: "m1", ConversationID: conv.ID,
		Direction: domain.DirectionOut, ProviderSID: "SM1234", Status: "queued",
		TS: hoursAgo(1),
	})

	cb := DeliveryCallback{To: "whatsapp:+5511999990016", ProviderSID: "SM1234", Status: "delivered"}
	for i := 0; i < 3; i++ {
		matched, err := svc.ReconcileDelivery(context.Background(), cb)
		if err != nil {
			t.Fatalf("reconcile %d: %v", i, err)
		}
		if !matched {
			t.Fatalf("expected callback to match on attempt %d", i)
		}
	}

	msgs, _ := repo.RecentMessages(context.Background(), conv.ID, 10)
	if len(msgs) != 1 || msgs[0].Status != "delivered" {
		t.Fatalf("expected single message delivered, got %+v", msgs)
	}
}

func TestReconcileDeliveryIgnoresUnknownSID(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeProvider{})
	repo.put(conversationAt("+5511999990017", domain.StatusActive, nil))

	matched, err := svc.ReconcileDelivery(context.Background(), DeliveryCallback{
		To: "whatsapp:+5511999990017", ProviderSID: "SM9999", Status: "failed",
	})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if matched {
		t.Fatalf("unknown provider sid must be ignored")
	}
}

func TestReconcileDeliveryIgnoresMissingSID(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeProvider{})

	matched, err := svc.ReconcileDelivery(context.Background(), DeliveryCallback{
		To: "whatsapp:+5511999990018", Status: "sent",
	})
	if err != nil || matched {
		t.Fatalf("callback without sid must be ignored, got matched=%v err=%v", matched, err)
	}
}
