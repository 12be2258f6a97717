package audit

import (
	"context"
	"testing"

	"whatsapp_portal_backend/internal/events"
	"whatsapp_portal_backend/platform/logger"
)

func TestHandleCoversAllConversationEvents(t *testing.T) {
	m := New(logger.New("development"))
	bus := events.NewInMemoryBus(logger.New("development"))
	m.RegisterHandlers(bus)

	published := []events.Event{
		events.ConversationClaimed{
			BaseEvent:      events.NewBaseEvent(),
			ConversationID: "5511999990000",
			AgentID:        "ana@example.com",
			OldStatus:      "pending_handoff",
			NewStatus:      "claimed",
		},
		events.ConversationResolved{
			BaseEvent:      events.NewBaseEvent(),
			ConversationID: "5511999990000",
			AgentID:        "ana@example.com",
			OldStatus:      "active",
		},
		events.ConversationReopened{
			BaseEvent:      events.NewBaseEvent(),
			ConversationID: "5511999990000",
			AgentID:        "system",
			TemplateSID:    "HX0001",
			TemplateName:   "reopen_default",
			ProviderSID:    "SM0001",
			OldStatus:      "resolved",
			NewStatus:      "claimed",
			Batch:          true,
		},
		events.MessageDeliveryUpdated{
			BaseEvent:      events.NewBaseEvent(),
			ConversationID: "5511999990000",
			ProviderSID:    "SM0001",
			Status:         "delivered",
		},
	}

	for _, event := range published {
		if err := bus.PublishSync(context.Background(), event); err != nil {
			t.Fatalf("PublishSync(%s): %v", event.EventName(), err)
		}
	}
}
