// Package audit subscribes to conversation domain events and writes a
// structured audit trail. Domain modules publish events without knowing
// who consumes them; this module inverts that dependency for logging.
package audit

import (
	"context"

	"whatsapp_portal_backend/internal/events"
	"whatsapp_portal_backend/platform/logger"
)

// Module handles audit-trail event subscriptions.
type Module struct {
	log *logger.Logger
}

// New creates a new audit module.
func New(log *logger.Logger) *Module {
	return &Module{log: log}
}

// RegisterHandlers subscribes to all conversation events on the bus.
func (m *Module) RegisterHandlers(bus *events.InMemoryBus) {
	bus.Subscribe(events.ConversationClaimed{}.EventName(), m)
	bus.Subscribe(events.ConversationResolved{}.EventName(), m)
	bus.Subscribe(events.ConversationReopened{}.EventName(), m)
	bus.Subscribe(events.MessageDeliveryUpdated{}.EventName(), m)

	m.log.Info("audit module registered event handlers")
}

// Handle routes events to the appropriate handler method.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.ConversationClaimed:
		m.log.ConversationEvent("claimed", e.ConversationID, e.AgentID, e.OldStatus, e.NewStatus)
	case events.ConversationResolved:
		m.log.ConversationEvent("resolved", e.ConversationID, e.AgentID, e.OldStatus, "resolved")
	case events.ConversationReopened:
		m.handleReopened(e)
	case events.MessageDeliveryUpdated:
		m.log.Info("message delivery updated",
			"conversation_id", e.ConversationID,
			"provider_sid", e.ProviderSID,
			"status", e.Status,
			"error_code", e.ErrorCode,
		)
	default:
		m.log.Warn("unhandled event type", "event", event.EventName())
	}
	return nil
}

func (m *Module) handleReopened(e events.ConversationReopened) {
	action := "reopened"
	if e.Batch {
		action = "reopened_batch"
	}
	m.log.ConversationEvent(action, e.ConversationID, e.AgentID, e.OldStatus, e.NewStatus)
	m.log.Info("reopen template dispatched",
		"conversation_id", e.ConversationID,
		"template_sid", e.TemplateSID,
		"template_name", e.TemplateName,
		"provider_sid", e.ProviderSID,
		"batch", e.Batch,
	)
}
