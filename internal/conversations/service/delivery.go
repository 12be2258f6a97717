package service

import (
	"context"

	"whatsapp_portal_backend/internal/conversations/repository"
	"whatsapp_portal_backend/internal/events"
	"whatsapp_portal_backend/platform/phone"
)

// DeliveryCallback is a provider status callback for an outbound message.
type DeliveryCallback struct {
	// To is the provider address the message was sent to ("whatsapp:+55...").
	To          string
	ProviderSID string
	Status      string
	ErrorCode   string
	ErrorMsg    string
}

// ReconcileDelivery merges a provider delivery callback into the stored
// message. Callbacks without a provider sid, or for messages this system never
// recorded, are ignored: providers replay and reorder callbacks freely, so
// the merge is idempotent and unknown sids are noise, not errors.
func (s *Service) ReconcileDelivery(ctx context.Context, cb DeliveryCallback) (bool, error) {
	if cb.ProviderSID == "" || cb.Status == "" {
		return false, nil
	}

	conversationID := phone.NormalizeE164(phone.StripWhatsAppPrefix(cb.To))
	if conversationID == "" {
		return false, nil
	}

	matched, err := s.repo.ApplyDelivery(ctx, conversationID, cb.ProviderSID, repository.DeliveryPatch{
		Status:       cb.Status,
		ErrorCode:    cb.ErrorCode,
		ErrorMessage: cb.ErrorMsg,
	})
	if err != nil {
		return false, err
	}
	if !matched {
		s.log.Debug("delivery callback for unknown message",
			"conversation_id", conversationID, "provider_sid", cb.ProviderSID)
		return false, nil
	}

	s.bus.Publish(ctx, events.MessageDeliveryUpdated{
		BaseEvent:      events.NewBaseEvent(),
		ConversationID: conversationID,
		ProviderSID:    cb.ProviderSID,
		Status:         cb.Status,
		ErrorCode:      cb.ErrorCode,
	})
	return true, nil
}
