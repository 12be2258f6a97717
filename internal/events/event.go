// Package events provides domain event definitions and the in-memory bus for
// decoupled, event-driven communication between modules.
package events

import (
	"context"
	"time"
)

// Event is the base interface all domain events must implement.
type Event interface {
	// EventName returns a unique identifier for the event type.
	EventName() string
	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// OccurredAt returns when the event occurred.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent creates a new base event with the current timestamp.
func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now()}
}

// Handler processes events of a specific type.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc is an adapter to allow ordinary functions to be used as handlers.
type HandlerFunc func(ctx context.Context, event Event) error

// Handle calls the underlying function.
func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus is the interface for publishing and subscribing to domain events.
type Bus interface {
	// Publish sends an event to all registered handlers for that event type.
	// Handlers are executed asynchronously.
	Publish(ctx context.Context, event Event)

	// PublishSync sends an event and waits for all handlers to complete.
	PublishSync(ctx context.Context, event Event) error

	// Subscribe registers a handler for a specific event type.
	// The eventName should match the value returned by Event.EventName().
	Subscribe(eventName string, handler Handler)
}

// =============================================================================
// Conversation Domain Events
// =============================================================================

// ConversationClaimed is published when an agent takes ownership of a
// conversation (claim, handoff from bot, or takeover).
type ConversationClaimed struct {
	BaseEvent
	ConversationID string `json:"conversationId"`
	AgentID        string `json:"agentId"`
	OldStatus      string `json:"oldStatus"`
	NewStatus      string `json:"newStatus"`
}

func (e ConversationClaimed) EventName() string { return "conversations.claimed" }

// ConversationResolved is published when a conversation is closed out.
type ConversationResolved struct {
	BaseEvent
	ConversationID string `json:"conversationId"`
	AgentID        string `json:"agentId"`
	OldStatus      string `json:"oldStatus"`
}

func (e ConversationResolved) EventName() string { return "conversations.resolved" }

// ConversationReopened is published when a reopen template was dispatched,
// either for a single conversation or during a batch sweep.
type ConversationReopened struct {
	BaseEvent
	ConversationID string `json:"conversationId"`
	AgentID        string `json:"agentId"`
	TemplateSID    string `json:"templateSid"`
	TemplateName   string `json:"templateName"`
	ProviderSID    string `json:"providerSid"`
	OldStatus      string `json:"oldStatus"`
	NewStatus      string `json:"newStatus"`
	Batch          bool   `json:"batch"`
}

func (e ConversationReopened) EventName() string { return "conversations.reopened" }

// MessageDeliveryUpdated is published when a provider delivery callback
// changed a stored message's status.
type MessageDeliveryUpdated struct {
	BaseEvent
	ConversationID string `json:"conversationId"`
	ProviderSID    string `json:"providerSid"`
	Status         string `json:"status"`
	ErrorCode      string `json:"errorCode,omitempty"`
}

func (e MessageDeliveryUpdated) EventName() string { return "conversations.delivery_updated" }
