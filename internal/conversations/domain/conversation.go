package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// Direction of a message relative to the business.
type Direction string

const (
	// DirectionIn is a user-originated message.
	DirectionIn Direction = "in"
	// DirectionOut is a business-originated message.
	DirectionOut Direction = "out"
)

// Author tags for the message "by" field.
const (
	// SystemTemplateAuthor marks synthetic messages recorded for template sends.
	SystemTemplateAuthor = "system:template"
	// humanAuthorPrefix tags messages sent by a human agent.
	humanAuthorPrefix = "human:"
)

// HumanAuthor builds the author tag for an agent-sent message.
func HumanAuthor(agentID string) string {
	return humanAuthorPrefix + agentID
}

// Conversation is a single end-user WhatsApp thread, keyed by the user's
// E.164 phone address.
type Conversation struct {
	ID           string
	Status       Status
	Assignee     string
	AssigneeName string

	// LastInboundAt is a materialized cache of the most recent user message
	// timestamp. Nil means it hasn't been backfilled yet.
	LastInboundAt *time.Time

	LastMessageText string
	LastMessageBy   string

	// Dedup/audit trail for reopen template sends.
	LastReopenTemplateAt     *time.Time
	LastReopenTemplateSID    string
	LastReopenTemplateBy     string
	LastReopenTemplateByName string

	ReopenedAt *time.Time
	ReopenedBy string

	HandoffActive bool
	Tags          []string

	SessionParameters SessionParameters

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Owned reports whether the conversation has an owning agent.
func (c *Conversation) Owned() bool {
	return c.Assignee != ""
}

// OwnedBy reports whether agentID currently owns the conversation.
func (c *Conversation) OwnedBy(agentID string) bool {
	return c.Assignee != "" && c.Assignee == agentID
}

// Message is one entry in a conversation's history, immutable except for
// delivery-status patches.
type Message struct {
	ID             string
	ConversationID string
	Direction      Direction
	By             string
	DisplayName    string
	Text           string
	MediaURL       string
	MediaType      string
	TS             time.Time

	// ProviderSID is the messaging provider's message id, used to correlate
	// delivery callbacks.
	ProviderSID string
	// Status is the provider delivery status (queued/sent/delivered/failed...).
	Status       string
	ErrorCode    string
	ErrorMessage string

	// ClientRequestID is a caller-supplied idempotency key.
	ClientRequestID string

	TemplateSID  string
	TemplateName string
	IsTemplate   bool
}

// SessionParameters is the bot's session state attached to a conversation,
// kept as raw JSON because old records carry inconsistent shapes.
type SessionParameters struct {
	raw map[string]json.RawMessage
}

// ParseSessionParameters decodes the stored jsonb blob. Malformed or absent
// data yields empty parameters rather than an error; session state is always
// best-effort.
func ParseSessionParameters(data []byte) SessionParameters {
	if len(data) == 0 {
		return SessionParameters{}
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return SessionParameters{}
	}
	return SessionParameters{raw: raw}
}

// UserName resolves the end user's display name from session parameters.
// Two legacy shapes exist and both must resolve here, at the data-model
// boundary, so neither leaks into callers:
//
//	{"user_name": "Maria"}
//	{"user_name": {"user_name": "Maria"}}
//
// Returns "" when no usable name is present.
func (p SessionParameters) UserName() string {
	field, ok := p.raw["user_name"]
	if !ok {
		return ""
	}

	var direct string
	if err := json.Unmarshal(field, &direct); err == nil {
		return strings.TrimSpace(direct)
	}

	var nested struct {
		UserName string `json:"user_name"`
	}
	if err := json.Unmarshal(field, &nested); err == nil {
		return strings.TrimSpace(nested.UserName)
	}

	return ""
}

// HandoffRequested reports whether the bot flagged a pending handoff request.
func (p SessionParameters) HandoffRequested() bool {
	field, ok := p.raw["handoff_requested"]
	if !ok {
		return false
	}
	var requested bool
	if err := json.Unmarshal(field, &requested); err != nil {
		return false
	}
	return requested
}

// ClearHandoffRequest returns the parameters with the handoff marker removed.
func (p SessionParameters) ClearHandoffRequest() SessionParameters {
	if _, ok := p.raw["handoff_requested"]; !ok {
		return p
	}
	raw := make(map[string]json.RawMessage, len(p.raw))
	for k, v := range p.raw {
		if k == "handoff_requested" {
			continue
		}
		raw[k] = v
	}
	return SessionParameters{raw: raw}
}

// TruncateSummary caps a message text for the denormalized
// last_message_text field.
func TruncateSummary(text string) string {
	const maxRunes = 200
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	return string(runes[:maxRunes])
}
