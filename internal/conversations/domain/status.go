// Package domain holds the conversation lifecycle model: statuses, transition
// guards, and the conversation/message records shared by the repository and
// service layers.
package domain

// Status is the lifecycle state of a conversation.
type Status string

const (
	// StatusBot means the automated bot is handling the conversation.
	StatusBot Status = "bot"
	// StatusPendingHandoff means the user asked for a human and is waiting in the queue.
	StatusPendingHandoff Status = "pending_handoff"
	// StatusClaimed means an agent owns the conversation but hasn't replied yet.
	StatusClaimed Status = "claimed"
	// StatusActive means the owning agent has sent at least one reply.
	StatusActive Status = "active"
	// StatusResolved means the conversation was closed out. It can be reopened.
	StatusResolved Status = "resolved"

	// legacyStatusPending is the pre-migration spelling of pending_handoff
	// still present on old records.
	legacyStatusPending = "pending"
)

// NormalizeStatus maps raw stored status values to the canonical enum.
// The legacy "pending" value reads as pending_handoff everywhere.
func NormalizeStatus(raw string) Status {
	if raw == legacyStatusPending {
		return StatusPendingHandoff
	}
	return Status(raw)
}

// Valid reports whether s is one of the canonical statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusBot, StatusPendingHandoff, StatusClaimed, StatusActive, StatusResolved:
		return true
	}
	return false
}

// RequiresAssignee reports whether conversations in this status must carry an
// owning agent. The invariant runs both ways: assignee set ⇔ claimed/active.
func (s Status) RequiresAssignee() bool {
	return s == StatusClaimed || s == StatusActive
}

// Claimable reports whether a queued conversation can be claimed.
func (s Status) Claimable() bool {
	return s == StatusPendingHandoff
}

// HandoffableFromBot reports whether an agent may take the conversation over
// from the bot.
func (s Status) HandoffableFromBot() bool {
	return s == StatusBot
}

// Takeoverable reports whether the conversation can be reassigned to another
// agent.
func (s Status) Takeoverable() bool {
	return s == StatusClaimed || s == StatusActive
}

// Resolvable reports whether the conversation can be closed out.
func (s Status) Resolvable() bool {
	return s == StatusClaimed || s == StatusActive || s == StatusBot
}

// ReopenTarget returns the status a conversation lands in after a reopen
// template is dispatched: resolved and queued conversations become claimed by
// the reopening agent, bot conversations stay with the bot, and everything
// else continues as active.
func ReopenTarget(current Status) Status {
	switch current {
	case StatusResolved, StatusPendingHandoff:
		return StatusClaimed
	case StatusBot:
		return StatusBot
	default:
		return StatusActive
	}
}
