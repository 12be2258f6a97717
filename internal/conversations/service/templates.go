package service

import (
	"time"

	"whatsapp_portal_backend/internal/conversations/domain"
	"whatsapp_portal_backend/platform/apperr"
	"whatsapp_portal_backend/platform/config"
	"whatsapp_portal_backend/platform/logger"
)

// Template names recorded on the synthetic message and in reopen audit fields.
const (
	templateNameHandoff = "handoff_request"
	templateNameBot     = "bot_resumption"
	templateNameDefault = "reopen_default"
)

// TemplateSelection is the content template chosen for a reopen dispatch.
type TemplateSelection struct {
	SID  string
	Name string
}

// selectReopenTemplate picks the content template for the conversation's
// normalized status. Queued conversations get the handoff-request template,
// bot conversations the resumption one, everything else the default.
func selectReopenTemplate(cfg config.TemplateConfig, status domain.Status) (TemplateSelection, error) {
	var sel TemplateSelection
	switch status {
	case domain.StatusPendingHandoff:
		sel = TemplateSelection{SID: cfg.GetReopenTemplateSIDPendingHandoff(), Name: templateNameHandoff}
	case domain.StatusBot:
		sel = TemplateSelection{SID: cfg.GetReopenTemplateSIDBot(), Name: templateNameBot}
	default:
		sel = TemplateSelection{SID: cfg.GetReopenTemplateSIDDefault(), Name: templateNameDefault}
	}
	if sel.SID == "" {
		return TemplateSelection{}, apperr.Internal("reopen template is not configured")
	}
	return sel, nil
}

// reopenTemplateVariables builds the positional content variables every reopen
// template receives: "1" is the user's name and "2" the conversation start
// date formatted for the configured timezone.
func reopenTemplateVariables(cfg config.TemplateConfig, log *logger.Logger, conv *domain.Conversation, now time.Time) map[string]string {
	name := conv.SessionParameters.UserName()
	if name == "" {
		name = cfg.GetTemplateHonorific()
	}

	loc, err := time.LoadLocation(cfg.GetTemplateTimezone())
	if err != nil {
		log.Warn("template timezone invalid, using UTC", "timezone", cfg.GetTemplateTimezone())
		loc = time.UTC
	}

	created := conv.CreatedAt
	if created.IsZero() {
		log.Warn("conversation missing created_at, using current date", "conversation_id", conv.ID)
		created = now
	}

	return map[string]string{
		"1": name,
		"2": created.In(loc).Format("02/01/2006"),
	}
}

// templateMessageText is the text recorded on the synthetic message for a
// template dispatch; the real body lives in the provider's approved template.
func templateMessageText(actorName string, batch bool) string {
	if batch {
		return "Conversation automatically reopened by " + actorName
	}
	return "Conversation reopened by " + actorName
}
