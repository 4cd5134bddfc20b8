package bot

import (
	"context"
	"strings"

	"github.com/arogya-clinic/whatsapp-assistant/internal/appointments"
	"github.com/arogya-clinic/whatsapp-assistant/internal/conversation"
	"github.com/arogya-clinic/whatsapp-assistant/internal/patients"
)

var activeStatuses = []appointments.Status{
	appointments.StatusPending,
	appointments.StatusApproved,
	appointments.StatusRescheduled,
}

// resolveUser prefers the conversation's linked account, falling back to a
// phone lookup with formatting variants.
func (e *Engine) resolveUser(ctx context.Context, conv *conversation.Conversation) (*patients.User, error) {
	if conv.UserID != nil {
		user, err := e.patients.GetByID(ctx, *conv.UserID)
		if err != nil {
			return nil, err
		}
		if user != nil {
			return user, nil
		}
	}
	user, err := e.patients.GetByPhone(ctx, conv.Phone)
	if err != nil {
		return nil, err
	}
	if user != nil {
		if err := e.conversations.LinkUser(ctx, conv.ID, user.ID); err != nil {
			e.logger.Warn("bot: link user failed", "phone", conv.Phone, "error", err)
		}
	}
	return user, nil
}

// startStatus shows the user's appointments; an unrecognized number falls
// into an email recovery sub-step.
func (e *Engine) startStatus(ctx context.Context, conv *conversation.Conversation) {
	user, err := e.resolveUser(ctx, conv)
	if err != nil {
		e.logger.Error("bot: resolve user failed", "phone", conv.Phone, "error", err)
		e.resetTo(ctx, conv, msgGenericError)
		return
	}
	if user == nil {
		if err := e.conversations.Update(ctx, conv.ID, conversation.FlowStatus, conversation.StepAwaitingEmail); err != nil {
			e.logger.Error("bot: update failed", "phone", conv.Phone, "error", err)
			e.sendText(ctx, conv, msgGenericError)
			return
		}
		e.sendText(ctx, conv, msgAskEmailForStatus)
		return
	}
	e.showStatus(ctx, conv, user)
}

func (e *Engine) handleStatusStep(ctx context.Context, conv *conversation.Conversation, in input) {
	if conv.Step != conversation.StepAwaitingEmail {
		e.resetTo(ctx, conv, msgGenericError)
		return
	}

	email := strings.ToLower(strings.TrimSpace(in.text))
	if !emailPattern.MatchString(email) {
		e.sendText(ctx, conv, msgInvalidEmail)
		return
	}

	user, err := e.patients.GetByEmail(ctx, email)
	if err != nil {
		e.logger.Error("bot: lookup by email failed", "phone", conv.Phone, "error", err)
		e.resetTo(ctx, conv, msgGenericError)
		return
	}
	if user == nil {
		e.resetTo(ctx, conv, msgNoAccount)
		return
	}
	if err := e.conversations.LinkUser(ctx, conv.ID, user.ID); err != nil {
		e.logger.Warn("bot: link user failed", "phone", conv.Phone, "error", err)
	}
	e.showStatus(ctx, conv, user)
}

// showStatus is single-turn once the user is known; it always ends idle.
func (e *Engine) showStatus(ctx context.Context, conv *conversation.Conversation, user *patients.User) {
	appts, err := e.appointments.ListByUser(ctx, user.ID, activeStatuses)
	if err != nil {
		e.logger.Error("bot: list appointments failed", "user_id", user.ID, "error", err)
		e.resetTo(ctx, conv, msgGenericError)
		return
	}
	if len(appts) == 0 {
		e.resetTo(ctx, conv, msgNoActiveAppointments)
		return
	}
	e.resetTo(ctx, conv, formatStatusList(appts))
}
