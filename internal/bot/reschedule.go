package bot

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/arogya-clinic/whatsapp-assistant/internal/appointments"
	"github.com/arogya-clinic/whatsapp-assistant/internal/clinictime"
	"github.com/arogya-clinic/whatsapp-assistant/internal/conversation"
	"github.com/arogya-clinic/whatsapp-assistant/internal/whatsapp"
)

// An already-rescheduled appointment cannot be rescheduled again over chat;
// it has to go through status or cancel first.
var reschedulableStatuses = []appointments.Status{
	appointments.StatusPending,
	appointments.StatusApproved,
}

func (e *Engine) startReschedule(ctx context.Context, conv *conversation.Conversation) {
	user, err := e.resolveUser(ctx, conv)
	if err != nil {
		e.logger.Error("bot: resolve user failed", "phone", conv.Phone, "error", err)
		e.resetTo(ctx, conv, msgGenericError)
		return
	}
	if user == nil {
		e.resetTo(ctx, conv, msgNoAccount)
		return
	}

	appts, err := e.appointments.ListByUser(ctx, user.ID, reschedulableStatuses)
	if err != nil {
		e.logger.Error("bot: list appointments failed", "user_id", user.ID, "error", err)
		e.resetTo(ctx, conv, msgGenericError)
		return
	}
	if len(appts) == 0 {
		e.resetTo(ctx, conv, msgNoActiveAppointments)
		return
	}

	options := make([]conversation.AppointmentOption, 0, len(appts))
	rows := make([]whatsapp.ListRow, 0, len(appts))
	for _, a := range appts {
		options = append(options, conversation.AppointmentOption{
			ID: a.ID.String(), Date: a.Date, Label: clinictime.FormatDateTime(a.Date),
		})
		rows = append(rows, whatsapp.ListRow{
			ID:          "resched_" + a.ID.String(),
			Title:       a.Date.In(clinictime.IST).Format("2 Jan, 3:04 PM"),
			Description: selectionDescription(a),
		})
	}

	if err := e.conversations.MergeContext(ctx, conv.ID, conversation.Context{Options: options}); err != nil {
		e.logger.Error("bot: merge context failed", "phone", conv.Phone, "error", err)
		e.resetTo(ctx, conv, msgGenericError)
		return
	}
	if err := e.conversations.Update(ctx, conv.ID, conversation.FlowReschedule, conversation.StepAwaitingSelection); err != nil {
		e.logger.Error("bot: update failed", "phone", conv.Phone, "error", err)
		e.resetTo(ctx, conv, msgGenericError)
		return
	}

	e.sendList(ctx, conv, "Which appointment would you like to move? You can also reply with its number.",
		"Select", []whatsapp.ListSection{{Title: "Your appointments", Rows: rows}})
}

func (e *Engine) handleRescheduleStep(ctx context.Context, conv *conversation.Conversation, in input) {
	switch conv.Step {
	case conversation.StepAwaitingSelection:
		e.handleRescheduleSelection(ctx, conv, in)
	case conversation.StepAwaitingDate:
		e.handleRescheduleDate(ctx, conv, in)
	case conversation.StepAwaitingTime:
		e.handleRescheduleTime(ctx, conv, in)
	case conversation.StepAwaitingConfirm:
		e.handleRescheduleConfirm(ctx, conv, in)
	default:
		e.resetTo(ctx, conv, msgGenericError)
	}
}

func (e *Engine) handleRescheduleSelection(ctx context.Context, conv *conversation.Conversation, in input) {
	option, ok := resolveSelection(conv.Context.Options, in, "resched_")
	if !ok {
		e.sendText(ctx, conv, "Please pick an appointment from the list, or reply with its number.")
		return
	}

	if err := e.conversations.MergeContext(ctx, conv.ID, conversation.Context{AppointmentID: option.ID}); err != nil {
		e.logger.Error("bot: merge context failed", "phone", conv.Phone, "error", err)
		e.resetTo(ctx, conv, msgGenericError)
		return
	}
	if err := e.conversations.Update(ctx, conv.ID, conversation.FlowReschedule, conversation.StepAwaitingDate); err != nil {
		e.logger.Error("bot: update failed", "phone", conv.Phone, "error", err)
		e.resetTo(ctx, conv, msgGenericError)
		return
	}

	e.sendText(ctx, conv, "Currently scheduled for "+option.Label+".\n\nWhat new date works for you? Reply in D/M/YYYY format.")
}

// handleRescheduleDate mirrors the booking date rule without the booking
// horizon: the date only has to be a future, non-Sunday day.
func (e *Engine) handleRescheduleDate(ctx context.Context, conv *conversation.Conversation, in input) {
	date, err := clinictime.ParseDate(in.text)
	if err == nil {
		err = clinictime.ValidateBookingDate(date, e.now(), 0)
	}
	if err != nil {
		e.sendText(ctx, conv, msgInvalidRescheduleDate)
		return
	}

	if err := e.conversations.MergeContext(ctx, conv.ID, conversation.Context{Date: strings.TrimSpace(in.text)}); err != nil {
		e.logger.Error("bot: merge context failed", "phone", conv.Phone, "error", err)
		e.resetTo(ctx, conv, msgGenericError)
		return
	}
	if err := e.conversations.Update(ctx, conv.ID, conversation.FlowReschedule, conversation.StepAwaitingTime); err != nil {
		e.logger.Error("bot: update failed", "phone", conv.Phone, "error", err)
		e.resetTo(ctx, conv, msgGenericError)
		return
	}

	desc := clinictime.FormatDate(date)
	e.sendList(ctx, conv, "Pick a new time slot for "+desc+":", "Choose Time", slotSections(desc))
}

func (e *Engine) handleRescheduleTime(ctx context.Context, conv *conversation.Conversation, in input) {
	slot, ok := resolveSlot(in)
	if !ok {
		e.sendText(ctx, conv, msgInvalidSlot)
		return
	}

	if err := e.conversations.MergeContext(ctx, conv.ID, conversation.Context{
		SlotID: slot.ID, SlotTitle: slot.Title, SlotValue: slot.Value,
	}); err != nil {
		e.logger.Error("bot: merge context failed", "phone", conv.Phone, "error", err)
		e.resetTo(ctx, conv, msgGenericError)
		return
	}
	if err := e.conversations.Update(ctx, conv.ID, conversation.FlowReschedule, conversation.StepAwaitingConfirm); err != nil {
		e.logger.Error("bot: update failed", "phone", conv.Phone, "error", err)
		e.resetTo(ctx, conv, msgGenericError)
		return
	}

	dateDesc := conv.Context.Date
	if parsed, err := clinictime.ParseDate(conv.Context.Date); err == nil {
		dateDesc = clinictime.FormatDate(parsed)
	}
	e.sendButtons(ctx, conv,
		"Move your appointment to "+dateDesc+" at "+slot.Title+"?",
		confirmButtons())
}

func (e *Engine) handleRescheduleConfirm(ctx context.Context, conv *conversation.Conversation, in input) {
	switch confirmAnswer(in) {
	case answerNo:
		e.resetTo(ctx, conv, msgRescheduleDeclined)
		return
	case answerYes:
	default:
		e.sendButtons(ctx, conv, "Please confirm the new time:", confirmButtons())
		return
	}

	c := conv.Context
	apptID, err := uuid.Parse(c.AppointmentID)
	if err != nil {
		e.logger.Error("bot: stored appointment id unparseable", "phone", conv.Phone, "value", c.AppointmentID)
		e.resetTo(ctx, conv, msgGenericError)
		return
	}

	current, err := e.appointments.GetByID(ctx, apptID)
	if err != nil || current == nil {
		e.logger.Error("bot: load appointment failed", "appointment_id", apptID, "error", err)
		e.resetTo(ctx, conv, msgGenericError)
		return
	}

	date, err := clinictime.ParseDate(c.Date)
	if err != nil {
		e.logger.Error("bot: stored date unparseable", "phone", conv.Phone, "date", c.Date, "error", err)
		e.resetTo(ctx, conv, msgGenericError)
		return
	}
	when, err := clinictime.ToUTC(date, c.SlotValue)
	if err != nil {
		e.logger.Error("bot: stored slot unparseable", "phone", conv.Phone, "slot", c.SlotValue, "error", err)
		e.resetTo(ctx, conv, msgGenericError)
		return
	}

	if err := e.appointments.Reschedule(ctx, apptID, when, current.Date); err != nil {
		e.logger.Error("bot: reschedule failed", "appointment_id", apptID, "error", err)
		e.resetTo(ctx, conv, msgGenericError)
		return
	}

	// Pending reminders for the old time are dropped. New reminders are not
	// scheduled here; the clinic confirms the new slot first.
	if _, err := e.reminders.CancelAppointmentReminders(ctx, apptID); err != nil {
		e.logger.Warn("bot: cancel reminders failed", "appointment_id", apptID, "error", err)
	}

	e.logger.Info("bot: appointment rescheduled", "appointment_id", apptID, "new_date", when)
	e.resetTo(ctx, conv, rescheduleSuccess(clinictime.FormatDate(date), c.SlotTitle))
}
