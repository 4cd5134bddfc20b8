package bot

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/arogya-clinic/whatsapp-assistant/internal/appointments"
	"github.com/arogya-clinic/whatsapp-assistant/internal/clinictime"
	"github.com/arogya-clinic/whatsapp-assistant/internal/conversation"
	"github.com/arogya-clinic/whatsapp-assistant/internal/whatsapp"
)

// cancelledByPatient is the system-generated reason recorded when a patient
// cancels over chat.
const cancelledByPatient = "Cancelled by patient via WhatsApp"

// startCancel lists the user's active appointments for cancellation. Unlike
// the status flow there is no email recovery here.
func (e *Engine) startCancel(ctx context.Context, conv *conversation.Conversation) {
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

	options := make([]conversation.AppointmentOption, 0, len(appts))
	rows := make([]whatsapp.ListRow, 0, len(appts))
	for _, a := range appts {
		label := clinictime.FormatDateTime(a.Date)
		options = append(options, conversation.AppointmentOption{
			ID: a.ID.String(), Date: a.Date, Label: label,
		})
		rows = append(rows, whatsapp.ListRow{
			ID:          "cancel_" + a.ID.String(),
			Title:       a.Date.In(clinictime.IST).Format("2 Jan, 3:04 PM"),
			Description: selectionDescription(a),
		})
	}

	if err := e.conversations.MergeContext(ctx, conv.ID, conversation.Context{Options: options}); err != nil {
		e.logger.Error("bot: merge context failed", "phone", conv.Phone, "error", err)
		e.resetTo(ctx, conv, msgGenericError)
		return
	}
	if err := e.conversations.Update(ctx, conv.ID, conversation.FlowCancel, conversation.StepAwaitingSelection); err != nil {
		e.logger.Error("bot: update failed", "phone", conv.Phone, "error", err)
		e.resetTo(ctx, conv, msgGenericError)
		return
	}

	e.sendList(ctx, conv, "Which appointment would you like to cancel? You can also reply with its number.",
		"Select", []whatsapp.ListSection{{Title: "Your appointments", Rows: rows}})
}

func (e *Engine) handleCancelStep(ctx context.Context, conv *conversation.Conversation, in input) {
	switch conv.Step {
	case conversation.StepAwaitingSelection:
		e.handleCancelSelection(ctx, conv, in)
	case conversation.StepAwaitingConfirm:
		e.handleCancelConfirm(ctx, conv, in)
	default:
		e.resetTo(ctx, conv, msgGenericError)
	}
}

func (e *Engine) handleCancelSelection(ctx context.Context, conv *conversation.Conversation, in input) {
	option, ok := resolveSelection(conv.Context.Options, in, "cancel_")
	if !ok {
		e.sendText(ctx, conv, "Please pick an appointment from the list, or reply with its number.")
		return
	}

	if err := e.conversations.MergeContext(ctx, conv.ID, conversation.Context{AppointmentID: option.ID}); err != nil {
		e.logger.Error("bot: merge context failed", "phone", conv.Phone, "error", err)
		e.resetTo(ctx, conv, msgGenericError)
		return
	}
	if err := e.conversations.Update(ctx, conv.ID, conversation.FlowCancel, conversation.StepAwaitingConfirm); err != nil {
		e.logger.Error("bot: update failed", "phone", conv.Phone, "error", err)
		e.resetTo(ctx, conv, msgGenericError)
		return
	}

	e.sendButtons(ctx, conv,
		"Cancel your appointment on "+option.Label+"? This cannot be undone.",
		confirmButtons())
}

func (e *Engine) handleCancelConfirm(ctx context.Context, conv *conversation.Conversation, in input) {
	switch confirmAnswer(in) {
	case answerNo:
		e.resetTo(ctx, conv, msgCancelDeclined)
		return
	case answerYes:
	default:
		e.sendButtons(ctx, conv, "Please confirm the cancellation:", confirmButtons())
		return
	}

	apptID, err := uuid.Parse(conv.Context.AppointmentID)
	if err != nil {
		e.logger.Error("bot: stored appointment id unparseable", "phone", conv.Phone, "value", conv.Context.AppointmentID)
		e.resetTo(ctx, conv, msgGenericError)
		return
	}

	if err := e.appointments.Cancel(ctx, apptID, cancelledByPatient); err != nil {
		e.logger.Error("bot: cancel appointment failed", "appointment_id", apptID, "error", err)
		e.resetTo(ctx, conv, msgGenericError)
		return
	}

	if _, err := e.reminders.CancelAppointmentReminders(ctx, apptID); err != nil {
		e.logger.Warn("bot: cancel reminders failed", "appointment_id", apptID, "error", err)
	}

	label := conv.Context.AppointmentID
	if option, ok := findOption(conv.Context.Options, conv.Context.AppointmentID); ok {
		label = option.Label
	}
	e.logger.Info("bot: appointment cancelled by patient", "appointment_id", apptID)
	e.resetTo(ctx, conv, cancelSuccess(label))
}

func selectionDescription(a appointments.Appointment) string {
	desc := statusLabel(a.Status)
	if a.Reason != "" {
		desc += " · " + a.Reason
	}
	if r := []rune(desc); len(r) > 72 {
		desc = string(r[:72])
	}
	return desc
}

// resolveSelection matches an interactive row id (with the given prefix) or a
// typed number 1..N against the stored presentation order.
func resolveSelection(options []conversation.AppointmentOption, in input, prefix string) (conversation.AppointmentOption, bool) {
	if in.interactive {
		id := strings.TrimPrefix(in.payload, prefix)
		if id != in.payload {
			return findOption(options, id)
		}
		return conversation.AppointmentOption{}, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(in.text))
	if err != nil || n < 1 || n > len(options) {
		return conversation.AppointmentOption{}, false
	}
	return options[n-1], true
}

func findOption(options []conversation.AppointmentOption, id string) (conversation.AppointmentOption, bool) {
	for _, o := range options {
		if o.ID == id {
			return o, true
		}
	}
	return conversation.AppointmentOption{}, false
}
