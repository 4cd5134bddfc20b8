package bot

import (
	"context"
	"regexp"
	"strings"

	"github.com/arogya-clinic/whatsapp-assistant/internal/appointments"
	"github.com/arogya-clinic/whatsapp-assistant/internal/clinictime"
	"github.com/arogya-clinic/whatsapp-assistant/internal/conversation"
	"github.com/arogya-clinic/whatsapp-assistant/internal/scheduler"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// startBooking enters the booking flow. A conversation already linked to a
// known account skips the name/email steps and is greeted by name.
func (e *Engine) startBooking(ctx context.Context, conv *conversation.Conversation) {
	if conv.UserID != nil {
		user, err := e.patients.GetByID(ctx, *conv.UserID)
		if err != nil {
			e.logger.Error("bot: lookup linked user failed", "phone", conv.Phone, "error", err)
		}
		if user != nil && user.Name != "" && user.Email != "" {
			if err := e.conversations.MergeContext(ctx, conv.ID, conversation.Context{Name: user.Name, Email: user.Email}); err != nil {
				e.logger.Error("bot: merge context failed", "phone", conv.Phone, "error", err)
				e.sendText(ctx, conv, msgGenericError)
				return
			}
			if err := e.conversations.Update(ctx, conv.ID, conversation.FlowBooking, conversation.StepAwaitingReason); err != nil {
				e.logger.Error("bot: update failed", "phone", conv.Phone, "error", err)
				e.sendText(ctx, conv, msgGenericError)
				return
			}
			e.sendText(ctx, conv, greetKnownPatient(user.Name))
			return
		}
	}

	if err := e.conversations.Update(ctx, conv.ID, conversation.FlowBooking, conversation.StepAwaitingName); err != nil {
		e.logger.Error("bot: update failed", "phone", conv.Phone, "error", err)
		e.sendText(ctx, conv, msgGenericError)
		return
	}
	e.sendText(ctx, conv, msgAskName)
}

func (e *Engine) handleBookingStep(ctx context.Context, conv *conversation.Conversation, in input) {
	switch conv.Step {
	case conversation.StepAwaitingName:
		e.handleName(ctx, conv, in)
	case conversation.StepAwaitingEmail:
		e.handleEmail(ctx, conv, in)
	case conversation.StepAwaitingReason:
		e.handleReason(ctx, conv, in)
	case conversation.StepAwaitingDate:
		e.handleBookingDate(ctx, conv, in)
	case conversation.StepAwaitingTime:
		e.handleBookingTime(ctx, conv, in)
	case conversation.StepAwaitingConfirm:
		e.handleBookingConfirm(ctx, conv, in)
	default:
		e.resetTo(ctx, conv, msgGenericError)
	}
}

func (e *Engine) handleName(ctx context.Context, conv *conversation.Conversation, in input) {
	name := strings.TrimSpace(in.text)
	if len(name) < 2 || len(name) > 100 {
		e.sendText(ctx, conv, msgInvalidName)
		return
	}
	if err := e.conversations.MergeContext(ctx, conv.ID, conversation.Context{Name: name}); err != nil {
		e.logger.Error("bot: merge context failed", "phone", conv.Phone, "error", err)
		e.sendText(ctx, conv, msgGenericError)
		return
	}
	if err := e.conversations.Update(ctx, conv.ID, conversation.FlowBooking, conversation.StepAwaitingEmail); err != nil {
		e.logger.Error("bot: update failed", "phone", conv.Phone, "error", err)
		e.sendText(ctx, conv, msgGenericError)
		return
	}
	e.sendText(ctx, conv, askEmail(name))
}

func (e *Engine) handleEmail(ctx context.Context, conv *conversation.Conversation, in input) {
	email := strings.ToLower(strings.TrimSpace(in.text))
	if !emailPattern.MatchString(email) {
		e.sendText(ctx, conv, msgInvalidEmail)
		return
	}

	// A known account links the conversation, but the name and email the
	// patient typed in this flow still win for the booking itself.
	existing, err := e.patients.GetByEmail(ctx, email)
	if err != nil {
		e.logger.Error("bot: lookup by email failed", "phone", conv.Phone, "error", err)
	} else if existing != nil {
		if err := e.conversations.LinkUser(ctx, conv.ID, existing.ID); err != nil {
			e.logger.Error("bot: link user failed", "phone", conv.Phone, "error", err)
		}
	}

	if err := e.conversations.MergeContext(ctx, conv.ID, conversation.Context{Email: email}); err != nil {
		e.logger.Error("bot: merge context failed", "phone", conv.Phone, "error", err)
		e.sendText(ctx, conv, msgGenericError)
		return
	}
	if err := e.conversations.Update(ctx, conv.ID, conversation.FlowBooking, conversation.StepAwaitingReason); err != nil {
		e.logger.Error("bot: update failed", "phone", conv.Phone, "error", err)
		e.sendText(ctx, conv, msgGenericError)
		return
	}
	e.sendText(ctx, conv, msgAskReason)
}

func (e *Engine) handleReason(ctx context.Context, conv *conversation.Conversation, in input) {
	reason := strings.TrimSpace(in.text)
	if len(reason) < 2 {
		e.sendText(ctx, conv, msgInvalidReason)
		return
	}
	if err := e.conversations.MergeContext(ctx, conv.ID, conversation.Context{Reason: reason}); err != nil {
		e.logger.Error("bot: merge context failed", "phone", conv.Phone, "error", err)
		e.sendText(ctx, conv, msgGenericError)
		return
	}
	if err := e.conversations.Update(ctx, conv.ID, conversation.FlowBooking, conversation.StepAwaitingDate); err != nil {
		e.logger.Error("bot: update failed", "phone", conv.Phone, "error", err)
		e.sendText(ctx, conv, msgGenericError)
		return
	}
	e.sendText(ctx, conv, msgAskDate)
}

func (e *Engine) handleBookingDate(ctx context.Context, conv *conversation.Conversation, in input) {
	date, err := clinictime.ParseDate(in.text)
	if err == nil {
		err = clinictime.ValidateBookingDate(date, e.now(), e.opts.BookingHorizonDays)
	}
	if err != nil {
		e.sendText(ctx, conv, msgInvalidDate)
		return
	}

	if err := e.conversations.MergeContext(ctx, conv.ID, conversation.Context{Date: strings.TrimSpace(in.text)}); err != nil {
		e.logger.Error("bot: merge context failed", "phone", conv.Phone, "error", err)
		e.sendText(ctx, conv, msgGenericError)
		return
	}
	if err := e.conversations.Update(ctx, conv.ID, conversation.FlowBooking, conversation.StepAwaitingTime); err != nil {
		e.logger.Error("bot: update failed", "phone", conv.Phone, "error", err)
		e.sendText(ctx, conv, msgGenericError)
		return
	}

	desc := clinictime.FormatDate(date)
	e.sendList(ctx, conv, "Pick a time slot for "+desc+":", "Choose Time", slotSections(desc))
}

func (e *Engine) handleBookingTime(ctx context.Context, conv *conversation.Conversation, in input) {
	slot, ok := resolveSlot(in)
	if !ok {
		e.sendText(ctx, conv, msgInvalidSlot)
		return
	}

	if err := e.conversations.MergeContext(ctx, conv.ID, conversation.Context{
		SlotID: slot.ID, SlotTitle: slot.Title, SlotValue: slot.Value,
	}); err != nil {
		e.logger.Error("bot: merge context failed", "phone", conv.Phone, "error", err)
		e.sendText(ctx, conv, msgGenericError)
		return
	}
	if err := e.conversations.Update(ctx, conv.ID, conversation.FlowBooking, conversation.StepAwaitingConfirm); err != nil {
		e.logger.Error("bot: update failed", "phone", conv.Phone, "error", err)
		e.sendText(ctx, conv, msgGenericError)
		return
	}

	c := conv.Context
	dateDesc := c.Date
	if parsed, err := clinictime.ParseDate(c.Date); err == nil {
		dateDesc = clinictime.FormatDate(parsed)
	}
	e.sendButtons(ctx, conv, bookingSummary(c.Name, c.Email, dateDesc, slot.Title, c.Reason), confirmButtons())
}

func (e *Engine) handleBookingConfirm(ctx context.Context, conv *conversation.Conversation, in input) {
	switch confirmAnswer(in) {
	case answerYes:
		e.commitBooking(ctx, conv)
	case answerNo:
		e.resetTo(ctx, conv, msgBookingCancelled)
	default:
		e.sendButtons(ctx, conv, "Please confirm or cancel your booking:", confirmButtons())
	}
}

// commitBooking runs the side effects of a confirmed booking in order:
// resolve or create the patient, link the conversation, insert the pending
// appointment, then fire the best-effort notifications and reminders.
func (e *Engine) commitBooking(ctx context.Context, conv *conversation.Conversation) {
	c := conv.Context
	email := strings.ToLower(strings.TrimSpace(c.Email))

	user, err := e.patients.GetByEmail(ctx, email)
	if err != nil {
		e.logger.Error("bot: booking user lookup failed", "phone", conv.Phone, "error", err)
		e.resetTo(ctx, conv, msgBookingFailed)
		return
	}
	newPatient := false
	if user == nil {
		user, err = e.patients.CreatePatient(ctx, c.Name, email, conv.Phone)
		if err != nil {
			e.logger.Error("bot: create patient failed", "phone", conv.Phone, "error", err)
			e.resetTo(ctx, conv, msgBookingFailed)
			return
		}
		newPatient = true
	} else if user.Phone != conv.Phone {
		if err := e.patients.UpdatePhone(ctx, user.ID, conv.Phone); err != nil {
			e.logger.Warn("bot: update phone failed", "user_id", user.ID, "error", err)
		}
	}

	if err := e.conversations.LinkUser(ctx, conv.ID, user.ID); err != nil {
		e.logger.Warn("bot: link user failed", "phone", conv.Phone, "error", err)
	}

	date, err := clinictime.ParseDate(c.Date)
	if err != nil {
		e.logger.Error("bot: stored date unparseable", "phone", conv.Phone, "date", c.Date, "error", err)
		e.resetTo(ctx, conv, msgBookingFailed)
		return
	}
	when, err := clinictime.ToUTC(date, c.SlotValue)
	if err != nil {
		e.logger.Error("bot: stored slot unparseable", "phone", conv.Phone, "slot", c.SlotValue, "error", err)
		e.resetTo(ctx, conv, msgBookingFailed)
		return
	}

	appt := &appointments.Appointment{
		UserID: user.ID,
		Name:   c.Name,
		Email:  email,
		Phone:  conv.Phone,
		Date:   when,
		Reason: c.Reason,
	}
	if err := e.appointments.Create(ctx, appt); err != nil {
		e.logger.Error("bot: create appointment failed", "phone", conv.Phone, "error", err)
		e.resetTo(ctx, conv, msgBookingFailed)
		return
	}

	e.sendText(ctx, conv, bookingSuccess(clinictime.FormatDate(date), c.SlotTitle))

	// Everything past the insert is best-effort; a flaky email provider
	// never reverts the already-created appointment.
	if e.notifier != nil {
		if newPatient {
			e.notifier.SendWelcome(ctx, *user)
		}
		e.notifier.SendBookingConfirmation(ctx, *user, *appt)
		e.notifier.NotifyAdminsNewAppointment(ctx, *appt)
	}

	if _, err := e.reminders.ScheduleAppointmentReminders(ctx, scheduler.RemindersInput{
		Phone:         conv.Phone,
		UserID:        user.ID,
		AppointmentID: appt.ID,
		Date:          when,
		PatientName:   c.Name,
	}); err != nil {
		e.logger.Error("bot: schedule reminders failed", "appointment_id", appt.ID, "error", err)
	}

	e.logger.Info("bot: appointment booked",
		"appointment_id", appt.ID, "user_id", user.ID, "date", when)

	if err := e.conversations.Reset(ctx, conv.ID); err != nil {
		e.logger.Error("bot: reset failed", "phone", conv.Phone, "error", err)
	}
}

// resolveSlot accepts an interactive list-reply id or free text matching a
// slot title or 24h value.
func resolveSlot(in input) (Slot, bool) {
	if in.interactive {
		if slot, ok := findSlotByID(in.payload); ok {
			return slot, true
		}
	}
	return matchSlot(in.text)
}

type answer int

const (
	answerUnknown answer = iota
	answerYes
	answerNo
)

func confirmAnswer(in input) answer {
	if in.interactive {
		switch in.payload {
		case actionConfirmYes:
			return answerYes
		case actionConfirmNo:
			return answerNo
		}
		return answerUnknown
	}
	switch normalizeText(in.text) {
	case "yes", "y", "confirm", "ok", "sure":
		return answerYes
	case "no", "n", "cancel", "stop":
		return answerNo
	}
	return answerUnknown
}
