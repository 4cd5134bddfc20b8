package bot

import (
	"fmt"
	"strings"

	"github.com/arogya-clinic/whatsapp-assistant/internal/appointments"
	"github.com/arogya-clinic/whatsapp-assistant/internal/clinictime"
	"github.com/arogya-clinic/whatsapp-assistant/internal/whatsapp"
)

// Interactive action ids understood by the router and flow handlers.
const (
	actionBook       = "action_book"
	actionStatus     = "action_status"
	actionCancel     = "action_cancel"
	actionReschedule = "action_reschedule"
	actionHelp       = "action_help"
	actionMenu       = "action_menu"

	actionConfirmYes = "confirm_yes"
	actionConfirmNo  = "confirm_no"
)

func menuBody(clinicName string) string {
	return fmt.Sprintf("Welcome to %s! 👋\n\nHow can I help you today?\n\n"+
		"1️⃣ Book an appointment\n"+
		"2️⃣ Check appointment status\n"+
		"3️⃣ Cancel an appointment\n"+
		"4️⃣ Reschedule an appointment\n"+
		"5️⃣ Help & clinic info\n\n"+
		"Tap a button or reply with a number.", clinicName)
}

func menuButtons() []whatsapp.Button {
	return []whatsapp.Button{
		{ID: actionBook, Title: "Book Appointment"},
		{ID: actionStatus, Title: "Check Status"},
		{ID: actionHelp, Title: "Help"},
	}
}

func confirmButtons() []whatsapp.Button {
	return []whatsapp.Button{
		{ID: actionConfirmYes, Title: "Confirm"},
		{ID: actionConfirmNo, Title: "Cancel"},
	}
}

const (
	msgUnsupported = "Sorry, I can only understand text messages and button replies right now. Type *menu* to see what I can do."

	msgSessionExpired = "Your session timed out after 30 minutes of inactivity. Type *menu* to start again."

	msgFlowAborted = "Okay, I've cancelled that. Type *menu* whenever you need me."

	msgGenericError = "Something went wrong on our side. 😔 Please type *menu* to restart."

	msgOptedOut = "You won't receive any more reminders from us. Message us any time if you need help."

	msgAskName = "Let's get you booked in! What's your full name?"

	msgInvalidName = "That doesn't look like a valid name. Please enter your full name (2-100 characters)."

	msgInvalidEmail = "Hmm, that email doesn't look right. Please enter a valid email like name@example.com."

	msgAskReason = "What's the reason for your visit? (e.g. skin consultation, follow-up, hair treatment, general checkup)"

	msgInvalidReason = "Please tell me briefly what the visit is for."

	msgAskDate = "Great! What date works for you? Please reply in D/M/YYYY format, e.g. 15/10/2025."

	msgInvalidDate = "I couldn't use that date. Please pick a date that:\n" +
		"• is today or later\n" +
		"• is not a Sunday (we're closed)\n" +
		"• is within the next 90 days\n\n" +
		"Reply in D/M/YYYY format, e.g. 15/10/2025."

	msgInvalidRescheduleDate = "I couldn't use that date. Please pick a future date that is not a Sunday, in D/M/YYYY format."

	msgInvalidSlot = "I didn't recognise that time. Please pick a slot from the list, or type one like *10:00 AM*."

	msgBookingCancelled = "No problem, the booking was cancelled. Type *menu* if you change your mind."

	msgBookingFailed = "Sorry, we couldn't complete your booking right now. Please try again in a few minutes or call us."

	msgNoAccount = "I couldn't find an account for this number. If you've booked with us before, the booking may be under a different number. Reply *1* to book as a new patient."

	msgNoActiveAppointments = "You don't have any upcoming appointments. Reply *1* to book one!"

	msgAskEmailForStatus = "I couldn't find your account from this number. What email did you use when booking?"

	msgCancelDeclined = "Okay, your appointment is unchanged."

	msgRescheduleDeclined = "Okay, your appointment stays as it is."
)

func greetKnownPatient(name string) string {
	first := strings.Fields(name)
	greeting := "Welcome back"
	if len(first) > 0 {
		greeting = "Welcome back, " + first[0]
	}
	return greeting + "! " + msgAskReason
}

func askEmail(name string) string {
	first := strings.Fields(strings.TrimSpace(name))
	if len(first) > 0 {
		return fmt.Sprintf("Nice to meet you, %s! What's your email address?", first[0])
	}
	return "What's your email address?"
}

func bookingSummary(name, email, dateDesc, slotTitle, reason string) string {
	return fmt.Sprintf("Please confirm your appointment:\n\n"+
		"👤 Name: %s\n"+
		"📧 Email: %s\n"+
		"📅 Date: %s\n"+
		"🕐 Time: %s\n"+
		"📝 Reason: %s",
		name, email, dateDesc, slotTitle, reason)
}

func bookingSuccess(dateDesc, slotTitle string) string {
	return fmt.Sprintf("✅ Your appointment is booked for %s at %s!\n\n"+
		"It's pending confirmation by our team. You'll get an update soon, plus reminders before your visit.", dateDesc, slotTitle)
}

func statusLabel(s appointments.Status) string {
	switch s {
	case appointments.StatusPending:
		return "⏳ Pending"
	case appointments.StatusApproved:
		return "✅ Approved"
	case appointments.StatusRescheduled:
		return "🔁 Rescheduled"
	case appointments.StatusCompleted:
		return "✔️ Completed"
	case appointments.StatusCancelled:
		return "❌ Cancelled"
	case appointments.StatusRejected:
		return "🚫 Rejected"
	default:
		return string(s)
	}
}

func formatStatusList(appts []appointments.Appointment) string {
	var b strings.Builder
	b.WriteString("Here are your upcoming appointments:\n")
	for i, a := range appts {
		b.WriteString(fmt.Sprintf("\n%d. %s\n   📅 %s", i+1, statusLabel(a.Status), clinictime.FormatDateTime(a.Date)))
		if a.DoctorName != "" {
			b.WriteString("\n   👨‍⚕️ " + a.DoctorName)
		}
		if a.Reason != "" {
			b.WriteString("\n   📝 " + a.Reason)
		}
	}
	return b.String()
}

func helpMessage(clinicName, hours, address, phone string) string {
	return fmt.Sprintf("%s\n\n🕐 Hours: %s\n📍 %s\n📞 %s\n\n"+
		"Reply *1* to book, *2* for status, *3* to cancel, *4* to reschedule, or *menu* any time.",
		clinicName, hours, address, phone)
}

func cancelSuccess(dateDesc string) string {
	return fmt.Sprintf("Your appointment on %s has been cancelled. We hope to see you another time!", dateDesc)
}

func rescheduleSuccess(dateDesc, slotTitle string) string {
	return fmt.Sprintf("🔁 Done! Your appointment has been moved to %s at %s. You'll get a confirmation from our team shortly.", dateDesc, slotTitle)
}
