package scheduler

import (
	"fmt"

	"github.com/arogya-clinic/whatsapp-assistant/internal/whatsapp"
)

// TemplateName maps a notification type to its pre-approved template.
func TemplateName(t MessageType) string {
	switch t {
	case TypeReminder24h:
		return "appointment_reminder_24h"
	case TypeReminder1h:
		return "appointment_reminder_1h"
	case TypeFollowUp:
		return "follow_up_checkin"
	default:
		return ""
	}
}

// TemplateParams builds the positional body parameters for a template send.
// Parameter order matches the approved template bodies.
func TemplateParams(m ScheduledMessage) []whatsapp.TemplateParam {
	name := m.TemplateParams["patient_name"]
	if name == "" {
		name = "there"
	}
	switch m.MessageType {
	case TypeReminder24h, TypeReminder1h:
		return []whatsapp.TemplateParam{
			{Type: "text", Text: name},
			{Type: "text", Text: m.TemplateParams["date"]},
			{Type: "text", Text: doctorOrClinic(m.TemplateParams["doctor_name"])},
		}
	case TypeFollowUp:
		return []whatsapp.TemplateParam{
			{Type: "text", Text: name},
		}
	default:
		return nil
	}
}

// PlainText renders the plain-text equivalent used when the template send
// fails (e.g. an unapproved template).
func PlainText(m ScheduledMessage) string {
	name := m.TemplateParams["patient_name"]
	if name == "" {
		name = "there"
	}
	switch m.MessageType {
	case TypeReminder24h:
		return fmt.Sprintf("Hi %s! Reminder: you have an appointment with %s tomorrow, %s. Reply to this message if you need to reschedule.",
			name, doctorOrClinic(m.TemplateParams["doctor_name"]), m.TemplateParams["date"])
	case TypeReminder1h:
		return fmt.Sprintf("Hi %s! Your appointment with %s starts in about an hour, %s. See you soon!",
			name, doctorOrClinic(m.TemplateParams["doctor_name"]), m.TemplateParams["date"])
	case TypeFollowUp:
		return fmt.Sprintf("Hi %s! It's been a week since your visit. How are you feeling? Reply here if you'd like a follow-up appointment.", name)
	default:
		return ""
	}
}

func doctorOrClinic(doctor string) string {
	if doctor == "" {
		return "our clinic team"
	}
	return doctor
}
