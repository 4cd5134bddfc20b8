package notify

import (
	"context"
	"fmt"

	"github.com/arogya-clinic/whatsapp-assistant/internal/appointments"
	"github.com/arogya-clinic/whatsapp-assistant/internal/clinictime"
	"github.com/arogya-clinic/whatsapp-assistant/internal/patients"
	"github.com/arogya-clinic/whatsapp-assistant/pkg/logging"
)

// AdminDirectory lists the staff users who receive new-appointment alerts.
type AdminDirectory interface {
	ListActiveAdmins(ctx context.Context) ([]patients.User, error)
}

// ClinicInfo carries the clinic identity used in outgoing emails.
type ClinicInfo struct {
	Name    string
	Phone   string
	Address string
	Hours   string
}

// Service sends best-effort patient emails and in-app admin notifications.
// Every method logs and swallows failures so a flaky provider never
// interrupts the conversation that triggered it.
type Service struct {
	email  EmailSender
	store  *Store
	admins AdminDirectory
	clinic ClinicInfo
	logger *logging.Logger
}

// NewService creates the notification service. The email sender and the
// in-app store are both optional; a nil dependency disables that channel.
func NewService(email EmailSender, store *Store, admins AdminDirectory, clinic ClinicInfo, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if clinic.Name == "" {
		clinic.Name = "Arogya Clinic"
	}
	return &Service{
		email:  email,
		store:  store,
		admins: admins,
		clinic: clinic,
		logger: logger,
	}
}

// SendWelcome emails a newly registered patient.
func (s *Service) SendWelcome(ctx context.Context, user patients.User) {
	if s.email == nil || user.Email == "" {
		return
	}

	body := fmt.Sprintf(`Hi %s,

Welcome to %s! Your account has been created.

You can book, check, cancel or reschedule appointments any time by messaging us on WhatsApp.

Clinic hours: %s
Phone: %s
Address: %s

Warm regards,
%s`, user.Name, s.clinic.Name, s.clinic.Hours, s.clinic.Phone, s.clinic.Address, s.clinic.Name)

	if err := s.email.Send(ctx, EmailMessage{
		To:      user.Email,
		ToName:  user.Name,
		Subject: fmt.Sprintf("Welcome to %s", s.clinic.Name),
		Body:    body,
	}); err != nil {
		s.logger.Error("welcome email failed", "error", err, "user_id", user.ID)
	}
}

// SendBookingConfirmation emails the patient their appointment details.
func (s *Service) SendBookingConfirmation(ctx context.Context, user patients.User, appt appointments.Appointment) {
	if s.email == nil || user.Email == "" {
		return
	}

	when := clinictime.FormatDateTime(appt.Date)
	body := fmt.Sprintf(`Hi %s,

Your appointment request has been received.

Date and time: %s
Reason: %s
Status: pending confirmation

We will reach out if anything changes. Reply on WhatsApp any time to check, cancel or reschedule.

Warm regards,
%s`, user.Name, when, appt.Reason, s.clinic.Name)

	if err := s.email.Send(ctx, EmailMessage{
		To:      user.Email,
		ToName:  user.Name,
		Subject: fmt.Sprintf("Appointment request received - %s", when),
		Body:    body,
	}); err != nil {
		s.logger.Error("booking confirmation email failed", "error", err, "appointment_id", appt.ID)
	}
}

// NotifyAdminsNewAppointment creates an in-app notification for every
// active admin when a patient books through WhatsApp.
func (s *Service) NotifyAdminsNewAppointment(ctx context.Context, appt appointments.Appointment) {
	if s.store == nil || s.admins == nil {
		return
	}

	admins, err := s.admins.ListActiveAdmins(ctx)
	if err != nil {
		s.logger.Error("list admins failed", "error", err)
		return
	}

	title := "New WhatsApp appointment"
	body := fmt.Sprintf("%s booked %s (%s). Phone: %s",
		appt.Name, clinictime.FormatDateTime(appt.Date), appt.Reason, appt.Phone)

	for _, admin := range admins {
		if _, err := s.store.Create(ctx, admin.ID, title, body); err != nil {
			s.logger.Error("admin notification failed", "error", err, "admin_id", admin.ID, "appointment_id", appt.ID)
		}
	}
}
