package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arogya-clinic/whatsapp-assistant/internal/clinictime"
	"github.com/arogya-clinic/whatsapp-assistant/pkg/logging"
)

const supersededReason = "superseded by newer schedule"

// Scheduler creates reminder rows for booked appointments.
type Scheduler struct {
	store  *Store
	logger *logging.Logger
	now    func() time.Time
}

// NewScheduler creates a notification scheduler.
func NewScheduler(store *Store, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{store: store, logger: logger, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	if now != nil {
		s.now = now
	}
	return s
}

// RemindersInput describes the appointment to schedule reminders for.
type RemindersInput struct {
	Phone         string
	UserID        uuid.UUID
	AppointmentID uuid.UUID
	Date          time.Time // UTC instant of the appointment
	PatientName   string
	DoctorName    string
}

// ScheduleAppointmentReminders cancels any pending 24h/1h reminders for the
// appointment and inserts fresh ones for each reminder instant still in the
// future. Returns the number of rows actually scheduled (0, 1 or 2).
func (s *Scheduler) ScheduleAppointmentReminders(ctx context.Context, in RemindersInput) (int, error) {
	cancelled, err := s.store.CancelPendingByRelated(ctx, in.AppointmentID,
		[]MessageType{TypeReminder24h, TypeReminder1h}, supersededReason)
	if err != nil {
		return 0, fmt.Errorf("scheduler: dedup reminders: %w", err)
	}
	if cancelled > 0 {
		s.logger.Info("scheduler: superseded pending reminders",
			"appointment_id", in.AppointmentID, "count", cancelled)
	}

	now := s.now().UTC()
	scheduled := 0
	for _, slot := range []struct {
		msgType MessageType
		before  time.Duration
	}{
		{TypeReminder24h, 24 * time.Hour},
		{TypeReminder1h, time.Hour},
	} {
		at := in.Date.Add(-slot.before)
		if !at.After(now) {
			continue
		}
		msg := &ScheduledMessage{
			Phone:        in.Phone,
			UserID:       in.UserID,
			MessageType:  slot.msgType,
			RelatedType:  RelatedAppointment,
			RelatedID:    in.AppointmentID,
			ScheduledAt:  at,
			TemplateName: TemplateName(slot.msgType),
			TemplateParams: map[string]string{
				"patient_name": in.PatientName,
				"doctor_name":  in.DoctorName,
				"date":         clinictime.FormatDateTime(in.Date),
			},
		}
		if err := s.store.Create(ctx, msg); err != nil {
			return scheduled, fmt.Errorf("scheduler: schedule %s: %w", slot.msgType, err)
		}
		scheduled++
	}

	s.logger.Info("scheduler: reminders scheduled",
		"appointment_id", in.AppointmentID, "count", scheduled)
	return scheduled, nil
}

// CancelAppointmentReminders cancels all pending reminders for an
// appointment, used when it is cancelled or moved.
func (s *Scheduler) CancelAppointmentReminders(ctx context.Context, appointmentID uuid.UUID) (int64, error) {
	cancelled, err := s.store.CancelPendingByRelated(ctx, appointmentID,
		[]MessageType{TypeReminder24h, TypeReminder1h}, "appointment cancelled or moved")
	if err != nil {
		return 0, fmt.Errorf("scheduler: cancel reminders: %w", err)
	}
	if cancelled > 0 {
		s.logger.Info("scheduler: reminders cancelled",
			"appointment_id", appointmentID, "count", cancelled)
	}
	return cancelled, nil
}

// FollowUpInput describes a post-visit follow-up message.
type FollowUpInput struct {
	Phone         string
	UserID        uuid.UUID
	AppointmentID uuid.UUID
	PatientName   string
	DoctorName    string
	DaysAfter     int
}

// ScheduleFollowUp inserts a single follow-up row DaysAfter days from now at
// 10:00 IST. Follow-ups use their own message type so they never collide with
// the reminder dedup rule.
func (s *Scheduler) ScheduleFollowUp(ctx context.Context, in FollowUpInput) error {
	days := in.DaysAfter
	if days <= 0 {
		days = 7
	}
	at := clinictime.At(s.now().AddDate(0, 0, days), 10, 0).UTC()

	msg := &ScheduledMessage{
		Phone:        in.Phone,
		UserID:       in.UserID,
		MessageType:  TypeFollowUp,
		RelatedType:  RelatedAppointment,
		RelatedID:    in.AppointmentID,
		ScheduledAt:  at,
		TemplateName: TemplateName(TypeFollowUp),
		TemplateParams: map[string]string{
			"patient_name": in.PatientName,
			"doctor_name":  in.DoctorName,
		},
	}
	if err := s.store.Create(ctx, msg); err != nil {
		return fmt.Errorf("scheduler: schedule follow-up: %w", err)
	}

	s.logger.Info("scheduler: follow-up scheduled",
		"appointment_id", in.AppointmentID, "at", at.Format(time.RFC3339))
	return nil
}
