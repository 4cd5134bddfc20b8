package scheduler

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arogya-clinic/whatsapp-assistant/internal/appointments"
	"github.com/arogya-clinic/whatsapp-assistant/internal/conversation"
	"github.com/arogya-clinic/whatsapp-assistant/internal/observability/metrics"
	"github.com/arogya-clinic/whatsapp-assistant/internal/whatsapp"
)

type stubSender struct {
	templateResult whatsapp.SendResult
	textResult     whatsapp.SendResult
	templateCalls  []string
	textBodies     []string
}

func (s *stubSender) SendTemplate(ctx context.Context, to, name string, params []whatsapp.TemplateParam) whatsapp.SendResult {
	s.templateCalls = append(s.templateCalls, name)
	return s.templateResult
}

func (s *stubSender) SendText(ctx context.Context, to, body string) whatsapp.SendResult {
	s.textBodies = append(s.textBodies, body)
	return s.textResult
}

type stubAppointments struct {
	appt *appointments.Appointment
	err  error
}

func (s *stubAppointments) GetByID(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error) {
	return s.appt, s.err
}

type stubOptOuts struct {
	optedOut bool
}

func (s *stubOptOuts) IsOptedOut(ctx context.Context, phone string) (bool, error) {
	return s.optedOut, nil
}

type stubMessageLog struct {
	entries []conversation.LogEntry
}

func (s *stubMessageLog) Append(ctx context.Context, entry conversation.LogEntry) error {
	s.entries = append(s.entries, entry)
	return nil
}

func dueRow(id uuid.UUID, apptID uuid.UUID, msgType string, retryCount int) *pgxmock.Rows {
	now := time.Now().UTC()
	return pgxmock.NewRows([]string{
		"id", "phone", "user_id", "message_type", "related_type", "related_id",
		"scheduled_at", "template_name", "template_params", "status", "retry_count",
		"error_message", "sent_at", "created_at", "updated_at",
	}).AddRow(id, "919876543210", uuid.New(), msgType, "appointment", apptID,
		now.Add(-time.Minute), TemplateName(MessageType(msgType)),
		[]byte(`{"patient_name":"Priya","date":"Monday, 15 September 2025 at 9:00 AM"}`),
		"pending", retryCount, "", (*time.Time)(nil), now, now)
}

func pendingAppointment(id uuid.UUID) *appointments.Appointment {
	return &appointments.Appointment{
		ID:     id,
		Date:   time.Now().UTC().Add(24 * time.Hour),
		Status: appointments.StatusPending,
	}
}

func TestProcessDueSendsTemplateAndMarksSent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	msgID := uuid.New()
	apptID := uuid.New()
	mock.ExpectQuery("FROM scheduled_messages").
		WithArgs(pgxmock.AnyArg(), 50).
		WillReturnRows(dueRow(msgID, apptID, "reminder_24h", 0))
	mock.ExpectExec("UPDATE scheduled_messages SET status = 'sent'").
		WithArgs(pgxmock.AnyArg(), msgID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	sender := &stubSender{templateResult: whatsapp.SendResult{Success: true, MessageID: "wamid.out"}}
	log := &stubMessageLog{}
	p := NewProcessor(NewStore(mock), sender, &stubAppointments{appt: pendingAppointment(apptID)}, &stubOptOuts{}, log, nil)

	result, err := p.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Processed: 1, Errors: 0, Total: 1}, result)
	assert.Equal(t, []string{"appointment_reminder_24h"}, sender.templateCalls)
	assert.Empty(t, sender.textBodies)
	require.Len(t, log.entries, 1)
	assert.Equal(t, "template", log.entries[0].Metadata["channel"])
	assert.Equal(t, "sent", log.entries[0].Metadata["status"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessDueFallsBackToText(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	msgID := uuid.New()
	apptID := uuid.New()
	mock.ExpectQuery("FROM scheduled_messages").
		WithArgs(pgxmock.AnyArg(), 50).
		WillReturnRows(dueRow(msgID, apptID, "reminder_1h", 0))
	mock.ExpectExec("UPDATE scheduled_messages SET status = 'sent'").
		WithArgs(pgxmock.AnyArg(), msgID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	sender := &stubSender{
		templateResult: whatsapp.SendResult{Error: "whatsapp: template not approved"},
		textResult:     whatsapp.SendResult{Success: true},
	}
	log := &stubMessageLog{}
	p := NewProcessor(NewStore(mock), sender, &stubAppointments{appt: pendingAppointment(apptID)}, &stubOptOuts{}, log, nil)

	result, err := p.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	require.Len(t, sender.textBodies, 1)
	assert.Contains(t, sender.textBodies[0], "Priya")
	require.Len(t, log.entries, 1)
	assert.Equal(t, "text", log.entries[0].Metadata["channel"])
}

func TestProcessDueCancelsForOptedOutPhone(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	msgID := uuid.New()
	mock.ExpectQuery("FROM scheduled_messages").
		WithArgs(pgxmock.AnyArg(), 50).
		WillReturnRows(dueRow(msgID, uuid.New(), "reminder_24h", 0))
	mock.ExpectExec("UPDATE scheduled_messages SET status = 'cancelled'").
		WithArgs("opted out", pgxmock.AnyArg(), msgID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	sender := &stubSender{}
	p := NewProcessor(NewStore(mock), sender, &stubAppointments{}, &stubOptOuts{optedOut: true}, &stubMessageLog{}, nil)

	result, err := p.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Empty(t, sender.templateCalls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessDueCancelsWhenAppointmentGone(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	msgID := uuid.New()
	mock.ExpectQuery("FROM scheduled_messages").
		WithArgs(pgxmock.AnyArg(), 50).
		WillReturnRows(dueRow(msgID, uuid.New(), "reminder_24h", 0))
	mock.ExpectExec("UPDATE scheduled_messages SET status = 'cancelled'").
		WithArgs("appointment no longer exists", pgxmock.AnyArg(), msgID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	sender := &stubSender{}
	p := NewProcessor(NewStore(mock), sender, &stubAppointments{appt: nil}, &stubOptOuts{}, &stubMessageLog{}, nil)

	result, err := p.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Empty(t, sender.templateCalls)
}

func TestProcessDueCancelsWhenAppointmentCancelled(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	msgID := uuid.New()
	apptID := uuid.New()
	mock.ExpectQuery("FROM scheduled_messages").
		WithArgs(pgxmock.AnyArg(), 50).
		WillReturnRows(dueRow(msgID, apptID, "reminder_1h", 0))
	mock.ExpectExec("UPDATE scheduled_messages SET status = 'cancelled'").
		WithArgs("appointment cancelled", pgxmock.AnyArg(), msgID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	appt := pendingAppointment(apptID)
	appt.Status = appointments.StatusCancelled
	p := NewProcessor(NewStore(mock), &stubSender{}, &stubAppointments{appt: appt}, &stubOptOuts{}, &stubMessageLog{}, nil)

	result, err := p.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
}

func TestProcessDueRetriesTransientFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)
	msgID := uuid.New()
	apptID := uuid.New()
	mock.ExpectQuery("FROM scheduled_messages").
		WithArgs(pgxmock.AnyArg(), 50).
		WillReturnRows(dueRow(msgID, apptID, "reminder_24h", 0))
	mock.ExpectExec("UPDATE scheduled_messages SET scheduled_at").
		WithArgs(now.Add(5*time.Minute), "whatsapp: status 500", pgxmock.AnyArg(), msgID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	sender := &stubSender{
		templateResult: whatsapp.SendResult{Error: "whatsapp: status 500"},
		textResult:     whatsapp.SendResult{Error: "whatsapp: status 500"},
	}
	p := NewProcessor(NewStore(mock), sender, &stubAppointments{appt: pendingAppointment(apptID)}, &stubOptOuts{}, &stubMessageLog{}, nil).
		WithClock(func() time.Time { return now })

	result, err := p.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Processed: 1, Errors: 0, Total: 1}, result)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessDueFailsAfterRetryCeiling(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	msgID := uuid.New()
	apptID := uuid.New()
	// Third attempt (retry_count 2, maxRetries 3) becomes terminal.
	mock.ExpectQuery("FROM scheduled_messages").
		WithArgs(pgxmock.AnyArg(), 50).
		WillReturnRows(dueRow(msgID, apptID, "reminder_24h", 2))
	mock.ExpectExec("UPDATE scheduled_messages SET status = 'failed'").
		WithArgs("whatsapp: status 500", pgxmock.AnyArg(), msgID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	sender := &stubSender{
		templateResult: whatsapp.SendResult{Error: "whatsapp: status 500"},
		textResult:     whatsapp.SendResult{Error: "whatsapp: status 500"},
	}
	p := NewProcessor(NewStore(mock), sender, &stubAppointments{appt: pendingAppointment(apptID)}, &stubOptOuts{}, &stubMessageLog{}, nil)

	result, err := p.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessDueContinuesPastRowFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	badID := uuid.New()
	goodID := uuid.New()
	apptID := uuid.New()
	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{
		"id", "phone", "user_id", "message_type", "related_type", "related_id",
		"scheduled_at", "template_name", "template_params", "status", "retry_count",
		"error_message", "sent_at", "created_at", "updated_at",
	}).
		AddRow(badID, "919876543210", uuid.New(), "reminder_24h", "appointment", apptID,
			now.Add(-time.Minute), "appointment_reminder_24h", []byte(`{}`), "pending", 0, "", (*time.Time)(nil), now, now).
		AddRow(goodID, "919876543210", uuid.New(), "follow_up", "appointment", apptID,
			now.Add(-time.Minute), "follow_up_checkin", []byte(`{"patient_name":"Priya"}`), "pending", 0, "", (*time.Time)(nil), now, now)

	mock.ExpectQuery("FROM scheduled_messages").
		WithArgs(pgxmock.AnyArg(), 50).
		WillReturnRows(rows)
	// First row's MarkSent errors, second row still gets processed.
	mock.ExpectExec("UPDATE scheduled_messages SET status = 'sent'").
		WithArgs(pgxmock.AnyArg(), badID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec("UPDATE scheduled_messages SET status = 'sent'").
		WithArgs(pgxmock.AnyArg(), goodID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	sender := &stubSender{templateResult: whatsapp.SendResult{Success: true}}
	p := NewProcessor(NewStore(mock), sender, &stubAppointments{appt: pendingAppointment(apptID)}, &stubOptOuts{}, &stubMessageLog{}, nil)

	result, err := p.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Processed: 1, Errors: 1, Total: 2}, result)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTemplateParamsOrder(t *testing.T) {
	m := ScheduledMessage{
		MessageType: TypeReminder24h,
		TemplateParams: map[string]string{
			"patient_name": "Priya",
			"date":         "Monday, 15 September 2025 at 9:00 AM",
			"doctor_name":  "Dr. Rao",
		},
	}
	params := TemplateParams(m)
	require.Len(t, params, 3)
	assert.Equal(t, "Priya", params[0].Text)
	assert.Equal(t, "Monday, 15 September 2025 at 9:00 AM", params[1].Text)
	assert.Equal(t, "Dr. Rao", params[2].Text)
}

func TestPlainTextFallsBackToClinicTeam(t *testing.T) {
	m := ScheduledMessage{
		MessageType:    TypeReminder24h,
		TemplateParams: map[string]string{"patient_name": "Priya", "date": "tomorrow"},
	}
	assert.Contains(t, PlainText(m), "our clinic team")

	m.TemplateParams["doctor_name"] = "Dr. Rao"
	assert.Contains(t, PlainText(m), "Dr. Rao")
}

func TestProcessDueCountsOutcomes(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	msgID := uuid.New()
	apptID := uuid.New()
	mock.ExpectQuery("FROM scheduled_messages").
		WithArgs(pgxmock.AnyArg(), 50).
		WillReturnRows(dueRow(msgID, apptID, "reminder_24h", 0))
	mock.ExpectExec("UPDATE scheduled_messages SET status = 'sent'").
		WithArgs(pgxmock.AnyArg(), msgID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	registry := prometheus.NewRegistry()
	sender := &stubSender{templateResult: whatsapp.SendResult{Success: true}}
	p := NewProcessor(NewStore(mock), sender, &stubAppointments{appt: pendingAppointment(apptID)}, &stubOptOuts{}, &stubMessageLog{}, nil).
		WithMetrics(metrics.NewBotMetrics(registry))

	_, err = p.ProcessDue(context.Background())
	require.NoError(t, err)

	expected := strings.NewReader(`
# HELP clinicbot_scheduler_processed_total Scheduled messages handled by the cron processor
# TYPE clinicbot_scheduler_processed_total counter
clinicbot_scheduler_processed_total{outcome="sent"} 1
`)
	require.NoError(t, testutil.GatherAndCompare(registry, expected, "clinicbot_scheduler_processed_total"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessDueCountsCancelledOutcome(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	msgID := uuid.New()
	mock.ExpectQuery("FROM scheduled_messages").
		WithArgs(pgxmock.AnyArg(), 50).
		WillReturnRows(dueRow(msgID, uuid.New(), "reminder_24h", 0))
	mock.ExpectExec("UPDATE scheduled_messages SET status = 'cancelled'").
		WithArgs("opted out", pgxmock.AnyArg(), msgID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	registry := prometheus.NewRegistry()
	p := NewProcessor(NewStore(mock), &stubSender{}, &stubAppointments{}, &stubOptOuts{optedOut: true}, &stubMessageLog{}, nil).
		WithMetrics(metrics.NewBotMetrics(registry))

	_, err = p.ProcessDue(context.Background())
	require.NoError(t, err)

	expected := strings.NewReader(`
# HELP clinicbot_scheduler_processed_total Scheduled messages handled by the cron processor
# TYPE clinicbot_scheduler_processed_total counter
clinicbot_scheduler_processed_total{outcome="cancelled"} 1
`)
	require.NoError(t, testutil.GatherAndCompare(registry, expected, "clinicbot_scheduler_processed_total"))
	require.NoError(t, mock.ExpectationsWereMet())
}
