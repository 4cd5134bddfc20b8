package bot

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/arogya-clinic/whatsapp-assistant/internal/appointments"
	"github.com/arogya-clinic/whatsapp-assistant/internal/conversation"
	"github.com/arogya-clinic/whatsapp-assistant/internal/patients"
	"github.com/arogya-clinic/whatsapp-assistant/internal/scheduler"
	"github.com/arogya-clinic/whatsapp-assistant/internal/whatsapp"
)

// The fakes below hold conversation state in memory so multi-turn scenarios
// can drive HandleInbound the way the webhook handler does.

type fakeConversations struct {
	conv      *conversation.Conversation
	optedOut  map[string]bool
	failLoads bool
}

func newFakeConversations() *fakeConversations {
	return &fakeConversations{optedOut: map[string]bool{}}
}

func (f *fakeConversations) GetOrCreate(ctx context.Context, phone string) (*conversation.Conversation, error) {
	if f.failLoads {
		return nil, context.DeadlineExceeded
	}
	if f.conv == nil {
		now := time.Now().UTC()
		f.conv = &conversation.Conversation{
			ID:            uuid.New(),
			Phone:         phone,
			Step:          conversation.StepIdle,
			LastMessageAt: now,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	}
	copied := *f.conv
	return &copied, nil
}

func (f *fakeConversations) Touch(ctx context.Context, id uuid.UUID) error {
	f.conv.LastMessageAt = time.Now().UTC()
	return nil
}

func (f *fakeConversations) Update(ctx context.Context, id uuid.UUID, flow conversation.Flow, step conversation.Step) error {
	f.conv.Flow = flow
	f.conv.Step = step
	return nil
}

func (f *fakeConversations) MergeContext(ctx context.Context, id uuid.UUID, patch conversation.Context) error {
	c := &f.conv.Context
	if patch.Name != "" {
		c.Name = patch.Name
	}
	if patch.Email != "" {
		c.Email = patch.Email
	}
	if patch.Reason != "" {
		c.Reason = patch.Reason
	}
	if patch.Date != "" {
		c.Date = patch.Date
	}
	if patch.SlotID != "" {
		c.SlotID = patch.SlotID
	}
	if patch.SlotTitle != "" {
		c.SlotTitle = patch.SlotTitle
	}
	if patch.SlotValue != "" {
		c.SlotValue = patch.SlotValue
	}
	if patch.AppointmentID != "" {
		c.AppointmentID = patch.AppointmentID
	}
	if patch.Options != nil {
		c.Options = patch.Options
	}
	return nil
}

func (f *fakeConversations) Reset(ctx context.Context, id uuid.UUID) error {
	f.conv.Flow = conversation.FlowNone
	f.conv.Step = conversation.StepIdle
	f.conv.Context = conversation.Context{}
	return nil
}

func (f *fakeConversations) LinkUser(ctx context.Context, id, userID uuid.UUID) error {
	f.conv.UserID = &userID
	return nil
}

func (f *fakeConversations) SetOptedOut(ctx context.Context, phone string, optedOut bool) error {
	f.optedOut[phone] = optedOut
	return nil
}

type fakeMessageLog struct {
	entries []conversation.LogEntry
}

func (f *fakeMessageLog) Append(ctx context.Context, entry conversation.LogEntry) error {
	f.entries = append(f.entries, entry)
	return nil
}

type sentMessage struct {
	kind    string // text, buttons, list
	body    string
	buttons []whatsapp.Button
}

type fakeSender struct {
	sent      []sentMessage
	markReads []string
}

func (f *fakeSender) SendText(ctx context.Context, to, body string) whatsapp.SendResult {
	f.sent = append(f.sent, sentMessage{kind: "text", body: body})
	return whatsapp.SendResult{Success: true, MessageID: "wamid.test"}
}

func (f *fakeSender) SendButtons(ctx context.Context, to, body string, buttons []whatsapp.Button, header, footer string) whatsapp.SendResult {
	f.sent = append(f.sent, sentMessage{kind: "buttons", body: body, buttons: buttons})
	return whatsapp.SendResult{Success: true}
}

func (f *fakeSender) SendList(ctx context.Context, to, body, buttonLabel string, sections []whatsapp.ListSection) whatsapp.SendResult {
	f.sent = append(f.sent, sentMessage{kind: "list", body: body})
	return whatsapp.SendResult{Success: true}
}

func (f *fakeSender) MarkRead(ctx context.Context, messageID string) whatsapp.SendResult {
	f.markReads = append(f.markReads, messageID)
	return whatsapp.SendResult{Success: true}
}

func (f *fakeSender) last(t *testing.T) sentMessage {
	t.Helper()
	if len(f.sent) == 0 {
		t.Fatal("no messages sent")
	}
	return f.sent[len(f.sent)-1]
}

type fakeDirectory struct {
	byID    map[uuid.UUID]*patients.User
	byEmail map[string]*patients.User
	byPhone map[string]*patients.User
	created []*patients.User
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		byID:    map[uuid.UUID]*patients.User{},
		byEmail: map[string]*patients.User{},
		byPhone: map[string]*patients.User{},
	}
}

func (f *fakeDirectory) add(user *patients.User) {
	f.byID[user.ID] = user
	if user.Email != "" {
		f.byEmail[user.Email] = user
	}
	if user.Phone != "" {
		f.byPhone[user.Phone] = user
	}
}

func (f *fakeDirectory) GetByID(ctx context.Context, id uuid.UUID) (*patients.User, error) {
	return f.byID[id], nil
}

func (f *fakeDirectory) GetByEmail(ctx context.Context, email string) (*patients.User, error) {
	return f.byEmail[email], nil
}

func (f *fakeDirectory) GetByPhone(ctx context.Context, phone string) (*patients.User, error) {
	return f.byPhone[phone], nil
}

func (f *fakeDirectory) CreatePatient(ctx context.Context, name, email, phone string) (*patients.User, error) {
	user := &patients.User{
		ID:     uuid.New(),
		Name:   name,
		Email:  email,
		Phone:  phone,
		Role:   patients.RolePatient,
		Active: true,
	}
	f.add(user)
	f.created = append(f.created, user)
	return user, nil
}

func (f *fakeDirectory) UpdatePhone(ctx context.Context, id uuid.UUID, phone string) error {
	if user, ok := f.byID[id]; ok {
		user.Phone = phone
	}
	return nil
}

type fakeAppointments struct {
	byID        map[uuid.UUID]*appointments.Appointment
	byUser      map[uuid.UUID][]appointments.Appointment
	created     []*appointments.Appointment
	cancelled   map[uuid.UUID]string
	rescheduled map[uuid.UUID][2]time.Time // new date, previous date
}

func newFakeAppointments() *fakeAppointments {
	return &fakeAppointments{
		byID:        map[uuid.UUID]*appointments.Appointment{},
		byUser:      map[uuid.UUID][]appointments.Appointment{},
		cancelled:   map[uuid.UUID]string{},
		rescheduled: map[uuid.UUID][2]time.Time{},
	}
}

func (f *fakeAppointments) add(appt appointments.Appointment) {
	f.byID[appt.ID] = &appt
	f.byUser[appt.UserID] = append(f.byUser[appt.UserID], appt)
}

func (f *fakeAppointments) Create(ctx context.Context, appt *appointments.Appointment) error {
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	if appt.Status == "" {
		appt.Status = appointments.StatusPending
	}
	f.created = append(f.created, appt)
	f.add(*appt)
	return nil
}

func (f *fakeAppointments) GetByID(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error) {
	return f.byID[id], nil
}

func (f *fakeAppointments) ListByUser(ctx context.Context, userID uuid.UUID, statuses []appointments.Status) ([]appointments.Appointment, error) {
	var out []appointments.Appointment
	for _, a := range f.byUser[userID] {
		for _, st := range statuses {
			if a.Status == st {
				out = append(out, a)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeAppointments) Cancel(ctx context.Context, id uuid.UUID, reason string) error {
	f.cancelled[id] = reason
	return nil
}

func (f *fakeAppointments) Reschedule(ctx context.Context, id uuid.UUID, newDate, previousDate time.Time) error {
	f.rescheduled[id] = [2]time.Time{newDate, previousDate}
	return nil
}

type fakeReminders struct {
	scheduled []scheduler.RemindersInput
	cancelled []uuid.UUID
}

func (f *fakeReminders) ScheduleAppointmentReminders(ctx context.Context, in scheduler.RemindersInput) (int, error) {
	f.scheduled = append(f.scheduled, in)
	return 2, nil
}

func (f *fakeReminders) CancelAppointmentReminders(ctx context.Context, appointmentID uuid.UUID) (int64, error) {
	f.cancelled = append(f.cancelled, appointmentID)
	return 1, nil
}

type fakeNotifier struct {
	welcomes      []patients.User
	confirmations []appointments.Appointment
	adminAlerts   []appointments.Appointment
}

func (f *fakeNotifier) SendWelcome(ctx context.Context, user patients.User) {
	f.welcomes = append(f.welcomes, user)
}

func (f *fakeNotifier) SendBookingConfirmation(ctx context.Context, user patients.User, appt appointments.Appointment) {
	f.confirmations = append(f.confirmations, appt)
}

func (f *fakeNotifier) NotifyAdminsNewAppointment(ctx context.Context, appt appointments.Appointment) {
	f.adminAlerts = append(f.adminAlerts, appt)
}

type testHarness struct {
	engine        *Engine
	conversations *fakeConversations
	sender        *fakeSender
	directory     *fakeDirectory
	appointments  *fakeAppointments
	reminders     *fakeReminders
	notifier      *fakeNotifier
	log           *fakeMessageLog
	now           time.Time
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	h := &testHarness{
		conversations: newFakeConversations(),
		sender:        &fakeSender{},
		directory:     newFakeDirectory(),
		appointments:  newFakeAppointments(),
		reminders:     &fakeReminders{},
		notifier:      &fakeNotifier{},
		log:           &fakeMessageLog{},
		// Monday 1 September 2025, 10:00 IST.
		now: time.Date(2025, 9, 1, 4, 30, 0, 0, time.UTC),
	}
	h.engine = NewEngine(h.conversations, h.log, h.sender, h.directory, h.appointments,
		h.reminders, h.notifier, nil, nil, Options{
			SessionTimeout:     30 * time.Minute,
			BookingHorizonDays: 90,
			ClinicName:         "Arogya Clinic",
			ClinicHours:        "Mon-Sat 9 AM - 7 PM",
			ClinicAddress:      "12 MG Road, Pune",
			ClinicPhone:        "+91 20 1234 5678",
		}).WithClock(func() time.Time { return h.now })
	return h
}

const testPhone = "919876543210"

func (h *testHarness) text(body string) {
	h.engine.HandleInbound(context.Background(), whatsapp.InboundMessage{
		From:      testPhone,
		MessageID: "wamid.in",
		Type:      whatsapp.TypeText,
		Content:   body,
	})
}

func (h *testHarness) tap(payload, title string) {
	h.engine.HandleInbound(context.Background(), whatsapp.InboundMessage{
		From:      testPhone,
		MessageID: "wamid.in",
		Type:      whatsapp.TypeInteractive,
		Content:   payload,
		Title:     title,
	})
}
