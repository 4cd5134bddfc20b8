package bot

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/arogya-clinic/whatsapp-assistant/internal/appointments"
	"github.com/arogya-clinic/whatsapp-assistant/internal/conversation"
	"github.com/arogya-clinic/whatsapp-assistant/internal/observability/metrics"
	"github.com/arogya-clinic/whatsapp-assistant/internal/patients"
	"github.com/arogya-clinic/whatsapp-assistant/internal/scheduler"
	"github.com/arogya-clinic/whatsapp-assistant/internal/whatsapp"
	"github.com/arogya-clinic/whatsapp-assistant/pkg/logging"
)

// Sender is the outbound message capability the engine depends on.
type Sender interface {
	SendText(ctx context.Context, to, body string) whatsapp.SendResult
	SendButtons(ctx context.Context, to, body string, buttons []whatsapp.Button, header, footer string) whatsapp.SendResult
	SendList(ctx context.Context, to, body, buttonLabel string, sections []whatsapp.ListSection) whatsapp.SendResult
	MarkRead(ctx context.Context, messageID string) whatsapp.SendResult
}

// ConversationStore persists per-phone conversation state.
type ConversationStore interface {
	GetOrCreate(ctx context.Context, phone string) (*conversation.Conversation, error)
	Touch(ctx context.Context, id uuid.UUID) error
	Update(ctx context.Context, id uuid.UUID, flow conversation.Flow, step conversation.Step) error
	MergeContext(ctx context.Context, id uuid.UUID, patch conversation.Context) error
	Reset(ctx context.Context, id uuid.UUID) error
	LinkUser(ctx context.Context, id, userID uuid.UUID) error
	SetOptedOut(ctx context.Context, phone string, optedOut bool) error
}

// MessageLog records every inbound and outbound message.
type MessageLog interface {
	Append(ctx context.Context, entry conversation.LogEntry) error
}

// PatientDirectory resolves and creates patient accounts.
type PatientDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*patients.User, error)
	GetByEmail(ctx context.Context, email string) (*patients.User, error)
	GetByPhone(ctx context.Context, phone string) (*patients.User, error)
	CreatePatient(ctx context.Context, name, email, phone string) (*patients.User, error)
	UpdatePhone(ctx context.Context, id uuid.UUID, phone string) error
}

// AppointmentStore mutates and reads appointments.
type AppointmentStore interface {
	Create(ctx context.Context, appt *appointments.Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error)
	ListByUser(ctx context.Context, userID uuid.UUID, statuses []appointments.Status) ([]appointments.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) error
	Reschedule(ctx context.Context, id uuid.UUID, newDate, previousDate time.Time) error
}

// Reminders schedules and cancels appointment reminder notifications.
type Reminders interface {
	ScheduleAppointmentReminders(ctx context.Context, in scheduler.RemindersInput) (int, error)
	CancelAppointmentReminders(ctx context.Context, appointmentID uuid.UUID) (int64, error)
}

// Notifier sends the best-effort post-commit emails and admin notifications.
type Notifier interface {
	SendWelcome(ctx context.Context, user patients.User)
	SendBookingConfirmation(ctx context.Context, user patients.User, appt appointments.Appointment)
	NotifyAdminsNewAppointment(ctx context.Context, appt appointments.Appointment)
}

// Options carries the clinic identity and conversation behaviour knobs.
type Options struct {
	SessionTimeout     time.Duration
	BookingHorizonDays int
	ClinicName         string
	ClinicHours        string
	ClinicAddress      string
	ClinicPhone        string
}

// Engine routes inbound chat messages through the conversation flows.
type Engine struct {
	conversations ConversationStore
	messageLog    MessageLog
	sender        Sender
	patients      PatientDirectory
	appointments  AppointmentStore
	reminders     Reminders
	notifier      Notifier
	metrics       *metrics.BotMetrics
	logger        *logging.Logger
	opts          Options
	now           func() time.Time
}

// NewEngine creates the conversation engine.
func NewEngine(conversations ConversationStore, messageLog MessageLog, sender Sender, directory PatientDirectory, appts AppointmentStore, reminders Reminders, notifier Notifier, m *metrics.BotMetrics, logger *logging.Logger, opts Options) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	if opts.SessionTimeout <= 0 {
		opts.SessionTimeout = 30 * time.Minute
	}
	if opts.BookingHorizonDays <= 0 {
		opts.BookingHorizonDays = 90
	}
	return &Engine{
		conversations: conversations,
		messageLog:    messageLog,
		sender:        sender,
		patients:      directory,
		appointments:  appts,
		reminders:     reminders,
		notifier:      notifier,
		metrics:       m,
		logger:        logger,
		opts:          opts,
		now:           time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	if now != nil {
		e.now = now
	}
	return e
}

// input is the flow-handler view of one inbound message.
type input struct {
	text        string // raw text body, or interactive reply title
	payload     string // interactive reply id, empty for plain text
	interactive bool
}

// Outbound helpers. Every send is appended to the message log; a failed send
// is logged but never surfaced into the conversation.

func (e *Engine) sendText(ctx context.Context, conv *conversation.Conversation, body string) {
	res := e.sender.SendText(ctx, conv.Phone, body)
	e.recordOutbound(ctx, conv, "text", body, res)
}

func (e *Engine) sendButtons(ctx context.Context, conv *conversation.Conversation, body string, buttons []whatsapp.Button) {
	res := e.sender.SendButtons(ctx, conv.Phone, body, buttons, "", "")
	e.recordOutbound(ctx, conv, "interactive", body, res)
}

func (e *Engine) sendList(ctx context.Context, conv *conversation.Conversation, body, buttonLabel string, sections []whatsapp.ListSection) {
	res := e.sender.SendList(ctx, conv.Phone, body, buttonLabel, sections)
	e.recordOutbound(ctx, conv, "interactive", body, res)
}

func (e *Engine) recordOutbound(ctx context.Context, conv *conversation.Conversation, msgType, content string, res whatsapp.SendResult) {
	status := "sent"
	if !res.Success {
		status = "failed"
		e.logger.Warn("bot: outbound send failed", "phone", conv.Phone, "error", res.Error)
	}
	e.metrics.ObserveOutbound(msgType, status)
	entry := conversation.LogEntry{
		ConversationID:    &conv.ID,
		Phone:             conv.Phone,
		Direction:         conversation.DirectionOutbound,
		MessageType:       msgType,
		Content:           content,
		ProviderMessageID: res.MessageID,
	}
	if err := e.messageLog.Append(ctx, entry); err != nil {
		e.logger.Warn("bot: failed to log outbound message", "phone", conv.Phone, "error", err)
	}
}

// resetTo resets the conversation and sends a single message, the shared
// "inform and return to idle" ending of several paths.
func (e *Engine) resetTo(ctx context.Context, conv *conversation.Conversation, body string) {
	if err := e.conversations.Reset(ctx, conv.ID); err != nil {
		e.logger.Error("bot: reset failed", "phone", conv.Phone, "error", err)
	}
	e.sendText(ctx, conv, body)
}

func (e *Engine) showMenu(ctx context.Context, conv *conversation.Conversation) {
	e.sendButtons(ctx, conv, menuBody(e.opts.ClinicName), menuButtons())
}
