package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/arogya-clinic/whatsapp-assistant/internal/appointments"
	"github.com/arogya-clinic/whatsapp-assistant/internal/clinictime"
	"github.com/arogya-clinic/whatsapp-assistant/internal/conversation"
	"github.com/arogya-clinic/whatsapp-assistant/internal/observability/metrics"
	"github.com/arogya-clinic/whatsapp-assistant/internal/whatsapp"
	"github.com/arogya-clinic/whatsapp-assistant/pkg/logging"
)

type notificationSender interface {
	SendTemplate(ctx context.Context, to, name string, params []whatsapp.TemplateParam) whatsapp.SendResult
	SendText(ctx context.Context, to, body string) whatsapp.SendResult
}

type appointmentReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error)
}

type optOutChecker interface {
	IsOptedOut(ctx context.Context, phone string) (bool, error)
}

type messageLogger interface {
	Append(ctx context.Context, entry conversation.LogEntry) error
}

// Result summarizes one processing run for the cron caller.
type Result struct {
	Processed int `json:"processed"`
	Errors    int `json:"errors"`
	Total     int `json:"total"`
}

// Processor sends due scheduled messages. It is invoked by an external cron
// timer; each run is an independent unit of work.
type Processor struct {
	store        *Store
	sender       notificationSender
	appointments appointmentReader
	optOuts      optOutChecker
	messageLog   messageLogger
	metrics      *metrics.BotMetrics
	logger       *logging.Logger
	batchSize    int
	maxRetries   int
	retryBackoff time.Duration
	now          func() time.Time
}

// NewProcessor creates a scheduled message processor.
func NewProcessor(store *Store, sender notificationSender, appts appointmentReader, optOuts optOutChecker, messageLog messageLogger, logger *logging.Logger) *Processor {
	if logger == nil {
		logger = logging.Default()
	}
	return &Processor{
		store:        store,
		sender:       sender,
		appointments: appts,
		optOuts:      optOuts,
		messageLog:   messageLog,
		logger:       logger,
		batchSize:    50,
		maxRetries:   3,
		retryBackoff: 5 * time.Minute,
		now:          time.Now,
	}
}

// WithMetrics enables per-outcome counters for processed messages.
func (p *Processor) WithMetrics(m *metrics.BotMetrics) *Processor {
	p.metrics = m
	return p
}

// WithBatchSize overrides the per-run row limit.
func (p *Processor) WithBatchSize(n int) *Processor {
	if n > 0 {
		p.batchSize = n
	}
	return p
}

// WithRetryPolicy overrides the retry ceiling and backoff.
func (p *Processor) WithRetryPolicy(maxRetries int, backoff time.Duration) *Processor {
	if maxRetries > 0 {
		p.maxRetries = maxRetries
	}
	if backoff > 0 {
		p.retryBackoff = backoff
	}
	return p
}

// WithClock overrides the time source, for tests.
func (p *Processor) WithClock(now func() time.Time) *Processor {
	if now != nil {
		p.now = now
	}
	return p
}

// ProcessDue fetches due pending messages and handles each independently;
// one row's failure never aborts the batch.
func (p *Processor) ProcessDue(ctx context.Context) (Result, error) {
	due, err := p.store.ListDue(ctx, p.now().UTC(), p.batchSize)
	if err != nil {
		return Result{}, err
	}

	result := Result{Total: len(due)}
	for i := range due {
		if err := p.processOne(ctx, &due[i]); err != nil {
			p.logger.Error("processor: message failed", "id", due[i].ID, "error", err)
			result.Errors++
			continue
		}
		result.Processed++
	}

	if result.Total > 0 {
		p.logger.Info("processor: run complete",
			"total", result.Total, "processed", result.Processed, "errors", result.Errors)
	}
	return result, nil
}

func (p *Processor) processOne(ctx context.Context, m *ScheduledMessage) error {
	optedOut, err := p.optOuts.IsOptedOut(ctx, m.Phone)
	if err != nil {
		return err
	}
	if optedOut {
		return p.cancel(ctx, m, "opted out")
	}

	if m.RelatedType == RelatedAppointment {
		appt, err := p.appointments.GetByID(ctx, m.RelatedID)
		if err != nil {
			return err
		}
		if appt == nil {
			return p.cancel(ctx, m, "appointment no longer exists")
		}
		if appt.Status == appointments.StatusCancelled || appt.Status == appointments.StatusRejected {
			return p.cancel(ctx, m, "appointment "+string(appt.Status))
		}
		// The appointment may have moved since scheduling; reminders carry
		// the live date and doctor.
		if m.MessageType == TypeReminder24h || m.MessageType == TypeReminder1h {
			if m.TemplateParams == nil {
				m.TemplateParams = map[string]string{}
			}
			m.TemplateParams["date"] = clinictime.FormatDateTime(appt.Date)
			if appt.DoctorName != "" {
				m.TemplateParams["doctor_name"] = appt.DoctorName
			}
		}
	}

	res := p.sender.SendTemplate(ctx, m.Phone, m.TemplateName, TemplateParams(*m))
	channel := "template"
	if !res.Success {
		p.logger.Warn("processor: template send failed, falling back to text",
			"id", m.ID, "template", m.TemplateName, "error", res.Error)
		res = p.sender.SendText(ctx, m.Phone, PlainText(*m))
		channel = "text"
	}

	p.logSend(ctx, m, res, channel)

	if !res.Success {
		if m.RetryCount+1 >= p.maxRetries {
			if err := p.store.MarkFailed(ctx, m.ID, res.Error); err != nil {
				return err
			}
			p.metrics.ObserveScheduled("failed")
			return nil
		}
		if err := p.store.ScheduleRetry(ctx, m.ID, p.now().UTC().Add(p.retryBackoff), res.Error); err != nil {
			return err
		}
		p.metrics.ObserveScheduled("retried")
		return nil
	}
	if err := p.store.MarkSent(ctx, m.ID); err != nil {
		return err
	}
	p.metrics.ObserveScheduled("sent")
	return nil
}

// cancel marks a message cancelled and counts the outcome.
func (p *Processor) cancel(ctx context.Context, m *ScheduledMessage, reason string) error {
	if err := p.store.MarkCancelled(ctx, m.ID, reason); err != nil {
		return err
	}
	p.metrics.ObserveScheduled("cancelled")
	return nil
}

func (p *Processor) logSend(ctx context.Context, m *ScheduledMessage, res whatsapp.SendResult, channel string) {
	if p.messageLog == nil {
		return
	}
	status := "sent"
	if !res.Success {
		status = "failed"
	}
	entry := conversation.LogEntry{
		Phone:             m.Phone,
		Direction:         conversation.DirectionOutbound,
		MessageType:       "notification",
		Content:           PlainText(*m),
		ProviderMessageID: res.MessageID,
		Metadata: map[string]string{
			"scheduled_message_id": m.ID.String(),
			"notification_type":    string(m.MessageType),
			"channel":              channel,
			"status":               status,
		},
	}
	if err := p.messageLog.Append(ctx, entry); err != nil {
		p.logger.Warn("processor: failed to log send", "id", m.ID, "error", err)
	}
}
