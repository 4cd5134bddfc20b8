package scheduler

import (
	"time"

	"github.com/google/uuid"
)

// MessageType names the kind of scheduled notification.
type MessageType string

const (
	TypeReminder24h MessageType = "reminder_24h"
	TypeReminder1h  MessageType = "reminder_1h"
	TypeFollowUp    MessageType = "follow_up"
)

// Status tracks the lifecycle of a scheduled message.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// RelatedAppointment is the related-entity type for appointment reminders.
const RelatedAppointment = "appointment"

// ScheduledMessage is one future-dated notification row.
type ScheduledMessage struct {
	ID             uuid.UUID
	Phone          string
	UserID         uuid.UUID
	MessageType    MessageType
	RelatedType    string
	RelatedID      uuid.UUID
	ScheduledAt    time.Time
	TemplateName   string
	TemplateParams map[string]string
	Status         Status
	RetryCount     int
	ErrorMessage   string
	SentAt         *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
