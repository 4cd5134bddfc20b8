package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Flow names the active multi-step conversation, empty when idle.
type Flow string

const (
	FlowNone       Flow = ""
	FlowBooking    Flow = "booking"
	FlowStatus     Flow = "status"
	FlowCancel     Flow = "cancel"
	FlowReschedule Flow = "reschedule"
	FlowHelp       Flow = "help"
)

// Step is the point within a flow awaiting a particular kind of input.
type Step string

const (
	StepIdle Step = "idle"

	// Booking flow.
	StepAwaitingName    Step = "awaiting_name"
	StepAwaitingEmail   Step = "awaiting_email"
	StepAwaitingReason  Step = "awaiting_reason"
	StepAwaitingDate    Step = "awaiting_date"
	StepAwaitingTime    Step = "awaiting_time"
	StepAwaitingConfirm Step = "awaiting_confirm"

	// Cancel and reschedule flows.
	StepAwaitingSelection Step = "awaiting_selection"
)

// AppointmentOption is one row of the selection list stored in context so a
// typed number 1..N can resolve against the presented order.
type AppointmentOption struct {
	ID    string    `json:"id"`
	Date  time.Time `json:"date"`
	Label string    `json:"label"`
}

// Context is the per-conversation scratch data accumulated across steps of
// the active flow. It is persisted as a JSONB blob; different flows populate
// different subsets of its fields. Zero-valued fields are omitted so a merge
// never clobbers unrelated keys.
type Context struct {
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Reason string `json:"reason,omitempty"`

	// Date is the validated appointment date in D/M/YYYY form as typed.
	Date      string `json:"date,omitempty"`
	SlotID    string `json:"slot_id,omitempty"`
	SlotTitle string `json:"slot_title,omitempty"`
	SlotValue string `json:"slot_value,omitempty"`

	// Selection state for the cancel and reschedule flows.
	AppointmentID string              `json:"appointment_id,omitempty"`
	Options       []AppointmentOption `json:"options,omitempty"`
}

// Conversation is the durable per-phone-number conversation record.
type Conversation struct {
	ID            uuid.UUID
	Phone         string
	Flow          Flow
	Step          Step
	Context       Context
	UserID        *uuid.UUID
	OptedOut      bool
	LastMessageAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Direction marks a message log entry as inbound or outbound.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// LogEntry is one immutable row of the per-conversation message audit.
type LogEntry struct {
	ID                uuid.UUID
	ConversationID    *uuid.UUID
	Phone             string
	Direction         Direction
	MessageType       string
	Content           string
	ProviderMessageID string
	Metadata          map[string]string
	CreatedAt         time.Time
}
