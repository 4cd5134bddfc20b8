package bot

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/arogya-clinic/whatsapp-assistant/internal/appointments"
	"github.com/arogya-clinic/whatsapp-assistant/internal/conversation"
	"github.com/arogya-clinic/whatsapp-assistant/internal/patients"
)

func (h *testHarness) seedPatient() *patients.User {
	user := &patients.User{
		ID:     uuid.New(),
		Name:   "Priya Sharma",
		Email:  "priya@example.com",
		Phone:  testPhone,
		Role:   patients.RolePatient,
		Active: true,
	}
	h.directory.add(user)
	return user
}

func (h *testHarness) seedAppointment(userID uuid.UUID, status appointments.Status, date time.Time) appointments.Appointment {
	appt := appointments.Appointment{
		ID:     uuid.New(),
		UserID: userID,
		Name:   "Priya Sharma",
		Email:  "priya@example.com",
		Phone:  testPhone,
		Date:   date,
		Status: status,
		Reason: "checkup",
	}
	h.appointments.add(appt)
	return appt
}

func TestStatusByPhoneLookup(t *testing.T) {
	h := newHarness(t)
	user := h.seedPatient()
	h.seedAppointment(user.ID, appointments.StatusApproved, h.now.Add(48*time.Hour))

	h.text("status")

	body := h.sender.last(t).body
	assert.Contains(t, body, "Approved")
	assert.Contains(t, body, "checkup")
	// Single-turn: the conversation ends idle and linked to the account.
	assert.Equal(t, conversation.StepIdle, h.conversations.conv.Step)
	assert.Equal(t, user.ID, *h.conversations.conv.UserID)
}

func TestStatusUnknownPhoneAsksForEmail(t *testing.T) {
	h := newHarness(t)

	h.text("status")

	assert.Equal(t, msgAskEmailForStatus, h.sender.last(t).body)
	assert.Equal(t, conversation.FlowStatus, h.conversations.conv.Flow)
	assert.Equal(t, conversation.StepAwaitingEmail, h.conversations.conv.Step)
}

func TestStatusEmailRecovery(t *testing.T) {
	h := newHarness(t)
	user := &patients.User{ID: uuid.New(), Name: "Priya Sharma", Email: "priya@example.com", Phone: "919999999999", Active: true}
	h.directory.add(user)
	h.seedAppointment(user.ID, appointments.StatusPending, h.now.Add(24*time.Hour))

	h.text("status")
	assert.Equal(t, msgAskEmailForStatus, h.sender.last(t).body)

	h.text("priya@example.com")

	assert.Contains(t, h.sender.last(t).body, "Pending")
	assert.Equal(t, user.ID, *h.conversations.conv.UserID)
	assert.Equal(t, conversation.StepIdle, h.conversations.conv.Step)
}

func TestStatusEmailRecoveryUnknownEmail(t *testing.T) {
	h := newHarness(t)

	h.text("status")
	h.text("nobody@example.com")

	assert.Equal(t, msgNoAccount, h.sender.last(t).body)
	assert.Equal(t, conversation.StepIdle, h.conversations.conv.Step)
}

func TestStatusNoActiveAppointments(t *testing.T) {
	h := newHarness(t)
	user := h.seedPatient()
	h.seedAppointment(user.ID, appointments.StatusCancelled, h.now.Add(24*time.Hour))

	h.text("status")

	assert.Equal(t, msgNoActiveAppointments, h.sender.last(t).body)
}

func TestStatusListsMultipleAppointments(t *testing.T) {
	h := newHarness(t)
	user := h.seedPatient()
	h.seedAppointment(user.ID, appointments.StatusPending, h.now.Add(24*time.Hour))
	h.seedAppointment(user.ID, appointments.StatusRescheduled, h.now.Add(96*time.Hour))

	h.text("status")

	body := h.sender.last(t).body
	assert.Contains(t, body, "1.")
	assert.Contains(t, body, "2.")
	assert.Contains(t, body, "Pending")
	assert.Contains(t, body, "Rescheduled")
}
