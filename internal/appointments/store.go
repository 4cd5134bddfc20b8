package appointments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Status tracks the appointment lifecycle.
type Status string

const (
	StatusPending     Status = "pending"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
	StatusRescheduled Status = "rescheduled"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
)

// Appointment is a clinic appointment booked or mutated through the chat flows.
type Appointment struct {
	ID                 uuid.UUID
	UserID             uuid.UUID
	Name               string
	Email              string
	Phone              string
	Date               time.Time
	Status             Status
	Reason             string
	DoctorName         string
	RescheduledFrom    *time.Time
	CancellationReason string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides the appointment reads and writes the chat flows need.
type Store struct {
	db DB
}

// NewStore creates an appointments store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

const appointmentColumns = `id, user_id, name, email, phone, date, status, reason, COALESCE(doctor_name, ''), rescheduled_from, COALESCE(cancellation_reason, ''), created_at, updated_at`

// Create inserts a new appointment. A zero status defaults to pending.
func (s *Store) Create(ctx context.Context, appt *Appointment) error {
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	if appt.Status == "" {
		appt.Status = StatusPending
	}
	now := time.Now().UTC()
	appt.CreatedAt = now
	appt.UpdatedAt = now

	_, err := s.db.Exec(ctx, `
		INSERT INTO appointments (id, user_id, name, email, phone, date, status, reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		appt.ID, appt.UserID, appt.Name, appt.Email, appt.Phone, appt.Date,
		string(appt.Status), appt.Reason, now, now)
	if err != nil {
		return fmt.Errorf("appointments: create: %w", err)
	}
	return nil
}

// GetByID fetches one appointment, nil when absent.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	appt, err := scanAppointment(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: get by id: %w", err)
	}
	return appt, nil
}

// ListByUser returns the user's appointments in the given statuses, soonest first.
func (s *Store) ListByUser(ctx context.Context, userID uuid.UUID, statuses []Status) ([]Appointment, error) {
	names := make([]string, 0, len(statuses))
	for _, st := range statuses {
		names = append(names, string(st))
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+appointmentColumns+` FROM appointments
		WHERE user_id = $1 AND status = ANY($2)
		ORDER BY date ASC`, userID, names)
	if err != nil {
		return nil, fmt.Errorf("appointments: list by user: %w", err)
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan: %w", err)
		}
		result = append(result, *appt)
	}
	return result, rows.Err()
}

// Cancel marks the appointment cancelled with the given reason.
func (s *Store) Cancel(ctx context.Context, id uuid.UUID, reason string) error {
	now := time.Now().UTC()
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments SET status = 'cancelled', cancellation_reason = $1, updated_at = $2
		WHERE id = $3`, reason, now, id)
	if err != nil {
		return fmt.Errorf("appointments: cancel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("appointments: cancel: no appointment with id %s", id)
	}
	return nil
}

// Reschedule moves the appointment to a new date, recording the prior one.
func (s *Store) Reschedule(ctx context.Context, id uuid.UUID, newDate, previousDate time.Time) error {
	now := time.Now().UTC()
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments SET date = $1, status = 'rescheduled', rescheduled_from = $2, updated_at = $3
		WHERE id = $4`, newDate, previousDate, now, id)
	if err != nil {
		return fmt.Errorf("appointments: reschedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("appointments: reschedule: no appointment with id %s", id)
	}
	return nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		appt   Appointment
		status string
	)
	err := row.Scan(&appt.ID, &appt.UserID, &appt.Name, &appt.Email, &appt.Phone,
		&appt.Date, &status, &appt.Reason, &appt.DoctorName,
		&appt.RescheduledFrom, &appt.CancellationReason, &appt.CreatedAt, &appt.UpdatedAt)
	if err != nil {
		return nil, err
	}
	appt.Status = Status(status)
	return &appt, nil
}
