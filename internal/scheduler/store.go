package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides CRUD operations for scheduled_messages.
type Store struct {
	db DB
}

// NewStore creates a scheduled message store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// Create inserts a new pending scheduled message.
func (s *Store) Create(ctx context.Context, m *ScheduledMessage) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Status == "" {
		m.Status = StatusPending
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now

	params, err := json.Marshal(m.TemplateParams)
	if err != nil {
		return fmt.Errorf("scheduler: marshal template params: %w", err)
	}
	if m.TemplateParams == nil {
		params = []byte("{}")
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO scheduled_messages (id, phone, user_id, message_type, related_type, related_id, scheduled_at, template_name, template_params, status, retry_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, $11, $11)`,
		m.ID, m.Phone, m.UserID, string(m.MessageType), m.RelatedType, m.RelatedID,
		m.ScheduledAt, m.TemplateName, params, string(m.Status), now)
	if err != nil {
		return fmt.Errorf("scheduler: create scheduled message: %w", err)
	}
	return nil
}

// CancelPendingByRelated cancels every pending message of the given types for
// a related entity. This is the reminder dedup rule: at most one pending row
// per (related_id, message_type).
func (s *Store) CancelPendingByRelated(ctx context.Context, relatedID uuid.UUID, types []MessageType, reason string) (int64, error) {
	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, string(t))
	}
	now := time.Now().UTC()
	tag, err := s.db.Exec(ctx, `
		UPDATE scheduled_messages SET status = 'cancelled', error_message = $1, updated_at = $2
		WHERE related_id = $3 AND message_type = ANY($4) AND status = 'pending'`,
		reason, now, relatedID, names)
	if err != nil {
		return 0, fmt.Errorf("scheduler: cancel pending by related: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListDue returns up to limit pending messages due by asOf, earliest first.
func (s *Store) ListDue(ctx context.Context, asOf time.Time, limit int) ([]ScheduledMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, phone, user_id, message_type, related_type, related_id, scheduled_at, template_name, template_params, status, retry_count, COALESCE(error_message, ''), sent_at, created_at, updated_at
		FROM scheduled_messages
		WHERE status = 'pending' AND scheduled_at <= $1
		ORDER BY scheduled_at ASC
		LIMIT $2`, asOf, limit)
	if err != nil {
		return nil, fmt.Errorf("scheduler: list due: %w", err)
	}
	defer rows.Close()
	return scanScheduled(rows)
}

// MarkSent transitions a pending message to sent.
func (s *Store) MarkSent(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	tag, err := s.db.Exec(ctx, `
		UPDATE scheduled_messages SET status = 'sent', sent_at = $1, updated_at = $1
		WHERE id = $2 AND status = 'pending'`, now, id)
	if err != nil {
		return fmt.Errorf("scheduler: mark sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("scheduler: mark sent: no pending message with id %s", id)
	}
	return nil
}

// MarkCancelled transitions a pending message to cancelled with a reason.
func (s *Store) MarkCancelled(ctx context.Context, id uuid.UUID, reason string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(ctx, `
		UPDATE scheduled_messages SET status = 'cancelled', error_message = $1, updated_at = $2
		WHERE id = $3 AND status = 'pending'`, reason, now, id)
	if err != nil {
		return fmt.Errorf("scheduler: mark cancelled: %w", err)
	}
	return nil
}

// MarkFailed transitions a message to terminal failed once retries are exhausted.
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(ctx, `
		UPDATE scheduled_messages SET status = 'failed', error_message = $1, retry_count = retry_count + 1, updated_at = $2
		WHERE id = $3 AND status = 'pending'`, errMsg, now, id)
	if err != nil {
		return fmt.Errorf("scheduler: mark failed: %w", err)
	}
	return nil
}

// ScheduleRetry keeps the message pending, pushes scheduled_at forward and
// records the transient error.
func (s *Store) ScheduleRetry(ctx context.Context, id uuid.UUID, nextAt time.Time, errMsg string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(ctx, `
		UPDATE scheduled_messages SET scheduled_at = $1, error_message = $2, retry_count = retry_count + 1, updated_at = $3
		WHERE id = $4 AND status = 'pending'`, nextAt, errMsg, now, id)
	if err != nil {
		return fmt.Errorf("scheduler: schedule retry: %w", err)
	}
	return nil
}

func scanScheduled(rows pgx.Rows) ([]ScheduledMessage, error) {
	var result []ScheduledMessage
	for rows.Next() {
		var (
			m         ScheduledMessage
			msgType   string
			status    string
			rawParams []byte
		)
		err := rows.Scan(&m.ID, &m.Phone, &m.UserID, &msgType, &m.RelatedType,
			&m.RelatedID, &m.ScheduledAt, &m.TemplateName, &rawParams, &status,
			&m.RetryCount, &m.ErrorMessage, &m.SentAt, &m.CreatedAt, &m.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scheduler: scan scheduled message: %w", err)
		}
		m.MessageType = MessageType(msgType)
		m.Status = Status(status)
		if len(rawParams) > 0 {
			if err := json.Unmarshal(rawParams, &m.TemplateParams); err != nil {
				return nil, fmt.Errorf("scheduler: decode template params: %w", err)
			}
		}
		result = append(result, m)
	}
	return result, rows.Err()
}
