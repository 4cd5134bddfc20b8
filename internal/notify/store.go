package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgx operations the notification store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Notification is an in-app notification row for a clinic staff user.
type Notification struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Title     string
	Body      string
	ReadAt    *time.Time
	CreatedAt time.Time
}

// Store persists in-app notifications.
type Store struct {
	db DB
}

// NewStore creates a notification store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// Create inserts a notification for a single user.
func (s *Store) Create(ctx context.Context, userID uuid.UUID, title, body string) (*Notification, error) {
	n := &Notification{}
	err := s.db.QueryRow(ctx, `
		INSERT INTO notifications (user_id, title, body)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, title, body, read_at, created_at
	`, userID, title, body).Scan(&n.ID, &n.UserID, &n.Title, &n.Body, &n.ReadAt, &n.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("notify: create notification: %w", err)
	}
	return n, nil
}

// ListUnread returns unread notifications for a user, newest first.
func (s *Store) ListUnread(ctx context.Context, userID uuid.UUID) ([]Notification, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, title, body, read_at, created_at
		FROM notifications
		WHERE user_id = $1 AND read_at IS NULL
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("notify: list unread: %w", err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Body, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("notify: scan notification: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("notify: iterate notifications: %w", err)
	}
	return out, nil
}

// MarkRead stamps a notification as read.
func (s *Store) MarkRead(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE notifications SET read_at = NOW()
		WHERE id = $1 AND read_at IS NULL
	`, id)
	if err != nil {
		return fmt.Errorf("notify: mark read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("notify: notification %s not found or already read", id)
	}
	return nil
}
