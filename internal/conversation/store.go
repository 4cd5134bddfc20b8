package conversation

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

// Store persists conversations keyed by normalized phone number.
type Store struct {
	db DB
}

// NewStore creates a conversation store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

const conversationColumns = `id, phone, flow, current_step, context, user_id, opted_out, last_message_at, created_at, updated_at`

// GetOrCreate fetches the conversation for a phone number, inserting an idle
// row on first contact. The upsert keeps concurrent first-contact safe. An
// existing row keeps its old last_message_at so the caller can run the
// session timeout check before calling Touch.
func (s *Store) GetOrCreate(ctx context.Context, phone string) (*Conversation, error) {
	now := time.Now().UTC()
	row := s.db.QueryRow(ctx, `
		INSERT INTO conversations (id, phone, flow, current_step, context, last_message_at, created_at, updated_at)
		VALUES ($1, $2, '', 'idle', '{}', $3, $3, $3)
		ON CONFLICT (phone) DO UPDATE SET last_message_at = conversations.last_message_at, updated_at = $3
		RETURNING `+conversationColumns,
		uuid.New(), phone, now)
	conv, err := scanConversation(row)
	if err != nil {
		return nil, fmt.Errorf("conversation: get or create: %w", err)
	}
	return conv, nil
}

// Touch refreshes last_message_at after the timeout check has run.
func (s *Store) Touch(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(ctx, `
		UPDATE conversations SET last_message_at = $1, updated_at = $1 WHERE id = $2`, now, id)
	if err != nil {
		return fmt.Errorf("conversation: touch: %w", err)
	}
	return nil
}

// Update moves the conversation to a new flow/step and refreshes last_message_at.
func (s *Store) Update(ctx context.Context, id uuid.UUID, flow Flow, step Step) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(ctx, `
		UPDATE conversations SET flow = $1, current_step = $2, last_message_at = $3, updated_at = $3
		WHERE id = $4`, string(flow), string(step), now, id)
	if err != nil {
		return fmt.Errorf("conversation: update: %w", err)
	}
	return nil
}

// MergeContext shallow-merges the non-zero fields of patch on top of the
// stored context. Uses jsonb concatenation so unrelated keys are kept.
func (s *Store) MergeContext(ctx context.Context, id uuid.UUID, patch Context) error {
	data, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("conversation: marshal context patch: %w", err)
	}
	now := time.Now().UTC()
	_, err = s.db.Exec(ctx, `
		UPDATE conversations SET context = context || $1::jsonb, last_message_at = $2, updated_at = $2
		WHERE id = $3`, data, now, id)
	if err != nil {
		return fmt.Errorf("conversation: merge context: %w", err)
	}
	return nil
}

// Reset returns the conversation to idle and fully replaces the context.
func (s *Store) Reset(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(ctx, `
		UPDATE conversations SET flow = '', current_step = 'idle', context = '{}', last_message_at = $1, updated_at = $1
		WHERE id = $2`, now, id)
	if err != nil {
		return fmt.Errorf("conversation: reset: %w", err)
	}
	return nil
}

// LinkUser associates a resolved patient account with the conversation.
func (s *Store) LinkUser(ctx context.Context, id, userID uuid.UUID) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(ctx, `
		UPDATE conversations SET user_id = $1, updated_at = $2 WHERE id = $3`, userID, now, id)
	if err != nil {
		return fmt.Errorf("conversation: link user: %w", err)
	}
	return nil
}

// SetOptedOut flags or clears the opt-out bit for a phone number.
func (s *Store) SetOptedOut(ctx context.Context, phone string, optedOut bool) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(ctx, `
		UPDATE conversations SET opted_out = $1, updated_at = $2 WHERE phone = $3`, optedOut, now, phone)
	if err != nil {
		return fmt.Errorf("conversation: set opted out: %w", err)
	}
	return nil
}

// IsOptedOut reports whether the phone number has opted out of notifications.
// An unknown phone is treated as not opted out.
func (s *Store) IsOptedOut(ctx context.Context, phone string) (bool, error) {
	var optedOut bool
	err := s.db.QueryRow(ctx, `
		SELECT opted_out FROM conversations WHERE phone = $1`, phone).Scan(&optedOut)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("conversation: is opted out: %w", err)
	}
	return optedOut, nil
}

func scanConversation(row pgx.Row) (*Conversation, error) {
	var (
		conv   Conversation
		flow   string
		step   string
		rawCtx []byte
		userID *uuid.UUID
	)
	err := row.Scan(&conv.ID, &conv.Phone, &flow, &step, &rawCtx, &userID,
		&conv.OptedOut, &conv.LastMessageAt, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	conv.Flow = Flow(flow)
	conv.Step = Step(step)
	conv.UserID = userID
	if len(rawCtx) > 0 {
		if err := json.Unmarshal(rawCtx, &conv.Context); err != nil {
			return nil, fmt.Errorf("decode context: %w", err)
		}
	}
	return &conv, nil
}
