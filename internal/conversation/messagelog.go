package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const maxLoggedContent = 1000

// MessageLog appends to the immutable per-conversation message audit.
type MessageLog struct {
	db DB
}

// NewMessageLog creates a message log over the given database.
func NewMessageLog(db DB) *MessageLog {
	return &MessageLog{db: db}
}

// Append records one inbound or outbound message. Content is truncated for
// logging; entries are never mutated or deleted.
func (l *MessageLog) Append(ctx context.Context, entry LogEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var metadata []byte
	if len(entry.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("conversation: marshal log metadata: %w", err)
		}
	} else {
		metadata = []byte("{}")
	}

	content := entry.Content
	if utf8.RuneCountInString(content) > maxLoggedContent {
		content = string([]rune(content)[:maxLoggedContent])
	}

	_, err := l.db.Exec(ctx, `
		INSERT INTO conversation_messages (id, conversation_id, phone, direction, message_type, content, provider_message_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, entry.ConversationID, entry.Phone, string(entry.Direction),
		entry.MessageType, content, entry.ProviderMessageID, metadata, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("conversation: append message: %w", err)
	}
	return nil
}
