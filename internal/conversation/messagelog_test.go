package conversation

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendTruncatesLongContent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	var stored string
	mock.ExpectExec("INSERT INTO conversation_messages").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "919876543210", "inbound",
			"text", argCapture{&stored}, "", []byte(`{}`), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	log := NewMessageLog(mock)
	err = log.Append(context.Background(), LogEntry{
		Phone:       "919876543210",
		Direction:   DirectionInbound,
		MessageType: "text",
		Content:     strings.Repeat("दर्द 💉 ", 400),
	})
	require.NoError(t, err)

	assert.Equal(t, maxLoggedContent, utf8.RuneCountInString(stored))
	assert.True(t, utf8.ValidString(stored), "truncation must not split a rune")
	require.NoError(t, mock.ExpectationsWereMet())
}

// argCapture matches any string argument and records it.
type argCapture struct {
	dst *string
}

func (c argCapture) Match(v any) bool {
	s, ok := v.(string)
	if ok {
		*c.dst = s
	}
	return ok
}
