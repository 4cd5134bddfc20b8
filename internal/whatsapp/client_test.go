package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{
		BaseURL:     srv.URL,
		AccessToken: "test-token",
		PhoneID:     "12345",
	})
	require.NoError(t, err)
	return c
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{PhoneID: "12345"})
	assert.Error(t, err)

	_, err = New(Config{AccessToken: "tok"})
	assert.Error(t, err)
}

func TestSendTextSuccess(t *testing.T) {
	var captured map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/12345/messages", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.out"}]}`))
	})

	res := c.SendText(context.Background(), "919876543210", "hello")
	assert.True(t, res.Success)
	assert.Equal(t, "wamid.out", res.MessageID)
	assert.Equal(t, "text", captured["type"])
	assert.Equal(t, "919876543210", captured["to"])
}

func TestSendTextAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"(#131030) Recipient phone number not in allowed list","code":131030}}`))
	})

	res := c.SendText(context.Background(), "15550000000", "hello")
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "131030")
}

func TestSendButtonsCapsAtThree(t *testing.T) {
	var captured map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.out"}]}`))
	})

	buttons := []Button{
		{ID: "a", Title: "A"},
		{ID: "b", Title: "B"},
		{ID: "c", Title: "C"},
		{ID: "d", Title: "D"},
	}
	res := c.SendButtons(context.Background(), "919876543210", "pick one", buttons, "", "")
	require.True(t, res.Success)

	interactive := captured["interactive"].(map[string]any)
	action := interactive["action"].(map[string]any)
	assert.Len(t, action["buttons"], 3)
}

func TestSendButtonsTruncatesTitles(t *testing.T) {
	var captured map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.out"}]}`))
	})

	long := strings.Repeat("x", 30)
	res := c.SendButtons(context.Background(), "919876543210", "pick", []Button{{ID: "a", Title: long}}, "", "")
	require.True(t, res.Success)

	interactive := captured["interactive"].(map[string]any)
	action := interactive["action"].(map[string]any)
	first := action["buttons"].([]any)[0].(map[string]any)
	reply := first["reply"].(map[string]any)
	assert.Len(t, reply["title"], 20)
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 20))

	got := truncate(strings.Repeat("💉", 25), 20)
	assert.Equal(t, 20, utf8.RuneCountInString(got))
	assert.True(t, utf8.ValidString(got))
}

func TestSendListCapsRows(t *testing.T) {
	var captured map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.out"}]}`))
	})

	rows := make([]ListRow, 12)
	for i := range rows {
		rows[i] = ListRow{ID: "r", Title: "row"}
	}
	res := c.SendList(context.Background(), "919876543210", "slots", "Choose", []ListSection{{Title: "Morning", Rows: rows}})
	require.True(t, res.Success)

	interactive := captured["interactive"].(map[string]any)
	action := interactive["action"].(map[string]any)
	sections := action["sections"].([]any)
	first := sections[0].(map[string]any)
	assert.Len(t, first["rows"], 10)
}

func TestSendTemplateIncludesParams(t *testing.T) {
	var captured map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.out"}]}`))
	})

	res := c.SendTemplate(context.Background(), "919876543210", "appointment_reminder_24h", []TemplateParam{
		{Type: "text", Text: "Priya"},
	})
	require.True(t, res.Success)

	template := captured["template"].(map[string]any)
	assert.Equal(t, "appointment_reminder_24h", template["name"])
	lang := template["language"].(map[string]any)
	assert.Equal(t, "en", lang["code"])
	components := template["components"].([]any)
	require.Len(t, components, 1)
}

func TestMarkRead(t *testing.T) {
	var captured map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write([]byte(`{"success":true}`))
	})

	res := c.MarkRead(context.Background(), "wamid.in")
	assert.True(t, res.Success)
	assert.Equal(t, "read", captured["status"])
	assert.Equal(t, "wamid.in", captured["message_id"])
}

func TestPostNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c, err := New(Config{BaseURL: srv.URL, AccessToken: "tok", PhoneID: "1"})
	require.NoError(t, err)
	srv.Close()

	res := c.SendText(context.Background(), "919876543210", "hello")
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
}
