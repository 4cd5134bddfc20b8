package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newVerifyRequest(mode, token, challenge string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/webhooks/whatsapp", nil)
	q := r.URL.Query()
	q.Set("hub.mode", mode)
	q.Set("hub.verify_token", token)
	q.Set("hub.challenge", challenge)
	r.URL.RawQuery = q.Encode()
	return r
}

func TestVerifyEchoesChallenge(t *testing.T) {
	h := NewWebhookHandler(nil, nil, "secret-token", nil, nil)
	w := httptest.NewRecorder()

	h.Verify(w, newVerifyRequest("subscribe", "secret-token", "12345"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "12345", w.Body.String())
}

func TestVerifyRejectsBadToken(t *testing.T) {
	h := NewWebhookHandler(nil, nil, "secret-token", nil, nil)
	w := httptest.NewRecorder()

	h.Verify(w, newVerifyRequest("subscribe", "wrong", "12345"))

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestVerifyRejectsBadMode(t *testing.T) {
	h := NewWebhookHandler(nil, nil, "secret-token", nil, nil)
	w := httptest.NewRecorder()

	h.Verify(w, newVerifyRequest("unsubscribe", "secret-token", "12345"))

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestVerifyRejectsEmptyToken(t *testing.T) {
	h := NewWebhookHandler(nil, nil, "", nil, nil)
	w := httptest.NewRecorder()

	h.Verify(w, newVerifyRequest("subscribe", "", "12345"))

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestReceiveMalformedPayloadStillAnswers200(t *testing.T) {
	h := NewWebhookHandler(nil, nil, "secret-token", nil, nil)
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader("{not json"))

	h.Receive(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReceiveStatusCallbackAnswers200(t *testing.T) {
	// Delivery status callbacks carry no messages and need no engine work.
	payload := `{"object":"whatsapp_business_account","entry":[{"changes":[{"value":{"statuses":[{"id":"wamid.x","status":"delivered"}]}}]}]}`
	h := NewWebhookHandler(nil, nil, "secret-token", nil, nil)
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(payload))

	h.Receive(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
}
