package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/arogya-clinic/whatsapp-assistant/internal/bot"
	"github.com/arogya-clinic/whatsapp-assistant/internal/observability/metrics"
	"github.com/arogya-clinic/whatsapp-assistant/internal/whatsapp"
	"github.com/arogya-clinic/whatsapp-assistant/pkg/logging"
)

const maxWebhookBody = 1 << 20 // Meta caps payloads well below 1 MiB

// WebhookHandler receives WhatsApp Cloud API webhook traffic.
type WebhookHandler struct {
	engine      *bot.Engine
	lock        *bot.PhoneLock
	verifyToken string
	metrics     *metrics.BotMetrics
	logger      *logging.Logger
	timeout     time.Duration
}

// NewWebhookHandler creates the webhook handler.
func NewWebhookHandler(engine *bot.Engine, lock *bot.PhoneLock, verifyToken string, m *metrics.BotMetrics, logger *logging.Logger) *WebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{
		engine:      engine,
		lock:        lock,
		verifyToken: verifyToken,
		metrics:     m,
		logger:      logger,
		timeout:     25 * time.Second,
	}
}

// Verify handles GET /webhooks/whatsapp, Meta's subscription handshake.
// It echoes hub.challenge when the verify token matches.
func (h *WebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode != "subscribe" || token == "" || token != h.verifyToken {
		h.logger.Warn("webhook verification rejected", "mode", mode)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(challenge))
}

// Receive handles POST /webhooks/whatsapp. It always answers 200 so Meta
// does not retry; processing failures are logged, not surfaced.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	messages, err := whatsapp.ParseWebhook(body)
	if err != nil {
		h.logger.Error("failed to parse webhook payload", "error", err)
		// Malformed payloads still get a 200; Meta retries on anything else.
		w.WriteHeader(http.StatusOK)
		return
	}

	// Detach from the request context so Meta's client timeout cannot
	// cancel a half-finished conversation turn.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.timeout)
	defer cancel()

	for _, msg := range messages {
		start := time.Now()
		release := h.lock.Acquire(ctx, msg.From)
		h.engine.HandleInbound(ctx, msg)
		release()
		h.metrics.ObserveWebhookLatency(string(msg.Type), time.Since(start).Seconds())
	}

	w.WriteHeader(http.StatusOK)
}
