package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/arogya-clinic/whatsapp-assistant/internal/scheduler"
	"github.com/arogya-clinic/whatsapp-assistant/pkg/logging"
)

// CronHandler exposes the scheduled-message processor to an external cron.
type CronHandler struct {
	processor *scheduler.Processor
	secret    string
	logger    *logging.Logger
}

// NewCronHandler creates the cron handler. An empty secret closes the
// endpoint entirely.
func NewCronHandler(processor *scheduler.Processor, secret string, logger *logging.Logger) *CronHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &CronHandler{
		processor: processor,
		secret:    secret,
		logger:    logger,
	}
}

// ProcessScheduled handles POST /cron/process-scheduled.
func (h *CronHandler) ProcessScheduled(w http.ResponseWriter, r *http.Request) {
	if h.secret == "" {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	provided := r.Header.Get("X-Cron-Secret")
	if subtle.ConstantTimeCompare([]byte(provided), []byte(h.secret)) != 1 {
		h.logger.Warn("cron request with bad secret", "remote", r.RemoteAddr)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	result, err := h.processor.ProcessDue(r.Context())
	if err != nil {
		h.logger.Error("scheduled processing failed", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(result)
}
