package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arogya-clinic/whatsapp-assistant/internal/scheduler"
)

func TestProcessScheduledNoSecretConfigured(t *testing.T) {
	h := NewCronHandler(nil, "", nil)
	w := httptest.NewRecorder()

	h.ProcessScheduled(w, httptest.NewRequest(http.MethodPost, "/cron/process-scheduled", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProcessScheduledBadSecret(t *testing.T) {
	h := NewCronHandler(nil, "cron-secret", nil)
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/cron/process-scheduled", nil)
	r.Header.Set("X-Cron-Secret", "wrong")

	h.ProcessScheduled(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProcessScheduledMissingSecretHeader(t *testing.T) {
	h := NewCronHandler(nil, "cron-secret", nil)
	w := httptest.NewRecorder()

	h.ProcessScheduled(w, httptest.NewRequest(http.MethodPost, "/cron/process-scheduled", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProcessScheduledRunsProcessor(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM scheduled_messages").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	processor := scheduler.NewProcessor(scheduler.NewStore(mock), nil, nil, nil, nil, nil)
	h := NewCronHandler(processor, "cron-secret", nil)
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/cron/process-scheduled", nil)
	r.Header.Set("X-Cron-Secret", "cron-secret")

	h.ProcessScheduled(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var result scheduler.Result
	require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
	assert.Equal(t, scheduler.Result{}, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}
