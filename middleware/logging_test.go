package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLoggerLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	statuses := []int{http.StatusOK, http.StatusNotFound, http.StatusInternalServerError}
	for _, status := range statuses {
		handler := chimw.RequestID(RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		})))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orders", nil))
	}

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)

	fields := entries[1].ContextMap()
	assert.Equal(t, "/orders", fields["path"])
	assert.EqualValues(t, http.StatusNotFound, fields["status"])
	assert.NotEmpty(t, fields["request_id"])
}

func TestTimeout(t *testing.T) {
	waitForDeadline := func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}

	t.Run("handler wrote nothing", func(t *testing.T) {
		rec := httptest.NewRecorder()
		Timeout(20*time.Millisecond)(http.HandlerFunc(waitForDeadline)).
			ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders", nil))
		assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
		assert.Contains(t, rec.Body.String(), `"error":"timeout"`)
	})

	t.Run("response already written", func(t *testing.T) {
		rec := httptest.NewRecorder()
		Timeout(20*time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"ok":true}`))
			waitForDeadline(w, r)
		})).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders", nil))
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, `{"ok":true}`, rec.Body.String())
	})
}
