package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.StepAccepted("manual_peak", "awaiting_primary_measure")
	m.StepAccepted("manual_peak", "awaiting_primary_measure")
	m.InputRejected("manual_peak", "awaiting_secondary_measure")
	m.Submitted("manual_peak", "ok", 300*time.Millisecond)
	m.Submitted("manual_peak", "status_error", time.Second)
	m.ReminderDelivered(true)
	m.ReminderDelivered(false)
	m.UserRegistered()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.StepsAccepted.WithLabelValues("manual_peak", "awaiting_primary_measure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InputsRejected.WithLabelValues("manual_peak", "awaiting_secondary_measure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Submissions.WithLabelValues("manual_peak", "status_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reminders.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Registrations))
	assert.Equal(t, 1, testutil.CollectAndCount(m.SubmitDuration))
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.UpdateReceived("document")

	healthy := true
	h := NewHandler(reg, func(context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("redis down")
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `tariffbot_updates_total{kind="document"} 1`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	healthy = false
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
