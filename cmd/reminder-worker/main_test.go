package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/consultation-reminders/internal/observability/metrics"
)

func TestOpsRouterHealth(t *testing.T) {
	reg := prometheus.NewRegistry()

	rec := httptest.NewRecorder()
	opsRouter(reg, func(context.Context) error { return nil }).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	opsRouter(reg, func(context.Context) error { return errors.New("down") }).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestOpsRouterMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewReminderMetrics(reg)
	m.ObserveOutbox("appointment.confirmed.v1", "delivered")
	m.ObserveTick((250 * time.Millisecond).Seconds())

	rec := httptest.NewRecorder()
	opsRouter(reg, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "consultations_"))
}
