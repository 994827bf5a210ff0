package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/consultation-reminders/internal/http/handlers"
	"github.com/wolfman30/consultation-reminders/internal/lifecycle"
	"github.com/wolfman30/consultation-reminders/pkg/logging"
)

const testSecret = "router-secret"

type noopTransitions struct {
	confirmed int
}

func (n *noopTransitions) Confirm(context.Context, uuid.UUID) error {
	n.confirmed++
	return nil
}
func (n *noopTransitions) Reschedule(context.Context, lifecycle.RescheduleRequest) error { return nil }
func (n *noopTransitions) Cancel(context.Context, uuid.UUID) error                       { return nil }

func newTestRouter(t *testing.T, health func(context.Context) error) (http.Handler, *noopTransitions) {
	t.Helper()
	tr := &noopTransitions{}
	reg := prometheus.NewRegistry()
	return New(&Config{
		Logger:             logging.Default(),
		Appointments:       handlers.NewAppointmentsHandler(handlers.AppointmentsConfig{Transitions: tr}),
		HealthCheck:        health,
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		InternalAuthSecret: testSecret,
		OTPRatePerMinute:   1,
	}), tr
}

func bearer(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "booking",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + signed
}

func TestRouterHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestRouterHealthDegraded(t *testing.T) {
	router, _ := newTestRouter(t, func(context.Context) error { return errors.New("db down") })

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d, got %d", http.StatusServiceUnavailable, rr.Code)
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
}

func TestRouterInternalRoutesRequireToken(t *testing.T) {
	router, tr := newTestRouter(t, nil)
	path := "/internal/appointments/" + uuid.NewString() + "/confirm"

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, path, nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rr.Code)
	}

	req := httptest.NewRequest(http.MethodPost, path, nil)
	req.Header.Set("Authorization", bearer(t))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d body=%s", http.StatusAccepted, rr.Code, rr.Body.String())
	}
	if tr.confirmed != 1 {
		t.Fatalf("expected one confirm, got %d", tr.confirmed)
	}
}

func TestRouterOTPIsRateLimitedPerAppointment(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	path := "/internal/appointments/" + uuid.NewString() + "/otp"

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.Header.Set("Authorization", bearer(t))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	// OTP is not configured, so the first request reaches the handler and 404s.
	if codes[0] != http.StatusNotFound {
		t.Fatalf("expected first request to reach handler, got %d", codes[0])
	}
	if codes[1] != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be limited, got %d", codes[1])
	}
}
