package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestManagerCounters(t *testing.T) {
	m := NewManager(WithNamespace("test"), WithRegistry(prometheus.NewRegistry()))

	m.EventIngested("stored")
	m.EventIngested("stored")
	m.EventIngested("triggered")
	m.TriggerFired()
	m.DraftGenerated(true)
	m.DraftGenerated(false)
	m.Notification(NotificationCooldown)
	m.ReviewSaved(3)
	m.ReviewSaved(0)
	m.LLMCall("classify", true)

	if got := testutil.ToFloat64(m.eventsIngested.WithLabelValues("stored")); got != 2 {
		t.Fatalf("expected 2 stored events, got %v", got)
	}
	if got := testutil.ToFloat64(m.drafts.WithLabelValues("error")); got != 1 {
		t.Fatalf("expected 1 failed draft, got %v", got)
	}
	if got := testutil.ToFloat64(m.reviewsSaved); got != 3 {
		t.Fatalf("expected 3 saved reviews, got %v", got)
	}
	if got := testutil.ToFloat64(m.notifications.WithLabelValues(NotificationCooldown)); got != 1 {
		t.Fatalf("expected 1 cooldown skip, got %v", got)
	}
}

func TestNilManagerIsSafe(t *testing.T) {
	var m *Manager

	m.EventIngested("stored")
	m.TriggerFired()
	m.DraftGenerated(true)
	m.Notification(NotificationSent)
	m.ReviewSaved(1)
	m.TrackerDiscarded()
	m.VersionConflict()
	m.LLMCall("draft", false)
	m.ObserveHTTP("/healthz", http.MethodGet, http.StatusOK, time.Millisecond)

	if m.Registry() != nil {
		t.Fatalf("expected nil registry")
	}
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := NewManager()
	m.ObserveHTTP("/pending-updates", http.MethodGet, http.StatusOK, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `resume_updater_http_requests_total{code="200",method="GET",route="/pending-updates"} 1`) {
		t.Fatalf("expected http counter in output:\n%s", rec.Body.String())
	}
}
