package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHandlerExposesCollectors(t *testing.T) {
	SideEffectsDropped.Inc()
	ProviderAttempts.WithLabelValues("groq", "error").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, name := range []string{"bizassist_side_effects_dropped_total", "bizassist_provider_attempts_total"} {
		if !strings.Contains(body, name) {
			t.Fatalf("expected %s in output", name)
		}
	}
}

func TestWebhookEventsByStatus(t *testing.T) {
	before := testutil.ToFloat64(WebhookEvents.WithLabelValues("COMPLETED"))
	WebhookEvents.WithLabelValues("COMPLETED").Inc()
	if got := testutil.ToFloat64(WebhookEvents.WithLabelValues("COMPLETED")); got != before+1 {
		t.Fatalf("counter = %v, want %v", got, before+1)
	}
}
