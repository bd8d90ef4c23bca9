package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"
	"time"

	"bizassist/internal/ratelimit"
	"bizassist/internal/security"
	"bizassist/pkg/ai"
	"bizassist/pkg/domain"
	"bizassist/pkg/store"
	"bizassist/services/api/internal/app"

	"github.com/alicebob/miniredis/v2"
)

type fakeVerifier map[string]domain.Identity

func (f fakeVerifier) Verify(_ context.Context, token string) (domain.Identity, error) {
	id, ok := f[token]
	if !ok {
		return domain.Identity{}, errors.New("unknown token")
	}
	return id, nil
}

var testVerifier = fakeVerifier{
	"full":    {TenantID: "t1", UserID: "u1", Modules: []string{domain.ModuleAI, domain.ModuleCalls, domain.ModuleWebsites}},
	"calls":   {TenantID: "t1", UserID: "u2", Modules: []string{domain.ModuleCalls}},
	"t2-full": {TenantID: "t2", UserID: "u3", Modules: []string{domain.ModuleAI, domain.ModuleCalls, domain.ModuleWebsites}},
}

func newTestServer(t *testing.T, cfg Config) (*httptest.Server, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore()
	mem.PutTenant(domain.Tenant{ID: "t1", Name: "Acme Bakery", Currency: "USD", TelephonyNumber: "+15550001111"})
	mem.PutInvoice(domain.Invoice{TenantID: "t1", Number: "INV-7", Amount: 5000, Status: domain.InvoiceSent, DueDate: time.Now().Add(-72 * time.Hour)})
	core, err := app.New(app.Config{Store: mem})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	cfg.App = core
	if cfg.Verifier == nil {
		cfg.Verifier = testVerifier
	}
	srv := httptest.NewServer(New(cfg).Router())
	t.Cleanup(srv.Close)
	return srv, mem
}

func doJSON(t *testing.T, method, target, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, target, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, target, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestAuthenticatedRoutesRequireTokenAndLicense(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/ai/chat", "", map[string]string{"message": "hi"})
	if resp.StatusCode != http.StatusUnauthorized || body["error"] != "unauthorized" {
		t.Fatalf("missing token: status=%d body=%v", resp.StatusCode, body)
	}
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/ai/chat", "forged", map[string]string{"message": "hi"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unknown token expected 401, got %d", resp.StatusCode)
	}

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/ai/chat", "calls", map[string]string{"message": "hi"})
	if resp.StatusCode != http.StatusForbidden || body["error"] != "license_required" {
		t.Fatalf("unlicensed: status=%d body=%v", resp.StatusCode, body)
	}
	license, _ := body["license"].(map[string]any)
	if license["module"] != domain.ModuleAI {
		t.Fatalf("expected license payload for ai module, got %v", body["license"])
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestChatEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/ai/chat", "full", map[string]string{"message": "what needs attention"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chat status=%d body=%v", resp.StatusCode, body)
	}
	if body["service"] != string(ai.ServiceRuleBased) || !strings.Contains(body["message"].(string), "INV-7") {
		t.Fatalf("unexpected chat body %v", body)
	}

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/ai/chat", "full", map[string]string{"moduleHint": "crm"})
	if resp.StatusCode != http.StatusBadRequest || body["error"] != "validation_failed" {
		t.Fatalf("missing message: status=%d body=%v", resp.StatusCode, body)
	}
	details, _ := body["details"].([]any)
	if len(details) != 1 || details[0].(map[string]any)["field"] != "message" {
		t.Fatalf("unexpected details %v", body["details"])
	}

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/ai/chat", "full", map[string]string{"message": "hi", "moduleHint": "astrology"})
	if resp.StatusCode != http.StatusBadRequest || body["error"] != "validation_failed" {
		t.Fatalf("bad hint: status=%d body=%v", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/ai/chat", "full", nil)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET chat expected 405, got %d", resp.StatusCode)
	}
}

func TestAIRateLimitPerTenant(t *testing.T) {
	srv, _ := newTestServer(t, Config{AILimiter: ratelimit.NewMemoryLimiter(1, time.Minute)})

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/ai/chat", "full", map[string]string{"message": "hello"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first request expected 200, got %d", resp.StatusCode)
	}
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/ai/chat", "full", map[string]string{"message": "hello again"})
	if resp.StatusCode != http.StatusTooManyRequests || body["error"] != "rate_limited" {
		t.Fatalf("second request: status=%d body=%v", resp.StatusCode, body)
	}
	if got := resp.Header.Get("Retry-After"); got != "60" {
		t.Fatalf("Retry-After = %q, want 60", got)
	}
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/ai/chat", "t2-full", map[string]string{"message": "hello"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("other tenant has its own quota, got %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/ai/insights", "full", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET endpoints are not throttled, got %d", resp.StatusCode)
	}
}

func TestConfigurationErrorsCarryHints(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/ai/generate-image", "full", map[string]string{"prompt": "a loaf"})
	if resp.StatusCode != http.StatusServiceUnavailable || body["error"] != "not_configured" {
		t.Fatalf("status=%d body=%v", resp.StatusCode, body)
	}
	if body["hint"] == "" || len(body["setupInstructions"].([]any)) == 0 {
		t.Fatalf("expected hint and setup instructions, got %v", body)
	}

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/ai/speech-to-text", "full", map[string]string{"audioUrl": "https://cdn.test/a.mp3"})
	if resp.StatusCode != http.StatusServiceUnavailable || body["hint"] == nil {
		t.Fatalf("gateway missing: status=%d body=%v", resp.StatusCode, body)
	}
}

func TestWriteAppErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", &app.ValidationError{Field: "x", Message: "bad"}, http.StatusBadRequest, "validation_failed"},
		{"auth", &app.AuthError{Code: "invalid_state"}, http.StatusUnauthorized, "invalid_state"},
		{"license", app.LicenseRequired("calls"), http.StatusForbidden, "license_required"},
		{"not found", &app.NotFoundError{Resource: "call", ID: "c1"}, http.StatusNotFound, "not_found"},
		{"provider", &ai.ProviderError{Service: ai.ServiceOpenAI, Status: 401, Message: "bad key"}, http.StatusBadGateway, "provider_error"},
		{"internal", errors.New("db down"), http.StatusInternalServerError, "internal error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeAppError(rec, httptest.NewRequest(http.MethodGet, "/x", nil), tc.err)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			var body errorBody
			_ = json.NewDecoder(rec.Body).Decode(&body)
			if body.Error != tc.code {
				t.Fatalf("error = %q, want %q", body.Error, tc.code)
			}
			if tc.name == "provider" && !strings.Contains(body.Hint, "credentials") {
				t.Fatalf("expected remediation hint, got %q", body.Hint)
			}
			if tc.name == "internal" && strings.Contains(rec.Body.String(), "db down") {
				t.Fatalf("internal details must not leak")
			}
		})
	}
}

func signForm(token, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	payload := fullURL
	for _, k := range keys {
		payload += k + form.Get(k)
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func postForm(t *testing.T, target string, form url.Values, signature string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if signature != "" {
		req.Header.Set(twilioSignatureHeader, signature)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post form: %v", err)
	}
	return resp
}

func TestCallWebhookSignatureAndMarkup(t *testing.T) {
	const token = "twilio-secret"
	srv, mem := newTestServer(t, Config{TelephonyAuthToken: token, PublicBaseURL: "https://api.bizassist.test"})
	target := srv.URL + "/api/calls/webhook"
	signedURL := "https://api.bizassist.test/api/calls/webhook"

	ringing := url.Values{"CallSid": {"CA100"}, "CallStatus": {"ringing"}, "From": {"+15559990000"}, "To": {"+15550001111"}}
	resp := postForm(t, target, ringing, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("unsigned webhook expected 403, got %d", resp.StatusCode)
	}

	resp = postForm(t, target, ringing, signForm(token, signedURL, ringing))
	markup, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/xml") {
		t.Fatalf("signed webhook: status=%d type=%s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if !strings.Contains(string(markup), "<Gather") || !strings.Contains(string(markup), "Acme Bakery") {
		t.Fatalf("unexpected markup %s", markup)
	}

	tampered := url.Values{"CallSid": {"CA100"}, "CallStatus": {"completed"}, "From": {"+15559990000"}, "To": {"+15550001111"}}
	resp = postForm(t, target, tampered, signForm(token, signedURL, ringing))
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("tampered webhook expected 403, got %d", resp.StatusCode)
	}

	completed := url.Values{"CallSid": {"CA100"}, "CallStatus": {"completed"}, "CallDuration": {"42"}, "To": {"+15550001111"}}
	resp = postForm(t, target, completed, signForm(token, signedURL, completed))
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || body["success"] != true {
		t.Fatalf("completed webhook: status=%d body=%v", resp.StatusCode, body)
	}

	list, _, _ := mem.ListCalls(t.Context(), "t1", 1, 20)
	if len(list) != 1 || list[0].Status != domain.CallCompleted || list[0].DurationSeconds != 42 {
		t.Fatalf("expected one completed call, got %+v", list)
	}
}

func TestRejectedWebhooksFeedSecurityAlerter(t *testing.T) {
	mr := miniredis.RunT(t)
	srv, _ := newTestServer(t, Config{
		TelephonyAuthToken: "twilio-secret",
		Alerter:            security.NewAuditAlerter(mr.Addr(), "", "test:alerts"),
	})
	form := url.Values{"CallSid": {"CA200"}, "CallStatus": {"ringing"}, "To": {"+15550001111"}}
	for i := 0; i < 3; i++ {
		resp := postForm(t, srv.URL+"/api/calls/webhook", form, "bm90LWEtc2lnbmF0dXJl")
		resp.Body.Close()
		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", resp.StatusCode)
		}
	}
	keys := mr.Keys()
	if len(keys) != 1 || !strings.HasPrefix(keys[0], "test:alerts:api.calls.webhook:fail:") {
		t.Fatalf("expected one webhook failure counter, got %v", keys)
	}
	if got, _ := mr.Get(keys[0]); got != "3" {
		t.Fatalf("counter = %q, want 3", got)
	}
}

func TestCallsEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/calls", "calls", map[string]any{"direction": "outbound", "to": "+1555", "status": "completed", "durationSeconds": 30})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create call: status=%d body=%v", resp.StatusCode, body)
	}
	callID, _ := body["id"].(string)

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/calls/"+callID, "calls", nil)
	if resp.StatusCode != http.StatusOK || body["id"] != callID {
		t.Fatalf("get call: status=%d body=%v", resp.StatusCode, body)
	}
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/calls/"+callID, "t2-full", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("foreign tenant expected 404, got %d", resp.StatusCode)
	}
	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/calls?pageSize=500", "calls", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("oversized page: status=%d body=%v", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/calls/faqs", "calls", map[string]any{"question": "Hours?"})
	if resp.StatusCode != http.StatusBadRequest || body["error"] != "validation_failed" {
		t.Fatalf("faq without answer: status=%d body=%v", resp.StatusCode, body)
	}
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/calls/faqs", "calls", map[string]any{"question": "Hours?", "answer": "7 to 5", "keywords": []string{"hours"}})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create faq expected 201, got %d", resp.StatusCode)
	}
	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/calls/faqs", "calls", nil)
	if resp.StatusCode != http.StatusOK || body["count"] != float64(1) {
		t.Fatalf("list faqs: status=%d body=%v", resp.StatusCode, body)
	}
}

func TestWebsitePublishingAndPublicPages(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/websites", "full", map[string]string{"name": "Acme", "subdomain": "acme"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create website: status=%d body=%v", resp.StatusCode, body)
	}
	siteID := body["id"].(string)
	resp, body = doJSON(t, http.MethodPut, srv.URL+"/api/websites/"+siteID+"/pages", "full", map[string]string{"slug": "home", "html": "<h1>Fresh bread</h1><p>Open daily</p>"})
	if resp.StatusCode != http.StatusOK || body["title"] != "Fresh bread" {
		t.Fatalf("put page: status=%d body=%v", resp.StatusCode, body)
	}

	page, err := http.Get(srv.URL + "/sites/acme/home")
	if err != nil {
		t.Fatalf("get public page: %v", err)
	}
	page.Body.Close()
	if page.StatusCode != http.StatusNotFound {
		t.Fatalf("unpublished page expected 404, got %d", page.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/websites/"+siteID+"/publish", "full", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("publish expected 200, got %d", resp.StatusCode)
	}
	page, err = http.Get(srv.URL + "/sites/acme")
	if err != nil {
		t.Fatalf("get public page: %v", err)
	}
	html, _ := io.ReadAll(page.Body)
	page.Body.Close()
	if page.StatusCode != http.StatusOK || !strings.HasPrefix(page.Header.Get("Content-Type"), "text/html") {
		t.Fatalf("public page: status=%d type=%s", page.StatusCode, page.Header.Get("Content-Type"))
	}
	if !strings.Contains(string(html), "<p>Open daily</p>") || !strings.Contains(page.Header.Get("Content-Security-Policy"), "img-src") {
		t.Fatalf("unexpected public page %s", html)
	}
}

func TestOAuthCallbackRedirectsWithOutcome(t *testing.T) {
	srv, _ := newTestServer(t, Config{OAuthReturnURL: "https://app.bizassist.test/settings/integrations"})
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}

	resp, err := client.Get(srv.URL + "/api/ai/google-ai-studio/oauth/callback?error=access_denied")
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	resp.Body.Close()
	loc, _ := url.Parse(resp.Header.Get("Location"))
	if resp.StatusCode != http.StatusFound || loc.Query().Get("status") != "error" || loc.Query().Get("reason") != "access_denied" {
		t.Fatalf("denied consent: status=%d location=%s", resp.StatusCode, loc)
	}

	resp, err = client.Get(srv.URL + "/api/ai/google-ai-studio/oauth/callback?code=abc&state=xyz")
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	resp.Body.Close()
	loc, _ = url.Parse(resp.Header.Get("Location"))
	if loc.Query().Get("reason") != "not_configured" || loc.Query().Get("integration") != domain.ProviderGoogleAIStudio {
		t.Fatalf("unconfigured oauth: location=%s", loc)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	for _, path := range []string{"/healthz", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s expected 200, got %d", path, resp.StatusCode)
		}
	}
}
