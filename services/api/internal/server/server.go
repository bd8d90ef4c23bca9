package server

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"

	"bizassist/internal/metrics"
	"bizassist/internal/ratelimit"
	"bizassist/internal/security"
	"bizassist/internal/util"
	"bizassist/pkg/domain"
	"bizassist/services/api/internal/app"
)

// TokenVerifier resolves a bearer token to the calling identity.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (domain.Identity, error)
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App      *app.App
	Verifier TokenVerifier
	// AILimiter throttles POST /api/ai/* per tenant. Nil disables throttling.
	AILimiter      ratelimit.Limiter
	TrustedProxies *util.TrustedProxies
	AllowedOrigins []string
	// TelephonyAuthToken enables X-Twilio-Signature checks on the call webhook.
	TelephonyAuthToken string
	// PublicBaseURL is the externally visible scheme and host, used to rebuild
	// the signed webhook URL behind proxies.
	PublicBaseURL string
	// OAuthReturnURL is where the browser lands after the OAuth callback.
	OAuthReturnURL string
	// Alerter escalates repeated security failures. Nil disables alerting.
	Alerter *security.AuditAlerter
}

// Server exposes the business assistant HTTP API.
type Server struct {
	app            *app.App
	verifier       TokenVerifier
	aiLimiter      ratelimit.Limiter
	trusted        *util.TrustedProxies
	allowedOrigins []string
	telephonyToken string
	publicBaseURL  string
	oauthReturnURL string
	alerter        *security.AuditAlerter
	mux            *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:            cfg.App,
		verifier:       cfg.Verifier,
		aiLimiter:      cfg.AILimiter,
		trusted:        cfg.TrustedProxies,
		allowedOrigins: cfg.AllowedOrigins,
		telephonyToken: strings.TrimSpace(cfg.TelephonyAuthToken),
		publicBaseURL:  strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/"),
		oauthReturnURL: strings.TrimSpace(cfg.OAuthReturnURL),
		alerter:        cfg.Alerter,
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("api", util.WithSecurityHeaders(util.WithCORS(s.allowedOrigins)(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.Handle("/metrics", metrics.Handler())

	// ai
	s.mux.Handle("/api/ai/chat", s.authenticated(domain.ModuleAI, s.handleChat))
	s.mux.Handle("/api/ai/insights", s.authenticated(domain.ModuleAI, s.handleInsights))
	s.mux.Handle("/api/ai/generate-image", s.authenticated(domain.ModuleAI, s.handleGenerateImage))
	s.mux.Handle("/api/ai/speech-to-text", s.authenticated(domain.ModuleAI, s.handleSpeechToText))
	s.mux.Handle("/api/ai/text-to-speech", s.authenticated(domain.ModuleAI, s.handleTextToSpeech))
	s.mux.Handle("/api/ai/image-to-text", s.authenticated(domain.ModuleAI, s.handleImageToText))
	s.mux.Handle("/api/ai/image-to-image", s.authenticated(domain.ModuleAI, s.handleImageToImage))
	s.mux.Handle("/api/ai/usage", s.authenticated(domain.ModuleAI, s.handleUsage))

	// integrations
	s.mux.Handle("/api/ai/integrations", s.authenticated(domain.ModuleAI, s.handleIntegrations))
	s.mux.Handle("/api/ai/integrations/", s.authenticated(domain.ModuleAI, s.handleIntegrationByProvider))
	s.mux.Handle("/api/ai/google-ai-studio/oauth/start", s.authenticated(domain.ModuleAI, s.handleOAuthStart))
	s.mux.HandleFunc("/api/ai/google-ai-studio/oauth/callback", s.handleOAuthCallback)

	// calls
	s.mux.HandleFunc("/api/calls/webhook", s.handleCallWebhook)
	s.mux.Handle("/api/calls", s.authenticated(domain.ModuleCalls, s.handleCalls))
	s.mux.Handle("/api/calls/faqs", s.authenticated(domain.ModuleCalls, s.handleFAQs))
	s.mux.Handle("/api/calls/", s.authenticated(domain.ModuleCalls, s.handleCallByID))

	// websites
	s.mux.Handle("/api/websites", s.authenticated(domain.ModuleWebsites, s.handleWebsites))
	s.mux.Handle("/api/websites/", s.authenticated(domain.ModuleWebsites, s.handleWebsiteByID))
	s.mux.HandleFunc(util.PublicSitePrefix, s.handlePublicSite)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type identityHandler func(http.ResponseWriter, *http.Request, domain.Identity)

// authenticated resolves the bearer token and checks that the tenant is
// licensed for module before calling next.
func (s *Server) authenticated(module string, next identityHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.verifier == nil {
			writeError(w, http.StatusInternalServerError, "token verifier not configured")
			return
		}
		token, ok := bearerToken(r)
		if !ok {
			s.audit(r, "api.authorize", "fail", "reason", "missing_token")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		id, err := s.verifier.Verify(r.Context(), token)
		if err != nil {
			s.audit(r, "api.authorize", "fail", "reason", "invalid_token", "err", err)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		util.SetRequestTenant(r.Context(), id.TenantID)
		if !id.HasModule(module) {
			s.audit(r, "api.license", "fail", "tenant_id", id.TenantID, "user_id", id.UserID, "module", module)
			writeAppError(w, r, app.LicenseRequired(module))
			return
		}
		s.audit(r, "api.authorize", "success", "tenant_id", id.TenantID, "user_id", id.UserID)
		next(w, r, id)
	})
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	ip := util.ClientIP(r, s.trusted)
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", ip,
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)

	result, err := s.alerter.Observe(r.Context(), event, outcome, ip)
	if err != nil {
		logger.Warn("security alert evaluation failed", "event", event, "err", err)
		return
	}
	if result.Triggered {
		logger.Error("security_alert",
			"event", event,
			"outcome", outcome,
			"ip", ip,
			"count", result.Count,
			"threshold", result.Threshold,
			"window", result.Window.String(),
		)
	}
}

// allowAI applies the per-tenant quota shared by all AI POST endpoints.
func (s *Server) allowAI(w http.ResponseWriter, r *http.Request, id domain.Identity) bool {
	if s.aiLimiter == nil {
		return true
	}
	decision := s.aiLimiter.Allow(r.Context(), "ai|"+id.TenantID)
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
	if decision.Allowed {
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		return true
	}
	s.audit(r, "api.ai", "rate_limited", "tenant_id", id.TenantID)
	w.Header().Set("X-RateLimit-Remaining", "0")
	w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(decision.RetryAfter.Seconds()))))
	writeError(w, http.StatusTooManyRequests, "rate_limited")
	return false
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
