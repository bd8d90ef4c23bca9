package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"bizassist/pkg/domain"
	"bizassist/services/api/internal/app"
)

type chatRequest struct {
	Message    string `json:"message" validate:"required,max=8000"`
	ModuleHint string `json:"moduleHint" validate:"omitempty,max=32"`
}

type imageRequest struct {
	Prompt     string `json:"prompt" validate:"required,max=2000"`
	Style      string `json:"style"`
	Size       string `json:"size"`
	Provider   string `json:"provider" validate:"omitempty,oneof=auto huggingface google-ai-studio openai"`
	SaveAsLogo bool   `json:"saveAsLogo"`
}

type speechToTextRequest struct {
	AudioURL string `json:"audioUrl" validate:"required,url"`
	Language string `json:"language" validate:"omitempty,max=16"`
}

type textToSpeechRequest struct {
	Text  string  `json:"text" validate:"required,max=5000"`
	Voice string  `json:"voice"`
	Speed float64 `json:"speed" validate:"gte=0,lte=4"`
}

type apiKeyRequest struct {
	APIKey string `json:"apiKey" validate:"required"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, id domain.Identity) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowAI(w, r, id) {
		return
	}
	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	out, err := s.app.Chat(r.Context(), id, app.ChatInput{Message: req.Message, ModuleHint: req.ModuleHint})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request, id domain.Identity) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	out, err := s.app.Insights(r.Context(), id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGenerateImage(w http.ResponseWriter, r *http.Request, id domain.Identity) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowAI(w, r, id) {
		return
	}
	var req imageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	out, err := s.app.GenerateImage(r.Context(), id, app.ImageInput{
		Prompt:     req.Prompt,
		Style:      req.Style,
		Size:       req.Size,
		Provider:   req.Provider,
		SaveAsLogo: req.SaveAsLogo,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSpeechToText(w http.ResponseWriter, r *http.Request, id domain.Identity) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowAI(w, r, id) {
		return
	}
	var req speechToTextRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	out, err := s.app.SpeechToText(r.Context(), id, app.SpeechToTextInput{AudioURL: req.AudioURL, Language: req.Language})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTextToSpeech(w http.ResponseWriter, r *http.Request, id domain.Identity) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowAI(w, r, id) {
		return
	}
	var req textToSpeechRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	out, err := s.app.TextToSpeech(r.Context(), id, app.TextToSpeechInput{Text: req.Text, Voice: req.Voice, Speed: req.Speed})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleImageToText(w http.ResponseWriter, r *http.Request, id domain.Identity) {
	s.handlePassthrough(w, r, id, s.app.ImageToText)
}

func (s *Server) handleImageToImage(w http.ResponseWriter, r *http.Request, id domain.Identity) {
	s.handlePassthrough(w, r, id, s.app.ImageToImage)
}

type passthroughFunc func(ctx context.Context, id domain.Identity, payload json.RawMessage) (json.RawMessage, error)

// handlePassthrough relays the raw request body to the gateway and writes the
// vendor-shaped JSON back unchanged.
func (s *Server) handlePassthrough(w http.ResponseWriter, r *http.Request, id domain.Identity, call passthroughFunc) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowAI(w, r, id) {
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	out, err := call(r.Context(), id, json.RawMessage(body))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request, id domain.Identity) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	out, err := s.app.Usage(r.Context(), id, r.URL.Query().Get("month"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleIntegrations(w http.ResponseWriter, r *http.Request, id domain.Identity) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	items, err := s.app.ListIntegrations(r.Context(), id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// handleIntegrationByProvider serves /api/ai/integrations/{provider}.
func (s *Server) handleIntegrationByProvider(w http.ResponseWriter, r *http.Request, id domain.Identity) {
	provider := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/ai/integrations/"), "/")
	if provider == "" || strings.Contains(provider, "/") {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		status, err := s.app.GetIntegration(r.Context(), id, provider)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, status)
	case http.MethodPost, http.MethodPut:
		var req apiKeyRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		status, err := s.app.ConnectAPIKey(r.Context(), id, provider, req.APIKey)
		if err != nil {
			s.audit(r, "api.integration.connect", "fail", "tenant_id", id.TenantID, "provider", provider)
			writeAppError(w, r, err)
			return
		}
		s.audit(r, "api.integration.connect", "success", "tenant_id", id.TenantID, "provider", provider)
		writeJSON(w, http.StatusOK, status)
	case http.MethodDelete:
		if err := s.app.DisconnectIntegration(r.Context(), id, provider); err != nil {
			writeAppError(w, r, err)
			return
		}
		s.audit(r, "api.integration.disconnect", "success", "tenant_id", id.TenantID, "provider", provider)
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleOAuthStart(w http.ResponseWriter, r *http.Request, id domain.Identity) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	authURL, err := s.app.AuthorizationURL(r.Context(), id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"authorizationUrl": authURL})
}

// handleOAuthCallback is authenticated by the signed state parameter. The
// browser is redirected to the configured return URL with the outcome.
func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	if vendorErr := strings.TrimSpace(q.Get("error")); vendorErr != "" {
		s.audit(r, "api.oauth.callback", "fail", "reason", vendorErr)
		s.finishOAuth(w, r, "error", vendorErr)
		return
	}
	status, err := s.app.CompleteOAuth(r.Context(), q.Get("code"), q.Get("state"))
	if err != nil {
		s.audit(r, "api.oauth.callback", "fail", "err", err)
		if s.oauthReturnURL == "" {
			writeAppError(w, r, err)
			return
		}
		s.finishOAuth(w, r, "error", oauthErrorCode(err))
		return
	}
	s.audit(r, "api.oauth.callback", "success", "provider", status.Provider)
	if s.oauthReturnURL == "" {
		writeJSON(w, http.StatusOK, status)
		return
	}
	s.finishOAuth(w, r, "connected", "")
}

func (s *Server) finishOAuth(w http.ResponseWriter, r *http.Request, outcome, reason string) {
	if s.oauthReturnURL == "" {
		writeError(w, http.StatusBadRequest, reason)
		return
	}
	target, err := url.Parse(s.oauthReturnURL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "invalid oauth return url")
		return
	}
	q := target.Query()
	q.Set("integration", domain.ProviderGoogleAIStudio)
	q.Set("status", outcome)
	if reason != "" {
		q.Set("reason", reason)
	}
	target.RawQuery = q.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

func oauthErrorCode(err error) string {
	var aerr *app.AuthError
	if errors.As(err, &aerr) {
		return aerr.Code
	}
	if app.IsConfiguration(err) {
		return "not_configured"
	}
	return "exchange_failed"
}
