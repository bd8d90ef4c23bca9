package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"bizassist/internal/tenantauth"
	"bizassist/pkg/ai"
	"bizassist/pkg/domain"

	"golang.org/x/oauth2"
)

// supportedIntegrations lists vendors a tenant can connect.
var supportedIntegrations = []string{domain.ProviderGoogleAIStudio}

type IntegrationStatus struct {
	Provider    string     `json:"provider"`
	Connected   bool       `json:"connected"`
	Method      string     `json:"method,omitempty"`
	Scopes      []string   `json:"scopes,omitempty"`
	TokenExpiry *time.Time `json:"tokenExpiry,omitempty"`
	ConnectedBy string     `json:"connectedBy,omitempty"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
	OAuthReady  bool       `json:"oauthAvailable"`
}

var errSealerNotConfigured = &ConfigurationError{
	Setting: "security.sealingKey",
	Message: "credential sealing key is not set",
	Hint:    "Set INTEGRATION_SEALING_KEY to a base64-encoded 32-byte key.",
	SetupInstructions: []string{
		"Generate a key with: openssl rand -base64 32",
		"Set INTEGRATION_SEALING_KEY for the API service and restart it.",
	},
}

var errOAuthNotConfigured = &ConfigurationError{
	Setting: "oauth.google",
	Message: "Google sign-in for AI Studio is not configured",
	Hint:    "Set GOOGLE_OAUTH_CLIENT_ID, GOOGLE_OAUTH_CLIENT_SECRET and GOOGLE_OAUTH_REDIRECT_URL.",
	SetupInstructions: []string{
		"Create an OAuth client (web application) in Google Cloud Console.",
		"Add the API callback URL /api/ai/google-ai-studio/oauth/callback as an authorized redirect URI.",
		"Set the client id, secret and redirect URL for the API service and restart it.",
	},
}

func (a *App) ListIntegrations(ctx context.Context, id domain.Identity) ([]IntegrationStatus, error) {
	items, err := a.store.ListIntegrations(ctx, id.TenantID)
	if err != nil {
		return nil, fmt.Errorf("list integrations: %w", err)
	}
	byProvider := make(map[string]domain.Integration, len(items))
	for _, in := range items {
		byProvider[in.Provider] = in
	}
	out := make([]IntegrationStatus, 0, len(supportedIntegrations))
	for _, provider := range supportedIntegrations {
		in, ok := byProvider[provider]
		out = append(out, a.integrationStatus(provider, in, ok))
	}
	return out, nil
}

func (a *App) GetIntegration(ctx context.Context, id domain.Identity, provider string) (IntegrationStatus, error) {
	if err := checkProvider(provider); err != nil {
		return IntegrationStatus{}, err
	}
	in, ok, err := a.store.GetIntegration(ctx, id.TenantID, provider)
	if err != nil {
		return IntegrationStatus{}, fmt.Errorf("load integration: %w", err)
	}
	return a.integrationStatus(provider, in, ok), nil
}

func (a *App) integrationStatus(provider string, in domain.Integration, ok bool) IntegrationStatus {
	st := IntegrationStatus{Provider: provider, OAuthReady: a.oauth != nil && a.state != nil}
	if !ok {
		return st
	}
	updated := in.UpdatedAt
	st.Connected = true
	st.Method = string(in.Method)
	st.Scopes = in.Scopes
	st.TokenExpiry = in.TokenExpiry
	st.ConnectedBy = in.ConnectedBy
	st.UpdatedAt = &updated
	return st
}

func checkProvider(provider string) error {
	for _, p := range supportedIntegrations {
		if p == provider {
			return nil
		}
	}
	return invalid("provider", "unsupported integration "+provider)
}

// ConnectAPIKey stores a sealed vendor API key for the tenant.
func (a *App) ConnectAPIKey(ctx context.Context, id domain.Identity, provider, apiKey string) (IntegrationStatus, error) {
	if err := checkProvider(provider); err != nil {
		return IntegrationStatus{}, err
	}
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return IntegrationStatus{}, invalid("apiKey", "apiKey is required")
	}
	if a.sealer == nil {
		return IntegrationStatus{}, errSealerNotConfigured
	}
	sealed, err := a.sealer.Seal(id.TenantID, apiKey)
	if err != nil {
		return IntegrationStatus{}, err
	}
	saved, err := a.store.SaveIntegration(ctx, domain.Integration{
		TenantID:     id.TenantID,
		Provider:     provider,
		Method:       domain.IntegrationAPIKey,
		SealedSecret: sealed,
		ConnectedBy:  id.UserID,
	})
	if err != nil {
		return IntegrationStatus{}, fmt.Errorf("save integration: %w", err)
	}
	return a.integrationStatus(provider, saved, true), nil
}

func (a *App) DisconnectIntegration(ctx context.Context, id domain.Identity, provider string) error {
	if err := checkProvider(provider); err != nil {
		return err
	}
	if err := a.store.DeleteIntegration(ctx, id.TenantID, provider); err != nil {
		return fmt.Errorf("delete integration: %w", err)
	}
	return nil
}

// AuthorizationURL starts the Google AI Studio OAuth flow for the caller.
func (a *App) AuthorizationURL(_ context.Context, id domain.Identity) (string, error) {
	if a.oauth == nil || a.state == nil {
		return "", errOAuthNotConfigured
	}
	state, err := a.state.Sign(tenantauth.State{TenantID: id.TenantID, UserID: id.UserID, Provider: domain.ProviderGoogleAIStudio})
	if err != nil {
		return "", fmt.Errorf("sign oauth state: %w", err)
	}
	return a.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// CompleteOAuth exchanges code for tokens and stores them sealed. The
// tenant is taken from the signed state, not from a session.
func (a *App) CompleteOAuth(ctx context.Context, code, rawState string) (IntegrationStatus, error) {
	if a.oauth == nil || a.state == nil {
		return IntegrationStatus{}, errOAuthNotConfigured
	}
	if a.sealer == nil {
		return IntegrationStatus{}, errSealerNotConfigured
	}
	st, err := a.state.Verify(rawState)
	if err != nil {
		return IntegrationStatus{}, &AuthError{Code: "invalid_state", Message: "the sign-in link expired or was tampered with, start again"}
	}
	if strings.TrimSpace(code) == "" {
		return IntegrationStatus{}, invalid("code", "authorization code is required")
	}
	token, err := a.oauth.Exchange(ctx, code)
	if err != nil {
		return IntegrationStatus{}, &ai.ProviderError{Service: ai.ServiceGoogleAIStudio, Status: http.StatusBadGateway, Message: "token exchange failed", Err: err}
	}
	saved, err := a.saveOAuthToken(ctx, domain.Integration{
		TenantID:    st.TenantID,
		Provider:    domain.ProviderGoogleAIStudio,
		Method:      domain.IntegrationOAuth,
		Scopes:      a.oauth.Scopes,
		ConnectedBy: st.UserID,
	}, token)
	if err != nil {
		return IntegrationStatus{}, err
	}
	return a.integrationStatus(saved.Provider, saved, true), nil
}

func (a *App) saveOAuthToken(ctx context.Context, in domain.Integration, token *oauth2.Token) (domain.Integration, error) {
	access, err := a.sealer.Seal(in.TenantID, token.AccessToken)
	if err != nil {
		return domain.Integration{}, err
	}
	in.SealedSecret = access
	if token.RefreshToken != "" {
		refresh, err := a.sealer.Seal(in.TenantID, token.RefreshToken)
		if err != nil {
			return domain.Integration{}, err
		}
		in.SealedRefresh = refresh
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry.UTC()
		in.TokenExpiry = &expiry
	} else {
		in.TokenExpiry = nil
	}
	saved, err := a.store.SaveIntegration(ctx, in)
	if err != nil {
		return domain.Integration{}, fmt.Errorf("save integration: %w", err)
	}
	return saved, nil
}

// googleImages builds an image client from the tenant's connection. OAuth
// tokens are refreshed when expired and the rotated token is stored again.
func (a *App) googleImages(ctx context.Context, tenantID string) (ai.ImageGenerator, bool, error) {
	in, ok, err := a.store.GetIntegration(ctx, tenantID, domain.ProviderGoogleAIStudio)
	if err != nil {
		return nil, false, fmt.Errorf("load integration: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	if a.sealer == nil {
		return nil, false, errSealerNotConfigured
	}
	opts := []ai.GoogleImagesOption{ai.WithGoogleBaseURL(a.googleBase)}
	switch in.Method {
	case domain.IntegrationAPIKey:
		key, err := a.sealer.Open(tenantID, in.SealedSecret)
		if err != nil {
			return nil, false, fmt.Errorf("open api key: %w", err)
		}
		gen, err := ai.NewGoogleImagesWithKey(key, a.googleModel, opts...)
		if err != nil {
			return nil, false, err
		}
		return gen, true, nil
	case domain.IntegrationOAuth:
		if a.oauth == nil {
			return nil, false, errOAuthNotConfigured
		}
		token, err := a.freshToken(ctx, in)
		if err != nil {
			return nil, false, err
		}
		client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
		return ai.NewGoogleImagesWithClient(client, a.googleModel, opts...), true, nil
	default:
		return nil, false, fmt.Errorf("unknown integration method %q", in.Method)
	}
}

func (a *App) freshToken(ctx context.Context, in domain.Integration) (*oauth2.Token, error) {
	access, err := a.sealer.Open(in.TenantID, in.SealedSecret)
	if err != nil {
		return nil, fmt.Errorf("open access token: %w", err)
	}
	refresh, err := a.sealer.Open(in.TenantID, in.SealedRefresh)
	if err != nil {
		return nil, fmt.Errorf("open refresh token: %w", err)
	}
	current := &oauth2.Token{AccessToken: access, RefreshToken: refresh, TokenType: "Bearer"}
	if in.TokenExpiry != nil {
		current.Expiry = *in.TokenExpiry
	}
	token, err := a.oauth.TokenSource(ctx, current).Token()
	if err != nil {
		return nil, &ai.ProviderError{Service: ai.ServiceGoogleAIStudio, Status: http.StatusUnauthorized, Message: "token refresh failed, reconnect Google AI Studio", Err: err}
	}
	if token.AccessToken != current.AccessToken {
		if token.RefreshToken == "" {
			token.RefreshToken = refresh
		}
		if _, err := a.saveOAuthToken(ctx, in, token); err != nil {
			return nil, err
		}
	}
	return token, nil
}
