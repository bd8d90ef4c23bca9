package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"bizassist/internal/tenantauth"
	"bizassist/pkg/domain"
	"bizassist/pkg/store"

	"golang.org/x/oauth2"
)

func TestConnectAPIKeySealsSecret(t *testing.T) {
	s := store.NewMemoryStore()
	seal := testSealer(t)
	a := newTestApp(t, Config{Store: s, Sealer: seal})
	ctx := context.Background()

	st, err := a.ConnectAPIKey(ctx, identity("t1"), domain.ProviderGoogleAIStudio, " AIza-secret ")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !st.Connected || st.Method != "api_key" || st.ConnectedBy != "user-t1" {
		t.Fatalf("unexpected status %+v", st)
	}
	stored, _, _ := s.GetIntegration(ctx, "t1", domain.ProviderGoogleAIStudio)
	if stored.SealedSecret == "" || strings.Contains(stored.SealedSecret, "AIza-secret") {
		t.Fatalf("secret stored in clear: %q", stored.SealedSecret)
	}
	if plain, err := seal.Open("t1", stored.SealedSecret); err != nil || plain != "AIza-secret" {
		t.Fatalf("open = %q, %v", plain, err)
	}

	list, err := a.ListIntegrations(ctx, identity("t2"))
	if err != nil || len(list) != 1 || list[0].Connected {
		t.Fatalf("t2 should see a disconnected integration, got %+v err=%v", list, err)
	}
	if err := a.DisconnectIntegration(ctx, identity("t1"), domain.ProviderGoogleAIStudio); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if st, _ := a.GetIntegration(ctx, identity("t1"), domain.ProviderGoogleAIStudio); st.Connected {
		t.Fatalf("expected disconnected after delete")
	}
}

func TestConnectAPIKeyRequiresSealer(t *testing.T) {
	a := newTestApp(t, Config{})
	_, err := a.ConnectAPIKey(context.Background(), identity("t1"), domain.ProviderGoogleAIStudio, "k")
	if !IsConfiguration(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	var verr *ValidationError
	if _, err := a.ConnectAPIKey(context.Background(), identity("t1"), "dropbox", "k"); !errors.As(err, &verr) {
		t.Fatalf("expected validation error for unknown provider, got %v", err)
	}
}

func newOAuthServer(t *testing.T, accessToken string, refreshCalls *int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Form.Get("grant_type") == "refresh_token" {
			*refreshCalls++
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"` + accessToken + `","refresh_token":"refresh-1","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOAuthFlowStoresSealedTokens(t *testing.T) {
	var refreshCalls int
	srv := newOAuthServer(t, "access-1", &refreshCalls)
	signer, _ := tenantauth.NewStateSigner(strings.Repeat("s", 32), time.Minute)
	s := store.NewMemoryStore()
	seal := testSealer(t)
	a := newTestApp(t, Config{
		Store:  s,
		Sealer: seal,
		State:  signer,
		OAuth: &oauth2.Config{
			ClientID:     "client",
			ClientSecret: "secret",
			RedirectURL:  "https://api.test/callback",
			Scopes:       []string{"scope-a"},
			Endpoint:     oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"},
		},
	})
	ctx := context.Background()

	authURL, err := a.AuthorizationURL(ctx, identity("t1"))
	if err != nil {
		t.Fatalf("authorization url: %v", err)
	}
	parsed, _ := url.Parse(authURL)
	state := parsed.Query().Get("state")
	if state == "" || parsed.Query().Get("access_type") != "offline" {
		t.Fatalf("unexpected authorization url %s", authURL)
	}

	st, err := a.CompleteOAuth(ctx, "code-1", state)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !st.Connected || st.Method != "oauth" || st.TokenExpiry == nil {
		t.Fatalf("unexpected status %+v", st)
	}
	stored, _, _ := s.GetIntegration(ctx, "t1", domain.ProviderGoogleAIStudio)
	if access, _ := seal.Open("t1", stored.SealedSecret); access != "access-1" {
		t.Fatalf("access token = %q", access)
	}
	if refresh, _ := seal.Open("t1", stored.SealedRefresh); refresh != "refresh-1" {
		t.Fatalf("refresh token = %q", refresh)
	}

	var authErr *AuthError
	if _, err := a.CompleteOAuth(ctx, "code-1", state+"x"); !errors.As(err, &authErr) || authErr.Code != "invalid_state" {
		t.Fatalf("expected invalid_state, got %v", err)
	}
}

func TestExpiredOAuthTokenIsRefreshedAndResealed(t *testing.T) {
	var refreshCalls int
	srv := newOAuthServer(t, "access-2", &refreshCalls)
	s := store.NewMemoryStore()
	seal := testSealer(t)
	a := newTestApp(t, Config{
		Store:  s,
		Sealer: seal,
		OAuth:  &oauth2.Config{ClientID: "c", ClientSecret: "s", Endpoint: oauth2.Endpoint{TokenURL: srv.URL + "/token"}},
	})
	ctx := context.Background()
	access, _ := seal.Seal("t1", "access-1")
	refresh, _ := seal.Seal("t1", "refresh-1")
	expired := time.Now().Add(-time.Hour)
	_, _ = s.SaveIntegration(ctx, domain.Integration{
		TenantID: "t1", Provider: domain.ProviderGoogleAIStudio, Method: domain.IntegrationOAuth,
		SealedSecret: access, SealedRefresh: refresh, TokenExpiry: &expired,
	})

	gen, ok, err := a.googleImages(ctx, "t1")
	if err != nil || !ok || gen == nil {
		t.Fatalf("google images: ok=%v err=%v", ok, err)
	}
	if refreshCalls != 1 {
		t.Fatalf("expected one refresh, got %d", refreshCalls)
	}
	stored, _, _ := s.GetIntegration(ctx, "t1", domain.ProviderGoogleAIStudio)
	if got, _ := seal.Open("t1", stored.SealedSecret); got != "access-2" {
		t.Fatalf("rotated token not stored, got %q", got)
	}
	if stored.TokenExpiry == nil || !stored.TokenExpiry.After(time.Now()) {
		t.Fatalf("expiry not updated: %v", stored.TokenExpiry)
	}
}

func TestAuthorizationURLRequiresOAuthConfig(t *testing.T) {
	a := newTestApp(t, Config{})
	if _, err := a.AuthorizationURL(context.Background(), identity("t1")); !IsConfiguration(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
