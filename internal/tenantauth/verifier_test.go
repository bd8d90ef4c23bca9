package tenantauth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

func TestNewVerifierRequiresJWKSURL(t *testing.T) {
	if _, err := NewVerifier(context.Background(), Config{}); err == nil {
		t.Fatalf("expected missing jwks url to fail")
	}
}

func TestVerifyResolvesIdentityAndRefreshesOnUnknownKid(t *testing.T) {
	key1 := mustKey(t)
	key2 := mustKey(t)

	var active atomic.Value
	active.Store("kid-1")
	var fetches atomic.Int32
	jwksServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fetches.Add(1)
		kid := active.Load().(string)
		pub := key1.PublicKey
		if kid == "kid-2" {
			pub = key2.PublicKey
		}
		w.Header().Set("Cache-Control", "public, max-age=300")
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": []map[string]string{toJWK(kid, pub)}})
	}))
	defer jwksServer.Close()

	v, err := NewVerifier(context.Background(), Config{JWKSURL: jwksServer.URL, Issuer: "issuer-a", Audience: "aud-a"})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	id, err := v.Verify(context.Background(), signToken(t, key1, "kid-1", claimsFor("user-a", "tenant-a", []string{" AI ", "calls"})))
	if err != nil {
		t.Fatalf("verify token1: %v", err)
	}
	if id.UserID != "user-a" || id.TenantID != "tenant-a" || len(id.Modules) != 2 || id.Modules[0] != "ai" {
		t.Fatalf("unexpected identity %+v", id)
	}

	active.Store("kid-2")
	id, err = v.Verify(context.Background(), signToken(t, key2, "kid-2", claimsFor("user-b", "tenant-b", nil)))
	if err != nil {
		t.Fatalf("verify token2 after rotation: %v", err)
	}
	if id.TenantID != "tenant-b" {
		t.Fatalf("unexpected identity %+v", id)
	}
	if fetches.Load() != 2 {
		t.Fatalf("expected exactly one refresh, got %d fetches", fetches.Load())
	}
}

func TestVerifyRejectsInvalidTokens(t *testing.T) {
	key := mustKey(t)
	other := mustKey(t)
	jwksServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": []map[string]string{toJWK("kid-1", key.PublicKey)}})
	}))
	defer jwksServer.Close()

	v, err := NewVerifier(context.Background(), Config{JWKSURL: jwksServer.URL, Issuer: "issuer-a", Audience: "aud-a", Leeway: 5 * time.Second})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	future := claimsFor("user-1", "tenant-1", nil)
	future.IssuedAt = jwt.NewNumericDate(time.Now().Add(2 * time.Minute))

	expired := claimsFor("user-1", "tenant-1", nil)
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	wrongAudience := claimsFor("user-1", "tenant-1", nil)
	wrongAudience.Audience = jwt.ClaimStrings{"other"}

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{"future iat", signToken(t, key, "kid-1", future), nil},
		{"expired", signToken(t, key, "kid-1", expired), nil},
		{"wrong audience", signToken(t, key, "kid-1", wrongAudience), nil},
		{"wrong key", signToken(t, other, "kid-1", claimsFor("user-1", "tenant-1", nil)), nil},
		{"missing tenant", signToken(t, key, "kid-1", claimsFor("user-1", "", nil)), ErrMissingTenant},
		{"missing subject", signToken(t, key, "kid-1", claimsFor("", "tenant-1", nil)), ErrMissingSubject},
		{"garbage", "not-a-jwt", nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tc.token)
			if err == nil {
				t.Fatalf("expected verification to fail")
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestParseCacheMaxAge(t *testing.T) {
	if got := parseCacheMaxAge("public, max-age=60"); got != time.Minute {
		t.Fatalf("got %v", got)
	}
	if got := parseCacheMaxAge("no-store"); got != 0 {
		t.Fatalf("got %v", got)
	}
}

func claimsFor(sub, tenant string, modules []string) Claims {
	now := time.Now()
	return Claims{
		TenantID: tenant,
		Modules:  modules,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Issuer:    "issuer-a",
			Audience:  jwt.ClaimStrings{"aud-a"},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-time.Second)),
		},
	}
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func mustKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func toJWK(kid string, key rsa.PublicKey) map[string]string {
	return map[string]string{
		"kty": "RSA",
		"use": "sig",
		"kid": kid,
		"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}
}
