package tenantauth

import (
	"errors"
	"strings"
	"time"

	"bizassist/internal/util"

	jwt "github.com/golang-jwt/jwt/v5"
)

const stateAudience = "oauth-state"

var ErrInvalidState = errors.New("invalid oauth state")

// State binds an OAuth round trip to the tenant and user who started it.
type State struct {
	TenantID string
	UserID   string
	Provider string
}

type stateClaims struct {
	TenantID string `json:"tid"`
	Provider string `json:"prv"`
	jwt.RegisteredClaims
}

// StateSigner issues and checks short-lived HS256 state values.
type StateSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewStateSigner requires a secret of at least 32 bytes.
func NewStateSigner(secret string, ttl time.Duration) (*StateSigner, error) {
	if len(secret) < 32 {
		return nil, errors.New("oauth state secret must be at least 32 bytes")
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &StateSigner{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Sign returns an opaque state string.
func (s *StateSigner) Sign(st State) (string, error) {
	now := s.now()
	claims := stateClaims{
		TenantID: st.TenantID,
		Provider: st.Provider,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        util.NewID(),
			Subject:   st.UserID,
			Audience:  jwt.ClaimStrings{stateAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify checks signature and expiry and returns the bound state.
func (s *StateSigner) Verify(raw string) (State, error) {
	var claims stateClaims
	token, err := jwt.ParseWithClaims(strings.TrimSpace(raw), &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(stateAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return State{}, ErrInvalidState
	}
	if claims.TenantID == "" || claims.Subject == "" {
		return State{}, ErrInvalidState
	}
	return State{TenantID: claims.TenantID, UserID: claims.Subject, Provider: claims.Provider}, nil
}
