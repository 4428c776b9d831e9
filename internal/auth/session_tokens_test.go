package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSigningSecret = "quickhelp-secret"

func newTestTokens(t *testing.T, clock func() time.Time) *SessionTokens {
	t.Helper()
	tokens, err := NewSessionTokens(SessionTokenConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        DefaultIssuer,
		Audience:      DefaultAudience,
		TTL:           time.Hour,
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	return tokens
}

func TestSessionTokensRoundTrip(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	tokens := newTestTokens(t, func() time.Time { return now })

	signed, expiresAt, err := tokens.Issue("user-7", "jdoe", "creator")
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}
	if !expiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected expiry %s", expiresAt)
	}

	claims, err := tokens.Validate(signed)
	if err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	if claims.UserID != "user-7" || claims.Username != "jdoe" || claims.Role != "creator" {
		t.Fatalf("unexpected claims %#v", claims)
	}
}

func TestSessionTokensRejectExpiredToken(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	tokens := newTestTokens(t, func() time.Time { return now })
	signed, _, err := tokens.Issue("user-7", "jdoe", "user")
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	now = now.Add(2 * time.Hour)
	if _, err := tokens.Validate(signed); !errors.Is(err, ErrExpiredSessionToken) {
		t.Fatalf("expected ErrExpiredSessionToken, got %v", err)
	}
}

func TestSessionTokensRejectForeignSignature(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	tokens := newTestTokens(t, func() time.Time { return now })

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		UserID: "user-7",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-7",
			Issuer:    DefaultIssuer,
			Audience:  []string{DefaultAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})
	signed, err := foreign.SignedString([]byte("other-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	if _, err := tokens.Validate(signed); !errors.Is(err, ErrInvalidSessionToken) {
		t.Fatalf("expected ErrInvalidSessionToken, got %v", err)
	}
	if _, err := tokens.Validate("  "); !errors.Is(err, ErrMissingSessionToken) {
		t.Fatalf("expected ErrMissingSessionToken, got %v", err)
	}
}

func TestNewSessionTokensValidatesConfig(t *testing.T) {
	tests := []struct {
		name     string
		cfg      SessionTokenConfig
		expected error
	}{
		{name: "missing-secret", cfg: SessionTokenConfig{Issuer: DefaultIssuer, Audience: DefaultAudience}, expected: ErrMissingSigningSecret},
		{name: "missing-issuer", cfg: SessionTokenConfig{SigningSecret: []byte("s"), Audience: DefaultAudience}, expected: ErrMissingIssuer},
		{name: "missing-audience", cfg: SessionTokenConfig{SigningSecret: []byte("s"), Issuer: DefaultIssuer, Audience: " "}, expected: ErrMissingAudience},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSessionTokens(tt.cfg); !errors.Is(err, tt.expected) {
				t.Fatalf("expected %v, got %v", tt.expected, err)
			}
		})
	}
}

func TestIssueRequiresUserID(t *testing.T) {
	tokens := newTestTokens(t, nil)
	if _, _, err := tokens.Issue(" ", "nobody", "user"); !errors.Is(err, ErrMissingUserID) {
		t.Fatalf("expected ErrMissingUserID, got %v", err)
	}
}
