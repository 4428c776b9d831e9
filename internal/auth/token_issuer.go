package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultSessionTTL = 12 * time.Hour
	// DefaultIssuer names the QuickHelp session issuer.
	DefaultIssuer = "quickhelp-session"
	// DefaultAudience names the QuickHelp content core as token audience.
	DefaultAudience = "quickhelp-core"
)

var (
	ErrMissingSigningSecret = errors.New("session tokens: signing secret required")
	ErrMissingIssuer        = errors.New("session tokens: issuer required")
	ErrMissingAudience      = errors.New("session tokens: audience required")
	ErrMissingUserID        = errors.New("session tokens: user id required")
	ErrInvalidSessionToken  = errors.New("session tokens: invalid token")
	ErrExpiredSessionToken  = errors.New("session tokens: token expired")
	ErrMissingSessionToken  = errors.New("session tokens: token required")
)

// SessionClaims is the payload carried by a QuickHelp session token.
type SessionClaims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// SessionTokenConfig configures session token issuance and validation.
type SessionTokenConfig struct {
	SigningSecret []byte
	Issuer        string
	Audience      string
	TTL           time.Duration
	Clock         func() time.Time
}

// SessionTokens issues and validates the opaque token stored alongside the
// session identity snapshot.
type SessionTokens struct {
	signingSecret []byte
	issuer        string
	audience      string
	ttl           time.Duration
	clock         func() time.Time
}

// NewSessionTokens validates the configuration and applies defaults.
func NewSessionTokens(cfg SessionTokenConfig) (*SessionTokens, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingSigningSecret
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, ErrMissingIssuer
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		return nil, ErrMissingAudience
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &SessionTokens{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        issuer,
		audience:      audience,
		ttl:           ttl,
		clock:         clock,
	}, nil
}

// Issue signs a token for the given identity and returns it with its expiry.
func (s *SessionTokens) Issue(userID, username, role string) (string, time.Time, error) {
	trimmedUserID := strings.TrimSpace(userID)
	if trimmedUserID == "" {
		return "", time.Time{}, ErrMissingUserID
	}

	now := s.clock().UTC()
	expiresAt := now.Add(s.ttl)
	claims := SessionClaims{
		UserID:   trimmedUserID,
		Username: strings.TrimSpace(username),
		Role:     strings.TrimSpace(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   trimmedUserID,
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.signingSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}
