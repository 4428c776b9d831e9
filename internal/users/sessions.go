package users

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/quickhelp/internal/auth"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/events"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/serviceerr"
	"github.com/MarcoPoloResearchLab/quickhelp/internal/storage"
	"go.uber.org/zap"
)

const (
	opSessionsNew = "users.sessions.new"
	opSignIn      = "users.sign_in"
	opSignOut     = "users.sign_out"
	opRefresh     = "users.refresh_session"
)

var errMissingTokens = errors.New("token manager is required")

// TokenManager issues and validates session tokens.
type TokenManager interface {
	Issue(userID, username, role string) (string, time.Time, error)
	Validate(token string) (auth.SessionClaims, error)
}

// SessionsConfig describes the dependencies of the session identity store.
type SessionsConfig struct {
	Store     storage.Store
	Tokens    TokenManager
	Publisher events.Publisher
	Logger    *zap.Logger
}

type sessionRecord struct {
	User      User      `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Sessions persists the active user's profile snapshot and session token.
type Sessions struct {
	mu        sync.Mutex
	store     storage.Store
	tokens    TokenManager
	publisher events.Publisher
	logger    *zap.Logger
}

// NewSessions constructs the session identity store.
func NewSessions(cfg SessionsConfig) (*Sessions, error) {
	if cfg.Store == nil {
		return nil, serviceerr.New(opSessionsNew, "missing_store", errMissingStore)
	}
	if cfg.Tokens == nil {
		return nil, serviceerr.New(opSessionsNew, "missing_tokens", errMissingTokens)
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = events.Nop{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sessions{store: cfg.Store, tokens: cfg.Tokens, publisher: publisher, logger: logger}, nil
}

// SignIn makes user the active identity and returns the issued token.
func (s *Sessions) SignIn(ctx context.Context, user User) (string, error) {
	if !user.Authenticated() {
		return "", serviceerr.New(opSignIn, "invalid_user_id", ErrInvalidUserID)
	}
	s.mu.Lock()
	token, err := s.write(ctx, user)
	s.mu.Unlock()
	if err != nil {
		serviceerr.Log(s.logger, opSignIn, "session_write_failed", err, zap.String(fieldUserID, user.ID))
		return "", serviceerr.New(opSignIn, "session_write_failed", err)
	}
	s.publisher.Publish(events.Event{Kind: events.KindSession, UserID: user.ID})
	return token, nil
}

// SignOut clears the active identity.
func (s *Sessions) SignOut(ctx context.Context) error {
	s.mu.Lock()
	err := s.store.Delete(ctx, storage.KeySession)
	s.mu.Unlock()
	if err != nil {
		serviceerr.Log(s.logger, opSignOut, "session_delete_failed", err)
		return serviceerr.New(opSignOut, "session_delete_failed", err)
	}
	s.publisher.Publish(events.Event{Kind: events.KindSession})
	return nil
}

// Current returns the active identity. A snapshot whose token no longer
// validates, or names another user, is treated as signed out.
func (s *Sessions) Current(ctx context.Context) (User, bool) {
	record := storage.LoadJSON[sessionRecord](ctx, s.store, storage.KeySession, s.logger)
	if !record.User.Authenticated() {
		return User{}, false
	}
	claims, err := s.tokens.Validate(record.Token)
	if err != nil {
		s.logger.Info("session token rejected", zap.String(fieldUserID, record.User.ID), zap.Error(err))
		return User{}, false
	}
	if claims.UserID != record.User.ID {
		s.logger.Warn("session token subject mismatch", zap.String(fieldUserID, record.User.ID))
		return User{}, false
	}
	return record.User.withDerivedPermissions(), true
}

// Refresh replaces the snapshot when user is the active identity, so profile
// and role changes take effect without a new sign-in. It reports whether the
// session was updated.
func (s *Sessions) Refresh(ctx context.Context, user User) (bool, error) {
	current, ok := s.Current(ctx)
	if !ok || current.ID != user.ID {
		return false, nil
	}
	s.mu.Lock()
	_, err := s.write(ctx, user)
	s.mu.Unlock()
	if err != nil {
		serviceerr.Log(s.logger, opRefresh, "session_write_failed", err, zap.String(fieldUserID, user.ID))
		return false, serviceerr.New(opRefresh, "session_write_failed", err)
	}
	s.publisher.Publish(events.Event{Kind: events.KindSession, UserID: user.ID})
	return true, nil
}

func (s *Sessions) write(ctx context.Context, user User) (string, error) {
	token, expiresAt, err := s.tokens.Issue(user.ID, user.Username, string(user.Role))
	if err != nil {
		return "", err
	}
	record := sessionRecord{User: user.withDerivedPermissions(), Token: token, ExpiresAt: expiresAt}
	if err := storage.SaveJSON(ctx, s.store, storage.KeySession, record); err != nil {
		return "", err
	}
	return token, nil
}
