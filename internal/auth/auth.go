// Package auth keeps the login session of the desktop client. The token is
// persisted through a TokenStore and read back on every use, so a logout in
// one process is seen by the next call in another.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kalambet/cvdesk/internal/cvapi"
	"github.com/kalambet/cvdesk/internal/storage"
)

// AccessToken is the token type the session is stored under.
const AccessToken = "access_token"

// DefaultTTL is assumed for tokens that carry no usable exp claim.
const DefaultTTL = 24 * time.Hour

// TokenStore persists tokens by type. GetToken returns storage.ErrNotFound
// when no active, unexpired token exists.
type TokenStore interface {
	SaveToken(typ, value string, expiresAt time.Time) error
	GetToken(typ string) (string, error)
	ClearTokens() error
	HasActiveToken(typ string) (bool, error)
}

// API is the part of the CV service used for authentication.
type API interface {
	Login(ctx context.Context, username, password string) (cvapi.LoginResult, error)
	Register(ctx context.Context, req cvapi.RegisterRequest) (cvapi.Message, error)
}

// Session is the current login. The zero Session means logged out.
type Session struct {
	Token     string
	Username  string
	ExpiresAt time.Time
}

func (s Session) LoggedIn() bool { return s.Token != "" }

type Option func(*Manager)

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

type Manager struct {
	api    API
	store  TokenStore
	logger *slog.Logger
	now    func() time.Time
}

func NewManager(api API, store TokenStore, opts ...Option) *Manager {
	m := &Manager{
		api:    api,
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Login authenticates and stores the returned token, replacing any previous
// session.
func (m *Manager) Login(ctx context.Context, username, password string) (Session, error) {
	res, err := m.api.Login(ctx, username, password)
	if err != nil {
		return Session{}, err
	}

	sess := m.describe(res.Token, m.now().Add(DefaultTTL))
	if sess.Username == "" {
		sess.Username = username
	}
	if err := m.store.SaveToken(AccessToken, res.Token, sess.ExpiresAt); err != nil {
		return Session{}, fmt.Errorf("saving token: %w", err)
	}
	m.logger.Info("logged in", "user", sess.Username, "expires", sess.ExpiresAt.Format(time.RFC3339))
	return sess, nil
}

// Logout forgets every stored token.
func (m *Manager) Logout() error {
	if err := m.store.ClearTokens(); err != nil {
		return fmt.Errorf("clearing tokens: %w", err)
	}
	return nil
}

// Session reads the stored session. A missing or expired token yields the
// zero Session and no error.
func (m *Manager) Session() (Session, error) {
	tok, err := m.store.GetToken(AccessToken)
	if errors.Is(err, storage.ErrNotFound) {
		return Session{}, nil
	}
	if err != nil {
		return Session{}, fmt.Errorf("reading token: %w", err)
	}
	return m.describe(tok, time.Time{}), nil
}

// Token returns the current bearer token or "" when logged out. Store
// errors are logged and treated as logged out.
func (m *Manager) Token() string {
	sess, err := m.Session()
	if err != nil {
		m.logger.Warn("token unavailable", "error", err)
		return ""
	}
	return sess.Token
}

func (m *Manager) LoggedIn() (bool, error) {
	return m.store.HasActiveToken(AccessToken)
}

func (m *Manager) Register(ctx context.Context, req cvapi.RegisterRequest) (cvapi.Message, error) {
	return m.api.Register(ctx, req)
}

// describe reads the claims of tok without verifying its signature; the
// client has no key and only needs the expiry and subject for display.
// Tokens without an exp claim get fallback.
func (m *Manager) describe(tok string, fallback time.Time) Session {
	sess := Session{Token: tok, ExpiresAt: fallback}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		m.logger.Debug("token is not a JWT", "error", err)
		return sess
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		sess.ExpiresAt = exp.Time
	}
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		sess.Username = sub
	} else if name, ok := claims["username"].(string); ok {
		sess.Username = name
	}
	return sess
}
