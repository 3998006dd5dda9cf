// Package session keeps the identity provider's tokens in a sealed browser
// cookie and resolves them back into a verified identity.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"pcstyle-auth/internal/config"
	"pcstyle-auth/internal/identity"

	"github.com/rs/zerolog/log"
)

// ErrNoSession means the request carries no usable provider session.
var ErrNoSession = errors.New("no session")

// Data is the cookie payload.
type Data struct {
	AccessToken    string        `json:"at"`
	RefreshToken   string        `json:"rt"`
	User           identity.User `json:"u"`
	LocalSessionID string        `json:"ls,omitempty"`
}

type Store struct {
	sealer *Sealer
	cfg    config.SessionConfig
}

func NewStore(cfg config.SessionConfig) (*Store, error) {
	sealer, err := NewSealer(cfg.CookiePassword)
	if err != nil {
		return nil, err
	}
	return &Store{sealer: sealer, cfg: cfg}, nil
}

// Load reads the session cookie. Missing or tampered cookies yield ErrNoSession.
func (s *Store) Load(r *http.Request) (*Data, error) {
	cookie, err := r.Cookie(s.cfg.CookieName)
	if err != nil || cookie.Value == "" {
		return nil, ErrNoSession
	}
	d, err := s.sealer.Unseal(cookie.Value)
	if err != nil {
		return nil, ErrNoSession
	}
	return &d, nil
}

func (s *Store) Save(w http.ResponseWriter, d Data) error {
	value, err := s.sealer.Seal(d)
	if err != nil {
		return fmt.Errorf("seal session: %w", err)
	}
	http.SetCookie(w, s.cookie(value, int(s.cfg.MaxAge.Seconds())))
	return nil
}

func (s *Store) Clear(w http.ResponseWriter) {
	http.SetCookie(w, s.cookie("", -1))
}

func (s *Store) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    value,
		Path:     "/",
		Domain:   s.cfg.CookieDomain,
		MaxAge:   maxAge,
		Secure:   s.cfg.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// Provider is the part of the identity client the resolver needs.
type Provider interface {
	VerifyAccessToken(ctx context.Context, token string) (*identity.AccessClaims, error)
	RefreshSession(ctx context.Context, refreshToken string) (*identity.Authentication, error)
}

// Resolved is a verified provider session.
type Resolved struct {
	Data      Data
	Claims    *identity.AccessClaims
	Refreshed bool // Data changed and must be written back
}

type Manager struct {
	store    *Store
	provider Provider
}

func NewManager(store *Store, provider Provider) *Manager {
	return &Manager{store: store, provider: provider}
}

func (m *Manager) Store() *Store {
	return m.store
}

// Resolve verifies the request's session, refreshing an expired access token.
// It returns ErrNoSession when the caller is simply not signed in; any other
// error is an internal failure.
func (m *Manager) Resolve(ctx context.Context, r *http.Request) (*Resolved, error) {
	d, err := m.store.Load(r)
	if err != nil {
		return nil, err
	}

	claims, err := m.provider.VerifyAccessToken(ctx, d.AccessToken)
	switch {
	case err == nil:
		return &Resolved{Data: *d, Claims: claims}, nil
	case errors.Is(err, identity.ErrInvalidToken):
		return nil, ErrNoSession
	case !errors.Is(err, identity.ErrTokenExpired):
		return nil, err
	}

	if d.RefreshToken == "" {
		return nil, ErrNoSession
	}
	auth, err := m.provider.RefreshSession(ctx, d.RefreshToken)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidGrant) {
			log.Debug().Str("auth_id", d.User.ID).Msg("refresh token rejected")
			return nil, ErrNoSession
		}
		return nil, err
	}

	claims, err = m.provider.VerifyAccessToken(ctx, auth.AccessToken)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidToken) || errors.Is(err, identity.ErrTokenExpired) {
			return nil, ErrNoSession
		}
		return nil, err
	}

	refreshed := Data{
		AccessToken:    auth.AccessToken,
		RefreshToken:   auth.RefreshToken,
		User:           d.User,
		LocalSessionID: d.LocalSessionID,
	}
	if auth.User.ID != "" {
		refreshed.User = auth.User
	}
	return &Resolved{Data: refreshed, Claims: claims, Refreshed: true}, nil
}
