// Package identity talks to the hosted identity provider (WorkOS User
// Management): hosted sign-in URLs, code and refresh-token exchange, access
// token verification against the provider JWKS, and webhook verification.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"pcstyle-auth/internal/config"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/workos/workos-go/v4/pkg/usermanagement"
	"github.com/workos/workos-go/v4/pkg/workos_errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var (
	ErrInvalidGrant    = errors.New("identity provider rejected the grant")
	ErrInvalidToken    = errors.New("invalid access token")
	ErrTokenExpired    = errors.New("access token expired")
	ErrKeysUnavailable = errors.New("identity provider signing keys unavailable")
)

// Authentication is the result of a code or refresh-token exchange. User is
// empty after a refresh; the provider only returns new tokens.
type Authentication struct {
	User         User
	AccessToken  string
	RefreshToken string
}

type Client struct {
	clientID    string
	redirectURI string
	baseURL     string
	httpClient  *http.Client
	users       *usermanagement.Client

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	keys keyfunc.Keyfunc
}

func NewClient(cfg config.WorkOSConfig) *Client {
	httpClient := &http.Client{
		Timeout:   15 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	base := strings.TrimRight(cfg.APIBaseURL, "/")

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		clientID:    cfg.ClientID,
		redirectURI: cfg.RedirectURI,
		baseURL:     base,
		httpClient:  httpClient,
		users: &usermanagement.Client{
			APIKey:     cfg.APIKey,
			HTTPClient: httpClient,
			Endpoint:   base,
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Close stops the background JWKS refresh.
func (c *Client) Close() {
	c.cancel()
}

// Issuer is the expected "iss" claim of access tokens.
func (c *Client) Issuer() string {
	return c.baseURL + "/user_management/" + c.clientID
}

// AuthorizationURL returns the hosted sign-in URL. state is echoed back to the
// callback untouched.
func (c *Client) AuthorizationURL(state string) (string, error) {
	u, err := c.users.GetAuthorizationURL(usermanagement.GetAuthorizationURLOpts{
		ClientID:    c.clientID,
		RedirectURI: c.redirectURI,
		Provider:    "authkit",
		State:       state,
	})
	if err != nil {
		return "", fmt.Errorf("authorization url: %w", err)
	}
	return u.String(), nil
}

// LogoutURL ends the provider session identified by sessionID.
func (c *Client) LogoutURL(sessionID, returnTo string) (string, error) {
	u, err := c.users.GetLogoutURL(usermanagement.GetLogoutURLOpts{
		SessionID: sessionID,
		ReturnTo:  returnTo,
	})
	if err != nil {
		return "", fmt.Errorf("logout url: %w", err)
	}
	return u.String(), nil
}

// AuthenticateWithCode exchanges an authorization code from the callback.
func (c *Client) AuthenticateWithCode(ctx context.Context, code, ipAddress, userAgent string) (*Authentication, error) {
	resp, err := c.users.AuthenticateWithCode(ctx, usermanagement.AuthenticateWithCodeOpts{
		ClientID:  c.clientID,
		Code:      code,
		IPAddress: ipAddress,
		UserAgent: userAgent,
	})
	if err != nil {
		return nil, grantError("authenticate with code", err)
	}
	if resp.AccessToken == "" || resp.User.ID == "" {
		return nil, fmt.Errorf("authenticate with code: incomplete response")
	}

	return &Authentication{
		User:         fromProviderUser(resp.User),
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
	}, nil
}

// RefreshSession trades a refresh token for a new access token.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*Authentication, error) {
	resp, err := c.users.AuthenticateWithRefreshToken(ctx, usermanagement.AuthenticateWithRefreshTokenOpts{
		ClientID:     c.clientID,
		RefreshToken: refreshToken,
	})
	if err != nil {
		return nil, grantError("refresh session", err)
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("refresh session: incomplete response")
	}

	return &Authentication{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
	}, nil
}

// grantError maps 4xx provider answers to ErrInvalidGrant. Anything else is
// an upstream failure.
func grantError(op string, err error) error {
	var httpErr workos_errors.HTTPError
	if errors.As(err, &httpErr) && httpErr.Code >= 400 && httpErr.Code < 500 {
		return fmt.Errorf("%w: %s", ErrInvalidGrant, httpErr.Error())
	}
	return fmt.Errorf("%s: %w", op, err)
}

func fromProviderUser(u usermanagement.User) User {
	return User{
		ID:                u.ID,
		Email:             u.Email,
		FirstName:         optional(u.FirstName),
		LastName:          optional(u.LastName),
		ProfilePictureURL: optional(u.ProfilePictureURL),
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
