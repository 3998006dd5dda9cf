package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	jwksRefreshInterval = time.Hour
	jwksUnknownKIDEvery = time.Minute
)

// AccessClaims are the claims of a provider-issued access token.
type AccessClaims struct {
	SessionID      string `json:"sid"`
	OrganizationID string `json:"org_id,omitempty"`
	jwt.RegisteredClaims
}

// VerifyAccessToken checks signature, issuer and expiry of an access token.
// An expired but otherwise valid token yields ErrTokenExpired. When no
// signing key could ever be fetched it returns ErrKeysUnavailable.
func (c *Client) VerifyAccessToken(ctx context.Context, tokenString string) (*AccessClaims, error) {
	keys, err := c.keySet()
	if err != nil {
		return nil, err
	}

	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, keys.KeyfuncCtx(ctx),
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(c.Issuer()),
		jwt.WithExpirationRequired(),
	)

	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	case errors.Is(err, keyfunc.ErrKeyfunc) && !c.haveKeys(ctx, keys):
		return nil, fmt.Errorf("%w: %v", ErrKeysUnavailable, err)
	default:
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// keySet starts the JWKS cache on first use so a provider outage at boot does
// not stop the server.
func (c *Client) keySet() (keyfunc.Keyfunc, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keys != nil {
		return c.keys, nil
	}

	jwksURL, err := c.users.GetJWKSURL(c.clientID)
	if err != nil {
		return nil, fmt.Errorf("jwks url: %w", err)
	}

	keys, err := keyfunc.NewDefaultOverrideCtx(c.ctx, []string{jwksURL.String()}, keyfunc.Override{
		Client:            c.httpClient,
		RefreshInterval:   jwksRefreshInterval,
		RefreshUnknownKID: rate.NewLimiter(rate.Every(jwksUnknownKIDEvery), 1),
		RateLimitWaitMax:  time.Second,
		RefreshErrorHandlerFunc: func(u string) func(ctx context.Context, err error) {
			return func(ctx context.Context, err error) {
				log.Warn().Err(err).Str("url", u).Msg("failed to refresh jwks")
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("jwks: %w", err)
	}
	c.keys = keys
	return keys, nil
}

func (c *Client) haveKeys(ctx context.Context, keys keyfunc.Keyfunc) bool {
	all, err := keys.Storage().KeyReadAll(ctx)
	return err == nil && len(all) > 0
}
