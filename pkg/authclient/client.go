// Package authclient lets sibling pcstyle apps check who is signed in at
// auth.pcstyle.dev and send signed-out visitors to the sign-in page.
//
// The auth service owns the session cookie; this package forwards the
// incoming request's cookies to GET /api/me and never reads them itself.
package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultAuthURL = "https://auth.pcstyle.dev"

// DefaultPublicPaths are reachable without a session.
var DefaultPublicPaths = []string{"/", "/callback", "/api/me"}

// ErrUnexpectedResponse is returned when /api/me answers with something other
// than a user or a 401.
var ErrUnexpectedResponse = errors.New("authclient: unexpected response")

type User struct {
	ID                string  `json:"id"`
	Email             string  `json:"email"`
	FirstName         *string `json:"firstName"`
	LastName          *string `json:"lastName"`
	ProfilePictureURL *string `json:"profilePictureUrl"`
}

type Options struct {
	AuthURL     string
	HTTPClient  *http.Client
	PublicPaths []string
}

type Client struct {
	authURL     string
	httpClient  *http.Client
	publicPaths []string
}

func New(opts Options) *Client {
	c := &Client{
		authURL:     strings.TrimSuffix(opts.AuthURL, "/"),
		httpClient:  opts.HTTPClient,
		publicPaths: opts.PublicPaths,
	}
	if c.authURL == "" {
		c.authURL = DefaultAuthURL
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if c.publicPaths == nil {
		c.publicPaths = DefaultPublicPaths
	}
	return c
}

type meResponse struct {
	Status  string `json:"status"`
	User    *User  `json:"user"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CurrentUser returns the user signed in on r's browser, or nil when nobody is.
// r may be nil for a cookie-less lookup.
func (c *Client) CurrentUser(ctx context.Context, r *http.Request) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.authURL+"/api/me", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if r != nil {
		for _, cookie := range r.Cookies() {
			req.AddCookie(cookie)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("authclient: fetch user: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, nil
	}

	var body meResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: status %d", ErrUnexpectedResponse, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK || body.Status != "success" || body.User == nil {
		return nil, fmt.Errorf("%w: status %d %s", ErrUnexpectedResponse, resp.StatusCode, body.Message)
	}
	return body.User, nil
}

// LoginURL returns the sign-in URL that comes back to returnTo afterwards.
func (c *Client) LoginURL(returnTo string) string {
	return c.withReturnTo("/login", returnTo)
}

// LogoutURL returns the sign-out URL that comes back to returnTo afterwards.
func (c *Client) LogoutURL(returnTo string) string {
	return c.withReturnTo("/api/auth/signout", returnTo)
}

func (c *Client) withReturnTo(path, returnTo string) string {
	if returnTo == "" {
		return c.authURL + path
	}
	return c.authURL + path + "?returnTo=" + url.QueryEscape(returnTo)
}

// Login redirects the browser to the sign-in page.
func (c *Client) Login(w http.ResponseWriter, r *http.Request, returnTo string) {
	http.Redirect(w, r, c.LoginURL(returnTo), http.StatusFound)
}

// Logout redirects the browser to the sign-out endpoint.
func (c *Client) Logout(w http.ResponseWriter, r *http.Request, returnTo string) {
	http.Redirect(w, r, c.LogoutURL(returnTo), http.StatusFound)
}
