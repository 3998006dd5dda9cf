// Package identitytest runs a fake identity provider for tests: JWKS,
// code/refresh exchange, signed access tokens and webhook signatures.
package identitytest

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"pcstyle-auth/internal/config"
	"pcstyle-auth/internal/identity"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	ClientID      = "client_test"
	APIKey        = "sk_test"
	WebhookSecret = "whsec_test"
)

type Provider struct {
	Server *httptest.Server

	key *rsa.PrivateKey
	kid string

	mu       sync.Mutex
	codes    map[string]identity.User
	refresh  map[string]identity.User
	jwksDown bool
}

// New starts a provider and registers its shutdown with t.
func New(t testing.TB) *Provider {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	p := &Provider{
		key:     key,
		kid:     "key_" + uuid.NewString(),
		codes:   map[string]identity.User{},
		refresh: map[string]identity.User{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /sso/jwks/{client}", p.handleJWKS)
	mux.HandleFunc("POST /user_management/authenticate", p.handleAuthenticate)
	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Server.Close)
	return p
}

// Config returns provider settings pointing at the fake server.
func (p *Provider) Config() config.WorkOSConfig {
	return config.WorkOSConfig{
		ClientID:         ClientID,
		APIKey:           APIKey,
		APIBaseURL:       p.Server.URL,
		RedirectURI:      "http://auth.test/callback",
		WebhookSecret:    WebhookSecret,
		WebhookTolerance: 5 * time.Minute,
	}
}

// IssueToken signs an access token for userID. A negative ttl yields an
// already expired token.
func (p *Provider) IssueToken(userID, sessionID string, ttl time.Duration) string {
	now := time.Now()
	claims := identity.AccessClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    p.Server.URL + "/user_management/" + ClientID,
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = p.kid
	signed, err := token.SignedString(p.key)
	if err != nil {
		panic(err)
	}
	return signed
}

// AddCode makes code exchangeable for u.
func (p *Provider) AddCode(code string, u identity.User) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.codes[code] = u
}

// AddRefreshToken makes token refreshable for u.
func (p *Provider) AddRefreshToken(token string, u identity.User) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refresh[token] = u
}

// SetJWKSDown makes the JWKS endpoint fail with 503.
func (p *Provider) SetJWKSDown(down bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jwksDown = down
}

func (p *Provider) handleJWKS(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	down := p.jwksDown
	p.mu.Unlock()
	if down || r.PathValue("client") != ClientID {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	pub := p.key.PublicKey
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": p.kid,
			"use": "sig",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	})
}

func (p *Provider) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}
	field := func(k string) string {
		v, _ := body[k].(string)
		return v
	}
	secretOK := field("client_secret") == APIKey || r.Header.Get("Authorization") == "Bearer "+APIKey
	if field("client_id") != ClientID || !secretOK {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}

	p.mu.Lock()
	var (
		u  identity.User
		ok bool
	)
	switch field("grant_type") {
	case "authorization_code":
		u, ok = p.codes[field("code")]
		delete(p.codes, field("code"))
	case "refresh_token":
		u, ok = p.refresh[field("refresh_token")]
		delete(p.refresh, field("refresh_token"))
	}
	var nextRefresh string
	if ok {
		nextRefresh = "rt_" + uuid.NewString()
		p.refresh[nextRefresh] = u
	}
	p.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":             "invalid_grant",
			"error_description": "The code or refresh token is invalid or expired.",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user": map[string]interface{}{
			"object":              "user",
			"id":                  u.ID,
			"email":               u.Email,
			"first_name":          deref(u.FirstName),
			"last_name":           deref(u.LastName),
			"profile_picture_url": deref(u.ProfilePictureURL),
			"email_verified":      true,
		},
		"access_token":  p.IssueToken(u.ID, "session_"+u.ID, time.Hour),
		"refresh_token": nextRefresh,
	})
}

// SignWebhook builds a WorkOS-Signature header value for payload sent at at.
func SignWebhook(payload []byte, secret string, at time.Time) string {
	ts := strconv.FormatInt(at.UnixMilli(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + "."))
	mac.Write(payload)
	return fmt.Sprintf("t=%s, v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
