package authclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAuth answers /api/me with a user when the "wos-session" cookie is "valid".
func fakeAuth(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/api/me", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")

		cookie, err := r.Cookie("wos-session")
		switch {
		case err == nil && cookie.Value == "valid":
			first := "Ada"
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status": "success",
				"user":   User{ID: "user_01", Email: "ada@example.com", FirstName: &first},
			})
		case err == nil && cookie.Value == "broken":
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status": "error", "code": "INTERNAL_ERROR", "message": "Session check failed",
			})
		default:
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status": "error", "code": "UNAUTHORIZED", "message": "Not authenticated",
			})
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func requestWithCookie(value string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "http://app.test/private?tab=1", nil)
	if value != "" {
		r.AddCookie(&http.Cookie{Name: "wos-session", Value: value})
	}
	return r
}

func TestNewDefaults(t *testing.T) {
	c := New(Options{})
	assert.Equal(t, DefaultAuthURL+"/login", c.LoginURL(""))
	assert.Equal(t, DefaultPublicPaths, c.publicPaths)
}

func TestCurrentUser(t *testing.T) {
	srv, _ := fakeAuth(t)
	c := New(Options{AuthURL: srv.URL + "/"})
	ctx := context.Background()

	user, err := c.CurrentUser(ctx, requestWithCookie("valid"))
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "user_01", user.ID)
	assert.Equal(t, "Ada", *user.FirstName)
	assert.Nil(t, user.LastName)

	user, err = c.CurrentUser(ctx, requestWithCookie(""))
	require.NoError(t, err)
	assert.Nil(t, user)

	user, err = c.CurrentUser(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, user)

	_, err = c.CurrentUser(ctx, requestWithCookie("broken"))
	assert.ErrorIs(t, err, ErrUnexpectedResponse)
}

func TestLoginLogoutURLs(t *testing.T) {
	c := New(Options{AuthURL: "https://auth.example.com"})

	assert.Equal(t, "https://auth.example.com/login?returnTo="+url.QueryEscape("https://app.test/x?y=1"), c.LoginURL("https://app.test/x?y=1"))
	assert.Equal(t, "https://auth.example.com/api/auth/signout?returnTo=%2F", c.LogoutURL("/"))

	rec := httptest.NewRecorder()
	c.Logout(rec, httptest.NewRequest(http.MethodGet, "/", nil), "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://auth.example.com/api/auth/signout", rec.Header().Get("Location"))
}

func TestMiddleware(t *testing.T) {
	srv, calls := fakeAuth(t)
	c := New(Options{AuthURL: srv.URL, PublicPaths: []string{"/", "/public/*"}})

	h := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if ok {
			_, _ = w.Write([]byte(user.Email))
			return
		}
		_, _ = w.Write([]byte("anonymous"))
	}))

	t.Run("public path skips lookup", func(t *testing.T) {
		before := calls.Load()
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://app.test/public/docs", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "anonymous", rec.Body.String())
		assert.Equal(t, before, calls.Load())
	})

	t.Run("signed out is redirected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, requestWithCookie(""))
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, c.LoginURL("http://app.test/private?tab=1"), rec.Header().Get("Location"))
	})

	t.Run("signed in passes with user", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, requestWithCookie("valid"))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ada@example.com", rec.Body.String())
	})

	t.Run("lookup failure", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, requestWithCookie("broken"))
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestMatchPath(t *testing.T) {
	patterns := []string{"/", "/callback", "/assets/*"}

	tests := []struct {
		path string
		want bool
	}{
		{"/", true},
		{"/callback", true},
		{"/callback/extra", false},
		{"/assets", true},
		{"/assets/app.js", true},
		{"/assetsx", false},
		{"/dashboard", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MatchPath(patterns, tt.path), tt.path)
	}
}

func TestWatcher(t *testing.T) {
	srv, _ := fakeAuth(t)
	c := New(Options{AuthURL: srv.URL})

	cookie := "valid"
	w := c.NewWatcher(func() *http.Request { return requestWithCookie(cookie) })
	assert.True(t, w.State().Loading)

	state := w.Refresh(context.Background())
	assert.False(t, state.Loading)
	require.NotNil(t, state.User)
	assert.Equal(t, "user_01", state.User.ID)

	cookie = "broken"
	state = w.Refresh(context.Background())
	assert.Error(t, state.Err)
	assert.NotNil(t, state.User, "last known user is kept on transient errors")

	cookie = ""
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx, 10*time.Millisecond)
		close(done)
	}()
	assert.Eventually(t, func() bool {
		s := w.State()
		return s.User == nil && s.Err == nil && !s.Loading
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
