package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"pcstyle-auth/internal/auth"
	"pcstyle-auth/internal/models"
	"pcstyle-auth/internal/services"
	"pcstyle-auth/internal/session"
	"pcstyle-auth/pkg/authclient"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	sessionKey      = "session"
	sessionErrorKey = "session_error"
	userKey         = "user"
)

// SessionTracker is the local session bookkeeping the middleware needs.
type SessionTracker interface {
	SessionExists(ctx context.Context, sessionID, userID string) (bool, error)
	TouchSession(ctx context.Context, sessionID, userID string) error
}

// LoadSession resolves the provider session on every request and attaches the
// verified principal to the request context. It never aborts; RequireSession
// and the handlers decide what a missing session means.
func LoadSession(manager *session.Manager, tracker SessionTracker, touchInterval time.Duration) gin.HandlerFunc {
	touches := &touchThrottle{interval: touchInterval, last: make(map[string]time.Time)}

	return func(c *gin.Context) {
		ctx := c.Request.Context()

		resolved, err := manager.Resolve(ctx, c.Request)
		if err == nil {
			err = checkLocalSession(ctx, tracker, resolved)
			if errors.Is(err, session.ErrNoSession) {
				manager.Store().Clear(c.Writer)
			}
		}
		if err != nil {
			if !errors.Is(err, session.ErrNoSession) {
				log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("session check failed")
			}
			c.Set(sessionErrorKey, err)
			c.Next()
			return
		}

		if resolved.Refreshed {
			if err := manager.Store().Save(c.Writer, resolved.Data); err != nil {
				log.Error().Err(err).Msg("failed to write refreshed session cookie")
			}
		}

		authID := resolved.Data.User.ID
		localID := resolved.Data.LocalSessionID
		if localID != "" && touches.due(localID) {
			if err := tracker.TouchSession(ctx, localID, authID); err != nil {
				log.Warn().Err(err).Str("session_id", localID).Msg("failed to touch session")
			}
		}

		c.Set(sessionKey, resolved)
		c.Request = c.Request.WithContext(auth.WithPrincipal(ctx, auth.Principal{
			AuthID:    authID,
			Email:     resolved.Data.User.Email,
			SessionID: localID,
		}))
		c.Next()
	}
}

// checkLocalSession treats a cookie whose local session row was revoked as signed out.
func checkLocalSession(ctx context.Context, tracker SessionTracker, resolved *session.Resolved) error {
	if resolved.Data.LocalSessionID == "" {
		return nil
	}
	ok, err := tracker.SessionExists(ctx, resolved.Data.LocalSessionID, resolved.Data.User.ID)
	if err != nil {
		return err
	}
	if !ok {
		return session.ErrNoSession
	}
	return nil
}

// CurrentSession returns the session resolved by LoadSession.
func CurrentSession(c *gin.Context) (*session.Resolved, error) {
	if v, ok := c.Get(sessionKey); ok {
		return v.(*session.Resolved), nil
	}
	if v, ok := c.Get(sessionErrorKey); ok {
		return nil, v.(error)
	}
	return nil, session.ErrNoSession
}

// RequireSession rejects signed-out requests outside publicPaths. API calls get
// a 401, page loads are redirected to the sign-in page.
func RequireSession(publicPaths []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if authclient.MatchPath(publicPaths, path) {
			c.Next()
			return
		}

		_, err := CurrentSession(c)
		if err == nil {
			c.Next()
			return
		}

		if !errors.Is(err, session.ErrNoSession) {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Session check failed"})
			return
		}

		if isAPIPath(path) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}

		c.Redirect(http.StatusFound, "/login?returnTo="+url.QueryEscape(c.Request.URL.RequestURI()))
		c.Abort()
	}
}

// RequireActiveUser loads the caller's local user record and refuses banned
// accounts. Callers that have not been synced yet pass with no user set.
func RequireActiveUser(profiles *services.ProfileService) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := auth.FromContext(c.Request.Context())
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}

		user, err := profiles.GetProfile(c.Request.Context(), principal.AuthID)
		if err != nil {
			log.Error().Err(err).Str("auth_id", principal.AuthID).Msg("failed to load user")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		if user != nil && user.Role == models.RoleBanned {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Account is banned"})
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}

func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, exists := c.Get(userKey)
		user, _ := v.(*services.UserProfile)
		if !exists || user == nil {
			c.JSON(403, gin.H{"error": "Forbidden: insufficient permissions"})
			c.Abort()
			return
		}

		hasRole := false
		for _, role := range roles {
			if user.Role == role {
				hasRole = true
				break
			}
		}

		if !hasRole {
			c.JSON(403, gin.H{"error": "Forbidden: insufficient permissions"})
			c.Abort()
			return
		}

		c.Next()
	}
}

func isAPIPath(path string) bool {
	return path == "/api" || strings.HasPrefix(path, "/api/")
}

// touchThrottle limits session touches to one per interval per session.
type touchThrottle struct {
	mu       sync.Mutex
	interval time.Duration
	last     map[string]time.Time
}

func (t *touchThrottle) due(sessionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if last, ok := t.last[sessionID]; ok && now.Sub(last) < t.interval {
		return false
	}
	if len(t.last) > 10000 {
		for id, at := range t.last {
			if now.Sub(at) >= t.interval {
				delete(t.last, id)
			}
		}
	}
	t.last[sessionID] = now
	return true
}
