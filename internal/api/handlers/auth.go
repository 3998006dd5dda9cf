package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"pcstyle-auth/internal/api/middleware"
	"pcstyle-auth/internal/config"
	"pcstyle-auth/internal/identity"
	"pcstyle-auth/internal/services"
	"pcstyle-auth/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const defaultReturnTo = "/dashboard"

type AuthHandler struct {
	provider *identity.Client
	sessions *session.Manager
	profiles *services.ProfileService
	cfg      *config.Config
}

func NewAuthHandler(provider *identity.Client, sessions *session.Manager, profiles *services.ProfileService, cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		provider: provider,
		sessions: sessions,
		profiles: profiles,
		cfg:      cfg,
	}
}

// MeUser is the user shape served by GET /api/me.
type MeUser struct {
	ID                string  `json:"id"`
	Email             string  `json:"email"`
	FirstName         *string `json:"firstName"`
	LastName          *string `json:"lastName"`
	ProfilePictureURL *string `json:"profilePictureUrl"`
}

type loginState struct {
	ReturnTo string `json:"returnTo"`
}

// Me reports the signed-in user for the browser and sibling apps.
func (h *AuthHandler) Me(c *gin.Context) {
	resolved, err := middleware.CurrentSession(c)
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			c.JSON(http.StatusUnauthorized, gin.H{
				"status":  "error",
				"code":    "UNAUTHORIZED",
				"message": "Not authenticated",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"code":    "INTERNAL_ERROR",
			"message": "Session check failed",
		})
		return
	}

	u := resolved.Data.User
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"user": MeUser{
			ID:                u.ID,
			Email:             u.Email,
			FirstName:         u.FirstName,
			LastName:          u.LastName,
			ProfilePictureURL: u.ProfilePictureURL,
		},
	})
}

// Login redirects to the hosted sign-in page.
func (h *AuthHandler) Login(c *gin.Context) {
	state, err := json.Marshal(loginState{ReturnTo: h.safeReturnTo(c.Query("returnTo"))})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start sign-in"})
		return
	}
	target, err := h.provider.AuthorizationURL(base64.RawURLEncoding.EncodeToString(state))
	if err != nil {
		log.Error().Err(err).Msg("failed to build sign-in url")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start sign-in"})
		return
	}
	c.Redirect(http.StatusFound, target)
}

// Callback completes the sign-in started by Login.
func (h *AuthHandler) Callback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing authorization code"})
		return
	}

	ctx := c.Request.Context()
	userAgent := c.Request.UserAgent()
	clientIP := c.ClientIP()

	authn, err := h.provider.AuthenticateWithCode(ctx, code, clientIP, userAgent)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidGrant) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or expired authorization code"})
			return
		}
		log.Error().Err(err).Msg("code exchange failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Authentication failed"})
		return
	}

	data := session.Data{
		AccessToken:  authn.AccessToken,
		RefreshToken: authn.RefreshToken,
		User:         authn.User,
	}

	device := userAgent
	if device == "" {
		device = "Unknown device"
	}
	var ip *string
	if clientIP != "" {
		ip = &clientIP
	}
	if id, err := h.profiles.CreateSession(ctx, authn.User.ID, device, ip); err != nil {
		log.Warn().Err(err).Str("auth_id", authn.User.ID).Msg("failed to record session")
	} else {
		data.LocalSessionID = id
	}

	if err := h.sessions.Store().Save(c.Writer, data); err != nil {
		log.Error().Err(err).Msg("failed to write session cookie")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		return
	}

	log.Info().Str("auth_id", authn.User.ID).Msg("user signed in")
	c.Redirect(http.StatusFound, h.returnToFromState(c.Query("state")))
}

// Logout ends the local and provider sessions.
func (h *AuthHandler) Logout(c *gin.Context) {
	returnTo := "/"
	if raw := c.Query("returnTo"); raw != "" {
		returnTo = h.safeReturnTo(raw)
	}

	resolved, err := middleware.CurrentSession(c)
	h.sessions.Store().Clear(c.Writer)
	if err != nil {
		c.Redirect(http.StatusFound, returnTo)
		return
	}

	if id := resolved.Data.LocalSessionID; id != "" {
		err := h.profiles.RevokeSession(c.Request.Context(), id, resolved.Data.User.ID)
		if err != nil && !errors.Is(err, services.ErrSessionNotFound) {
			log.Warn().Err(err).Str("session_id", id).Msg("failed to revoke session on logout")
		}
	}

	if sid := resolved.Claims.SessionID; sid != "" {
		target, err := h.provider.LogoutURL(sid, h.absoluteURL(returnTo))
		if err == nil {
			c.Redirect(http.StatusFound, target)
			return
		}
		log.Warn().Err(err).Msg("failed to build provider logout url")
	}
	c.Redirect(http.StatusFound, returnTo)
}

func (h *AuthHandler) returnToFromState(state string) string {
	raw, err := base64.RawURLEncoding.DecodeString(state)
	if err != nil {
		return defaultReturnTo
	}
	var s loginState
	if err := json.Unmarshal(raw, &s); err != nil {
		return defaultReturnTo
	}
	return h.safeReturnTo(s.ReturnTo)
}

// safeReturnTo accepts local paths and URLs on this service or an allowed
// origin. Anything else falls back to the dashboard.
func (h *AuthHandler) safeReturnTo(raw string) string {
	if raw == "" {
		return defaultReturnTo
	}
	if strings.HasPrefix(raw, "/") && !strings.HasPrefix(raw, "//") && !strings.HasPrefix(raw, "/\\") {
		return raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return defaultReturnTo
	}
	origin := u.Scheme + "://" + u.Host
	if origin == strings.TrimSuffix(h.cfg.Server.PublicURL, "/") {
		return raw
	}
	for _, allowed := range h.cfg.Server.AllowedOrigins {
		if origin == allowed {
			return raw
		}
	}
	return defaultReturnTo
}

func (h *AuthHandler) absoluteURL(path string) string {
	if !strings.HasPrefix(path, "/") || h.cfg.Server.PublicURL == "" {
		return path
	}
	return strings.TrimSuffix(h.cfg.Server.PublicURL, "/") + path
}
