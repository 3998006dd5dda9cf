package handlers

import (
	"errors"
	"io"
	"net/http"

	"pcstyle-auth/internal/services"
	"pcstyle-auth/internal/session"

	"github.com/gin-gonic/gin"
)

type ProfileHandler struct {
	profiles *services.ProfileService
	sessions *session.Manager
}

func NewProfileHandler(profiles *services.ProfileService, sessions *session.Manager) *ProfileHandler {
	return &ProfileHandler{
		profiles: profiles,
		sessions: sessions,
	}
}

type CreateSessionRequest struct {
	DeviceInfo string  `json:"deviceInfo"`
	IPAddress  *string `json:"ipAddress"`
}

// GetProfile returns the caller's profile, or null before the first sync.
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	profile, err := h.profiles.GetProfile(c.Request.Context(), p.AuthID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

func (h *ProfileHandler) UpdateProfile(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req services.ProfileUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	if err := h.profiles.UpdateProfile(c.Request.Context(), p.AuthID, req); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetSessions lists the caller's sessions and flags the one this browser uses.
func (h *ProfileHandler) GetSessions(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	sessions, err := h.profiles.GetSessions(c.Request.Context(), p.AuthID)
	if err != nil {
		respondError(c, err)
		return
	}
	for i := range sessions {
		sessions[i].IsCurrent = p.SessionID != "" && sessions[i].ID == p.SessionID
	}

	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *ProfileHandler) CreateSession(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}
	if req.DeviceInfo == "" {
		req.DeviceInfo = c.Request.UserAgent()
	}
	if req.IPAddress == nil {
		ip := c.ClientIP()
		req.IPAddress = &ip
	}

	id, err := h.profiles.CreateSession(c.Request.Context(), p.AuthID, req.DeviceInfo, req.IPAddress)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *ProfileHandler) RevokeSession(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	if err := h.profiles.RevokeSession(c.Request.Context(), c.Param("id"), p.AuthID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *ProfileHandler) RevokeAllSessions(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	count, err := h.profiles.RevokeAllSessions(c.Request.Context(), p.AuthID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (h *ProfileHandler) GetConnectedApps(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{"apps": h.profiles.GetConnectedApps(c.Request.Context(), p.AuthID)})
}

// ExportData downloads the caller's data as a JSON file.
func (h *ProfileHandler) ExportData(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	data, err := h.profiles.ExportUserData(c.Request.Context(), p.AuthID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="pcstyle-account-export.json"`)
	c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(data))
}

// DeleteAccount removes the caller's account and signs the browser out.
func (h *ProfileHandler) DeleteAccount(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	if err := h.profiles.DeleteAccount(c.Request.Context(), p.AuthID); err != nil {
		respondError(c, err)
		return
	}

	h.sessions.Store().Clear(c.Writer)
	c.JSON(http.StatusOK, gin.H{"success": true})
}
