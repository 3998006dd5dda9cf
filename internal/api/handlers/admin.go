package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"pcstyle-auth/internal/models"
	"pcstyle-auth/internal/services"

	"github.com/gin-gonic/gin"
)

type AdminHandler struct {
	admin *services.AdminService
}

func NewAdminHandler(admin *services.AdminService) *AdminHandler {
	return &AdminHandler{admin: admin}
}

type UpdateRoleRequest struct {
	Role models.Role `json:"role" binding:"required"`
}

type BanUserRequest struct {
	Reason *string `json:"reason"`
}

func (h *AdminHandler) GetStats(c *gin.Context) {
	stats, err := h.admin.GetStats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// ListUsers pages through users. Query: search, role, cursor, limit.
func (h *AdminHandler) ListUsers(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}

	page, err := h.admin.ListUsers(c.Request.Context(), services.ListUsersParams{
		Search: c.Query("search"),
		Role:   models.Role(c.Query("role")),
		Cursor: c.Query("cursor"),
		Limit:  limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

func (h *AdminHandler) GetUser(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}

	detail, err := h.admin.GetUserDetail(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

func (h *AdminHandler) UpdateRole(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}

	var req UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	if err := h.admin.UpdateUserRole(c.Request.Context(), id, req.Role); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *AdminHandler) BanUser(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}

	var req BanUserRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	if err := h.admin.BanUser(c.Request.Context(), id, req.Reason); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *AdminHandler) UnbanUser(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}

	if err := h.admin.UnbanUser(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetAuditLogs lists recent audit entries. Query: action, userId, limit.
func (h *AdminHandler) GetAuditLogs(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}

	logs, err := h.admin.GetAuditLogs(c.Request.Context(), services.AuditLogParams{
		Action: models.AuditAction(c.Query("action")),
		UserID: c.Query("userId"),
		Limit:  limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

func userID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return 0, false
	}
	return uint(id), true
}

func queryInt(c *gin.Context, key string) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + key})
		return 0, false
	}
	return n, true
}
