package services

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"pcstyle-auth/internal/auth"
	"pcstyle-auth/internal/events"
	"pcstyle-auth/internal/models"

	"gorm.io/gorm"
)

const (
	defaultUserPageSize  = 50
	defaultAuditLogLimit = 100
	auditLogWindow       = 500
	userDetailAuditLimit = 50
)

// AdminService implements the admin panel. Every method authorizes the caller
// from the principal stored in ctx.
type AdminService struct {
	publisher *events.Publisher
}

func NewAdminService(publisher *events.Publisher) *AdminService {
	return &AdminService{publisher: publisher}
}

type Stats struct {
	TotalUsers       int64 `json:"totalUsers"`
	ActiveSessions   int64 `json:"activeSessions"`
	NewUsersThisWeek int64 `json:"newUsersThisWeek"`
	AdminCount       int64 `json:"adminCount"`
}

type ListUsersParams struct {
	Search string
	Role   models.Role
	Cursor string
	Limit  int
}

type UserPage struct {
	Users      []UserProfile `json:"users"`
	NextCursor *string       `json:"nextCursor,omitempty"`
	TotalCount int           `json:"totalCount"`
}

type UserDetail struct {
	User      *UserProfile   `json:"user"`
	Sessions  []SessionView  `json:"sessions"`
	AuditLogs []AuditLogView `json:"auditLogs"`
}

type AuditLogParams struct {
	Action models.AuditAction
	UserID string
	Limit  int
}

// authorize re-resolves the caller's role on every call.
func (s *AdminService) authorize(ctx context.Context) (*models.User, error) {
	principal, ok := auth.FromContext(ctx)
	if !ok {
		return nil, ErrAdminRequired
	}

	admin, err := findUserByAuthID(ctx, models.DB, principal.AuthID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrAdminRequired
		}
		return nil, err
	}
	if admin.Role != models.RoleAdmin {
		return nil, ErrAdminRequired
	}
	return admin, nil
}

func (s *AdminService) GetStats(ctx context.Context) (*Stats, error) {
	if _, err := s.authorize(ctx); err != nil {
		return nil, err
	}

	now := time.Now()
	db := models.DB.WithContext(ctx)
	var stats Stats

	if err := db.Model(&models.User{}).Count(&stats.TotalUsers).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Session{}).Where("last_active > ?", now.Add(-24*time.Hour)).Count(&stats.ActiveSessions).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.User{}).Where("created_at > ?", now.Add(-7*24*time.Hour)).Count(&stats.NewUsersThisWeek).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&stats.AdminCount).Error; err != nil {
		return nil, err
	}

	return &stats, nil
}

// ListUsers pages through users newest first. The cursor is a decimal offset.
func (s *AdminService) ListUsers(ctx context.Context, params ListUsersParams) (*UserPage, error) {
	if _, err := s.authorize(ctx); err != nil {
		return nil, err
	}

	var users []models.User
	if err := models.DB.WithContext(ctx).Find(&users).Error; err != nil {
		return nil, err
	}

	search := strings.ToLower(params.Search)
	filtered := make([]models.User, 0, len(users))
	for _, u := range users {
		if search != "" && !matchesSearch(u, search) {
			continue
		}
		if params.Role != "" && u.Role != params.Role {
			continue
		}
		filtered = append(filtered, u)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	limit := params.Limit
	if limit <= 0 {
		limit = defaultUserPageSize
	}
	start := parseCursor(params.Cursor)
	if start > len(filtered) {
		start = len(filtered)
	}
	end := start + limit
	if end > len(filtered) {
		end = len(filtered)
	}

	page := &UserPage{
		Users:      make([]UserProfile, 0, end-start),
		TotalCount: len(filtered),
	}
	for i := start; i < end; i++ {
		page.Users = append(page.Users, *toUserProfile(&filtered[i]))
	}
	if end < len(filtered) {
		next := strconv.Itoa(end)
		page.NextCursor = &next
	}
	return page, nil
}

func matchesSearch(u models.User, search string) bool {
	if strings.Contains(strings.ToLower(u.Email), search) {
		return true
	}
	return u.Name != nil && strings.Contains(strings.ToLower(*u.Name), search)
}

func parseCursor(cursor string) int {
	if cursor == "" {
		return 0
	}
	n, err := strconv.Atoi(cursor)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func (s *AdminService) GetUserDetail(ctx context.Context, id uint) (*UserDetail, error) {
	if _, err := s.authorize(ctx); err != nil {
		return nil, err
	}

	user, err := findUserByID(ctx, models.DB, id)
	if err != nil {
		return nil, err
	}

	var sessions []models.Session
	if err := models.DB.WithContext(ctx).Where("user_id = ?", user.AuthID).Order("created_at asc").Find(&sessions).Error; err != nil {
		return nil, err
	}

	var logs []models.AuditLog
	err = models.DB.WithContext(ctx).
		Where("user_id = ?", user.AuthID).
		Order("timestamp desc").Order("id desc").
		Limit(userDetailAuditLimit).
		Find(&logs).Error
	if err != nil {
		return nil, err
	}

	return &UserDetail{
		User:      toUserProfile(user),
		Sessions:  toSessionViews(sessions),
		AuditLogs: toAuditLogViews(logs),
	}, nil
}

func (s *AdminService) UpdateUserRole(ctx context.Context, id uint, newRole models.Role) error {
	admin, err := s.authorize(ctx)
	if err != nil {
		return err
	}
	if !newRole.Valid() {
		return ErrInvalidRole
	}

	var target *models.User
	err = models.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		target, err = findUserByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if target.AuthID == admin.AuthID && newRole != models.RoleAdmin {
			return ErrCannotDemoteSelf
		}

		oldRole := target.Role
		target.Role = newRole
		if err := tx.Model(target).Updates(map[string]any{"role": newRole, "updated_at": time.Now()}).Error; err != nil {
			return err
		}
		return writeAudit(tx, models.ActionUserRoleChanged, strPtr(target.AuthID), strPtr(admin.AuthID), map[string]any{
			"oldRole": oldRole,
			"newRole": newRole,
		})
	})
	if err != nil {
		return err
	}

	publishUser(ctx, s.publisher, events.UserRoleChanged, target)
	return nil
}

// BanUser marks the user banned and revokes all of their sessions.
func (s *AdminService) BanUser(ctx context.Context, id uint, reason *string) error {
	admin, err := s.authorize(ctx)
	if err != nil {
		return err
	}

	var target *models.User
	err = models.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		target, err = findUserByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if target.AuthID == admin.AuthID {
			return ErrCannotBanSelf
		}
		if target.Role == models.RoleAdmin {
			return ErrCannotBanAdmin
		}

		target.Role = models.RoleBanned
		if err := tx.Model(target).Updates(map[string]any{"role": models.RoleBanned, "updated_at": time.Now()}).Error; err != nil {
			return err
		}

		result := tx.Where("user_id = ?", target.AuthID).Delete(&models.Session{})
		if result.Error != nil {
			return result.Error
		}

		metadata := map[string]any{"sessionsRevoked": result.RowsAffected}
		if reason != nil {
			metadata["reason"] = *reason
		}
		return writeAudit(tx, models.ActionUserBanned, strPtr(target.AuthID), strPtr(admin.AuthID), metadata)
	})
	if err != nil {
		return err
	}

	publishUser(ctx, s.publisher, events.UserBanned, target)
	return nil
}

func (s *AdminService) UnbanUser(ctx context.Context, id uint) error {
	admin, err := s.authorize(ctx)
	if err != nil {
		return err
	}

	var target *models.User
	err = models.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		target, err = findUserByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if target.Role != models.RoleBanned {
			return ErrUserNotBanned
		}

		target.Role = models.RoleUser
		if err := tx.Model(target).Updates(map[string]any{"role": models.RoleUser, "updated_at": time.Now()}).Error; err != nil {
			return err
		}
		return writeAudit(tx, models.ActionUserUnbanned, strPtr(target.AuthID), strPtr(admin.AuthID), nil)
	})
	if err != nil {
		return err
	}

	publishUser(ctx, s.publisher, events.UserUnbanned, target)
	return nil
}

// GetAuditLogs filters within the most recent 500 entries only.
func (s *AdminService) GetAuditLogs(ctx context.Context, params AuditLogParams) ([]AuditLogView, error) {
	if _, err := s.authorize(ctx); err != nil {
		return nil, err
	}

	var logs []models.AuditLog
	err := models.DB.WithContext(ctx).
		Order("timestamp desc").Order("id desc").
		Limit(auditLogWindow).
		Find(&logs).Error
	if err != nil {
		return nil, err
	}

	limit := params.Limit
	if limit <= 0 {
		limit = defaultAuditLogLimit
	}

	filtered := make([]models.AuditLog, 0, limit)
	for _, l := range logs {
		if params.Action != "" && l.Action != params.Action {
			continue
		}
		if params.UserID != "" && (l.UserID == nil || *l.UserID != params.UserID) {
			continue
		}
		filtered = append(filtered, l)
		if len(filtered) == limit {
			break
		}
	}

	return toAuditLogViews(filtered), nil
}

func findUserByID(ctx context.Context, db *gorm.DB, id uint) (*models.User, error) {
	var user models.User
	if err := db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}
