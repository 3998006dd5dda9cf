package services

import (
	"context"
	"time"

	"pcstyle-auth/internal/config"
	"pcstyle-auth/internal/events"
	"pcstyle-auth/internal/models"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// UserProfile is the user shape returned to the dashboard and admin views.
type UserProfile struct {
	ID        uint        `json:"id"`
	AuthID    string      `json:"authId"`
	Email     string      `json:"email"`
	Name      *string     `json:"name"`
	AvatarURL *string     `json:"avatarUrl"`
	Role      models.Role `json:"role"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

type SessionView struct {
	ID         string    `json:"id"`
	DeviceInfo string    `json:"deviceInfo"`
	IPAddress  *string   `json:"ipAddress"`
	LastActive time.Time `json:"lastActive"`
	CreatedAt  time.Time `json:"createdAt"`
	IsCurrent  bool      `json:"isCurrent"`
}

type AuditLogView struct {
	ID        uint               `json:"id"`
	Action    models.AuditAction `json:"action"`
	UserID    *string            `json:"userId"`
	AdminID   *string            `json:"adminId"`
	Metadata  map[string]any     `json:"metadata"`
	Timestamp time.Time          `json:"timestamp"`
}

// ConnectedAppView is a catalog entry as seen by one user.
type ConnectedAppView struct {
	config.ConnectedApp
	LastAccess *time.Time `json:"lastAccess"`
}

func toUserProfile(u *models.User) *UserProfile {
	return &UserProfile{
		ID:        u.ID,
		AuthID:    u.AuthID,
		Email:     u.Email,
		Name:      u.Name,
		AvatarURL: u.AvatarURL,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func toSessionViews(rows []models.Session) []SessionView {
	views := make([]SessionView, 0, len(rows))
	for _, s := range rows {
		views = append(views, SessionView{
			ID:         s.ID,
			DeviceInfo: s.DeviceInfo,
			IPAddress:  s.IPAddress,
			LastActive: s.LastActive,
			CreatedAt:  s.CreatedAt,
		})
	}
	return views
}

func toAuditLogViews(rows []models.AuditLog) []AuditLogView {
	views := make([]AuditLogView, 0, len(rows))
	for _, l := range rows {
		views = append(views, AuditLogView{
			ID:        l.ID,
			Action:    l.Action,
			UserID:    l.UserID,
			AdminID:   l.AdminID,
			Metadata:  l.Metadata,
			Timestamp: l.Timestamp,
		})
	}
	return views
}

// writeAudit appends an audit row using tx, which may be a transaction.
func writeAudit(tx *gorm.DB, action models.AuditAction, userID, adminID *string, metadata map[string]any) error {
	entry := models.AuditLog{
		Action:    action,
		UserID:    userID,
		AdminID:   adminID,
		Timestamp: time.Now(),
	}
	if metadata != nil {
		entry.Metadata = metadata
	}
	return tx.Create(&entry).Error
}

// publishUser is best-effort: the local write has already committed.
func publishUser(ctx context.Context, p *events.Publisher, kind events.Kind, u *models.User) {
	err := p.PublishUser(ctx, kind, events.User{
		AuthID: u.AuthID,
		Email:  u.Email,
		Name:   u.Name,
		Role:   string(u.Role),
	})
	if err != nil {
		log.Warn().Err(err).Str("auth_id", u.AuthID).Str("kind", string(kind)).Msg("failed to publish user event")
	}
}

func strPtr(s string) *string {
	return &s
}
