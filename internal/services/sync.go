package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pcstyle-auth/internal/config"
	"pcstyle-auth/internal/events"
	"pcstyle-auth/internal/identity"
	"pcstyle-auth/internal/models"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SyncService mirrors provider user lifecycle events into the local users table.
// Provider-driven changes are not audited.
type SyncService struct {
	publisher *events.Publisher
	bootstrap config.BootstrapConfig
}

func NewSyncService(cfg *config.Config, publisher *events.Publisher) *SyncService {
	return &SyncService{
		publisher: publisher,
		bootstrap: cfg.Bootstrap,
	}
}

// HandleEvent applies a verified webhook event. Unknown kinds are ignored.
func (s *SyncService) HandleEvent(ctx context.Context, ev identity.Event) error {
	switch ev.Kind {
	case identity.EventUserCreated:
		return s.userCreated(ctx, ev.User)
	case identity.EventUserUpdated:
		return s.userUpdated(ctx, ev.User)
	case identity.EventUserDeleted:
		return s.userDeleted(ctx, ev.User)
	default:
		log.Debug().Str("event", string(ev.Kind)).Str("event_id", ev.ID).Msg("ignoring webhook event")
		return nil
	}
}

func (s *SyncService) userCreated(ctx context.Context, u identity.User) error {
	now := time.Now()
	user := models.User{
		AuthID:    u.ID,
		Email:     u.Email,
		Name:      u.DisplayName(),
		AvatarURL: u.AvatarURL(),
		Role:      s.initialRole(u.ID, u.Email),
		CreatedAt: now,
		UpdatedAt: now,
	}

	result := models.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "auth_id"}}, DoNothing: true}).
		Create(&user)
	if result.Error != nil {
		return fmt.Errorf("failed to create user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		log.Info().Str("auth_id", u.ID).Msg("user already exists, skipping create")
		return nil
	}

	publishUser(ctx, s.publisher, events.UserCreated, &user)
	return nil
}

func (s *SyncService) userUpdated(ctx context.Context, u identity.User) error {
	var user models.User
	if err := models.DB.WithContext(ctx).Where("auth_id = ?", u.ID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn().Str("auth_id", u.ID).Msg("user not found for update")
			return nil
		}
		return err
	}

	user.Email = u.Email
	user.Name = u.DisplayName()
	user.AvatarURL = u.AvatarURL()
	user.UpdatedAt = time.Now()

	err := models.DB.WithContext(ctx).Model(&user).Updates(map[string]any{
		"email":      user.Email,
		"name":       user.Name,
		"avatar_url": user.AvatarURL,
		"updated_at": user.UpdatedAt,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	publishUser(ctx, s.publisher, events.UserUpdated, &user)
	return nil
}

func (s *SyncService) userDeleted(ctx context.Context, u identity.User) error {
	var user models.User
	if err := models.DB.WithContext(ctx).Where("auth_id = ?", u.ID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn().Str("auth_id", u.ID).Msg("user not found for deletion")
			return nil
		}
		return err
	}

	if err := models.DB.WithContext(ctx).Delete(&user).Error; err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	publishUser(ctx, s.publisher, events.UserDeleted, &user)
	return nil
}

func (s *SyncService) initialRole(authID, email string) models.Role {
	if s.isBootstrapAdmin(authID, email) {
		return models.RoleAdmin
	}
	return models.RoleUser
}

func (s *SyncService) isBootstrapAdmin(authID, email string) bool {
	for _, id := range s.bootstrap.AdminAuthIDs {
		if id == authID {
			return true
		}
	}
	for _, e := range s.bootstrap.AdminEmails {
		if strings.EqualFold(strings.TrimSpace(e), email) {
			return true
		}
	}
	return false
}

// EnsureBootstrapAdmins promotes existing users listed in the bootstrap config.
func (s *SyncService) EnsureBootstrapAdmins(ctx context.Context) error {
	if len(s.bootstrap.AdminAuthIDs) == 0 && len(s.bootstrap.AdminEmails) == 0 {
		return nil
	}

	var users []models.User
	if err := models.DB.WithContext(ctx).Where("role <> ?", models.RoleAdmin).Find(&users).Error; err != nil {
		return err
	}

	for i := range users {
		user := &users[i]
		if !s.isBootstrapAdmin(user.AuthID, user.Email) {
			continue
		}
		user.Role = models.RoleAdmin
		if err := models.DB.WithContext(ctx).Model(user).Update("role", models.RoleAdmin).Error; err != nil {
			return fmt.Errorf("failed to promote bootstrap admin: %w", err)
		}
		log.Info().Str("auth_id", user.AuthID).Str("email", user.Email).Msg("promoted bootstrap admin")
		publishUser(ctx, s.publisher, events.UserRoleChanged, user)
	}

	return nil
}
