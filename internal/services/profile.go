package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pcstyle-auth/internal/config"
	"pcstyle-auth/internal/events"
	"pcstyle-auth/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProfileService backs the self-service dashboard. Every method acts on the
// caller's own records; the HTTP layer passes the verified AuthID.
type ProfileService struct {
	publisher *events.Publisher
	apps      []config.ConnectedApp
}

func NewProfileService(cfg *config.Config, publisher *events.Publisher) *ProfileService {
	return &ProfileService{
		publisher: publisher,
		apps:      cfg.Apps,
	}
}

// ProfileUpdate carries the optional fields of a profile edit.
type ProfileUpdate struct {
	Name      *string `json:"name"`
	AvatarURL *string `json:"avatarUrl"`
}

// GetProfile returns nil without error when the user has not been synced yet.
func (s *ProfileService) GetProfile(ctx context.Context, authID string) (*UserProfile, error) {
	user, err := findUserByAuthID(ctx, models.DB, authID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toUserProfile(user), nil
}

func (s *ProfileService) UpdateProfile(ctx context.Context, authID string, upd ProfileUpdate) error {
	var user *models.User
	err := models.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		user, err = findUserByAuthID(ctx, tx, authID)
		if err != nil {
			return err
		}

		patch := map[string]any{"updated_at": time.Now()}
		changes := []string{}
		if upd.Name != nil {
			patch["name"] = *upd.Name
			user.Name = upd.Name
			changes = append(changes, "name")
		}
		if upd.AvatarURL != nil {
			patch["avatar_url"] = *upd.AvatarURL
			user.AvatarURL = upd.AvatarURL
			changes = append(changes, "avatarUrl")
		}

		if err := tx.Model(user).Updates(patch).Error; err != nil {
			return err
		}
		return writeAudit(tx, models.ActionProfileUpdated, strPtr(authID), nil, map[string]any{"changes": changes})
	})
	if err != nil {
		return err
	}

	publishUser(ctx, s.publisher, events.UserUpdated, user)
	return nil
}

func (s *ProfileService) GetSessions(ctx context.Context, userID string) ([]SessionView, error) {
	var rows []models.Session
	if err := models.DB.WithContext(ctx).Where("user_id = ?", userID).Order("created_at asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toSessionViews(rows), nil
}

// CreateSession records a device session and returns its id.
func (s *ProfileService) CreateSession(ctx context.Context, userID, deviceInfo string, ipAddress *string) (string, error) {
	now := time.Now()
	session := models.Session{
		ID:         uuid.NewString(),
		UserID:     userID,
		DeviceInfo: deviceInfo,
		IPAddress:  ipAddress,
		LastActive: now,
		CreatedAt:  now,
	}
	if err := models.DB.WithContext(ctx).Create(&session).Error; err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	return session.ID, nil
}

// TouchSession bumps LastActive on the caller's session.
func (s *ProfileService) TouchSession(ctx context.Context, sessionID, userID string) error {
	return models.DB.WithContext(ctx).Model(&models.Session{}).
		Where("id = ? AND user_id = ?", sessionID, userID).
		Update("last_active", time.Now()).Error
}

func (s *ProfileService) SessionExists(ctx context.Context, sessionID, userID string) (bool, error) {
	var count int64
	err := models.DB.WithContext(ctx).Model(&models.Session{}).
		Where("id = ? AND user_id = ?", sessionID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *ProfileService) RevokeSession(ctx context.Context, sessionID, userID string) error {
	return models.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session models.Session
		if err := tx.Where("id = ?", sessionID).First(&session).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return err
		}
		if session.UserID != userID {
			return ErrSessionNotFound
		}

		if err := tx.Delete(&session).Error; err != nil {
			return err
		}
		return writeAudit(tx, models.ActionSessionRevoked, strPtr(userID), nil, map[string]any{"deviceInfo": session.DeviceInfo})
	})
}

// RevokeAllSessions deletes every session of the user and returns how many there were.
func (s *ProfileService) RevokeAllSessions(ctx context.Context, userID string) (int, error) {
	var count int64
	err := models.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("user_id = ?", userID).Delete(&models.Session{})
		if result.Error != nil {
			return result.Error
		}
		count = result.RowsAffected
		return writeAudit(tx, models.ActionSessionsRevokedAll, strPtr(userID), nil, map[string]any{"count": count})
	})
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// GetConnectedApps returns the configured catalog. Access is not tracked yet,
// so LastAccess is always nil; ctx and userID are reserved for per-user grant
// tracking.
func (s *ProfileService) GetConnectedApps(ctx context.Context, userID string) []ConnectedAppView {
	apps := make([]ConnectedAppView, 0, len(s.apps))
	for _, app := range s.apps {
		apps = append(apps, ConnectedAppView{ConnectedApp: app})
	}
	return apps
}

type userExport struct {
	ExportedAt time.Time     `json:"exportedAt"`
	Profile    *UserProfile  `json:"profile"`
	Sessions   []SessionView `json:"sessions"`
	Apps       []any         `json:"apps"`
}

// ExportUserData returns the user's data as an indented JSON document.
func (s *ProfileService) ExportUserData(ctx context.Context, authID string) (string, error) {
	user, err := findUserByAuthID(ctx, models.DB, authID)
	if err != nil {
		return "", err
	}

	sessions, err := s.GetSessions(ctx, authID)
	if err != nil {
		return "", err
	}

	doc := userExport{
		ExportedAt: time.Now().UTC(),
		Profile:    toUserProfile(user),
		Sessions:   sessions,
		Apps:       []any{},
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode export: %w", err)
	}
	return string(data), nil
}

// DeleteAccount removes the user's sessions, records the deletion, then removes
// the user row.
func (s *ProfileService) DeleteAccount(ctx context.Context, authID string) error {
	var user *models.User
	err := models.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		user, err = findUserByAuthID(ctx, tx, authID)
		if err != nil {
			return err
		}

		if err := tx.Where("user_id = ?", authID).Delete(&models.Session{}).Error; err != nil {
			return err
		}
		if err := writeAudit(tx, models.ActionAccountDeleted, strPtr(authID), nil, map[string]any{"email": user.Email}); err != nil {
			return err
		}
		return tx.Delete(user).Error
	})
	if err != nil {
		return err
	}

	publishUser(ctx, s.publisher, events.UserDeleted, user)
	return nil
}

func findUserByAuthID(ctx context.Context, db *gorm.DB, authID string) (*models.User, error) {
	var user models.User
	if err := db.WithContext(ctx).Where("auth_id = ?", authID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}
