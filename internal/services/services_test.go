package services

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"pcstyle-auth/internal/auth"
	"pcstyle-auth/internal/config"
	"pcstyle-auth/internal/models"

	"github.com/stretchr/testify/require"
)

// setupTestDB points models.DB at a fresh sqlite file for the test.
func setupTestDB(t *testing.T) *config.Config {
	t.Helper()

	cfg := &config.Config{
		Database: config.DatabaseConfig{
			Type: "sqlite",
			SQLite: config.SQLiteConfig{
				Path: filepath.Join(t.TempDir(), "auth_test.db"),
			},
		},
	}
	cfg.ApplyDefaults()

	require.NoError(t, models.InitDB(cfg))
	t.Cleanup(func() {
		_ = models.Close()
	})
	return cfg
}

func createTestUser(t *testing.T, authID, email string, role models.Role, createdAt time.Time) *models.User {
	t.Helper()
	user := &models.User{
		AuthID:    authID,
		Email:     email,
		Role:      role,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	require.NoError(t, models.DB.Create(user).Error)
	return user
}

func createTestSession(t *testing.T, userID, device string, lastActive time.Time) *models.Session {
	t.Helper()
	session := &models.Session{
		ID:         fmt.Sprintf("%s-%s-%d", userID, device, time.Now().UnixNano()),
		UserID:     userID,
		DeviceInfo: device,
		LastActive: lastActive,
		CreatedAt:  lastActive,
	}
	require.NoError(t, models.DB.Create(session).Error)
	return session
}

func asUser(authID string) context.Context {
	return auth.WithPrincipal(context.Background(), auth.Principal{AuthID: authID})
}

func countRows(t *testing.T, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, models.DB.Model(model).Where(query, args...).Count(&n).Error)
	return n
}

func auditLogsFor(t *testing.T, action models.AuditAction) []models.AuditLog {
	t.Helper()
	var logs []models.AuditLog
	require.NoError(t, models.DB.Where("action = ?", action).Order("id asc").Find(&logs).Error)
	return logs
}
