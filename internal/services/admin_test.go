package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"pcstyle-auth/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminAuthorization(t *testing.T) {
	setupTestDB(t)
	svc := NewAdminService(nil)
	createTestUser(t, "user_01", "user@example.com", models.RoleUser, time.Now())

	cases := map[string]context.Context{
		"no principal":   context.Background(),
		"unknown caller": asUser("ghost"),
		"non-admin":      asUser("user_01"),
	}
	for name, ctx := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.GetStats(ctx)
			assert.ErrorIs(t, err, ErrUnauthorized)
			_, err = svc.ListUsers(ctx, ListUsersParams{})
			assert.ErrorIs(t, err, ErrUnauthorized)
			assert.ErrorIs(t, svc.UnbanUser(ctx, 1), ErrUnauthorized)
		})
	}
}

func TestGetStats(t *testing.T) {
	setupTestDB(t)
	svc := NewAdminService(nil)
	now := time.Now()
	createTestUser(t, "admin_01", "admin@example.com", models.RoleAdmin, now.Add(-30*24*time.Hour))
	createTestUser(t, "user_01", "new@example.com", models.RoleUser, now.Add(-time.Hour))
	createTestUser(t, "user_02", "old@example.com", models.RoleUser, now.Add(-10*24*time.Hour))
	createTestSession(t, "user_01", "fresh", now.Add(-time.Hour))
	createTestSession(t, "user_02", "stale", now.Add(-48*time.Hour))

	stats, err := svc.GetStats(asUser("admin_01"))
	require.NoError(t, err)
	assert.Equal(t, &Stats{TotalUsers: 3, ActiveSessions: 1, NewUsersThisWeek: 1, AdminCount: 1}, stats)
}

func TestListUsersPagination(t *testing.T) {
	setupTestDB(t)
	svc := NewAdminService(nil)
	base := time.Now().Add(-200 * time.Hour)
	createTestUser(t, "admin_01", "admin@example.com", models.RoleAdmin, base.Add(-time.Hour))
	for i := 0; i < 119; i++ {
		createTestUser(t, fmt.Sprintf("user_%03d", i), fmt.Sprintf("user%03d@example.com", i), models.RoleUser, base.Add(time.Duration(i)*time.Minute))
	}
	ctx := asUser("admin_01")

	first, err := svc.ListUsers(ctx, ListUsersParams{})
	require.NoError(t, err)
	assert.Equal(t, 120, first.TotalCount)
	require.Len(t, first.Users, 50)
	require.NotNil(t, first.NextCursor)
	assert.Equal(t, "50", *first.NextCursor)
	assert.Equal(t, "user_118", first.Users[0].AuthID, "newest first")

	last, err := svc.ListUsers(ctx, ListUsersParams{Cursor: "100"})
	require.NoError(t, err)
	assert.Len(t, last.Users, 20)
	assert.Nil(t, last.NextCursor)
	assert.Equal(t, "admin_01", last.Users[19].AuthID)

	bogus, err := svc.ListUsers(ctx, ListUsersParams{Cursor: "abc", Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, "user_118", bogus.Users[0].AuthID)
	assert.Equal(t, "5", *bogus.NextCursor)

	beyond, err := svc.ListUsers(ctx, ListUsersParams{Cursor: "500"})
	require.NoError(t, err)
	assert.Empty(t, beyond.Users)
	assert.Nil(t, beyond.NextCursor)
}

func TestListUsersFilters(t *testing.T) {
	setupTestDB(t)
	svc := NewAdminService(nil)
	now := time.Now()
	createTestUser(t, "admin_01", "admin@example.com", models.RoleAdmin, now)
	ada := createTestUser(t, "user_01", "ada@example.com", models.RoleUser, now)
	require.NoError(t, models.DB.Model(ada).Update("name", "Ada Lovelace").Error)
	createTestUser(t, "user_02", "bob@example.com", models.RoleBanned, now)
	ctx := asUser("admin_01")

	page, err := svc.ListUsers(ctx, ListUsersParams{Search: "LOVELACE"})
	require.NoError(t, err)
	require.Len(t, page.Users, 1)
	assert.Equal(t, "user_01", page.Users[0].AuthID)

	page, err = svc.ListUsers(ctx, ListUsersParams{Search: "example.com", Role: models.RoleBanned})
	require.NoError(t, err)
	require.Len(t, page.Users, 1)
	assert.Equal(t, "user_02", page.Users[0].AuthID)
	assert.Equal(t, 1, page.TotalCount)
}

func TestListUsersSearchOrdersNewestFirst(t *testing.T) {
	setupTestDB(t)
	svc := NewAdminService(nil)
	base := time.Now().Add(-24 * time.Hour)
	createTestUser(t, "admin_01", "root@example.com", models.RoleAdmin, base)
	for _, u := range []struct {
		authID, email, name string
		created             int
	}{
		{"user_alice", "alice@pcstyle.dev", "Alice", 3},
		{"user_al", "al@pcstyle.dev", "Al", 1},
		{"user_bob", "bob@pcstyle.dev", "Bob", 2},
	} {
		created := createTestUser(t, u.authID, u.email, models.RoleUser, base.Add(time.Duration(u.created)*time.Hour))
		require.NoError(t, models.DB.Model(created).Update("name", u.name).Error)
	}

	page, err := svc.ListUsers(asUser("admin_01"), ListUsersParams{Search: "al", Limit: 2})
	require.NoError(t, err)

	names := make([]string, 0, len(page.Users))
	for _, u := range page.Users {
		require.NotNil(t, u.Name)
		names = append(names, *u.Name)
	}
	assert.Equal(t, []string{"Alice", "Al"}, names)
	assert.Nil(t, page.NextCursor)
	assert.Equal(t, 2, page.TotalCount)
}

func TestGetUserDetail(t *testing.T) {
	setupTestDB(t)
	svc := NewAdminService(nil)
	createTestUser(t, "admin_01", "admin@example.com", models.RoleAdmin, time.Now())
	target := createTestUser(t, "user_01", "ada@example.com", models.RoleUser, time.Now())
	createTestSession(t, "user_01", "a", time.Now())
	for i := 0; i < 60; i++ {
		require.NoError(t, writeAudit(models.DB, models.ActionProfileUpdated, strp("user_01"), nil, nil))
	}
	ctx := asUser("admin_01")

	detail, err := svc.GetUserDetail(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", detail.User.Email)
	assert.Len(t, detail.Sessions, 1)
	assert.Len(t, detail.AuditLogs, 50)

	_, err = svc.GetUserDetail(ctx, 9999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUpdateUserRole(t *testing.T) {
	setupTestDB(t)
	svc := NewAdminService(nil)
	admin := createTestUser(t, "admin_01", "admin@example.com", models.RoleAdmin, time.Now())
	target := createTestUser(t, "user_01", "ada@example.com", models.RoleUser, time.Now())
	ctx := asUser("admin_01")

	t.Run("self demotion", func(t *testing.T) {
		err := svc.UpdateUserRole(ctx, admin.ID, models.RoleUser)
		assert.ErrorIs(t, err, ErrCannotDemoteSelf)
		assert.ErrorIs(t, err, ErrPreconditionFailed)
		assert.Equal(t, int64(1), countRows(t, &models.User{}, "auth_id = ? AND role = ?", "admin_01", models.RoleAdmin))
	})

	t.Run("self keep admin", func(t *testing.T) {
		assert.NoError(t, svc.UpdateUserRole(ctx, admin.ID, models.RoleAdmin))
	})

	t.Run("invalid role", func(t *testing.T) {
		assert.ErrorIs(t, svc.UpdateUserRole(ctx, target.ID, models.Role("root")), ErrInvalidInput)
	})

	t.Run("missing user", func(t *testing.T) {
		assert.ErrorIs(t, svc.UpdateUserRole(ctx, 9999, models.RoleAdmin), ErrUserNotFound)
	})

	t.Run("promote", func(t *testing.T) {
		require.NoError(t, svc.UpdateUserRole(ctx, target.ID, models.RoleAdmin))
		assert.Equal(t, int64(1), countRows(t, &models.User{}, "auth_id = ? AND role = ?", "user_01", models.RoleAdmin))

		logs := auditLogsFor(t, models.ActionUserRoleChanged)
		last := logs[len(logs)-1]
		assert.Equal(t, "user", last.Metadata["oldRole"])
		assert.Equal(t, "admin", last.Metadata["newRole"])
		require.NotNil(t, last.AdminID)
		assert.Equal(t, "admin_01", *last.AdminID)
	})
}

func TestBanUser(t *testing.T) {
	setupTestDB(t)
	svc := NewAdminService(nil)
	admin := createTestUser(t, "admin_01", "admin@example.com", models.RoleAdmin, time.Now())
	other := createTestUser(t, "admin_02", "other@example.com", models.RoleAdmin, time.Now())
	target := createTestUser(t, "user_01", "ada@example.com", models.RoleUser, time.Now())
	createTestSession(t, "user_01", "a", time.Now())
	createTestSession(t, "user_01", "b", time.Now())
	ctx := asUser("admin_01")

	createTestSession(t, "admin_01", "self", time.Now())
	createTestSession(t, "admin_02", "other", time.Now())

	assert.ErrorIs(t, svc.BanUser(ctx, admin.ID, nil), ErrCannotBanSelf)
	assert.ErrorIs(t, svc.BanUser(ctx, other.ID, nil), ErrCannotBanAdmin)
	assert.ErrorIs(t, svc.BanUser(ctx, 9999, nil), ErrUserNotFound)

	for _, authID := range []string{"admin_01", "admin_02"} {
		assert.Equal(t, int64(1), countRows(t, &models.User{}, "auth_id = ? AND role = ?", authID, models.RoleAdmin))
		assert.Equal(t, int64(1), countRows(t, &models.Session{}, "user_id = ?", authID))
	}
	assert.Empty(t, auditLogsFor(t, models.ActionUserBanned))

	require.NoError(t, svc.BanUser(ctx, target.ID, strp("abuse")))

	assert.Equal(t, int64(1), countRows(t, &models.User{}, "auth_id = ? AND role = ?", "user_01", models.RoleBanned))
	assert.Equal(t, int64(0), countRows(t, &models.Session{}, "user_id = ?", "user_01"))

	logs := auditLogsFor(t, models.ActionUserBanned)
	require.Len(t, logs, 1)
	assert.Equal(t, "abuse", logs[0].Metadata["reason"])
	assert.Equal(t, float64(2), logs[0].Metadata["sessionsRevoked"])
}

func TestUnbanUser(t *testing.T) {
	setupTestDB(t)
	svc := NewAdminService(nil)
	createTestUser(t, "admin_01", "admin@example.com", models.RoleAdmin, time.Now())
	active := createTestUser(t, "user_01", "ada@example.com", models.RoleUser, time.Now())
	banned := createTestUser(t, "user_02", "bob@example.com", models.RoleBanned, time.Now())
	ctx := asUser("admin_01")

	err := svc.UnbanUser(ctx, active.ID)
	assert.ErrorIs(t, err, ErrUserNotBanned)
	assert.Empty(t, auditLogsFor(t, models.ActionUserUnbanned))

	require.NoError(t, svc.UnbanUser(ctx, banned.ID))
	assert.Equal(t, int64(1), countRows(t, &models.User{}, "auth_id = ? AND role = ?", "user_02", models.RoleUser))

	logs := auditLogsFor(t, models.ActionUserUnbanned)
	require.Len(t, logs, 1)
	assert.Empty(t, logs[0].Metadata)
}

func TestGetAuditLogs(t *testing.T) {
	setupTestDB(t)
	svc := NewAdminService(nil)
	createTestUser(t, "admin_01", "admin@example.com", models.RoleAdmin, time.Now())
	for i := 0; i < 5; i++ {
		require.NoError(t, writeAudit(models.DB, models.ActionSessionRevoked, strp("user_01"), nil, nil))
		require.NoError(t, writeAudit(models.DB, models.ActionProfileUpdated, strp("user_02"), nil, nil))
	}
	ctx := asUser("admin_01")

	all, err := svc.GetAuditLogs(ctx, AuditLogParams{})
	require.NoError(t, err)
	assert.Len(t, all, 10)
	assert.True(t, !all[0].Timestamp.Before(all[9].Timestamp), "newest first")

	revoked, err := svc.GetAuditLogs(ctx, AuditLogParams{Action: models.ActionSessionRevoked, Limit: 3})
	require.NoError(t, err)
	require.Len(t, revoked, 3)
	for _, l := range revoked {
		assert.Equal(t, models.ActionSessionRevoked, l.Action)
	}

	byUser, err := svc.GetAuditLogs(ctx, AuditLogParams{UserID: "user_02"})
	require.NoError(t, err)
	assert.Len(t, byUser, 5)
}

func TestGetAuditLogsWindow(t *testing.T) {
	setupTestDB(t)
	svc := NewAdminService(nil)
	createTestUser(t, "admin_01", "admin@example.com", models.RoleAdmin, time.Now())
	ctx := asUser("admin_01")

	old := time.Now().Add(-time.Hour)
	require.NoError(t, models.DB.Create(&models.AuditLog{
		Action:    models.ActionUserBanned,
		UserID:    strp("user_01"),
		Timestamp: old,
	}).Error)

	newer := make([]models.AuditLog, 0, 500)
	for i := 0; i < 500; i++ {
		newer = append(newer, models.AuditLog{
			Action:    models.ActionProfileUpdated,
			UserID:    strp("user_02"),
			Timestamp: old.Add(time.Duration(i+1) * time.Second),
		})
	}
	require.NoError(t, models.DB.CreateInBatches(newer, 100).Error)

	banned, err := svc.GetAuditLogs(ctx, AuditLogParams{Action: models.ActionUserBanned})
	require.NoError(t, err)
	assert.Empty(t, banned, "entries older than the newest 500 are not searched")

	byUser, err := svc.GetAuditLogs(ctx, AuditLogParams{UserID: "user_01"})
	require.NoError(t, err)
	assert.Empty(t, byUser)

	all, err := svc.GetAuditLogs(ctx, AuditLogParams{Limit: 1000})
	require.NoError(t, err)
	assert.Len(t, all, 500)

	require.NoError(t, writeAudit(models.DB, models.ActionUserBanned, strp("user_03"), nil, nil))
	banned, err = svc.GetAuditLogs(ctx, AuditLogParams{Action: models.ActionUserBanned})
	require.NoError(t, err)
	require.Len(t, banned, 1)
	require.NotNil(t, banned[0].UserID)
	assert.Equal(t, "user_03", *banned[0].UserID)
}
