package models

import (
	"time"

	"gorm.io/datatypes"
)

type Role string

const (
	RoleUser   Role = "user"
	RoleAdmin  Role = "admin"
	RoleBanned Role = "banned"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleBanned:
		return true
	}
	return false
}

// User mirrors an identity-provider account. AuthID is the provider's user id.
type User struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	AuthID    string    `json:"authId" gorm:"type:varchar(255);uniqueIndex;not null"`
	Email     string    `json:"email" gorm:"type:varchar(255);index;not null"`
	Name      *string   `json:"name,omitempty" gorm:"type:varchar(255)"`
	AvatarURL *string   `json:"avatarUrl,omitempty" gorm:"type:varchar(1024)"`
	Role      Role      `json:"role" gorm:"type:varchar(50);default:'user'"` // user, admin, banned
	CreatedAt time.Time `json:"createdAt" gorm:"index"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Session is a device session tracked locally. UserID holds the owner's AuthID.
type Session struct {
	ID         string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	UserID     string    `json:"userId" gorm:"type:varchar(255);not null;index"`
	DeviceInfo string    `json:"deviceInfo" gorm:"type:varchar(500)"`
	IPAddress  *string   `json:"ipAddress,omitempty" gorm:"type:varchar(45)"`
	LastActive time.Time `json:"lastActive" gorm:"not null;index"`
	CreatedAt  time.Time `json:"createdAt"`
}

type AuditAction string

const (
	ActionProfileUpdated     AuditAction = "profile.updated"
	ActionSessionRevoked     AuditAction = "session.revoked"
	ActionSessionsRevokedAll AuditAction = "sessions.revoked_all"
	ActionAccountDeleted     AuditAction = "account.deleted"
	ActionUserRoleChanged    AuditAction = "user.role_changed"
	ActionUserBanned         AuditAction = "user.banned"
	ActionUserUnbanned       AuditAction = "user.unbanned"
)

// AuditLog is append-only. UserID and AdminID are AuthIDs and may outlive the user row.
type AuditLog struct {
	ID        uint              `json:"id" gorm:"primaryKey"`
	Action    AuditAction       `json:"action" gorm:"type:varchar(50);not null;index"`
	UserID    *string           `json:"userId,omitempty" gorm:"type:varchar(255);index"`
	AdminID   *string           `json:"adminId,omitempty" gorm:"type:varchar(255)"`
	Metadata  datatypes.JSONMap `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp" gorm:"not null;index"`
}
