package events

// Kind is the lifecycle change carried by a UserEvent.
type Kind string

const (
	UserCreated     Kind = "created"
	UserUpdated     Kind = "updated"
	UserDeleted     Kind = "deleted"
	UserRoleChanged Kind = "role_changed"
	UserBanned      Kind = "banned"
	UserUnbanned    Kind = "unbanned"
)

// EventMetadata is common to every published event.
type EventMetadata struct {
	EventID   string `json:"event_id"`
	EntityID  string `json:"entity_id"`
	Timestamp int64  `json:"timestamp"`
	Source    string `json:"source"`
}

// User is the user projection published to sibling services.
type User struct {
	AuthID string  `json:"auth_id"`
	Email  string  `json:"email"`
	Name   *string `json:"name,omitempty"`
	Role   string  `json:"role"`
}

type UserEvent struct {
	Metadata EventMetadata `json:"metadata"`
	Kind     Kind          `json:"kind"`
	User     User          `json:"user"`
}
