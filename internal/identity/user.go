package identity

import "strings"

// User is the provider's canonical user projection.
type User struct {
	ID                string  `json:"id"`
	Email             string  `json:"email"`
	FirstName         *string `json:"first_name"`
	LastName          *string `json:"last_name"`
	ProfilePictureURL *string `json:"profile_picture_url"`
}

// DisplayName joins first and last name. It returns nil when both are blank.
func (u User) DisplayName() *string {
	name := strings.TrimSpace(deref(u.FirstName) + " " + deref(u.LastName))
	if name == "" {
		return nil
	}
	return &name
}

// AvatarURL returns the profile picture, or nil when the provider sent none.
func (u User) AvatarURL() *string {
	if u.ProfilePictureURL == nil || strings.TrimSpace(*u.ProfilePictureURL) == "" {
		return nil
	}
	v := *u.ProfilePictureURL
	return &v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
