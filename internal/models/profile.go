package models

import (
	"strings"
	"time"
)

// Profile is the public projection of a user owned by the identity provider.
// It is read-only to the chat and notification services.
type Profile struct {
	// ID is the stable user identifier issued by the identity provider.
	ID string `json:"id"`

	// Username is the unique handle.
	Username string `json:"username"`

	// DisplayName is the optional human-friendly name.
	DisplayName string `json:"display_name,omitempty"`

	// AvatarURL references the user's avatar image.
	AvatarURL string `json:"avatar_url,omitempty"`

	// CreatedAt is when the profile was created.
	CreatedAt time.Time `json:"created_at"`
}

// Name returns the display name, falling back to the username.
func (p *Profile) Name() string {
	if p == nil {
		return ""
	}
	if name := strings.TrimSpace(p.DisplayName); name != "" {
		return name
	}
	return p.Username
}

// Validate checks that the profile has an id and username.
func (p *Profile) Validate() error {
	validation := &ValidationErrors{}
	validation.RequireID("id", p.ID, ErrInvalidUserID)
	validation.RequireText("username", p.Username, ErrInvalidUsername)
	return validation.Err()
}

// PoemRef is the read-only poem projection attached to notifications.
type PoemRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Poem is the minimal poem row the notification feed joins against.
type Poem struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}
