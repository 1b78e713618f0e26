// Package identity resolves the acting user. Every chat and notification
// operation trusts the id it returns.
package identity

import (
	"context"
	"errors"
	"strings"
)

// ErrNoSession means no user is signed in.
var ErrNoSession = errors.New("no active session")

// User is the signed-in identity.
type User struct {
	ID            string `json:"id"`
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified"`
}

// Provider yields the current user.
type Provider interface {
	CurrentUser(ctx context.Context) (*User, error)
}

// StaticProvider trusts a configured user id. Used for local operation and
// tests.
type StaticProvider struct {
	user *User
}

// NewStaticProvider returns a provider for userID. An empty id yields a
// provider with no session.
func NewStaticProvider(userID string) *StaticProvider {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return &StaticProvider{}
	}
	return &StaticProvider{user: &User{ID: userID, EmailVerified: true}}
}

// CurrentUser returns the configured user or ErrNoSession.
func (p *StaticProvider) CurrentUser(context.Context) (*User, error) {
	if p.user == nil {
		return nil, ErrNoSession
	}
	u := *p.user
	return &u, nil
}
