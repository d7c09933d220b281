package model

import (
	"strings"
	"time"
)

// User is the identity provider's view of an authenticated principal.
type User struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Provider    string `json:"provider"`
}

// Name is the display name, or the local part of the email when none is set.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	local, _, _ := strings.Cut(u.Email, "@")
	return local
}

// Account is a credential record of the local password provider.
type Account struct {
	ID           int64     `json:"id"`
	UID          string    `json:"uid"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Profile is the application-side record of a user, created on first sign-in.
type Profile struct {
	UID         string    `json:"uid"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	HostedGames []string  `json:"hosted_games"`
	CreatedAt   time.Time `json:"created_at"`
}
