// Package models - user.go defines the User model mirroring the auth provider's users table,
// including the confirmation and ban timestamps the tenant checks read.
package models

import "time"

// User represents an account owned by the hosted auth provider
type User struct {
	ID               string
	Email            string
	EmailConfirmedAt *time.Time // Nil until the user confirms their address
	BannedUntil      *time.Time // Nil when the account has never been banned
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsBanned reports whether the ban window is still open at now
func (u *User) IsBanned(now time.Time) bool {
	return u.BannedUntil != nil && u.BannedUntil.After(now)
}

// IsEmailConfirmed reports whether the user has confirmed their email address
func (u *User) IsEmailConfirmed() bool {
	return u.EmailConfirmedAt != nil
}
