// Package models - user.go defines the User model for accounts that own access tokens and webhooks.
package models

import "time"

// User represents a registered account
type User struct {
	ID           string    `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// UserProfile is the public view of a user returned by GET /auth/user
type UserProfile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Profile strips credentials from the user
func (u *User) Profile() UserProfile {
	return UserProfile{ID: u.ID, Username: u.Username}
}
