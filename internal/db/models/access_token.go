// Package models - access_token.go defines the AccessToken record that backs every issued
// bearer credential. Records are keyed by the JWT "jti" claim and are never deleted.
package models

import "time"

// AccessToken represents the server-side state of an issued bearer credential
type AccessToken struct {
	ID        string     `db:"id"` // jti
	UserID    string     `db:"user_id"`
	Scope     string     `db:"scope"` // space separated
	IssuedAt  time.Time  `db:"issued_at"`
	ExpiresAt *time.Time `db:"expires_at"` // nil = never expires
	RevokedAt *time.Time `db:"revoked_at"`
	UserIP    *string    `db:"user_ip"`
}

// IsExpired reports whether the record has an expiry at or before now
func (t *AccessToken) IsExpired(now time.Time) bool {
	return t.ExpiresAt != nil && !t.ExpiresAt.After(now)
}

// IsRevoked reports whether the record has been revoked
func (t *AccessToken) IsRevoked() bool {
	return t.RevokedAt != nil
}
