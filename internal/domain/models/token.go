package models

import "time"

// RefreshToken represents a refresh token stored in the database.
// Only the SHA-256 hash of the raw value is ever persisted.
type RefreshToken struct {
	TokenHash      string
	UserID         int64
	CreatedAt      time.Time
	ExpiresAt      time.Time
	RevokedAt      *time.Time
	ReplacedByHash *string
}

// Revoked reports whether the token has been rotated or explicitly revoked.
func (t *RefreshToken) Revoked() bool {
	return t.RevokedAt != nil
}

// Expired reports whether the token is past its expiry at the given instant.
func (t *RefreshToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
