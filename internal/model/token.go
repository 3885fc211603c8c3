package model

import "time"

// Token is one live session row. Multiple rows per user may coexist
// (one per device); a row is valid while it still exists and
// ExpiresAt is in the future.
type Token struct {
	ID        string    `json:"id"`
	Secret    string    `json:"-"`
	UserID    string    `json:"user_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (t Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Rotation policies: additive keeps prior tokens alive until their own
// expiry; replace revokes every other token for the user when a new one
// is issued through rotation.
const (
	RotationAdditive = "additive"
	RotationReplace  = "replace"
)
