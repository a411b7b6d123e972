package model

import "time"

// Token is a session credential. Only the SHA-256 hash is persisted; the
// raw value is shown once at issuance.
type Token struct {
	ID        int64     `json:"id"`
	Value     string    `json:"-"` // raw token value (only shown on creation)
	Hash      string    `json:"-"` // SHA-256 hash stored in DB
	UserID    int64     `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"` // zero = never expires
	CreatedAt time.Time `json:"created_at"`
}

// IsExpired returns true if the token has expired.
func (t *Token) IsExpired() bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().After(t.ExpiresAt)
}
