package models

import "time"

// RefreshToken represents a persisted refresh session. Only the digest of
// the raw token is stored; ReplacedByHash links a rotated-out token to its
// successor so replay of a stale token is detectable.
type RefreshToken struct {
	ID             string     `db:"id" json:"id"`
	UserID         string     `db:"user_id" json:"user_id"`
	TokenHash      string     `db:"token_hash" json:"-"`
	ReplacedByHash *string    `db:"replaced_by_hash" json:"-"`
	ExpiresAt      time.Time  `db:"expires_at" json:"expires_at"`
	RevokedAt      *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	IP             string     `db:"ip" json:"ip"`
	UserAgent      string     `db:"user_agent" json:"user_agent"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// Usable reports whether the token can still open a session.
func (t *RefreshToken) Usable(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// EmailVerificationToken is a one-time token mailed after registration.
type EmailVerificationToken struct {
	ID        string     `db:"id" json:"id"`
	UserID    string     `db:"user_id" json:"user_id"`
	TokenHash string     `db:"token_hash" json:"-"`
	ExpiresAt time.Time  `db:"expires_at" json:"expires_at"`
	UsedAt    *time.Time `db:"used_at" json:"used_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// PasswordResetToken stores the digest of a short human-typeable reset
// code. One-time use via UsedAt, short TTL.
type PasswordResetToken struct {
	ID        string     `db:"id" json:"id"`
	UserID    string     `db:"user_id" json:"user_id"`
	TokenHash string     `db:"token_hash" json:"-"`
	ExpiresAt time.Time  `db:"expires_at" json:"expires_at"`
	UsedAt    *time.Time `db:"used_at" json:"used_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}
