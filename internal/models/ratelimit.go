package models

import "time"

// RateLimitState is one sliding-window counter row, keyed by strings like
// "login:ip:1.2.3.4" or "reset:email:a@b.com".
type RateLimitState struct {
	Key             string     `db:"key" json:"key"`
	WindowStartedAt time.Time  `db:"window_started_at" json:"window_started_at"`
	Count           int        `db:"count" json:"count"`
	BlockedUntil    *time.Time `db:"blocked_until" json:"blocked_until,omitempty"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}
