// Package model defines domain entities for the application.
package model

import "time"

// User is one tracked Mini App visitor, keyed by Telegram user ID.
// Telegram IDs are positive and fit in int64 (BIGINT in Postgres).
type User struct {
	ID          int64      `json:"id"`
	Username    string     `json:"username,omitempty"`
	FirstName   string     `json:"first_name,omitempty"`
	LastName    string     `json:"last_name,omitempty"`
	FirstSeenAt time.Time  `json:"first_seen_at"`
	LastSeenAt  time.Time  `json:"last_seen_at"`
	LastLeadAt  *time.Time `json:"last_lead_at,omitempty"`
}
