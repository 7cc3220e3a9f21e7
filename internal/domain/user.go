package domain

import "time"

// User is a notification recipient. The pipeline only reads users; the
// submission layer owns their lifecycle.
type User struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone,omitempty"`
	PushTokens []string  `json:"push_tokens,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Preference is a per-user delivery rule keyed by (user_id, channel,
// event_type). At most one row exists per triple.
type Preference struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Channel         Channel   `json:"channel"`
	EventType       EventType `json:"event_type"`
	Enabled         bool      `json:"enabled"`
	QuietHoursStart string    `json:"quiet_hours_start,omitempty"` // "HH:MM:SS", UTC
	QuietHoursEnd   string    `json:"quiet_hours_end,omitempty"`   // "HH:MM:SS", UTC
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// HasQuietHours reports whether both window bounds are set.
func (p *Preference) HasQuietHours() bool {
	return p.QuietHoursStart != "" && p.QuietHoursEnd != ""
}

// Template is a rendering rule keyed by (channel, event_type).
type Template struct {
	ID        string    `json:"id"`
	Channel   Channel   `json:"channel"`
	EventType EventType `json:"event_type"`
	Subject   string    `json:"subject,omitempty"`
	Body      string    `json:"body"`
	Variables []string  `json:"variables,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
