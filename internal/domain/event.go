package domain

import "time"

// SubmittedEvent is the raw unit of work published by the submission layer
// onto notifications.events.
type SubmittedEvent struct {
	EventID     string            `json:"event_id" validate:"required"`
	EventType   EventType         `json:"event_type" validate:"required,oneof=account security marketing system"`
	UserID      string            `json:"user_id" validate:"required"`
	Channels    []Channel         `json:"channels" validate:"required,min=1,dive,oneof=email sms push in_app"`
	Priority    Priority          `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
	Data        map[string]any    `json:"data"`
	ScheduledAt *time.Time        `json:"scheduled_at,omitempty"`
	ExpiresAt   *time.Time        `json:"expires_at,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Normalize fills defaulted fields.
func (e *SubmittedEvent) Normalize() {
	if e.Priority == "" {
		e.Priority = PriorityNormal
	}
}

// Expired reports whether the event's expires_at has passed at the given instant.
func (e *SubmittedEvent) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && !e.ExpiresAt.IsZero() && now.After(*e.ExpiresAt)
}

// EnrichedEvent is a submitted event with the recipient's contact snapshot
// attached. Contact fields stay empty when the user is unknown; channels that
// require them fail downstream and surface via the DLQ.
type EnrichedEvent struct {
	SubmittedEvent

	UserEmail      string    `json:"user_email,omitempty"`
	UserPhone      string    `json:"user_phone,omitempty"`
	UserPushTokens []string  `json:"user_push_tokens,omitempty"`
	EnrichedAt     time.Time `json:"enriched_at"`
}

// RoutedEvent is an enriched event narrowed to a single allowed channel.
// The preference filter publishes one per allowed channel.
type RoutedEvent struct {
	EnrichedEvent

	Channel Channel `json:"channel"`
}

// RenderedNotification is a routed event with the channel-specific message
// body attached, ready for a transport adapter.
type RenderedNotification struct {
	RoutedEvent

	Subject    string    `json:"subject,omitempty"`
	Body       string    `json:"body"`
	RenderedAt time.Time `json:"rendered_at"`
}

// DLQEntry is a rendered notification that exhausted its retry budget.
type DLQEntry struct {
	RenderedNotification

	Error        string    `json:"error"`
	MovedToDLQAt time.Time `json:"moved_to_dlq_at"`
}
