package domain

import "time"

// DeliveryStatus is the terminal (or in-flight) state of a delivery attempt.
type DeliveryStatus string

const (
	StatusPending   DeliveryStatus = "pending"
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusFailed    DeliveryStatus = "failed"
	StatusBounced   DeliveryStatus = "bounced"
)

func (s DeliveryStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSent, StatusDelivered, StatusFailed, StatusBounced:
		return true
	}
	return false
}

// Delivery is the audit row written by a delivery worker after an attempt
// concludes. Rows are never mutated after reaching a terminal status.
type Delivery struct {
	ID           string         `json:"id"`
	UserID       string         `json:"user_id"`
	Channel      Channel        `json:"channel"`
	EventType    EventType      `json:"event_type"`
	EventID      string         `json:"event_id"`
	Status       DeliveryStatus `json:"status"`
	AttemptCount int            `json:"attempt_count"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Error        string         `json:"error,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeliveredAt  *time.Time     `json:"delivered_at,omitempty"`
}
