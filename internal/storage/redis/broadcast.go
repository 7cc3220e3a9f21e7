package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// BroadcastChannel is the pub/sub channel the realtime fan-out layer
// subscribes to for in-app notifications.
const BroadcastChannel = "ws:notifications"

// Broadcaster publishes in-app notification records for realtime fan-out.
type Broadcaster struct {
	client *redis.Client
}

// NewBroadcaster creates a broadcaster on the shared client.
func NewBroadcaster(client *redis.Client) *Broadcaster {
	return &Broadcaster{client: client}
}

// BroadcastPayload is the compact record observed by websocket fan-out.
type BroadcastPayload struct {
	UserID       string                `json:"user_id"`
	Notification BroadcastNotification `json:"notification"`
}

// BroadcastNotification carries the fields a client renders immediately.
type BroadcastNotification struct {
	ID        string `json:"id"`
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Subject   string `json:"subject,omitempty"`
	Body      string `json:"body"`
	Priority  string `json:"priority"`
	CreatedAt string `json:"created_at"`
}

// Publish sends the payload to the broadcast channel.
func (b *Broadcaster) Publish(ctx context.Context, payload BroadcastPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal broadcast: %w", err)
	}
	if err := b.client.Publish(ctx, BroadcastChannel, data).Err(); err != nil {
		return fmt.Errorf("publish broadcast: %w", err)
	}
	return nil
}
