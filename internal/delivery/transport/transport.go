// Package transport holds the per-channel send adapters used by the
// delivery workers. Email goes out over SMTP; sms, push, and in_app are
// simulated providers that log what a real integration would send.
package transport

import (
	"context"

	"github.com/relaypoint/notifier/internal/domain"
)

// Result describes a completed send for the delivery audit row.
type Result struct {
	// Recipient is the address, number, or identifier the message went to.
	Recipient string
	// Metadata is merged into the audit row's metadata column.
	Metadata map[string]any
}

// Adapter sends one rendered notification over a single channel.
type Adapter interface {
	Name() string
	Send(ctx context.Context, n *domain.RenderedNotification) (Result, error)
}
