package transport

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/relaypoint/notifier/internal/domain"
)

// InAppAdapter stores in-app notifications. The audit row IS the inbox
// entry, so sending has no external call; the worker broadcasts the row to
// the realtime fan-out layer after it is written.
type InAppAdapter struct {
	lg zerolog.Logger
}

// NewInAppAdapter builds the in-app adapter.
func NewInAppAdapter(lg zerolog.Logger) *InAppAdapter {
	return &InAppAdapter{lg: lg.With().Str("transport", "in_app").Logger()}
}

func (a *InAppAdapter) Name() string { return "in_app" }

func (a *InAppAdapter) Send(ctx context.Context, n *domain.RenderedNotification) (Result, error) {
	a.lg.Debug().
		Str("event_id", n.EventID).
		Str("user_id", n.UserID).
		Msg("in-app notification stored")

	return Result{
		Recipient: n.UserID,
		Metadata: map[string]any{
			"transport": a.Name(),
		},
	}, nil
}
