package transport

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/relaypoint/notifier/internal/domain"
)

// PushAdapter is a simulated push provider that fans out to every
// registered device token.
type PushAdapter struct {
	lg zerolog.Logger
}

// NewPushAdapter builds the simulated push adapter.
func NewPushAdapter(lg zerolog.Logger) *PushAdapter {
	return &PushAdapter{lg: lg.With().Str("transport", "push-sim").Logger()}
}

func (a *PushAdapter) Name() string { return "push-sim" }

func (a *PushAdapter) Send(ctx context.Context, n *domain.RenderedNotification) (Result, error) {
	if len(n.UserPushTokens) == 0 {
		return Result{}, domain.NewTerminalError("no push tokens on record", nil)
	}

	a.lg.Info().
		Str("event_id", n.EventID).
		Int("devices", len(n.UserPushTokens)).
		Str("title", n.Subject).
		Msg("push sent")

	return Result{
		Recipient: n.UserID,
		Metadata: map[string]any{
			"transport": a.Name(),
			"devices":   len(n.UserPushTokens),
		},
	}, nil
}
