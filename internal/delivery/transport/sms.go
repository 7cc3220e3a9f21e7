package transport

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/relaypoint/notifier/internal/domain"
)

// SMSAdapter is a simulated SMS provider. It performs the same recipient
// checks a real gateway integration would, then logs the send.
type SMSAdapter struct {
	lg zerolog.Logger
}

// NewSMSAdapter builds the simulated SMS adapter.
func NewSMSAdapter(lg zerolog.Logger) *SMSAdapter {
	return &SMSAdapter{lg: lg.With().Str("transport", "sms-sim").Logger()}
}

func (a *SMSAdapter) Name() string { return "sms-sim" }

func (a *SMSAdapter) Send(ctx context.Context, n *domain.RenderedNotification) (Result, error) {
	if n.UserPhone == "" {
		return Result{}, domain.NewTerminalError("no phone number on record", nil)
	}

	a.lg.Info().
		Str("event_id", n.EventID).
		Str("to", n.UserPhone).
		Int("length", len(n.Body)).
		Msg("sms sent")

	return Result{
		Recipient: n.UserPhone,
		Metadata: map[string]any{
			"transport": a.Name(),
			"recipient": n.UserPhone,
		},
	}, nil
}
