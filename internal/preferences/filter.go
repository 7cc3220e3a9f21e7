package preferences

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/relaypoint/notifier/internal/domain"
	"github.com/relaypoint/notifier/internal/messaging/rabbitmq"
	"github.com/relaypoint/notifier/internal/metrics"
)

// Deny reasons, used in logs and failure metrics.
const (
	reasonMarketingDefault = "marketing_default"
	reasonDisabled         = "disabled"
	reasonQuietHours       = "quiet_hours"
	reasonRateLimited      = "rate_limited"
)

// PreferenceStore loads the rule for one (user, channel, event_type) triple.
type PreferenceStore interface {
	Get(ctx context.Context, userID string, channel domain.Channel, eventType domain.EventType) (*domain.Preference, error)
}

// RateLimiter advances the sliding window counter and answers allow/deny.
type RateLimiter interface {
	Allow(ctx context.Context, userID, channel, eventType string) (bool, error)
}

// Publisher publishes routed events downstream.
type Publisher interface {
	PublishJSON(ctx context.Context, routingKey string, v any) error
}

// Filter decides, per requested channel, whether delivery is permitted
// right now, and publishes one routed event per allowed channel.
type Filter struct {
	prefs   PreferenceStore
	limiter RateLimiter
	pub     Publisher
	lg      zerolog.Logger
	now     func() time.Time
}

// NewFilter wires the preference stage.
func NewFilter(prefs PreferenceStore, limiter RateLimiter, pub Publisher, lg zerolog.Logger) *Filter {
	return &Filter{
		prefs:   prefs,
		limiter: limiter,
		pub:     pub,
		lg:      lg.With().Str("component", "preferences").Logger(),
		now:     time.Now,
	}
}

// Handle consumes one enriched event from notifications.enriched.
func (f *Filter) Handle(ctx context.Context, d amqp.Delivery) rabbitmq.Decision {
	var ev domain.EnrichedEvent
	if err := json.Unmarshal(d.Body, &ev); err != nil {
		f.lg.Error().Err(err).Msg("undecodable enriched event; dropping")
		metrics.RecordEventFailed("unknown", "validation")
		return rabbitmq.DecisionDrop
	}
	metrics.RecordEventReceived(string(ev.EventType))

	allowed := 0
	for _, ch := range ev.Channels {
		ok, reason, err := f.decide(ctx, &ev, ch)
		if err != nil {
			f.lg.Error().Err(err).Str("event_id", ev.EventID).Str("channel", string(ch)).Msg("preference decision failed")
			return rabbitmq.DecisionRetry
		}
		if !ok {
			f.lg.Debug().
				Str("event_id", ev.EventID).
				Str("channel", string(ch)).
				Str("reason", reason).
				Msg("channel denied")
			continue
		}

		routed := domain.RoutedEvent{EnrichedEvent: ev, Channel: ch}
		if err := f.pub.PublishJSON(ctx, rabbitmq.RoutedSubject(ch), routed); err != nil {
			f.lg.Error().Err(err).Str("event_id", ev.EventID).Str("channel", string(ch)).Msg("publish routed failed")
			return rabbitmq.DecisionRetry
		}
		allowed++
	}

	if allowed == 0 {
		f.lg.Info().
			Str("event_id", ev.EventID).
			Str("user_id", ev.UserID).
			Msg("all channels denied; nothing routed")
	}
	metrics.RecordEventProcessed(string(ev.EventType))
	return rabbitmq.DecisionAck
}

// decide applies the rule ladder; the first denial wins. Only a decision
// that survives rules 1–3 advances the rate-limit counter.
func (f *Filter) decide(ctx context.Context, ev *domain.EnrichedEvent, ch domain.Channel) (bool, string, error) {
	pref, err := f.prefs.Get(ctx, ev.UserID, ch, ev.EventType)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return false, "", err
	}

	if pref == nil {
		// No stored rule: marketing is opt-in, transactional types default-allow.
		if ev.EventType == domain.EventMarketing {
			return false, reasonMarketingDefault, nil
		}
	} else {
		if !pref.Enabled {
			return false, reasonDisabled, nil
		}
		if pref.HasQuietHours() {
			quiet, err := InQuietHours(f.now(), pref.QuietHoursStart, pref.QuietHoursEnd)
			if err != nil {
				// Unparseable window: log and fall through rather than
				// silencing the user forever.
				f.lg.Error().Err(err).Str("user_id", ev.UserID).Msg("bad quiet hours window")
			} else if quiet {
				return false, reasonQuietHours, nil
			}
		}
	}

	ok, err := f.limiter.Allow(ctx, ev.UserID, string(ch), string(ev.EventType))
	if err != nil {
		return false, "", err
	}
	if !ok {
		return false, reasonRateLimited, nil
	}
	return true, "", nil
}
