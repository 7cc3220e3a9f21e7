package delivery

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/relaypoint/notifier/internal/delivery/transport"
	"github.com/relaypoint/notifier/internal/domain"
	"github.com/relaypoint/notifier/internal/messaging/rabbitmq"
	"github.com/relaypoint/notifier/internal/metrics"
	storageredis "github.com/relaypoint/notifier/internal/storage/redis"
)

// breakerThreshold is the consecutive-failure count that trips a worker's
// circuit breaker.
const breakerThreshold = 5

// Profile carries the channel-specific retry pacing.
type Profile struct {
	// Delays is the backoff ladder indexed by prior attempt count; the
	// last entry repeats. Empty means no pre-send delay.
	Delays []time.Duration
	// Cooldown is how long the breaker stays open after tripping.
	Cooldown time.Duration
}

// ProfileFor returns the retry pacing for a channel.
func ProfileFor(ch domain.Channel) Profile {
	switch ch {
	case domain.ChannelSMS:
		return Profile{
			Delays:   []time.Duration{2 * time.Second, 10 * time.Second, 30 * time.Second},
			Cooldown: 15 * time.Second,
		}
	case domain.ChannelInApp:
		// Row writes are local; a redelivery is pacing enough.
		return Profile{Cooldown: 10 * time.Second}
	default: // email, push
		return Profile{
			Delays:   []time.Duration{1 * time.Second, 5 * time.Second, 15 * time.Second},
			Cooldown: 10 * time.Second,
		}
	}
}

// DeliveryStore persists audit rows.
type DeliveryStore interface {
	Insert(ctx context.Context, d *domain.Delivery) error
}

// Publisher publishes dead-letter entries.
type Publisher interface {
	PublishJSON(ctx context.Context, routingKey string, v any) error
}

// Broadcaster pushes stored in-app notifications to the realtime fan-out
// layer.
type Broadcaster interface {
	Publish(ctx context.Context, payload storageredis.BroadcastPayload) error
}

// Worker consumes rendered notifications for one channel, sends them
// through the channel's transport, and writes the audit row before acking.
type Worker struct {
	channel    domain.Channel
	adapter    transport.Adapter
	deliveries DeliveryStore
	pub        Publisher
	broadcast  Broadcaster // nil for every channel but in_app
	breaker    *Breaker
	delays     []time.Duration
	maxRetries int
	lg         zerolog.Logger
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration)
}

// NewWorker wires a delivery worker with the channel's retry profile.
func NewWorker(ch domain.Channel, adapter transport.Adapter, deliveries DeliveryStore, pub Publisher, broadcast Broadcaster, maxRetries int, lg zerolog.Logger) *Worker {
	prof := ProfileFor(ch)
	return &Worker{
		channel:    ch,
		adapter:    adapter,
		deliveries: deliveries,
		pub:        pub,
		broadcast:  broadcast,
		breaker:    NewBreaker(breakerThreshold, prof.Cooldown),
		delays:     prof.Delays,
		maxRetries: maxRetries,
		lg:         lg.With().Str("component", "delivery").Str("channel", string(ch)).Logger(),
		now:        time.Now,
		sleep:      sleepCtx,
	}
}

// Handle consumes one rendered notification from notifications.delivery.<channel>.
func (w *Worker) Handle(ctx context.Context, d amqp.Delivery) rabbitmq.Decision {
	// An open breaker pauses the worker in place. Prefetch caps in-flight
	// messages, so blocking here stops further fetching; the wait never
	// touches the message's attempt budget.
	if wait := w.breaker.Remaining(); wait > 0 {
		w.lg.Warn().Dur("cooldown", wait).Msg("circuit open; pausing deliveries")
		w.sleep(ctx, wait)
		if ctx.Err() != nil {
			return rabbitmq.DecisionRequeue
		}
	}
	w.breaker.Resume()

	var n domain.RenderedNotification
	if err := json.Unmarshal(d.Body, &n); err != nil {
		w.lg.Error().Err(err).Msg("undecodable rendered notification; dropping")
		metrics.RecordEventFailed("unknown", "validation")
		return rabbitmq.DecisionDrop
	}

	attempt := rabbitmq.Attempt(d.Headers)
	attempts := attempt + 1

	// Redeliveries wait out the channel's backoff before hitting the
	// provider again.
	if attempt > 0 && len(w.delays) > 0 {
		idx := attempt - 1
		if idx >= len(w.delays) {
			idx = len(w.delays) - 1
		}
		w.sleep(ctx, w.delays[idx])
	}

	if n.Expired(w.now().UTC()) {
		return w.recordBounced(ctx, &n, attempt)
	}

	start := w.now()
	res, err := w.adapter.Send(ctx, &n)
	metrics.ObserveDeliveryDuration(string(w.channel), w.now().Sub(start))

	if err != nil {
		return w.handleFailure(ctx, &n, attempts, err)
	}

	w.breaker.RecordSuccess()

	deliveredAt := w.now().UTC()
	row := &domain.Delivery{
		UserID:       n.UserID,
		Channel:      w.channel,
		EventType:    n.EventType,
		EventID:      n.EventID,
		Status:       domain.StatusDelivered,
		AttemptCount: attempts,
		Metadata:     w.rowMetadata(&n, res),
		DeliveredAt:  &deliveredAt,
	}
	// Row before ack: losing the audit trail is worse than a duplicate send.
	if err := w.deliveries.Insert(ctx, row); err != nil {
		w.lg.Error().Err(err).Str("event_id", n.EventID).Msg("delivery row write failed")
		return rabbitmq.DecisionRetry
	}
	metrics.RecordDelivery(string(w.channel), string(domain.StatusDelivered))

	if w.broadcast != nil {
		w.broadcastRow(ctx, &n, row)
	}

	w.lg.Info().
		Str("event_id", n.EventID).
		Str("recipient", res.Recipient).
		Int("attempts", attempts).
		Msg("notification delivered")
	return rabbitmq.DecisionAck
}

// handleFailure picks between another redelivery and the dead-letter path.
func (w *Worker) handleFailure(ctx context.Context, n *domain.RenderedNotification, attempts int, sendErr error) rabbitmq.Decision {
	w.breaker.RecordFailure()

	if domain.IsTransient(sendErr) && attempts < w.maxRetries {
		w.lg.Warn().Err(sendErr).
			Str("event_id", n.EventID).
			Int("attempt", attempts).
			Msg("send failed; will retry")
		return rabbitmq.DecisionRetry
	}

	entry := domain.DLQEntry{
		RenderedNotification: *n,
		Error:                sendErr.Error(),
		MovedToDLQAt:         w.now().UTC(),
	}
	if err := w.pub.PublishJSON(ctx, rabbitmq.SubjectDLQ, entry); err != nil {
		w.lg.Error().Err(err).Str("event_id", n.EventID).Msg("dlq publish failed")
		return rabbitmq.DecisionRetry
	}

	row := &domain.Delivery{
		UserID:       n.UserID,
		Channel:      w.channel,
		EventType:    n.EventType,
		EventID:      n.EventID,
		Status:       domain.StatusFailed,
		AttemptCount: attempts,
		Error:        sendErr.Error(),
	}
	if err := w.deliveries.Insert(ctx, row); err != nil {
		w.lg.Error().Err(err).Str("event_id", n.EventID).Msg("failed row write failed")
		return rabbitmq.DecisionRetry
	}

	metrics.RecordDelivery(string(w.channel), string(domain.StatusFailed))
	metrics.RecordEventFailed(string(n.EventType), "delivery")
	w.lg.Error().Err(sendErr).
		Str("event_id", n.EventID).
		Int("attempts", attempts).
		Msg("delivery dead-lettered")
	return rabbitmq.DecisionAck
}

// recordBounced writes the audit row for a notification that expired before
// it could be sent.
func (w *Worker) recordBounced(ctx context.Context, n *domain.RenderedNotification, priorAttempts int) rabbitmq.Decision {
	row := &domain.Delivery{
		UserID:       n.UserID,
		Channel:      w.channel,
		EventType:    n.EventType,
		EventID:      n.EventID,
		Status:       domain.StatusBounced,
		AttemptCount: priorAttempts,
		Error:        "expired before delivery",
	}
	if err := w.deliveries.Insert(ctx, row); err != nil {
		w.lg.Error().Err(err).Str("event_id", n.EventID).Msg("bounced row write failed")
		return rabbitmq.DecisionRetry
	}
	metrics.RecordDelivery(string(w.channel), string(domain.StatusBounced))
	w.lg.Warn().Str("event_id", n.EventID).Msg("notification expired; bounced")
	return rabbitmq.DecisionAck
}

func (w *Worker) rowMetadata(n *domain.RenderedNotification, res transport.Result) map[string]any {
	meta := make(map[string]any, len(res.Metadata)+1)
	for k, v := range res.Metadata {
		meta[k] = v
	}
	if n.Subject != "" {
		meta["subject"] = n.Subject
	}
	return meta
}

// broadcastRow tells the realtime fan-out layer about a stored in-app
// notification. Best effort: the row is already durable.
func (w *Worker) broadcastRow(ctx context.Context, n *domain.RenderedNotification, row *domain.Delivery) {
	payload := storageredis.BroadcastPayload{
		UserID: n.UserID,
		Notification: storageredis.BroadcastNotification{
			ID:        row.ID,
			EventID:   n.EventID,
			EventType: string(n.EventType),
			Subject:   n.Subject,
			Body:      n.Body,
			Priority:  string(n.Priority),
			CreatedAt: row.CreatedAt.UTC().Format(time.RFC3339),
		},
	}
	if err := w.broadcast.Publish(ctx, payload); err != nil {
		w.lg.Warn().Err(err).Str("event_id", n.EventID).Msg("realtime broadcast failed")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
