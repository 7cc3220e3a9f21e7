package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/relaypoint/notifier/internal/domain"
	"github.com/relaypoint/notifier/internal/messaging/rabbitmq"
	"github.com/relaypoint/notifier/internal/metrics"
)

// maxBodySize guards against poison payloads flooding the pipeline.
const maxBodySize = 1 << 20

// UserStore resolves recipients for enrichment.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// Deduper recognizes repeated event IDs inside the dedup window.
type Deduper interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// Publisher publishes enriched events downstream.
type Publisher interface {
	PublishJSON(ctx context.Context, routingKey string, v any) error
}

// Service turns submitted events into enriched events, at most once per
// event ID inside the dedup window.
type Service struct {
	users    UserStore
	dedup    Deduper
	pub      Publisher
	validate *validator.Validate
	lg       zerolog.Logger
	now      func() time.Time
}

// NewService wires the ingestion stage.
func NewService(users UserStore, dedup Deduper, pub Publisher, lg zerolog.Logger) *Service {
	return &Service{
		users:    users,
		dedup:    dedup,
		pub:      pub,
		validate: validator.New(),
		lg:       lg.With().Str("component", "ingestion").Logger(),
		now:      time.Now,
	}
}

// Handle consumes one submitted event from notifications.events.
func (s *Service) Handle(ctx context.Context, d amqp.Delivery) rabbitmq.Decision {
	if len(d.Body) > maxBodySize {
		s.lg.Error().Int("size", len(d.Body)).Msg("event body too large; dropping")
		metrics.RecordEventFailed("unknown", "too_large")
		return rabbitmq.DecisionDrop
	}

	var ev domain.SubmittedEvent
	if err := json.Unmarshal(d.Body, &ev); err != nil {
		s.lg.Error().Err(err).Msg("undecodable event; dropping")
		metrics.RecordEventFailed("unknown", "validation")
		return rabbitmq.DecisionDrop
	}
	ev.Normalize()

	eventType := string(ev.EventType)
	if eventType == "" {
		eventType = "unknown"
	}
	metrics.RecordEventReceived(eventType)

	if err := s.validateEvent(&ev); err != nil {
		s.lg.Warn().Err(err).Str("event_id", ev.EventID).Msg("invalid event; dropping")
		metrics.RecordEventFailed(eventType, "validation")
		return rabbitmq.DecisionDrop
	}

	if ev.Expired(s.now().UTC()) {
		s.lg.Warn().Str("event_id", ev.EventID).Msg("event expired before ingestion; dropping")
		metrics.RecordEventFailed(eventType, "expired")
		return rabbitmq.DecisionDrop
	}

	dup, err := s.dedup.CheckAndMark(ctx, ev.EventID)
	if err != nil {
		s.lg.Error().Err(err).Str("event_id", ev.EventID).Msg("dedup check failed")
		return rabbitmq.DecisionRetry
	}
	if dup {
		s.lg.Info().Str("event_id", ev.EventID).Msg("duplicate event; dropping")
		metrics.RecordDuplicate()
		return rabbitmq.DecisionAck
	}

	enriched := domain.EnrichedEvent{
		SubmittedEvent: ev,
		EnrichedAt:     s.now().UTC(),
	}

	user, err := s.users.GetByID(ctx, ev.UserID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		// Enrich without contact fields; channels that need them fail
		// downstream and surface via the DLQ.
		s.lg.Warn().Str("event_id", ev.EventID).Str("user_id", ev.UserID).Msg("unknown user; enriching without contacts")
	case err != nil:
		s.lg.Error().Err(err).Str("event_id", ev.EventID).Msg("user lookup failed")
		s.release(ctx, ev.EventID)
		return rabbitmq.DecisionRetry
	default:
		enriched.UserEmail = user.Email
		enriched.UserPhone = user.Phone
		enriched.UserPushTokens = append([]string(nil), user.PushTokens...)
	}

	if err := s.pub.PublishJSON(ctx, rabbitmq.SubjectEnriched, enriched); err != nil {
		s.lg.Error().Err(err).Str("event_id", ev.EventID).Msg("publish enriched failed")
		s.release(ctx, ev.EventID)
		return rabbitmq.DecisionRetry
	}

	metrics.RecordEventProcessed(eventType)
	s.lg.Debug().Str("event_id", ev.EventID).Msg("event enriched")
	return rabbitmq.DecisionAck
}

// release undoes the dedup mark so the redelivered message is not mistaken
// for a duplicate after a transient failure.
func (s *Service) release(ctx context.Context, eventID string) {
	if err := s.dedup.Release(ctx, eventID); err != nil {
		s.lg.Error().Err(err).Str("event_id", eventID).Msg("dedup release failed")
	}
}

func (s *Service) validateEvent(ev *domain.SubmittedEvent) error {
	if err := s.validate.Struct(ev); err != nil {
		return err
	}
	if ev.CreatedAt.IsZero() {
		return domain.NewValidationError("missing created_at")
	}
	return nil
}
