package render

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

// TemplateStore loads rendering templates.
type TemplateStore interface {
	Get(ctx context.Context, channel domain.Channel, eventType domain.EventType) (*domain.Template, error)
}

// Publisher publishes rendered notifications downstream.
type Publisher interface {
	PublishJSON(ctx context.Context, routingKey string, v any) error
}

// Service renders routed events for one channel and forwards them to the
// channel's delivery subject. One service instance per channel so a slow
// template never blocks another channel.
type Service struct {
	channel   domain.Channel
	templates TemplateStore
	pub       Publisher
	lg        zerolog.Logger
	now       func() time.Time
}

// NewService builds the renderer for a channel.
func NewService(channel domain.Channel, templates TemplateStore, pub Publisher, lg zerolog.Logger) *Service {
	return &Service{
		channel:   channel,
		templates: templates,
		pub:       pub,
		lg:        lg.With().Str("component", "renderer").Str("channel", string(channel)).Logger(),
		now:       time.Now,
	}
}

// Handle consumes one routed event from routed.<channel>.
func (s *Service) Handle(ctx context.Context, d amqp.Delivery) rabbitmq.Decision {
	var ev domain.RoutedEvent
	if err := json.Unmarshal(d.Body, &ev); err != nil {
		s.lg.Error().Err(err).Msg("undecodable routed event; dropping")
		metrics.RecordEventFailed("unknown", "validation")
		return rabbitmq.DecisionDrop
	}
	metrics.RecordEventReceived(string(ev.EventType))

	tpl, err := s.templates.Get(ctx, s.channel, ev.EventType)
	if errors.Is(err, domain.ErrNotFound) {
		tpl = Fallback(&ev)
	} else if err != nil {
		s.lg.Error().Err(err).Str("event_id", ev.EventID).Msg("template lookup failed")
		return rabbitmq.DecisionRetry
	}

	subject, body := Render(tpl, BuildContext(&ev))

	rendered := domain.RenderedNotification{
		RoutedEvent: ev,
		Subject:     subject,
		Body:        body,
		RenderedAt:  s.now().UTC(),
	}
	if err := s.pub.PublishJSON(ctx, rabbitmq.DeliverySubject(s.channel), rendered); err != nil {
		s.lg.Error().Err(err).Str("event_id", ev.EventID).Msg("publish rendered failed")
		return rabbitmq.DecisionRetry
	}

	metrics.RecordEventProcessed(string(ev.EventType))
	s.lg.Debug().Str("event_id", ev.EventID).Msg("rendered")
	return rabbitmq.DecisionAck
}
