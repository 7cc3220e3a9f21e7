package render

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaypoint/notifier/internal/domain"
	"github.com/relaypoint/notifier/internal/messaging/rabbitmq"
)

func TestRender_Substitution(t *testing.T) {
	tpl := &domain.Template{
		Subject:   "Welcome {{appName}}!",
		Body:      "Hi {{userName}}, balance {{balance}}, active {{active}}, gone {{gone}}",
		Variables: []string{"appName", "userName", "balance", "active", "gone"},
	}
	c := Context{
		"appName":  "Acme",
		"userName": "Alice",
		"balance":  float64(42.5),
		"active":   true,
		"gone":     nil,
	}

	subject, body := Render(tpl, c)
	assert.Equal(t, "Welcome Acme!", subject)
	assert.Equal(t, "Hi Alice, balance 42.5, active true, gone ", body)
}

func TestRender_IntegerFloatsHaveNoDecimalPoint(t *testing.T) {
	tpl := &domain.Template{Body: "count={{count}}", Variables: []string{"count"}}
	_, body := Render(tpl, Context{"count": float64(5)})
	assert.Equal(t, "count=5", body)
}

func TestRender_UndeclaredPlaceholderStays(t *testing.T) {
	tpl := &domain.Template{
		Body:      "Hi {{name}}, ref {{ref}}",
		Variables: []string{"name"},
	}
	_, body := Render(tpl, Context{"name": "Bob", "ref": "should not appear"})
	assert.Equal(t, "Hi Bob, ref {{ref}}", body)
}

func TestRender_DeclaredButMissingRendersEmpty(t *testing.T) {
	tpl := &domain.Template{Body: "x={{x}}", Variables: []string{"x"}}
	_, body := Render(tpl, Context{})
	assert.Equal(t, "x=", body)
}

func TestRender_Idempotent(t *testing.T) {
	tpl := &domain.Template{
		Subject:   "S {{a}}",
		Body:      "B {{a}} {{b}}",
		Variables: []string{"a", "b"},
	}
	c := Context{"a": "one", "b": float64(2)}

	s1, b1 := Render(tpl, c)
	s2, b2 := Render(tpl, c)
	assert.Equal(t, s1, s2)
	assert.Equal(t, b1, b2)
}

func TestBuildContext(t *testing.T) {
	ev := &domain.RoutedEvent{
		EnrichedEvent: domain.EnrichedEvent{
			SubmittedEvent: domain.SubmittedEvent{
				Data: map[string]any{"appName": "Acme"},
			},
			UserEmail: "alice@ex.com",
		},
	}

	c := BuildContext(ev)
	assert.Equal(t, "Acme", c["appName"])
	assert.Equal(t, "alice", c["user_name"])
	assert.Equal(t, "alice@ex.com", c["user_email"])
}

func TestBuildContext_NoEmail(t *testing.T) {
	ev := &domain.RoutedEvent{}
	c := BuildContext(ev)
	assert.Equal(t, "User", c["user_name"])
}

func TestBuildContext_PayloadUserNameWins(t *testing.T) {
	ev := &domain.RoutedEvent{
		EnrichedEvent: domain.EnrichedEvent{
			SubmittedEvent: domain.SubmittedEvent{
				Data: map[string]any{"user_name": "Alice"},
			},
			UserEmail: "alice@ex.com",
		},
	}
	c := BuildContext(ev)
	assert.Equal(t, "Alice", c["user_name"])
}

func TestFallback(t *testing.T) {
	ev := &domain.RoutedEvent{
		EnrichedEvent: domain.EnrichedEvent{
			SubmittedEvent: domain.SubmittedEvent{
				EventType: domain.EventSystem,
				Data:      map[string]any{"k": "v"},
			},
		},
		Channel: domain.ChannelEmail,
	}

	tpl := Fallback(ev)
	assert.Equal(t, "Notification: system", tpl.Subject)
	assert.JSONEq(t, `{"k":"v"}`, tpl.Body)
	assert.Empty(t, tpl.Variables)
}

// ---- stage service ----

type fakeTemplateStore struct {
	tpl *domain.Template
	err error
}

func (f *fakeTemplateStore) Get(ctx context.Context, channel domain.Channel, eventType domain.EventType) (*domain.Template, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tpl, nil
}

type fakePublisher struct {
	published []struct {
		key  string
		body []byte
	}
	err error
}

func (f *fakePublisher) PublishJSON(ctx context.Context, routingKey string, v any) error {
	if f.err != nil {
		return f.err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f.published = append(f.published, struct {
		key  string
		body []byte
	}{routingKey, raw})
	return nil
}

func routedBody(t *testing.T) []byte {
	t.Helper()
	ev := domain.RoutedEvent{
		EnrichedEvent: domain.EnrichedEvent{
			SubmittedEvent: domain.SubmittedEvent{
				EventID:   "e1",
				EventType: domain.EventAccount,
				UserID:    "u1",
				Channels:  []domain.Channel{domain.ChannelEmail},
				Priority:  domain.PriorityNormal,
				Data:      map[string]any{"appName": "Acme", "userName": "Alice"},
				CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			},
			UserEmail:  "alice@ex.com",
			EnrichedAt: time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
		},
		Channel: domain.ChannelEmail,
	}
	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	return raw
}

func TestService_Handle_RendersAndPublishes(t *testing.T) {
	store := &fakeTemplateStore{tpl: &domain.Template{
		Channel:   domain.ChannelEmail,
		EventType: domain.EventAccount,
		Subject:   "Welcome {{appName}}!",
		Body:      "Hi {{userName}}",
		Variables: []string{"appName", "userName"},
	}}
	pub := &fakePublisher{}
	svc := NewService(domain.ChannelEmail, store, pub, zerolog.Nop())

	decision := svc.Handle(context.Background(), amqp.Delivery{Body: routedBody(t)})

	assert.Equal(t, rabbitmq.DecisionAck, decision)
	require.Len(t, pub.published, 1)
	assert.Equal(t, "notifications.delivery.email", pub.published[0].key)

	var rendered domain.RenderedNotification
	require.NoError(t, json.Unmarshal(pub.published[0].body, &rendered))
	assert.Equal(t, "Welcome Acme!", rendered.Subject)
	assert.Equal(t, "Hi Alice", rendered.Body)
	assert.False(t, rendered.RenderedAt.IsZero())
}

func TestService_Handle_MissingTemplateFallsBack(t *testing.T) {
	store := &fakeTemplateStore{err: domain.ErrNotFound}
	pub := &fakePublisher{}
	svc := NewService(domain.ChannelEmail, store, pub, zerolog.Nop())

	decision := svc.Handle(context.Background(), amqp.Delivery{Body: routedBody(t)})

	assert.Equal(t, rabbitmq.DecisionAck, decision)
	require.Len(t, pub.published, 1)

	var rendered domain.RenderedNotification
	require.NoError(t, json.Unmarshal(pub.published[0].body, &rendered))
	assert.Equal(t, "Notification: account", rendered.Subject)
	assert.JSONEq(t, `{"appName":"Acme","userName":"Alice"}`, rendered.Body)
}

func TestService_Handle_StoreErrorRetries(t *testing.T) {
	store := &fakeTemplateStore{err: errors.New("db down")}
	pub := &fakePublisher{}
	svc := NewService(domain.ChannelEmail, store, pub, zerolog.Nop())

	decision := svc.Handle(context.Background(), amqp.Delivery{Body: routedBody(t)})
	assert.Equal(t, rabbitmq.DecisionRetry, decision)
	assert.Empty(t, pub.published)
}

func TestService_Handle_BadJSONDrops(t *testing.T) {
	svc := NewService(domain.ChannelEmail, &fakeTemplateStore{}, &fakePublisher{}, zerolog.Nop())
	decision := svc.Handle(context.Background(), amqp.Delivery{Body: []byte("{nope")})
	assert.Equal(t, rabbitmq.DecisionDrop, decision)
}

func TestService_Handle_PublishErrorRetries(t *testing.T) {
	store := &fakeTemplateStore{err: domain.ErrNotFound}
	pub := &fakePublisher{err: errors.New("no confirm")}
	svc := NewService(domain.ChannelEmail, store, pub, zerolog.Nop())

	decision := svc.Handle(context.Background(), amqp.Delivery{Body: routedBody(t)})
	assert.Equal(t, rabbitmq.DecisionRetry, decision)
}
