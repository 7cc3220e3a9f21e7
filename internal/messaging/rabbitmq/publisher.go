package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// publishWait bounds how long a publish waits for a broker confirm.
const publishWait = 250 * time.Millisecond

// Publisher publishes JSON payloads with publisher confirms and mandatory
// routing, so a lost publish surfaces as an error instead of disappearing.
type Publisher struct {
	ch       *amqp.Channel
	exchange string
	lg       zerolog.Logger

	confirmCh <-chan amqp.Confirmation
	returnCh  <-chan amqp.Return
}

// NewPublisher puts the channel in confirm mode and registers the confirm
// and return listeners.
func NewPublisher(ch *amqp.Channel, exchange string, lg zerolog.Logger) (*Publisher, error) {
	if ch == nil {
		return nil, fmt.Errorf("nil channel")
	}
	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("confirm mode: %w", err)
	}

	p := &Publisher{
		ch:       ch,
		exchange: exchange,
		lg:       lg.With().Str("component", "publisher").Logger(),
	}
	p.confirmCh = ch.NotifyPublish(make(chan amqp.Confirmation, 32))
	p.returnCh = ch.NotifyReturn(make(chan amqp.Return, 32))
	return p, nil
}

// PublishJSON marshals v and publishes it to the routing key.
func (p *Publisher) PublishJSON(ctx context.Context, routingKey string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return p.publish(ctx, routingKey, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	})
}

// Republish sends a consumed message back to its own routing key with the
// attempt header bumped. Redelivery with backoff is built from this plus an
// ack of the original, mirroring broker-side NAK semantics.
func (p *Publisher) Republish(ctx context.Context, orig amqp.Delivery, nextAttempt int, cause error) error {
	h := copyHeaders(orig.Headers)
	h[HeaderAttempt] = int32(nextAttempt)
	if cause != nil {
		h["x-error"] = cause.Error()
	}

	return p.publish(ctx, orig.RoutingKey, amqp.Publishing{
		ContentType:   orig.ContentType,
		Body:          orig.Body,
		Headers:       h,
		DeliveryMode:  amqp.Persistent,
		Timestamp:     time.Now(),
		CorrelationId: orig.CorrelationId,
		MessageId:     orig.MessageId,
	})
}

func (p *Publisher) publish(ctx context.Context, routingKey string, pub amqp.Publishing) error {
	// mandatory=true so NO_ROUTE is observable via the return channel
	if err := p.ch.PublishWithContext(ctx, p.exchange, routingKey, true, false, pub); err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	return p.waitAckOrReturn(ctx, routingKey)
}

func (p *Publisher) waitAckOrReturn(ctx context.Context, routingKey string) error {
	timer := time.NewTimer(publishWait)
	defer timer.Stop()

	select {
	case r := <-p.returnCh:
		return fmt.Errorf("publish returned: reply=%d text=%q rk=%q", r.ReplyCode, r.ReplyText, r.RoutingKey)
	case c := <-p.confirmCh:
		if !c.Ack {
			return fmt.Errorf("publish nacked by broker (rk=%q)", routingKey)
		}
		return nil
	case <-timer.C:
		return errors.New("publish wait timeout (no confirm/return)")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func copyHeaders(in amqp.Table) amqp.Table {
	out := amqp.Table{}
	for k, v := range in {
		out[k] = v
	}
	return out
}
