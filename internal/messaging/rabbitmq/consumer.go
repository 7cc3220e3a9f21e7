package rabbitmq

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Decision is the ack policy a handler picked for a message.
type Decision int

const (
	// DecisionAck removes the message: processed, duplicate, or moved to DLQ.
	DecisionAck Decision = iota
	// DecisionRetry requeues the message with a bumped attempt header.
	DecisionRetry
	// DecisionDrop removes a poison message so it cannot loop.
	DecisionDrop
	// DecisionRequeue returns the message to the queue unchanged, without
	// bumping its attempt header. For deferrals that are not the message's
	// fault, like shutdown mid-handle.
	DecisionRequeue
)

// HandlerFunc processes one delivery and picks its ack policy.
type HandlerFunc func(ctx context.Context, d amqp.Delivery) Decision

// Republisher is what the consume loop needs from the publisher. An
// interface so tests can inject a fake without AMQP channels.
type Republisher interface {
	Republish(ctx context.Context, orig amqp.Delivery, nextAttempt int, cause error) error
}

// Config describes one durable consumer.
type Config struct {
	URL      string
	Exchange string
	Queue    string
	BindKey  string
	Prefetch int
	Tag      string

	// MaxAttempts caps retry republishes; past it the message is nacked
	// without requeue so the queue's dead-letter route catches it.
	MaxAttempts int
}

// Consumer runs one durable queue consumer with a reconnect supervisor.
// Crashing mid-message never loses it: unacked deliveries return to the
// queue when the channel drops.
type Consumer struct {
	cfg     Config
	handler HandlerFunc
	lg      zerolog.Logger

	mu      sync.Mutex
	running bool
	doneCh  chan struct{}

	conn      *amqp.Connection
	chConsume *amqp.Channel
	chPublish *amqp.Channel

	deliveries <-chan amqp.Delivery
	pub        Republisher
}

// NewConsumer builds a consumer; Start launches it.
func NewConsumer(cfg Config, handler HandlerFunc, lg zerolog.Logger) *Consumer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &Consumer{
		cfg:     cfg,
		handler: handler,
		lg:      lg.With().Str("component", "consumer").Str("queue", cfg.Queue).Logger(),
	}
}

// Start launches the supervisor goroutine. Safe to call once.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}
	if c.handler == nil {
		return fmt.Errorf("nil handler")
	}

	c.doneCh = make(chan struct{})
	c.running = true
	go c.run(ctx)
	return nil
}

// Stop shuts the consumer down and waits for the in-flight message to
// finish or the context to expire.
func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	doneCh := c.doneCh
	c.running = false
	c.mu.Unlock()

	c.closeConn()

	select {
	case <-doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Consumer) run(ctx context.Context) {
	defer func() {
		c.mu.Lock()
		doneCh := c.doneCh
		c.doneCh = nil
		c.running = false
		c.mu.Unlock()
		if doneCh != nil {
			close(doneCh)
		}
	}()

	backoff := 1 * time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			c.lg.Info().Msg("consumer supervisor exiting (ctx cancelled)")
			return
		default:
		}
		if !c.isRunning() {
			return
		}

		if err := c.connectAndDeclare(); err != nil {
			c.lg.Error().Err(err).Dur("backoff", backoff).Msg("connect failed; retrying")
			if !sleepOrDone(ctx, backoff) {
				return
			}
			backoff = minDur(backoff*2, maxBackoff)
			continue
		}

		backoff = 1 * time.Second
		c.consumeLoop(ctx)

		select {
		case <-ctx.Done():
			return
		default:
		}

		c.lg.Warn().Dur("backoff", backoff).Msg("deliveries closed; reconnecting")
		c.closeConn()
		if !sleepOrDone(ctx, backoff) {
			return
		}
		backoff = minDur(backoff*2, maxBackoff)
	}
}

func (c *Consumer) isRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Consumer) connectAndDeclare() error {
	c.closeConn()

	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	chConsume, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("consume channel: %w", err)
	}
	chPublish, err := conn.Channel()
	if err != nil {
		_ = chConsume.Close()
		_ = conn.Close()
		return fmt.Errorf("publish channel: %w", err)
	}

	fail := func(err error) error {
		_ = chPublish.Close()
		_ = chConsume.Close()
		_ = conn.Close()
		return err
	}

	if err := chConsume.ExchangeDeclare(c.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fail(fmt.Errorf("exchange declare: %w", err))
	}

	// DLQ queue exists for every consumer so dead-letter routes always land.
	if _, err := chConsume.QueueDeclare(QueueDLQ, true, false, false, false, nil); err != nil {
		return fail(fmt.Errorf("dlq declare: %w", err))
	}
	if err := chConsume.QueueBind(QueueDLQ, SubjectDLQ, c.cfg.Exchange, false, nil); err != nil {
		return fail(fmt.Errorf("dlq bind: %w", err))
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    c.cfg.Exchange,
		"x-dead-letter-routing-key": SubjectDLQ,
	}
	if _, err := chConsume.QueueDeclare(c.cfg.Queue, true, false, false, false, args); err != nil {
		return fail(fmt.Errorf("queue declare: %w", err))
	}
	if err := chConsume.QueueBind(c.cfg.Queue, c.cfg.BindKey, c.cfg.Exchange, false, nil); err != nil {
		return fail(fmt.Errorf("queue bind: %w", err))
	}

	if c.cfg.Prefetch > 0 {
		if err := chConsume.Qos(c.cfg.Prefetch, 0, false); err != nil {
			return fail(fmt.Errorf("qos: %w", err))
		}
	}

	dlv, err := chConsume.Consume(c.cfg.Queue, c.cfg.Tag, false, false, false, false, nil)
	if err != nil {
		return fail(fmt.Errorf("consume: %w", err))
	}

	pub, err := NewPublisher(chPublish, c.cfg.Exchange, c.lg)
	if err != nil {
		return fail(fmt.Errorf("publisher: %w", err))
	}

	c.mu.Lock()
	c.conn = conn
	c.chConsume = chConsume
	c.chPublish = chPublish
	c.deliveries = dlv
	c.pub = pub
	c.mu.Unlock()

	c.lg.Info().
		Str("bind_key", c.cfg.BindKey).
		Int("prefetch", c.cfg.Prefetch).
		Msg("consumer ready")
	return nil
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-c.deliveries:
			if !ok {
				return
			}
			start := time.Now()
			decision := c.handler(ctx, d)
			c.finish(ctx, d, decision)
			c.lg.Debug().
				Str("routing_key", d.RoutingKey).
				Int("decision", int(decision)).
				Dur("took", time.Since(start)).
				Msg("message handled")
		}
	}
}

// finish applies the handler's decision to the broker. A message is acked
// exactly once or returned for redelivery, never both.
func (c *Consumer) finish(ctx context.Context, d amqp.Delivery, decision Decision) {
	switch decision {
	case DecisionRetry:
		next := Attempt(d.Headers) + 1
		if next >= c.cfg.MaxAttempts {
			// Out of retries; the queue's dead-letter route catches it.
			c.lg.Error().
				Str("routing_key", d.RoutingKey).
				Int("attempts", next).
				Msg("retry budget exhausted; dead-lettering")
			_ = d.Nack(false, false)
			return
		}
		c.mu.Lock()
		pub := c.pub
		c.mu.Unlock()
		if pub == nil {
			_ = d.Nack(false, true)
			return
		}
		if err := pub.Republish(ctx, d, next, nil); err != nil {
			c.lg.Error().Err(err).Msg("republish failed; requeueing original")
			_ = d.Nack(false, true)
			return
		}
		_ = d.Ack(false)
	case DecisionRequeue:
		_ = d.Nack(false, true)
	default:
		_ = d.Ack(false)
	}
}

func (c *Consumer) closeConn() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.chPublish != nil {
		_ = c.chPublish.Close()
		c.chPublish = nil
	}
	if c.chConsume != nil {
		_ = c.chConsume.Close()
		c.chConsume = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.deliveries = nil
	c.pub = nil
}

// Attempt extracts the redelivery count from headers; 0 on first delivery.
func Attempt(h amqp.Table) int {
	if h == nil {
		return 0
	}
	v, ok := h[HeaderAttempt]
	if !ok {
		return 0
	}
	switch t := v.(type) {
	case int:
		return t
	case int32:
		return int(t)
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		n, _ := strconv.Atoi(t)
		return n
	default:
		return 0
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func minDur(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
