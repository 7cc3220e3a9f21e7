package rabbitmq

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAcker struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (f *fakeAcker) Ack(tag uint64, multiple bool) error {
	f.acked = true
	return nil
}

func (f *fakeAcker) Nack(tag uint64, multiple, requeue bool) error {
	f.nacked = true
	f.requeue = requeue
	return nil
}

func (f *fakeAcker) Reject(tag uint64, requeue bool) error {
	f.nacked = true
	f.requeue = requeue
	return nil
}

type fakeRepublisher struct {
	calls   int
	attempt int
	err     error
}

func (f *fakeRepublisher) Republish(ctx context.Context, orig amqp.Delivery, nextAttempt int, cause error) error {
	f.calls++
	f.attempt = nextAttempt
	return f.err
}

func newTestConsumer(maxAttempts int, pub Republisher) *Consumer {
	c := NewConsumer(Config{
		Exchange:    "notifications",
		Queue:       "q",
		BindKey:     "k",
		MaxAttempts: maxAttempts,
	}, func(ctx context.Context, d amqp.Delivery) Decision { return DecisionAck }, zerolog.Nop())
	c.pub = pub
	return c
}

func TestAttempt(t *testing.T) {
	tests := []struct {
		name    string
		headers amqp.Table
		want    int
	}{
		{"nil headers", nil, 0},
		{"absent", amqp.Table{}, 0},
		{"int32", amqp.Table{HeaderAttempt: int32(2)}, 2},
		{"int64", amqp.Table{HeaderAttempt: int64(3)}, 3},
		{"string", amqp.Table{HeaderAttempt: "4"}, 4},
		{"garbage", amqp.Table{HeaderAttempt: []byte("x")}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Attempt(tt.headers))
		})
	}
}

func TestFinish_AckAndDrop(t *testing.T) {
	for _, decision := range []Decision{DecisionAck, DecisionDrop} {
		acker := &fakeAcker{}
		pub := &fakeRepublisher{}
		c := newTestConsumer(3, pub)

		c.finish(context.Background(), amqp.Delivery{Acknowledger: acker}, decision)

		assert.True(t, acker.acked)
		assert.False(t, acker.nacked)
		assert.Zero(t, pub.calls)
	}
}

func TestFinish_RetryRepublishesWithBumpedAttempt(t *testing.T) {
	acker := &fakeAcker{}
	pub := &fakeRepublisher{}
	c := newTestConsumer(3, pub)

	d := amqp.Delivery{
		Acknowledger: acker,
		Headers:      amqp.Table{HeaderAttempt: int32(1)},
	}
	c.finish(context.Background(), d, DecisionRetry)

	require.Equal(t, 1, pub.calls)
	assert.Equal(t, 2, pub.attempt)
	assert.True(t, acker.acked, "original is acked after successful republish")
}

func TestFinish_RetryBudgetExhaustedDeadLetters(t *testing.T) {
	acker := &fakeAcker{}
	pub := &fakeRepublisher{}
	c := newTestConsumer(3, pub)

	d := amqp.Delivery{
		Acknowledger: acker,
		Headers:      amqp.Table{HeaderAttempt: int32(2)},
	}
	c.finish(context.Background(), d, DecisionRetry)

	assert.Zero(t, pub.calls)
	assert.True(t, acker.nacked)
	assert.False(t, acker.requeue, "nack without requeue routes to the dead-letter exchange")
}

func TestFinish_RequeueReturnsMessageUnchanged(t *testing.T) {
	acker := &fakeAcker{}
	pub := &fakeRepublisher{}
	c := newTestConsumer(3, pub)

	d := amqp.Delivery{
		Acknowledger: acker,
		Headers:      amqp.Table{HeaderAttempt: int32(2)},
	}
	c.finish(context.Background(), d, DecisionRequeue)

	assert.Zero(t, pub.calls, "requeue never republishes or bumps the attempt header")
	assert.True(t, acker.nacked)
	assert.True(t, acker.requeue)
	assert.False(t, acker.acked)
}

func TestFinish_RepublishFailureRequeuesOriginal(t *testing.T) {
	acker := &fakeAcker{}
	pub := &fakeRepublisher{err: errors.New("broker down")}
	c := newTestConsumer(5, pub)

	c.finish(context.Background(), amqp.Delivery{Acknowledger: acker}, DecisionRetry)

	assert.True(t, acker.nacked)
	assert.True(t, acker.requeue, "original must return to the queue when republish fails")
	assert.False(t, acker.acked)
}
