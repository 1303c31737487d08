package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"marketplace-svc/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	sent []published
	err  error
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Close() error { return nil }

func TestPublisher_RoutesByEventType(t *testing.T) {
	ch := &fakeChannel{}
	p := &Publisher{ch: ch, exchange: "payment_events", logger: zaptest.NewLogger(t)}

	event := models.PaymentEvent{
		EventType:       "payment_failed",
		PaymentIntentID: "pi_0123456789abcdef0123456789abcdef",
		Status:          models.IntentStatusFailed,
		OccurredAt:      time.Now().UTC(),
	}
	require.NoError(t, p.Publish(context.Background(), event))

	require.Len(t, ch.sent, 1)
	assert.Equal(t, "payment_events", ch.sent[0].exchange)
	assert.Equal(t, "payment_failed", ch.sent[0].key)
	assert.Equal(t, "application/json", ch.sent[0].msg.ContentType)
	assert.Equal(t, amqp.Persistent, ch.sent[0].msg.DeliveryMode)

	var got models.PaymentEvent
	require.NoError(t, json.Unmarshal(ch.sent[0].msg.Body, &got))
	assert.Equal(t, event.PaymentIntentID, got.PaymentIntentID)
}

func TestPublisher_ReturnsChannelError(t *testing.T) {
	ch := &fakeChannel{err: amqp.ErrClosed}
	p := &Publisher{ch: ch, exchange: "payment_events", logger: zaptest.NewLogger(t)}

	err := p.Publish(context.Background(), models.PaymentEvent{EventType: "payment_succeeded"})
	assert.True(t, errors.Is(err, amqp.ErrClosed))
}

func TestTableCarrier(t *testing.T) {
	c := tableCarrier(amqp.Table{})
	c.Set("traceparent", "00-abc-def-01")

	assert.Equal(t, "00-abc-def-01", c.Get("traceparent"))
	assert.Equal(t, []string{"traceparent"}, c.Keys())
}
