package sinks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/activitymap"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakePublisher struct {
	calls []published
	err   error
}

func (f *fakePublisher) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.calls = append(f.calls, published{exchange: exchange, key: key, msg: msg})
	return f.err
}

func sampleEvent() identity.ActivityEvent {
	return identity.ActivityEvent{
		Type:       identity.ActivityProviderLinked,
		AccountID:  "acc-1",
		Email:      "a@x.com",
		Provider:   "google",
		OccurredAt: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestAMQPSink_PublishesJSON(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewAMQPSink(pub, WithExchange("auth.events"))

	require.NoError(t, sink.Record(context.Background(), sampleEvent()))
	require.Len(t, pub.calls, 1)

	call := pub.calls[0]
	assert.Equal(t, "auth.events", call.exchange)
	assert.Equal(t, "oauth.linked", call.key)
	assert.Equal(t, "application/json", call.msg.ContentType)
	assert.Equal(t, amqp.Persistent, call.msg.DeliveryMode)
	assert.Equal(t, "acc-1", call.msg.Headers["X-Account-ID"])
	assert.Equal(t, "google", call.msg.Headers["X-Provider"])

	var decoded identity.ActivityEvent
	require.NoError(t, json.Unmarshal(call.msg.Body, &decoded))
	assert.Equal(t, identity.ActivityProviderLinked, decoded.Type)
	assert.Equal(t, "a@x.com", decoded.Email)
}

func TestAMQPSink_NormalizedBody(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewAMQPSink(pub, WithNormalizedBody(activitymap.WithoutMetadata("code")))

	event := sampleEvent()
	event.Metadata = map[string]any{"code": "123456"}
	require.NoError(t, sink.Record(context.Background(), event))
	require.Len(t, pub.calls, 1)

	var decoded activitymap.Normalized
	require.NoError(t, json.Unmarshal(pub.calls[0].msg.Body, &decoded))
	assert.Equal(t, "acc-1", decoded.ActorID)
	assert.Equal(t, "oauth.linked", decoded.Verb)
	assert.Equal(t, "google", decoded.Metadata[activitymap.MetadataKeyProvider])
	assert.NotContains(t, decoded.Metadata, "code")
	assert.Equal(t, "oauth.linked", pub.calls[0].key)
}

func TestAMQPSink_DefaultsAndErrors(t *testing.T) {
	pub := &fakePublisher{err: errors.New("channel closed")}
	sink := NewAMQPSink(pub, WithExchange(" "))

	err := sink.Record(context.Background(), identity.ActivityEvent{Type: identity.ActivityLoginSuccess})
	require.Error(t, err)
	require.Len(t, pub.calls, 1)
	assert.Equal(t, DefaultExchange, pub.calls[0].exchange)
	assert.Empty(t, pub.calls[0].msg.Headers)
}

func TestMetricsSink_CountsByTypeAndProvider(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewMetricsSink(reg)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, sink.Record(ctx, sampleEvent()))
	require.NoError(t, sink.Record(ctx, sampleEvent()))
	require.NoError(t, sink.Record(ctx, identity.ActivityEvent{Type: identity.ActivityLoginFailure}))

	assert.Equal(t, float64(2), testutil.ToFloat64(sink.Collector().WithLabelValues("oauth.linked", "google")))
	assert.Equal(t, float64(1), testutil.ToFloat64(sink.Collector().WithLabelValues("account.login.failed", "")))
	assert.Equal(t, 2, testutil.CollectAndCount(sink.Collector()))

	_, err = NewMetricsSink(reg)
	assert.Error(t, err, "duplicate registration")
}

func TestMulti_DeliversToEverySink(t *testing.T) {
	failing := identity.ActivitySinkFunc(func(context.Context, identity.ActivityEvent) error {
		return errors.New("down")
	})
	pub := &fakePublisher{}

	var seen []identity.ActivityEventType
	recorder := identity.ActivitySinkFunc(func(_ context.Context, e identity.ActivityEvent) error {
		seen = append(seen, e.Type)
		return nil
	})

	multi := Multi{failing, nil, NewAMQPSink(pub), recorder}
	err := multi.Record(context.Background(), sampleEvent())

	require.Error(t, err)
	assert.Len(t, pub.calls, 1)
	assert.Equal(t, []identity.ActivityEventType{identity.ActivityProviderLinked}, seen)

	assert.NoError(t, Multi{recorder}.Record(context.Background(), sampleEvent()))
}
