// Package sinks adapts identity activity events to external consumers.
package sinks

import (
	"context"
	"encoding/json"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/samber/oops"

	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/activitymap"
)

// DefaultExchange receives every activity event.
const DefaultExchange = "identity.events"

// Publisher is the subset of *amqp.Channel used by AMQPSink.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSink publishes events as JSON messages. The routing key is the event
// type, so consumers bind on patterns such as "account.*".
type AMQPSink struct {
	publisher Publisher
	exchange  string
	appID     string
	encode    func(identity.ActivityEvent) any
}

var _ identity.ActivitySink = (*AMQPSink)(nil)

// AMQPOption customizes an AMQPSink.
type AMQPOption func(*AMQPSink)

// WithExchange overrides DefaultExchange.
func WithExchange(exchange string) AMQPOption {
	return func(s *AMQPSink) {
		if strings.TrimSpace(exchange) != "" {
			s.exchange = exchange
		}
	}
}

// WithNormalizedBody publishes activitymap.Normalized records instead of the
// raw event.
func WithNormalizedBody(opts ...activitymap.Option) AMQPOption {
	return func(s *AMQPSink) {
		s.encode = func(event identity.ActivityEvent) any {
			return activitymap.Normalize(event, opts...)
		}
	}
}

// WithAppID sets the AppId property on published messages.
func WithAppID(appID string) AMQPOption {
	return func(s *AMQPSink) {
		s.appID = appID
	}
}

// NewAMQPSink publishes through publisher, usually an *amqp.Channel.
func NewAMQPSink(publisher Publisher, opts ...AMQPOption) *AMQPSink {
	s := &AMQPSink{
		publisher: publisher,
		exchange:  DefaultExchange,
		appID:     "go-identity",
		encode: func(event identity.ActivityEvent) any {
			return event
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record implements identity.ActivitySink.
func (s *AMQPSink) Record(ctx context.Context, event identity.ActivityEvent) error {
	body, err := json.Marshal(s.encode(event))
	if err != nil {
		return oops.Code("SINK_ENCODE").With("type", event.Type).Wrapf(err, "encode activity event")
	}

	headers := amqp.Table{}
	if event.AccountID != "" {
		headers["X-Account-ID"] = event.AccountID
	}
	if event.Provider != "" {
		headers["X-Provider"] = event.Provider
	}

	err = s.publisher.PublishWithContext(ctx, s.exchange, string(event.Type), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.OccurredAt,
		Type:         string(event.Type),
		AppId:        s.appID,
		Headers:      headers,
		Body:         body,
	})
	if err != nil {
		return oops.Code("SINK_PUBLISH").
			With("exchange", s.exchange).
			With("type", event.Type).
			Wrapf(err, "publish activity event")
	}
	return nil
}

// DialAMQP connects to url, opens a channel and declares a durable topic
// exchange. The returned close function releases both.
func DialAMQP(url, exchange string) (*amqp.Channel, func() error, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, oops.Code("SINK_DIAL").Wrapf(err, "dial amqp")
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, oops.Code("SINK_DIAL").Wrapf(err, "open amqp channel")
	}

	if exchange == "" {
		exchange = DefaultExchange
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, oops.Code("SINK_DIAL").With("exchange", exchange).Wrapf(err, "declare exchange")
	}

	closer := func() error {
		_ = ch.Close()
		return conn.Close()
	}
	return ch, closer, nil
}
