package observability

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher pushes operational events onto the AMQP side-channel.
type Publisher interface {
	PublishEnvelope(ctx context.Context, env EventEnvelope, headers map[string]string) error
}

// AMQPPublisher publishes EventEnvelopes to a topic exchange. Routing keys
// are derived from the envelope so consumers can bind per event family
// (`webhook.*`, `sse_events.*`) without decoding bodies.
type AMQPPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	if url == "" {
		return nil, errors.New("amqp url is empty")
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &AMQPPublisher{conn: conn, channel: ch, exchange: exchange}, nil
}

func (p *AMQPPublisher) PublishEnvelope(ctx context.Context, env EventEnvelope, headers map[string]string) error {
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}

	return p.channel.PublishWithContext(ctx, p.exchange, routingKeyFor(env), false, false, amqp.Publishing{
		ContentType:  "application/json",
		AppId:        "wa-sync-service",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Headers:      envelopeHeaders(env, headers),
	})
}

func (p *AMQPPublisher) Close() error {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// routingKeyFor builds `<event_type>.<event_name>`, e.g. webhook.messages.upsert.
func routingKeyFor(env EventEnvelope) string {
	if env.EventName == "" {
		return env.EventType
	}
	return env.EventType + "." + env.EventName
}

// envelopeHeaders merges caller headers with the owning instance so
// consumers can filter per account at the broker.
func envelopeHeaders(env EventEnvelope, headers map[string]string) amqp.Table {
	table := amqp.Table{}
	for key, value := range headers {
		table[key] = value
	}
	if env.Instance != "" {
		table["instance"] = env.Instance
	}
	return table
}

var defaultPublisher Publisher

func SetPublisher(publisher Publisher) {
	defaultPublisher = publisher
}

func PublishEvent(ctx context.Context, env EventEnvelope, headers map[string]string) error {
	if defaultPublisher == nil {
		return nil
	}

	err := defaultPublisher.PublishEnvelope(ctx, env, headers)
	if err != nil {
		IncAMQPPublishError()
	}
	return err
}
