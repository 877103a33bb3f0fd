package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/photo-monetization/internal/logging"
)

// Publisher sends events to RabbitMQ. Each call opens its own connection,
// so a broker outage only affects the requests made during it.
type Publisher struct {
	url string
	log logging.Logger
}

func NewPublisher(url string, log logging.Logger) *Publisher {
	return &Publisher{url: url, log: log}
}

// PublishDistributionRequested publishes ev as a persistent message on
// DistributionRequestedQueue. Errors are logged and returned.
func (p *Publisher) PublishDistributionRequested(ctx context.Context, ev DistributionRequestedEvent) error {
	msg, err := newPublishing(ev, time.Now().UTC())
	if err != nil {
		p.log.Error(ctx, "rabbitmq: marshal event failed", "error", err)
		return err
	}

	conn, err := amqp.Dial(p.url)
	if err != nil {
		p.log.Error(ctx, "rabbitmq: dial failed", "error", err)
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.Error(ctx, "rabbitmq: channel open failed", "error", err)
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := declare(ch); err != nil {
		p.log.Error(ctx, "rabbitmq: queue declare failed", "error", err)
		return err
	}

	if err := ch.PublishWithContext(ctx,
		"",                         // default exchange
		DistributionRequestedQueue, // routing key = queue name
		false,                      // mandatory
		false,                      // immediate
		msg,
	); err != nil {
		p.log.Error(ctx, "rabbitmq: publish failed", "error", err, "distribution_id", ev.DistributionID)
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	p.log.Debug(ctx, "distribution event published", "distribution_id", ev.DistributionID, "platform", ev.Platform)
	return nil
}

func newPublishing(ev DistributionRequestedEvent, now time.Time) (amqp.Publishing, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.DistributionID,
		Timestamp:    now,
		Body:         body,
	}, nil
}

// declare makes sure the durable queue exists. It is idempotent.
func declare(ch *amqp.Channel) (amqp.Queue, error) {
	q, err := ch.QueueDeclare(
		DistributionRequestedQueue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		return amqp.Queue{}, fmt.Errorf("queue declare: %w", err)
	}
	return q, nil
}
