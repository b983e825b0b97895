package service

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/table-reservation/internal/queue"
)

// AMQPPublisher publishes reservation events to RabbitMQ.  Each call dials
// its own connection so a broker outage never leaves shared state broken;
// errors are logged and returned for the caller to ignore.
type AMQPPublisher struct {
	URL    string
	Logger *zap.Logger
}

// Publish sends ev to the durable reservation.events queue as a
// persistent message.
func (p *AMQPPublisher) Publish(ctx context.Context, ev queue.ReservationEvent) error {
	conn, err := amqp.Dial(p.URL)
	if err != nil {
		p.Logger.Warn("rabbitmq: dial failed", zap.Error(err))
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.Logger.Warn("rabbitmq: channel open failed", zap.Error(err))
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(queue.QueueName, true, false, false, false, nil); err != nil {
		p.Logger.Warn("rabbitmq: queue declare failed", zap.Error(err))
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         ev.Type,
		Body:         body,
	}
	// default exchange, routing key = queue name
	if err := ch.PublishWithContext(ctx, "", queue.QueueName, false, false, pub); err != nil {
		p.Logger.Warn("rabbitmq: publish failed", zap.Error(err), zap.String("type", ev.Type))
		return err
	}
	return nil
}
