package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/moiseenkov/cinema/internal/pkg/logger"
)

// Publisher sends payment jobs to RabbitMQ. Each Dispatch opens its own
// connection, so a broker restart never leaves a stale channel behind.
type Publisher struct {
	url   string
	queue string
}

func NewPublisher(url, queue string) *Publisher {
	if queue == "" {
		queue = PaymentQueue
	}
	return &Publisher{url: url, queue: queue}
}

func (p *Publisher) Dispatch(ctx context.Context, job PaymentRequested) error {
	msg, err := newPublishing(job)
	if err != nil {
		return err
	}

	conn, err := amqp.Dial(p.url)
	if err != nil {
		logger.Error("rabbitmq: dial failed", zap.Error(err))
		return fmt.Errorf("dial broker: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		logger.Error("rabbitmq: channel open failed", zap.Error(err))
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := declare(ch, p.queue); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		logger.Error("rabbitmq: publish failed", zap.String("queue", p.queue), zap.Error(err))
		return fmt.Errorf("publish: %w", err)
	}
	logger.Debug("payment job published",
		zap.Uint64("ticket_id", job.TicketID),
		zap.String("payment_token", job.PaymentToken))
	return nil
}

func newPublishing(job PaymentRequested) (amqp.Publishing, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal job: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.PaymentToken,
		Timestamp:    job.RequestedAt,
		Body:         body,
	}, nil
}

// declare makes sure the durable queue exists. It is idempotent.
func declare(ch *amqp.Channel, queue string) error {
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		logger.Error("rabbitmq: queue declare failed", zap.String("queue", queue), zap.Error(err))
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return nil
}
