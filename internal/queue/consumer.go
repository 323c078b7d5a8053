package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/moiseenkov/cinema/internal/pkg/logger"
)

const maxBackoff = 30 * time.Second

// Consumer reads payment jobs from RabbitMQ and runs them on a bounded pool
// of workers. Jobs are acked after the handler succeeds, so delivery is at
// least once and the handler must be idempotent.
type Consumer struct {
	url     string
	queue   string
	workers int
	handler Handler
}

func NewConsumer(url, queue string, workers int, handler Handler) *Consumer {
	if queue == "" {
		queue = PaymentQueue
	}
	if workers < 1 {
		workers = 1
	}
	return &Consumer{url: url, queue: queue, workers: workers, handler: handler}
}

// Run keeps a connection to the broker until ctx is cancelled, reconnecting
// with exponential backoff. It returns once in-flight jobs have finished.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return nil
		}
		conn, err := amqp.Dial(c.url)
		if err != nil {
			logger.Warn("payment-consumer: dial failed",
				zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return nil
			}
			if backoff < maxBackoff {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		logger.Warn("payment-consumer: consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return nil
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.workers, 0, false); err != nil {
		logger.Warn("payment-consumer: set QoS failed", zap.Error(err))
	}
	if err := declare(ch, c.queue); err != nil {
		return err
	}
	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	logger.Info("payment-consumer: consuming", zap.String("queue", c.queue), zap.Int("workers", c.workers))

	var g errgroup.Group
	g.SetLimit(c.workers)
	defer func() { _ = g.Wait() }()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			g.Go(func() error {
				c.deliver(ctx, d)
				return nil
			})
		}
	}
}

// deliver runs the handler for one delivery and settles it. Malformed bodies
// are dropped; handler failures are requeued.
func (c *Consumer) deliver(ctx context.Context, d amqp.Delivery) {
	job, err := decodeJob(d.Body)
	if err != nil {
		logger.Error("payment-consumer: dropping message", zap.Error(err))
		_ = d.Nack(false, false)
		return
	}
	if err := c.handler(ctx, job); err != nil {
		logger.Error("payment-consumer: job failed, requeueing",
			zap.Uint64("ticket_id", job.TicketID), zap.Error(err))
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

// sleep waits for d or until ctx is done, reporting whether the full wait
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
