package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler processes one delivery. Returning nil acks it; an error wrapped with Permanent
// drops it; any other error requeues it.
type Handler func(ctx context.Context, d amqp.Delivery) error

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying, for example an undecodable body.
func Permanent(err error) error {
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

const (
	retryDelay    = time.Second
	maxRetryDelay = 30 * time.Second
)

type Consumer struct {
	ch       *amqp.Channel
	queue    string
	prefetch int
	handler  Handler
	logger   *slog.Logger

	retryDelay    time.Duration
	maxRetryDelay time.Duration
	sleep         func(ctx context.Context, d time.Duration)
}

func NewConsumer(ch *amqp.Channel, queue string, prefetch int, handler Handler, logger *slog.Logger) *Consumer {
	if prefetch < 1 {
		prefetch = 1
	}
	return &Consumer{
		ch:       ch,
		queue:    queue,
		prefetch: prefetch,
		handler:  handler,
		logger:   logger,

		retryDelay:    retryDelay,
		maxRetryDelay: maxRetryDelay,
		sleep:         sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Run consumes until ctx is cancelled or the channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("setting qos: %w", err)
	}

	deliveries, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consuming %s: %w", c.queue, err)
	}

	c.logger.Info("waiting for messages", slog.String("queue", c.queue))

	wg := sync.WaitGroup{}
	for i := 0; i < c.prefetch; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// consecutive transient failures of this worker
			failures := 0
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-deliveries:
					if !ok {
						return
					}
					err := c.handler(ctx, d)
					if err != nil && !IsPermanent(err) {
						failures++
					} else {
						failures = 0
					}
					c.settleWith(ctx, &d, d.MessageId, err, failures)
				}
			}
		}()
	}
	wg.Wait()

	return ctx.Err()
}

type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// backoff doubles the delay for every consecutive failure, up to maxRetryDelay.
func (c *Consumer) backoff(failures int) time.Duration {
	delay := c.retryDelay
	for i := 1; i < failures && delay < c.maxRetryDelay; i++ {
		delay *= 2
	}
	return min(delay, c.maxRetryDelay)
}

// settleWith acks, drops or requeues d. A requeue waits first so that a failing
// dependency does not turn into a redelivery loop; the held delivery counts against
// the prefetch window meanwhile.
func (c *Consumer) settleWith(ctx context.Context, d acknowledger, messageID string, err error, failures int) {
	switch {
	case err == nil:
		if err := d.Ack(false); err != nil {
			c.logger.Error("failed to ack message", slog.String("queue", c.queue), slog.String("messageId", messageID), slog.String("error", err.Error()))
		}
	case IsPermanent(err):
		c.logger.Error("dropping message", slog.String("queue", c.queue), slog.String("messageId", messageID), slog.String("error", err.Error()))
		if err := d.Nack(false, false); err != nil {
			c.logger.Error("failed to nack message", slog.String("queue", c.queue), slog.String("messageId", messageID), slog.String("error", err.Error()))
		}
	default:
		delay := c.backoff(failures)
		c.logger.Error("requeueing message", slog.String("queue", c.queue), slog.String("messageId", messageID), slog.Duration("after", delay), slog.String("error", err.Error()))
		c.sleep(ctx, delay)
		if err := d.Nack(false, true); err != nil {
			c.logger.Error("failed to requeue message", slog.String("queue", c.queue), slog.String("messageId", messageID), slog.String("error", err.Error()))
		}
	}
}
