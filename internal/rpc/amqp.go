package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/domain"
)

// RabbitMQ's pseudo queue for direct reply-to, no declaration needed.
const replyToQueue = "amq.rabbitmq.reply-to"

var errClientClosed = errors.New("rpc client closed")

// Server consumes one durable request queue and answers each delivery on its ReplyTo queue.
type Server struct {
	ch       *amqp.Channel
	queue    string
	mux      *Mux
	prefetch int
	logger   *slog.Logger

	publishMu sync.Mutex
}

func NewServer(ch *amqp.Channel, queue string, mux *Mux, prefetch int, logger *slog.Logger) *Server {
	if prefetch < 1 {
		prefetch = 1
	}
	return &Server{
		ch:       ch,
		queue:    queue,
		mux:      mux,
		prefetch: prefetch,
		logger:   logger,
	}
}

// Run blocks until ctx is cancelled or the delivery channel closes.
func (s *Server) Run(ctx context.Context) error {
	if _, err := s.ch.QueueDeclare(
		s.queue,
		true,  // durable
		false, // auto delete
		false, // exclusive
		false, // no wait
		nil,
	); err != nil {
		return fmt.Errorf("declaring queue %s: %w", s.queue, err)
	}
	if err := s.ch.Qos(s.prefetch, 0, false); err != nil {
		return fmt.Errorf("setting qos: %w", err)
	}

	deliveries, err := s.ch.Consume(s.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consuming %s: %w", s.queue, err)
	}

	s.logger.Info("rpc server listening", slog.String("queue", s.queue), slog.Int("workers", s.prefetch))

	wg := sync.WaitGroup{}
	for i := 0; i < s.prefetch; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-deliveries:
					if !ok {
						return
					}
					s.handle(ctx, d)
				}
			}
		}()
	}
	wg.Wait()

	return ctx.Err()
}

func (s *Server) handle(ctx context.Context, d amqp.Delivery) {
	reply := s.mux.Serve(ctx, d.Body)

	if d.ReplyTo != "" {
		if err := s.publish(ctx, d.ReplyTo, d.CorrelationId, reply); err != nil {
			s.logger.Error("rpc reply failed", slog.String("correlationId", d.CorrelationId), slog.String("error", err.Error()))
		}
	}

	if err := d.Ack(false); err != nil {
		s.logger.Error("rpc ack failed", slog.String("error", err.Error()))
	}
}

func (s *Server) publish(ctx context.Context, replyTo, correlationID string, body []byte) error {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	return s.ch.PublishWithContext(ctx, "", replyTo, false, false, amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: correlationID,
		Body:          body,
	})
}

// AMQPClient calls a Server through RabbitMQ. It needs a channel of its own since a
// channel carries at most one direct reply-to consumer.
type AMQPClient struct {
	ch      *amqp.Channel
	queue   string
	apiKey  string
	timeout time.Duration

	mu      sync.Mutex
	closed  bool
	pending map[string]chan amqp.Delivery
}

func NewAMQPClient(ch *amqp.Channel, queue, apiKey string, timeout time.Duration) (*AMQPClient, error) {
	replies, err := ch.Consume(replyToQueue, "", true, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consuming replies: %w", err)
	}

	c := &AMQPClient{
		ch:      ch,
		queue:   queue,
		apiKey:  apiKey,
		timeout: timeout,
		pending: make(map[string]chan amqp.Delivery),
	}
	go c.route(replies)

	return c, nil
}

func (c *AMQPClient) route(replies <-chan amqp.Delivery) {
	for d := range replies {
		c.mu.Lock()
		waiter, ok := c.pending[d.CorrelationId]
		delete(c.pending, d.CorrelationId)
		c.mu.Unlock()

		// late replies of timed out calls land here
		if ok {
			waiter <- d
		}
	}

	c.mu.Lock()
	c.closed = true
	for id, waiter := range c.pending {
		close(waiter)
		delete(c.pending, id)
	}
	c.mu.Unlock()
}

func (c *AMQPClient) Call(ctx context.Context, pattern string, user *domain.AuthorizedUser, payload any, out any) error {
	body, err := encodeRequest(pattern, c.apiKey, user, payload)
	if err != nil {
		return err
	}

	correlationID := uuid.NewString()
	waiter := make(chan amqp.Delivery, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.BadGateway(errClientClosed)
	}
	c.pending[correlationID] = waiter
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, correlationID)
		c.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.ch.PublishWithContext(ctx, "", c.queue, false, false, amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: correlationID,
		ReplyTo:       replyToQueue,
		// nobody waits for the answer after the timeout
		Expiration: strconv.FormatInt(c.timeout.Milliseconds(), 10),
		Body:       body,
	}); err != nil {
		return domain.BadGateway(fmt.Errorf("publishing %s: %w", pattern, err))
	}

	select {
	case d, ok := <-waiter:
		if !ok {
			return domain.BadGateway(errClientClosed)
		}
		return decodeResponse(d.Body, out)
	case <-ctx.Done():
		return domain.BadGateway(fmt.Errorf("calling %s: %w", pattern, ctx.Err()))
	}
}
