package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/domain"
)

// Queues bound to the employee events exchange.
const (
	QueueSaveHistory       = "save_history"
	QueueAdminNotification = "admin_notification"
)

var ErrNotConfirmed = errors.New("message was not confirmed by the broker")

// DeclareEventTopology declares the fanout exchange and the durable queues bound to it.
func DeclareEventTopology(ch *amqp.Channel, exchange string) error {
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declaring exchange %s: %w", exchange, err)
	}
	for _, queue := range []string{QueueSaveHistory, QueueAdminNotification} {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declaring queue %s: %w", queue, err)
		}
		if err := ch.QueueBind(queue, "", exchange, false, nil); err != nil {
			return fmt.Errorf("binding queue %s: %w", queue, err)
		}
	}
	return nil
}

func DeclareMailQueue(ch *amqp.Channel) error {
	_, err := ch.QueueDeclare(domain.MailQueue, true, false, false, false, nil)
	return err
}

// Publisher publishes on a channel in confirm mode and waits for the broker ack of
// every message.
type Publisher struct {
	ch      *amqp.Channel
	timeout time.Duration

	mu sync.Mutex
}

func NewPublisher(ch *amqp.Channel, timeout time.Duration) (*Publisher, error) {
	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("enabling publisher confirms: %w", err)
	}
	return &Publisher{ch: ch, timeout: timeout}, nil
}

func (p *Publisher) Publish(ctx context.Context, exchange, routingKey, msgType, messageID string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.mu.Lock()
	confirmation, err := p.ch.PublishWithDeferredConfirmWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Type:         msgType,
		Timestamp:    time.Now(),
		Body:         body,
	})
	p.mu.Unlock()
	if err != nil {
		return err
	}

	acked, err := confirmation.WaitContext(ctx)
	if err != nil {
		return err
	}
	if !acked {
		return ErrNotConfirmed
	}
	return nil
}

// PublishMail sends msg straight to the mail worker queue.
func (p *Publisher) PublishMail(ctx context.Context, msg domain.MailMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.Publish(ctx, "", domain.MailQueue, msg.Type, "", body)
}
