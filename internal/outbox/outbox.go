package outbox

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/domain"
)

// NewMessage builds an outbox row for payload. Its id doubles as the AMQP message id.
func NewMessage(exchange, routingKey, msgType string, payload any) (*domain.OutboxMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &domain.OutboxMessage{
		ID:         uuid.NewString(),
		Exchange:   exchange,
		RoutingKey: routingKey,
		Type:       msgType,
		Payload:    body,
	}, nil
}

type Store interface {
	GetPendingOutboxMessages(ctx context.Context, limit, maxAttempts int) ([]*domain.OutboxMessage, error)
	MarkOutboxMessagePublished(ctx context.Context, id string) error
	MarkOutboxMessageFailed(ctx context.Context, id string, reason string) error
}

type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey, msgType, messageID string, body []byte) error
}

// Dispatcher moves committed outbox rows to the broker. It polls on an interval and
// right after Notify.
type Dispatcher struct {
	store       Store
	publisher   Publisher
	interval    time.Duration
	batchSize   int
	maxAttempts int
	wake        chan struct{}
	logger      *slog.Logger
}

func NewDispatcher(store Store, publisher Publisher, interval time.Duration, batchSize, maxAttempts int, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:       store,
		publisher:   publisher,
		interval:    interval,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
		wake:        make(chan struct{}, 1),
		logger:      logger,
	}
}

// Notify asks for a flush without waiting for the next tick.
func (d *Dispatcher) Notify() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-d.wake:
		}

		if _, err := d.Flush(ctx); err != nil && ctx.Err() == nil {
			d.logger.Warn("outbox flush failed", slog.String("error", err.Error()))
		}
	}
}

// Flush publishes pending messages oldest first and stops at the first failure so that
// messages leave in commit order. It returns the number of published messages.
func (d *Dispatcher) Flush(ctx context.Context) (int, error) {
	published := 0
	for {
		msgs, err := d.store.GetPendingOutboxMessages(ctx, d.batchSize, d.maxAttempts)
		if err != nil {
			return published, err
		}

		for _, msg := range msgs {
			if err := d.publisher.Publish(ctx, msg.Exchange, msg.RoutingKey, msg.Type, msg.ID, msg.Payload); err != nil {
				if markErr := d.store.MarkOutboxMessageFailed(ctx, msg.ID, err.Error()); markErr != nil {
					d.logger.Error("outbox bookkeeping failed", slog.String("id", msg.ID), slog.String("error", markErr.Error()))
				}
				if msg.Attempts+1 >= d.maxAttempts {
					d.logger.Error("outbox message gave up", slog.String("id", msg.ID), slog.String("type", msg.Type), slog.String("error", err.Error()))
				}
				return published, err
			}

			if err := d.store.MarkOutboxMessagePublished(ctx, msg.ID); err != nil {
				// published but not marked: it goes out again, consumers dedupe by id
				return published, err
			}
			published++
		}

		if len(msgs) < d.batchSize {
			return published, nil
		}
	}
}
