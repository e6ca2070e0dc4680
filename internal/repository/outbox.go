package repository

import (
	"context"

	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/domain"
)

// GetPendingOutboxMessages returns unpublished messages oldest first, skipping the ones
// that ran out of attempts.
func (r *Repository) GetPendingOutboxMessages(ctx context.Context, limit, maxAttempts int) ([]*domain.OutboxMessage, error) {
	query := `
		SELECT id, exchange, routing_key, type, payload, attempts, last_error, created_at
		FROM outbox_messages
		WHERE published_at IS NULL AND attempts < $1
		ORDER BY created_at
		LIMIT $2
	`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	rows, err := r.dbpool.QueryContext(ctx, query, maxAttempts, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := make([]*domain.OutboxMessage, 0)
	for rows.Next() {
		msg := &domain.OutboxMessage{}
		var payload []byte
		dst := []any{&msg.ID, &msg.Exchange, &msg.RoutingKey, &msg.Type, &payload, &msg.Attempts, &msg.LastError, &msg.CreatedAt}
		if err := rows.Scan(dst...); err != nil {
			return nil, err
		}
		msg.Payload = payload
		msgs = append(msgs, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return msgs, nil
}

func (r *Repository) MarkOutboxMessagePublished(ctx context.Context, id string) error {
	query := `
		UPDATE outbox_messages SET published_at = now(), attempts = attempts + 1, last_error = NULL
		WHERE id = $1
	`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	return expectOneRow(r.dbpool.ExecContext(ctx, query, id))
}

func (r *Repository) MarkOutboxMessageFailed(ctx context.Context, id string, reason string) error {
	query := `
		UPDATE outbox_messages SET attempts = attempts + 1, last_error = $1
		WHERE id = $2
	`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	return expectOneRow(r.dbpool.ExecContext(ctx, query, reason, id))
}
