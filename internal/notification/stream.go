package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/domain"
)

// Stream keeps notifications in a capped Redis stream. Every call is bounded by
// opTimeout; the client must have ContextTimeoutEnabled for that to reach the socket.
type Stream struct {
	rdb       *redis.Client
	key       string
	maxLen    int64
	dedupTTL  time.Duration
	opTimeout time.Duration
}

func NewStream(rdb *redis.Client, key string, maxLen int64, dedupTTL, opTimeout time.Duration) *Stream {
	return &Stream{
		rdb:       rdb,
		key:       key,
		maxLen:    maxLen,
		dedupTTL:  dedupTTL,
		opTimeout: opTimeout,
	}
}

func (s *Stream) dedupKey(eventID string) string {
	return fmt.Sprintf("%s:event:%s", s.key, eventID)
}

// Append adds n unless its event was appended before. It reports whether n was added.
func (s *Stream) Append(ctx context.Context, n domain.Notification) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	fresh, err := s.rdb.SetNX(ctx, s.dedupKey(n.EventID), 1, s.dedupTTL).Result()
	if err != nil {
		return false, err
	}
	if !fresh {
		return false, nil
	}

	if err := s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: s.key,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]any{
			"eventId":       n.EventID,
			"employeeEmail": n.EmployeeEmail,
			"updatedAt":     n.UpdatedAt.Format(time.RFC3339Nano),
		},
	}).Err(); err != nil {
		// let the redelivery try again
		delCtx, delCancel := context.WithTimeout(context.WithoutCancel(ctx), s.opTimeout)
		defer delCancel()
		_ = s.rdb.Del(delCtx, s.dedupKey(n.EventID)).Err()
		return false, err
	}

	return true, nil
}

// Latest returns up to count notifications, newest first.
func (s *Stream) Latest(ctx context.Context, count int64) ([]domain.Notification, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	msgs, err := s.rdb.XRevRangeN(ctx, s.key, "+", "-", count).Result()
	if err != nil {
		return nil, err
	}

	out := make([]domain.Notification, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, fromMessage(msg))
	}
	return out, nil
}

// Read blocks up to block for notifications after lastID, "$" meaning only new ones.
// It returns the id to continue from.
func (s *Stream) Read(ctx context.Context, lastID string, block time.Duration) ([]domain.Notification, string, error) {
	ctx, cancel := context.WithTimeout(ctx, block+s.opTimeout)
	defer cancel()

	streams, err := s.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{s.key, lastID},
		Count:   100,
		Block:   block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, lastID, nil
		}
		return nil, lastID, err
	}

	out := make([]domain.Notification, 0)
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			out = append(out, fromMessage(msg))
			lastID = msg.ID
		}
	}
	return out, lastID, nil
}

func fromMessage(msg redis.XMessage) domain.Notification {
	n := domain.Notification{ID: msg.ID}
	if v, ok := msg.Values["eventId"].(string); ok {
		n.EventID = v
	}
	if v, ok := msg.Values["employeeEmail"].(string); ok {
		n.EmployeeEmail = v
	}
	if v, ok := msg.Values["updatedAt"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			n.UpdatedAt = t
		}
	}
	return n
}
