package dlq

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

/*
Redis Schema:

- Hash: dlq:msg:{id}   - individual message fields
- List: dlq:messages   - message IDs, newest first
*/

// RedisStore is a Redis-backed DLQ store.
type RedisStore struct {
	client    redis.Cmdable
	listKey   string
	msgPrefix string
	maxLen    int64
}

// NewRedisStore creates a Redis DLQ store.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{
		client:    client,
		listKey:   "dlq:messages",
		msgPrefix: "dlq:msg:",
	}
}

// WithKeyPrefix sets a custom key prefix.
func (s *RedisStore) WithKeyPrefix(prefix string) *RedisStore {
	s.listKey = prefix + "messages"
	s.msgPrefix = prefix + "msg:"
	return s
}

// WithMaxLen caps the number of retained messages; older entries are
// trimmed on store.
func (s *RedisStore) WithMaxLen(maxLen int64) *RedisStore {
	s.maxLen = maxLen
	return s
}

// Store implements Store.
func (s *RedisStore) Store(ctx context.Context, msg *Message) error {
	fields := map[string]any{
		"id":          msg.ID,
		"event_type":  msg.EventType,
		"original_id": msg.OriginalID,
		"payload":     msg.Payload,
		"error":       msg.Error,
		"source":      msg.Source,
		"created_at":  msg.CreatedAt.Unix(),
	}
	if err := s.client.HSet(ctx, s.msgPrefix+msg.ID, fields).Err(); err != nil {
		return fmt.Errorf("hset: %w", err)
	}
	if err := s.client.LPush(ctx, s.listKey, msg.ID).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	if s.maxLen > 0 {
		if err := s.client.LTrim(ctx, s.listKey, 0, s.maxLen-1).Err(); err != nil {
			return fmt.Errorf("ltrim: %w", err)
		}
	}
	return nil
}

// List implements Store.
func (s *RedisStore) List(ctx context.Context, limit int) ([]*Message, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := s.client.LRange(ctx, s.listKey, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange: %w", err)
	}
	out := make([]*Message, 0, len(ids))
	for _, id := range ids {
		fields, err := s.client.HGetAll(ctx, s.msgPrefix+id).Result()
		if err != nil {
			return nil, fmt.Errorf("hgetall %s: %w", id, err)
		}
		if len(fields) == 0 {
			continue
		}
		msg := &Message{
			ID:         fields["id"],
			EventType:  fields["event_type"],
			OriginalID: fields["original_id"],
			Payload:    []byte(fields["payload"]),
			Error:      fields["error"],
			Source:     fields["source"],
		}
		if ts, err := strconv.ParseInt(fields["created_at"], 10, 64); err == nil {
			msg.CreatedAt = time.Unix(ts, 0).UTC()
		}
		out = append(out, msg)
	}
	return out, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.LRem(ctx, s.listKey, 0, id).Err(); err != nil {
		return fmt.Errorf("lrem: %w", err)
	}
	if err := s.client.Del(ctx, s.msgPrefix+id).Err(); err != nil {
		return fmt.Errorf("del: %w", err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
