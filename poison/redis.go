package poison

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultFailurePrefix    = "poison:failures:"
	defaultQuarantinePrefix = "poison:quarantine:"
	defaultFailureTTL       = 24 * time.Hour
)

// RedisStore shares failure counts across replicas consuming the same
// subscription.
type RedisStore struct {
	client           redis.Cmdable
	failurePrefix    string
	quarantinePrefix string
	failureTTL       time.Duration
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithFailurePrefix overrides the key prefix for failure counters.
func WithFailurePrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.failurePrefix = prefix
		}
	}
}

// WithQuarantinePrefix overrides the key prefix for quarantine markers.
func WithQuarantinePrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.quarantinePrefix = prefix
		}
	}
}

// WithFailureTTL bounds how long a failure counter survives without new
// failures. Counters for messages that stop being redelivered expire on
// their own.
func WithFailureTTL(ttl time.Duration) RedisStoreOption {
	return func(s *RedisStore) {
		if ttl > 0 {
			s.failureTTL = ttl
		}
	}
}

// NewRedisStore creates a Store backed by Redis.
func NewRedisStore(client redis.Cmdable, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		client:           client,
		failurePrefix:    defaultFailurePrefix,
		quarantinePrefix: defaultQuarantinePrefix,
		failureTTL:       defaultFailureTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fail implements Store.
func (s *RedisStore) Fail(ctx context.Context, messageID string) (int, error) {
	key := s.failurePrefix + messageID
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("increment failure count: %w", err)
	}
	// Refresh on every failure so the counter lives as long as the
	// message keeps coming back.
	if err := s.client.Expire(ctx, key, s.failureTTL).Err(); err != nil {
		return int(count), fmt.Errorf("set failure ttl: %w", err)
	}
	return int(count), nil
}

// Reset implements Store.
func (s *RedisStore) Reset(ctx context.Context, messageID string) error {
	if err := s.client.Del(ctx, s.failurePrefix+messageID).Err(); err != nil {
		return fmt.Errorf("clear failure count: %w", err)
	}
	return nil
}

// Quarantine implements Store.
func (s *RedisStore) Quarantine(ctx context.Context, messageID string, ttl time.Duration) error {
	if err := s.client.SetEx(ctx, s.quarantinePrefix+messageID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("set quarantine marker: %w", err)
	}
	return nil
}

// Quarantined implements Store.
func (s *RedisStore) Quarantined(ctx context.Context, messageID string) (bool, error) {
	err := s.client.Get(ctx, s.quarantinePrefix+messageID).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check quarantine marker: %w", err)
	}
	return true, nil
}

var _ Store = (*RedisStore)(nil)
