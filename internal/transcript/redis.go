package transcript

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	redis "github.com/redis/go-redis/v9"
)

// RedisStore keeps each session's entries in a Redis list of JSON records.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore wraps a configured client. Keys are prefix+sessionID and
// expire after ttl when ttl is positive.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + sessionID
}

// Append pushes entries to the session list.
func (s *RedisStore) Append(ctx context.Context, sessionID string, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	values := make([]interface{}, 0, len(entries))
	for _, entry := range entries {
		data, err := sonic.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshal entry %s: %w", entry.ID, err)
		}
		values = append(values, data)
	}

	redisKey := s.key(sessionID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, redisKey, values...)
	if s.ttl > 0 {
		pipe.Expire(ctx, redisKey, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis RPUSH %s: %w", redisKey, err)
	}
	return nil
}

// Entries returns everything stored for a session.
func (s *RedisStore) Entries(ctx context.Context, sessionID string) ([]Entry, error) {
	redisKey := s.key(sessionID)
	values, err := s.client.LRange(ctx, redisKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis LRANGE %s: %w", redisKey, err)
	}

	entries := make([]Entry, 0, len(values))
	for _, value := range values {
		var entry Entry
		if err := sonic.UnmarshalString(value, &entry); err != nil {
			return nil, fmt.Errorf("unmarshal entry from %s: %w", redisKey, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
