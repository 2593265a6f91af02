package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/codedesk/codedesk/pkg/types"
)

const redisKeyPrefix = "codedesk:chat:"

// RedisStore keeps conversation history in Redis lists, one list per
// session. Suitable when several instances serve the same workspace.
type RedisStore struct {
	rdb         *redis.Client
	maxMessages int
	ttl         time.Duration
}

// NewRedisStore connects to Redis and verifies it with a ping.
func NewRedisStore(ctx context.Context, redisURL string, maxMessages int, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	if maxMessages <= 0 {
		maxMessages = 100
	}
	return &RedisStore{rdb: rdb, maxMessages: maxMessages, ttl: ttl}, nil
}

func (s *RedisStore) Append(ctx context.Context, sessionID string, msg types.ChatMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	key := redisKeyPrefix + sessionID
	pipe := s.rdb.Pipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, int64(-s.maxMessages), -1)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis append failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Context(ctx context.Context, sessionID string, limit int) ([]types.ChatMessage, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	raw, err := s.rdb.LRange(ctx, redisKeyPrefix+sessionID, start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis range failed: %w", err)
	}

	msgs := make([]types.ChatMessage, 0, len(raw))
	for _, item := range raw {
		var msg types.ChatMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			continue // skip records written by incompatible versions
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	return s.rdb.Del(ctx, redisKeyPrefix+sessionID).Err()
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
