package kvstore

import (
	"context"
	"errors"
	"fmt"

	"story-client/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Compile-time check to ensure redisStore implements Store
var _ Store = (*redisStore)(nil)

// redisStore backs the Store contract with Redis. Keys are namespaced so a
// shared instance does not collide with other applications.
type redisStore struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisStore creates a Redis-backed Store.
func NewRedisStore(client *redis.Client, logger *zap.Logger) Store {
	return &redisStore{
		client: client,
		prefix: "story_client:",
		logger: logger.Named("RedisStore"),
	}
}

func (s *redisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, s.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", models.ErrKeyNotFound
		}
		s.logger.Error("Failed to get key from redis", zap.String("key", key), zap.Error(err))
		return "", fmt.Errorf("failed to get key from redis: %w", err)
	}
	return v, nil
}

func (s *redisStore) Set(ctx context.Context, key, value string) error {
	// TTL не ставим: записи живут до явного удаления, как и в файловом бэкенде
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		s.logger.Error("Failed to set key in redis", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to set key in redis: %w", err)
	}
	return nil
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		s.logger.Error("Failed to delete key from redis", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to delete key from redis: %w", err)
	}
	return nil
}
