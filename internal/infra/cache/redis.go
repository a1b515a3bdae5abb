package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"dodekaedr-bot/internal/domain"
	"dodekaedr-bot/internal/infra/metrics"
)

// RedisCache реализует domain.Cache через Redis. Используется воркером
// напоминаний для дедупликации отправок в пределах дня.
type RedisCache struct {
	client *redis.Client
}

var _ domain.Cache = (*RedisCache)(nil)

// NewRedis создаёт кэш.
func NewRedis(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Once выполняет функцию, если ключ ещё не задан. При ошибке функции ключ
// снимается, чтобы повтор задачи мог доставить напоминание.
func (c *RedisCache) Once(key string, ttl time.Duration, fn func() error) error {
	ctx := context.Background()
	start := time.Now()
	ok, err := c.client.SetNX(ctx, key, "1", ttl).Result()
	metrics.ObserveNetworkRequest("redis", "setnx", key, start, err)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := fn(); err != nil {
		_ = c.client.Del(ctx, key).Err()
		return err
	}
	return nil
}
