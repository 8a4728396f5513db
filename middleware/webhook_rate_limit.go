package middleware

import (
	"context"
	"time"

	"reachloop/config"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// WebhookRateLimit throttles delivery-event ingestion per channel and
// source IP. With Redis enabled the counters are shared across
// instances; otherwise fiber's in-memory store is used.
func WebhookRateLimit() fiber.Handler {
	cfg := limiter.Config{
		Max:        config.AppConfig.RateLimitWebhook,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "webhook:" + c.Params("channel") + ":" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many requests",
			})
		},
	}
	if config.AppConfig.Redis.Enabled {
		cfg.Storage = NewRedisStorage()
	}
	return limiter.New(cfg)
}

// RedisStorage adapts go-redis to fiber's Storage interface so limiter
// counters survive restarts and are shared between replicas.
type RedisStorage struct {
	client *redis.Client
	ctx    context.Context
}

func NewRedisStorage() *RedisStorage {
	client := redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.Redis.Address,
		Password: config.AppConfig.Redis.Password,
		DB:       config.AppConfig.Redis.DB,
	})
	return &RedisStorage{client: client, ctx: context.Background()}
}

func (s *RedisStorage) Get(key string) ([]byte, error) {
	val, err := s.client.Get(s.ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return val, err
}

func (s *RedisStorage) Set(key string, val []byte, exp time.Duration) error {
	return s.client.Set(s.ctx, key, val, exp).Err()
}

func (s *RedisStorage) Delete(key string) error {
	return s.client.Del(s.ctx, key).Err()
}

func (s *RedisStorage) Reset() error {
	return s.client.FlushDB(s.ctx).Err()
}

func (s *RedisStorage) Close() error {
	return s.client.Close()
}
