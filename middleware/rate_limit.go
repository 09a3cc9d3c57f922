package middleware

import (
	"context"
	"time"

	"econsensus/config"
	"econsensus/models"
	"econsensus/utils"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// WriteRateLimiter limits how often one user can save decisions, feedback
// and comments. Reads are never limited.
func WriteRateLimiter() fiber.Handler {
	return limiter.New(limiter.Config{
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodGet || c.Method() == fiber.MethodHead
		},
		Max:        config.AppConfig.RateLimitWrites,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			// Get user from context (set by JWT middleware)
			if user, ok := c.Locals("user").(*models.User); ok {
				return utils.GenerateRateLimitKey(user.ID, c.Route().Path)
			}
			return "rl:ip:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			fields := map[string]interface{}{
				"endpoint":   c.Path(),
				"ip":         c.IP(),
				"user_agent": c.Get("User-Agent"),
			}
			if user, ok := c.Locals("user").(*models.User); ok {
				fields["user_id"] = user.ID
			}
			utils.LogEvent("rate_limit_hit", fields)

			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Too many changes. Please wait before saving again.",
				"retry_after": "1 minute",
			})
		},
		Storage: createRateLimitStorage(),
	})
}

// createRateLimitStorage shares limiter state across instances when Redis is on
func createRateLimitStorage() fiber.Storage {
	if config.AppConfig.Redis.Enabled {
		return NewRedisStorage(config.AppConfig.Redis)
	}
	return nil
}

// RedisStorage implements fiber.Storage for Redis
type RedisStorage struct {
	client *redis.Client
}

func NewRedisStorage(config config.RedisConfig) *RedisStorage {
	return &RedisStorage{
		client: redis.NewClient(&redis.Options{
			Addr:     config.Address,
			Password: config.Password,
			DB:       config.DB,
		}),
	}
}

func (r *RedisStorage) Get(key string) ([]byte, error) {
	val, err := r.client.Get(context.Background(), key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return val, err
}

func (r *RedisStorage) Set(key string, val []byte, exp time.Duration) error {
	return r.client.Set(context.Background(), key, val, exp).Err()
}

func (r *RedisStorage) Delete(key string) error {
	return r.client.Del(context.Background(), key).Err()
}

func (r *RedisStorage) Reset() error {
	return r.client.FlushDB(context.Background()).Err()
}

func (r *RedisStorage) Close() error {
	return r.client.Close()
}
