package cache

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects to Redis for rate limiting. A nil return means
// Redis is unavailable and callers degrade to pass-through behavior.
func NewRedisClient(addr, password string) *redis.Client {
	if addr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("[Redis] unavailable at %s, rate limiting disabled: %v", addr, err)
		return nil
	}
	return client
}
