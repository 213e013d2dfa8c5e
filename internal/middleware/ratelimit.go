package middleware

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// RateLimit applies a fixed-window limit per client IP and route, backed by
// Redis. The verify/status endpoints are client-polled, so they get capped.
// With no Redis client, or on Redis errors, requests pass through.
func RateLimit(rdb *redis.Client, limit int, window time.Duration) echo.MiddlewareFunc {
	if rdb == nil || limit <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error { return next(c) }
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := "rl:" + c.RealIP() + ":" + c.Path()
			ctx := c.Request().Context()

			count, err := rdb.Incr(ctx, key).Result()
			if err != nil {
				log.Printf("[RateLimit] redis error for %s: %v", key, err)
				return next(c)
			}
			if count == 1 {
				rdb.Expire(ctx, key, window)
			}

			remaining := int64(limit) - count
			if remaining < 0 {
				remaining = 0
			}
			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if count > int64(limit) {
				c.Response().Header().Set("Retry-After", strconv.Itoa(int(window/time.Second)))
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
