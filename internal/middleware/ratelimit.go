package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerWindow int           // Number of requests allowed per window
	Window            time.Duration // Time window for rate limiting
	KeyPrefix         string        // Redis key prefix
}

// fixedWindow counts hits per key in redis. The first hit of a window sets
// the expiry.
type fixedWindow struct {
	client *redis.Client
	config RateLimitConfig
}

func (f fixedWindow) hit(ctx context.Context, key string) (int64, error) {
	count, err := f.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := f.client.Expire(ctx, key, f.config.Window).Err(); err != nil {
			return count, fmt.Errorf("failed to set expiry: %w", err)
		}
	}
	return count, nil
}

func (f fixedWindow) resetIn(ctx context.Context, key string) time.Duration {
	ttl, err := f.client.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		return f.config.Window
	}
	return ttl
}

// clientKey limits authenticated admins per account and everyone else per
// address, ignoring the source port.
func clientKey(r *http.Request) string {
	if userID, ok := GetUserID(r.Context()); ok {
		return "admin:" + userID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// RateLimitMiddleware implements rate limiting using Redis. When redis is
// unreachable requests are let through.
func RateLimitMiddleware(redisClient *redis.Client, config RateLimitConfig, logger *zap.Logger) func(http.Handler) http.Handler {
	window := fixedWindow{client: redisClient, config: config}
	limit := strconv.Itoa(config.RequestsPerWindow)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := clientKey(r)
			key := fmt.Sprintf("%s:%s", config.KeyPrefix, clientID)

			count, err := window.hit(r.Context(), key)
			if err != nil {
				logger.Warn("Rate limiter unavailable", zap.Error(err), zap.String("key", key))
				if count == 0 {
					next.ServeHTTP(w, r)
					return
				}
			}

			w.Header().Set("X-RateLimit-Limit", limit)

			if count > int64(config.RequestsPerWindow) {
				ttl := window.resetIn(r.Context(), key)

				logger.Warn("Rate limit exceeded",
					zap.String("client_id", clientID),
					zap.String("path", r.URL.Path),
					zap.Int64("count", count),
					zap.Int("limit", config.RequestsPerWindow),
				)

				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(ttl).Unix(), 10))
				w.Header().Set("Retry-After", strconv.Itoa(int(ttl.Round(time.Second).Seconds())))

				RespondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(int64(config.RequestsPerWindow)-count, 10))

			next.ServeHTTP(w, r)
		})
	}
}
