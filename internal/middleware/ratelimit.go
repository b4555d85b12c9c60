package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// GenerationWindow bounds how many chat replies one user may request.
	GenerationWindow      = time.Minute
	GenerationMaxRequests = 10
	// RateLimitKeyPrefix is the Redis key prefix for rate limiting
	RateLimitKeyPrefix = "ratelimit:"
)

// Limiter decides whether key may make another request.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Burst() int
}

// RedisWindow is a fixed-window counter shared by every instance.
type RedisWindow struct {
	client *redis.Client
	scope  string
	window time.Duration
	max    int
}

func NewRedisWindow(client *redis.Client, scope string, window time.Duration, max int) *RedisWindow {
	return &RedisWindow{client: client, scope: scope, window: window, max: max}
}

func (l *RedisWindow) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := RateLimitKeyPrefix + l.scope + ":" + key

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		// First request in this window
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return false, err
		}
	}
	return count <= int64(l.max), nil
}

func (l *RedisWindow) Burst() int {
	return l.max
}

// GenerationLimiter picks the shared Redis window when Redis is available
// and a per-process token bucket otherwise.
func GenerationLimiter(client *redis.Client) Limiter {
	if client != nil {
		return NewRedisWindow(client, "generate", GenerationWindow, GenerationMaxRequests)
	}
	return newKeyedLimiter(rate.Every(GenerationWindow/GenerationMaxRequests), GenerationMaxRequests)
}

// UserRateLimit limits authenticated requests per user. It must run after
// RequireAuth. Limiter errors fail open.
func UserRateLimit(l Limiter, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := UserIDFromContext(r.Context())
			if userID == "" {
				next.ServeHTTP(w, r)
				return
			}

			allowed, err := l.Allow(r.Context(), userID)
			if err != nil {
				// If Redis fails, allow the request (fail open)
				log.Warn("rate limiter unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.Burst()))
			if !allowed {
				w.Header().Set("X-RateLimit-Remaining", "0")
				tooManyRequests(w, "You're sending messages too quickly. Please wait a moment.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
