package auth

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	apperrors "github.com/spec-kit/appointment-service/pkg/util"
)

// RateLimiter is a fixed-window limiter keyed by client IP, shared across instances through Redis.
type RateLimiter struct {
	rdb      *redis.Client
	limit    int
	window   time.Duration
	prefix   string
	failOpen bool
	logger   *zap.Logger
}

var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// NewRateLimiter builds a limiter. A nil client disables limiting.
func NewRateLimiter(rdb *redis.Client, limit int, window time.Duration, prefix string, failOpen bool, logger *zap.Logger) *RateLimiter {
	if limit <= 0 {
		limit = 20
	}
	if window <= 0 {
		window = time.Minute
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "rl"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{rdb: rdb, limit: limit, window: window, prefix: prefix, failOpen: failOpen, logger: logger}
}

// Handle counts the request against the caller's window and rejects it with 429 once over the limit.
func (rl *RateLimiter) Handle(c *fiber.Ctx) error {
	if rl == nil || rl.rdb == nil {
		return c.Next()
	}
	key := rl.prefix + ":" + c.Path() + ":" + c.IP()
	count, err := rl.incr(c.UserContext(), key)
	if err != nil {
		rl.logger.Warn("redis rate limiter error", zap.Error(err))
		if rl.failOpen {
			return c.Next()
		}
		return apperrors.NewDomainError(apperrors.CodeInternal, "rate limiter unavailable", fiber.StatusServiceUnavailable, nil)
	}
	if count > int64(rl.limit) {
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(rl.window.Seconds())))
		return apperrors.NewRateLimited("rate limit exceeded")
	}
	return c.Next()
}

func (rl *RateLimiter) incr(ctx context.Context, key string) (int64, error) {
	ms := rl.window.Milliseconds()
	res, err := fixedWindowScript.Run(ctx, rl.rdb, []string{key}, ms).Result()
	if err != nil {
		return 0, err
	}
	switch v := res.(type) {
	case int64:
		return v, nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected redis script result type %T", res)
	}
}
