package middleware

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"animegram/internal/models"
	"animegram/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const rateLimitKey = "rl:%s:%s"

var errNoLimiterStore = errors.New("rate limit store unavailable")

// Quota is a fixed-window request budget for one named action, counted per
// subject in Redis.
type Quota struct {
	Action string
	Limit  int
	Window time.Duration
}

// Decision is the outcome of one Quota check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// rateLimitBypassed reports whether quotas are off for this process. They
// are off under APP_ENV test, development (the default) and stress.
func rateLimitBypassed() bool {
	switch os.Getenv("APP_ENV") {
	case "", "test", "development", "stress":
		return true
	}
	return false
}

// Check counts one request by subject against the quota.
func (q Quota) Check(ctx context.Context, rdb *redis.Client, subject string) (Decision, error) {
	if rateLimitBypassed() {
		return Decision{Allowed: true, Remaining: q.Limit}, nil
	}
	if rdb == nil {
		return Decision{}, errNoLimiterStore
	}

	key := fmt.Sprintf(rateLimitKey, q.Action, subject)
	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, key)
		ttl = p.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		observability.RedisErrorRate.WithLabelValues("ratelimit").Inc()
		return Decision{}, err
	}

	count := int(incr.Val())
	retry := ttl.Val()
	// A fresh counter, or one that lost its expiry, starts a new window.
	if count == 1 || retry < 0 {
		rdb.PExpire(ctx, key, q.Window)
		retry = q.Window
	}

	d := Decision{Allowed: count <= q.Limit, Remaining: q.Limit - count, RetryAfter: retry}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	return d, nil
}

// Handler enforces the quota per authenticated user, falling back to the
// remote IP. When Redis is unreachable requests pass.
func (q Quota) Handler(rdb *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		subject := "ip:" + c.IP()
		if uid, ok := c.Locals("userID").(string); ok && uid != "" {
			subject = "user:" + uid
		}

		d, err := q.Check(c.UserContext(), rdb, subject)
		if err != nil {
			Logger.WarnContext(c.UserContext(), "rate limit check skipped",
				"action", q.Action, "error", err)
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(q.Limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if !d.Allowed {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(d.RetryAfter.Round(time.Second)/time.Second)))
			return models.RespondWithError(c, fiber.StatusTooManyRequests, models.NewRateLimitedError(q.Action))
		}
		return c.Next()
	}
}

// RateLimit returns a middleware allowing limit requests per window for action.
func RateLimit(rdb *redis.Client, limit int, window time.Duration, action string) fiber.Handler {
	return Quota{Action: action, Limit: limit, Window: window}.Handler(rdb)
}
