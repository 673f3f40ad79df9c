package middleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"animegram/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestQuotaCheck_EnvironmentBypass(t *testing.T) {
	for _, env := range []string{"", "test", "development", "stress"} {
		t.Run("env="+env, func(t *testing.T) {
			t.Setenv("APP_ENV", env)
			d, err := Quota{Action: "register", Limit: 1, Window: time.Minute}.Check(context.Background(), nil, "ip:1")
			require.NoError(t, err)
			assert.True(t, d.Allowed)
		})
	}
}

func TestQuotaCheck_NilRedis(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	_, err := Quota{Action: "register", Limit: 1, Window: time.Minute}.Check(context.Background(), nil, "ip:1")
	assert.ErrorIs(t, err, errNoLimiterStore)
}

func TestQuotaCheck_CountsWithinWindow(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	mr, rdb := newTestRedis(t)
	ctx := context.Background()
	q := Quota{Action: "login", Limit: 2, Window: time.Minute}

	for want := 1; want >= 0; want-- {
		d, err := q.Check(ctx, rdb, "ip:1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, want, d.Remaining)
	}

	d, err := q.Check(ctx, rdb, "ip:1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Zero(t, d.Remaining)
	assert.Positive(t, d.RetryAfter)
	assert.True(t, mr.Exists("rl:login:ip:1"))

	// Subjects are counted separately.
	d, err = q.Check(ctx, rdb, "ip:2")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	mr.FastForward(2 * time.Minute)
	d, err = q.Check(ctx, rdb, "ip:1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestRateLimitHandler(t *testing.T) {
	t.Setenv("APP_ENV", "production")

	tests := []struct {
		name       string
		redisDown  bool
		requests   int
		wantStatus int
	}{
		{name: "under limit", requests: 1, wantStatus: fiber.StatusOK},
		{name: "over limit", requests: 2, wantStatus: fiber.StatusTooManyRequests},
		{name: "redis down passes", redisDown: true, requests: 2, wantStatus: fiber.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mr, rdb := newTestRedis(t)
			if tt.redisDown {
				mr.Close()
			}

			app := fiber.New()
			app.Get("/limited", RateLimit(rdb, 1, time.Minute, "send_message"), func(c *fiber.Ctx) error {
				return c.SendStatus(fiber.StatusOK)
			})

			var status int
			var body []byte
			for i := 0; i < tt.requests; i++ {
				resp, err := app.Test(httptest.NewRequest("GET", "/limited", nil))
				require.NoError(t, err)
				status = resp.StatusCode
				body, _ = io.ReadAll(resp.Body)
				if status == fiber.StatusTooManyRequests {
					assert.NotEmpty(t, resp.Header.Get(fiber.HeaderRetryAfter))
					assert.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining"))
				}
			}
			assert.Equal(t, tt.wantStatus, status)

			if status == fiber.StatusTooManyRequests {
				var res models.ErrorResponse
				require.NoError(t, json.Unmarshal(body, &res))
				assert.Equal(t, models.CodeRateLimited, res.Code)
			}
		})
	}
}

func TestRateLimitHandler_KeysByUser(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	mr, rdb := newTestRedis(t)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("userID", c.Get("X-User"))
		return c.Next()
	})
	app.Get("/limited", RateLimit(rdb, 1, time.Minute, "create_post"), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	for _, user := range []string{"u1", "u2"} {
		req := httptest.NewRequest("GET", "/limited", nil)
		req.Header.Set("X-User", user)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
	assert.True(t, mr.Exists("rl:create_post:user:u1"))
	assert.True(t, mr.Exists("rl:create_post:user:u2"))
}
