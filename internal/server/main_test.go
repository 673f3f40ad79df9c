package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"animegram/internal/config"
	"animegram/internal/database"
	"animegram/internal/models"
	"animegram/internal/service"
	"animegram/internal/source"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
)

const testPassword = "Password123!"

type testEnv struct {
	srv     *Server
	app     *fiber.App
	catalog *source.Catalog
	mr      *miniredis.Miniredis
	rdb     *redis.Client
}

// testCatalog holds one fixture author, "ed", who owns p1..p3 (newest first)
// and sends the viewer a notification.
func testCatalog() *source.Catalog {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	ed := models.UserSummary{ID: "ed", Username: "radical_ed", Name: "Edward"}
	return source.NewCatalog(source.Fixtures{
		Users: []models.UserSummary{ed},
		Posts: []models.Post{
			{ID: "p1", UserID: ed.ID, MediaURLs: []string{"https://cdn.example.com/p1.jpg"}, Likes: 2, CreatedAt: base.Add(2 * time.Minute)},
			{ID: "p2", UserID: ed.ID, MediaURLs: []string{"https://cdn.example.com/p2.jpg"}, CreatedAt: base.Add(time.Minute)},
			{ID: "p3", UserID: ed.ID, MediaURLs: []string{"https://cdn.example.com/p3.jpg"}, CreatedAt: base},
		},
		Notifications: []models.Notification{
			{ID: "n1", UserID: source.ViewerPlaceholder, Type: models.NotificationFollow, ActorID: ed.ID, CreatedAt: base},
		},
	}, 0)
}

// newTestServer builds a server over a temp sqlite database and the test
// catalogue. withRedis adds a miniredis instance.
func newTestServer(t *testing.T, withRedis bool) *testEnv {
	t.Helper()
	t.Setenv("APP_ENV", "test")

	db, err := database.Open(sqlite.Open(filepath.Join(t.TempDir(), "server.db")))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	env := &testEnv{catalog: testCatalog()}
	if withRedis {
		env.mr = miniredis.RunT(t)
		env.rdb = redis.NewClient(&redis.Options{Addr: env.mr.Addr()})
	}

	cfg := &config.Config{
		JWTSecret:      "test-secret-with-at-least-32-characters",
		Port:           "0",
		AllowedOrigins: "*",
		DataSource:     config.DataSourceMock,
		FeedPageSize:   10,
	}
	srv, err := NewServerWithDeps(cfg, db, env.rdb, env.catalog)
	require.NoError(t, err)
	env.srv = srv
	env.app = srv.App()

	t.Cleanup(func() {
		_ = srv.hub.Shutdown(context.Background())
		_ = sqlDB.Close()
		if env.rdb != nil {
			_ = env.rdb.Close()
		}
	})
	return env
}

// do sends a JSON request, optionally authenticated, and returns the status
// and raw body.
func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.app.Test(req, 5000)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

// decode unmarshals a response body into T.
func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), string(raw))
	return v
}

// signup registers and logs in a user, returning the session.
func (e *testEnv) signup(t *testing.T, username string) service.Session {
	t.Helper()
	status, body := e.do(t, http.MethodPost, "/api/auth/register", "", service.RegisterInput{
		Name:     username,
		Username: username,
		Email:    username + "@example.com",
		Password: testPassword,
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	status, body = e.do(t, http.MethodPost, "/api/auth/login", "", fiber.Map{
		"email":    username + "@example.com",
		"password": testPassword,
	})
	require.Equal(t, http.StatusOK, status, string(body))
	return decode[service.Session](t, body)
}
