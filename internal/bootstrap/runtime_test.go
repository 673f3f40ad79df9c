package bootstrap

import (
	"context"
	"path/filepath"
	"testing"

	"animegram/internal/config"
	"animegram/internal/database"
	"animegram/internal/models"
	"animegram/internal/source"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(sqlite.Open(filepath.Join(t.TempDir(), "runtime.db")))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestNewBackend(t *testing.T) {
	ctx := context.Background()

	t.Run("generated catalogue", func(t *testing.T) {
		cfg := &config.Config{DataSource: config.DataSourceMock, MockSeed: 3, MockPosts: 7}
		backend, err := NewBackend(cfg, nil)
		require.NoError(t, err)
		require.IsType(t, &source.Catalog{}, backend)

		page, err := backend.FetchFeed(ctx, "viewer", 1, 20)
		require.NoError(t, err)
		assert.Len(t, page.Posts, 7)
		assert.False(t, page.HasMore)
	})

	t.Run("fixture file", func(t *testing.T) {
		cfg := &config.Config{DataSource: config.DataSourceMock, MockFixtures: "../source/testdata/fixtures.yml"}
		backend, err := NewBackend(cfg, nil)
		require.NoError(t, err)

		page, err := backend.FetchFeed(ctx, "viewer", 1, 1)
		require.NoError(t, err)
		require.Len(t, page.Posts, 1)
		assert.True(t, page.HasMore)
	})

	t.Run("missing fixture file", func(t *testing.T) {
		cfg := &config.Config{DataSource: config.DataSourceMock, MockFixtures: "does-not-exist.yml"}
		_, err := NewBackend(cfg, nil)
		assert.Error(t, err)
	})

	t.Run("database", func(t *testing.T) {
		db := testDB(t)
		require.NoError(t, db.Create(&models.User{ID: "u1", Name: "Jet Black", Username: "jet", Email: "jet@example.com", Password: "x"}).Error)
		require.NoError(t, db.Create(&models.Post{ID: "p1", UserID: "u1", MediaURLs: []string{"https://cdn.example.com/bebop.jpg"}}).Error)

		backend, err := NewBackend(&config.Config{DataSource: config.DataSourceDB}, db)
		require.NoError(t, err)
		require.IsType(t, &source.DB{}, backend)

		page, err := backend.FetchFeed(ctx, "viewer", 1, 10)
		require.NoError(t, err)
		require.Len(t, page.Posts, 1)
		require.NotNil(t, page.Posts[0].User)
		assert.Equal(t, "jet", page.Posts[0].User.Username)
	})

	t.Run("database without connection", func(t *testing.T) {
		_, err := NewBackend(&config.Config{DataSource: config.DataSourceDB}, nil)
		assert.Error(t, err)
	})

	t.Run("unknown source", func(t *testing.T) {
		_, err := NewBackend(&config.Config{DataSource: "carrier-pigeon"}, nil)
		assert.Error(t, err)
	})
}

func TestSeedIfEmpty(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	require.NoError(t, seedIfEmpty(ctx, db))
	var users int64
	require.NoError(t, db.Model(&models.User{}).Count(&users).Error)
	assert.Positive(t, users)

	// A populated database is left alone.
	require.NoError(t, seedIfEmpty(ctx, db))
	var again int64
	require.NoError(t, db.Model(&models.User{}).Count(&again).Error)
	assert.Equal(t, users, again)
}

func TestTracingConfig(t *testing.T) {
	cfg := &config.Config{
		Env:                "staging",
		TracingEnabled:     true,
		TracingExporter:    "otlp",
		OTLPEndpoint:       "collector:4318",
		TracingSampleRatio: 0.25,
	}
	tc := TracingConfig(cfg)
	assert.Equal(t, "animegram-api", tc.ServiceName)
	assert.Equal(t, "staging", tc.Environment)
	assert.True(t, tc.Enabled)
	assert.Equal(t, "otlp", tc.Exporter)
	assert.Equal(t, "collector:4318", tc.OTLPEndpoint)
	assert.InDelta(t, 0.25, tc.SamplerRatio, 1e-9)
}

func TestRuntimeCloseNil(t *testing.T) {
	var rt *Runtime
	assert.NoError(t, rt.Close(context.Background()))
}
