// Package bootstrap wires the process-level runtime: database, Redis, tracing
// and the data backend the stores fetch from.
package bootstrap

import (
	"context"
	"fmt"

	"animegram/internal/cache"
	"animegram/internal/config"
	"animegram/internal/database"
	"animegram/internal/middleware"
	"animegram/internal/observability"
	"animegram/internal/repository"
	"animegram/internal/seed"
	"animegram/internal/source"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// SeedIfEmpty fills an empty database with demo data when the db
	// backend is selected.
	SeedIfEmpty bool
}

// Runtime is everything a server process needs before it builds routes.
type Runtime struct {
	DB      *gorm.DB
	Redis   *redis.Client
	Backend source.Backend

	shutdownTracing func(context.Context) error
}

// InitRuntime connects to DB and Redis, starts tracing and selects the data
// backend. Redis may end up nil when it is unreachable.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	shutdownTracing, err := observability.InitTracing(TracingConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("tracing init failed: %w", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	r := cache.GetClient()

	if opts.SeedIfEmpty && cfg.DataSource == config.DataSourceDB {
		if err := seedIfEmpty(ctx, db); err != nil {
			return nil, fmt.Errorf("failed to seed demo data: %w", err)
		}
	}

	backend, err := NewBackend(cfg, db)
	if err != nil {
		return nil, err
	}

	return &Runtime{DB: db, Redis: r, Backend: backend, shutdownTracing: shutdownTracing}, nil
}

// Close flushes tracing. The server owns and closes DB and Redis.
func (rt *Runtime) Close(ctx context.Context) error {
	if rt == nil || rt.shutdownTracing == nil {
		return nil
	}
	return rt.shutdownTracing(ctx)
}

// TracingConfig maps application config onto the tracer settings.
func TracingConfig(cfg *config.Config) observability.TracingConfig {
	return observability.TracingConfig{
		ServiceName:    "animegram-api",
		ServiceVersion: "1.0",
		Environment:    cfg.Env,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplerRatio:   cfg.TracingSampleRatio,
	}
}

// NewBackend selects the data source the fetchers and writers run against.
// Mock mode reads MOCK_FIXTURES when set and generates a seeded catalogue
// otherwise. DB mode reads the relational store.
func NewBackend(cfg *config.Config, db *gorm.DB) (source.Backend, error) {
	switch cfg.DataSource {
	case config.DataSourceDB:
		if db == nil {
			return nil, fmt.Errorf("data source %q needs a database", cfg.DataSource)
		}
		return source.NewDB(
			repository.NewUserRepository(db),
			repository.NewPostRepository(db),
			repository.NewChatRepository(db),
			repository.NewNotificationRepository(db),
		), nil
	case config.DataSourceMock, "":
		var fx source.Fixtures
		if cfg.MockFixtures != "" {
			loaded, err := source.LoadFixtures(cfg.MockFixtures)
			if err != nil {
				return nil, fmt.Errorf("load mock fixtures: %w", err)
			}
			fx = loaded
		} else {
			fx = source.GenerateFixtures(source.MockOptions{
				Seed:  cfg.MockSeed,
				Posts: cfg.MockPosts,
			})
		}
		middleware.Logger.Info("mock catalogue ready",
			"users", len(fx.Users), "posts", len(fx.Posts), "messages", len(fx.Messages))
		return source.NewCatalog(fx, cfg.MockLatency()), nil
	default:
		return nil, fmt.Errorf("unknown data source %q", cfg.DataSource)
	}
}

func seedIfEmpty(ctx context.Context, db *gorm.DB) error {
	empty, err := seed.IsEmpty(ctx, db)
	if err != nil || !empty {
		return err
	}
	opts := seed.DefaultOptions()
	opts.ShouldClean = false
	_, err = seed.NewSeeder(db, opts).Run(ctx)
	return err
}
