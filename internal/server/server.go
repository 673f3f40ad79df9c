// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"errors"
	"time"

	_ "animegram/docs" // swagger docs
	"animegram/internal/bootstrap"
	"animegram/internal/config"
	"animegram/internal/middleware"
	"animegram/internal/models"
	"animegram/internal/notifications"
	"animegram/internal/repository"
	"animegram/internal/service"
	"animegram/internal/source"
	"animegram/internal/store"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// userDirectory is implemented by backends that keep their own copy of the
// account list and must learn about new registrations.
type userDirectory interface {
	AddUser(u models.UserSummary)
}

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	runtime        *bootstrap.Runtime
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc
	userRepo       repository.UserRepository
	backend        source.Backend
	registry       *store.Registry
	notifier       *notifications.Notifier
	hub            *notifications.Hub
	local          *service.LocalDeliverer

	authService         *service.AuthService
	feedService         *service.FeedService
	chatService         *service.ChatService
	notificationService *service.NotificationService
}

// NewServer initializes the runtime described by cfg and builds a Server on it.
func NewServer(ctx context.Context, cfg *config.Config, opts bootstrap.Options) (*Server, error) {
	rt, err := bootstrap.InitRuntime(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}

	s, err := NewServerWithDeps(cfg, rt.DB, rt.Redis, rt.Backend)
	if err != nil {
		return nil, err
	}
	s.runtime = rt
	return s, nil
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// redisClient may be nil, in which case delivery stays in-process and tokens
// cannot be revoked.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, backend source.Backend) (*Server, error) {
	if backend == nil {
		return nil, errors.New("a data backend is required")
	}

	s := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("animegram-api"),
		userRepo:       repository.NewUserRepository(db),
		backend:        backend,
		registry:       store.NewRegistry(),
		notifier:       notifications.NewNotifier(redisClient),
		hub:            notifications.NewHub(),
	}

	var onRegister func(models.UserSummary)
	if dir, ok := backend.(userDirectory); ok {
		onRegister = dir.AddUser
	}

	s.local = service.NewLocalDeliverer(s.registry, s.hub, backend)
	deliver := service.NewDeliverer(s.notifier, s.local)

	s.authService = service.NewAuthService(s.userRepo, s.registry, redisClient, cfg.JWTSecret, onRegister)
	s.feedService = service.NewFeedService(backend, backend, deliver)
	s.chatService = service.NewChatService(backend, backend, deliver)
	s.notificationService = service.NewNotificationService(backend, backend)

	return s, nil
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}
	app.Use(middleware.TracingMiddleware())

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so rejected requests still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))

	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api")
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "Animegram Metrics Dashboard",
	}))
	api.Get("/swagger/*", swagger.HandlerDefault)

	auth := api.Group("/auth")
	auth.Post("/register", middleware.RateLimit(
		s.redis, 3, 10*time.Minute, "register"), s.Register)
	auth.Post("/login", middleware.RateLimit(
		s.redis, 10, 5*time.Minute, "login"), s.Login)

	// Registered ahead of the protected group so authentication runs once
	// and a single-use ticket is consumed only once.
	api.Get("/ws", s.AuthRequired(), s.WebSocketUpgrade, s.WebSocketHandler())

	protected := api.Group("", s.AuthRequired())
	protected.Post("/auth/logout", s.Logout)
	protected.Get("/me", s.Me)
	protected.Get("/me/account", s.GetAccount)
	protected.Get("/state", s.GetState)
	protected.Post("/ws/ticket", s.IssueWSTicket)

	feed := protected.Group("/feed")
	feed.Get("/", s.GetFeed)
	feed.Get("/state", s.GetFeedState)
	feed.Post("/reset", s.ResetFeed)

	posts := protected.Group("/posts")
	posts.Post("/", middleware.RateLimit(
		s.redis, 10, 5*time.Minute, "create_post"), s.CreatePost)
	posts.Post("/:id/like", s.LikePost)
	posts.Delete("/:id/like", s.UnlikePost)
	posts.Post("/:id/comments", middleware.RateLimit(
		s.redis, 10, time.Minute, "create_comment"), s.CreateComment)
	posts.Delete("/:id", s.DeletePost)

	conversations := protected.Group("/conversations")
	conversations.Get("/", s.GetConversations)
	conversations.Put("/active", s.SetActiveConversation)
	conversations.Delete("/active", s.ClearActiveConversation)
	conversations.Get("/:userId/messages", s.GetMessages)

	protected.Get("/chat/state", s.GetChatState)
	protected.Post("/messages", middleware.RateLimit(
		s.redis, 15, time.Minute, "send_message"), s.SendMessage)

	notes := protected.Group("/notifications")
	notes.Get("/", s.GetNotifications)
	notes.Get("/state", s.GetNotificationsState)
	notes.Post("/read-all", s.MarkAllNotificationsRead)
	notes.Post("/:id/read", s.MarkNotificationRead)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests. Redis is optional: its
// absence is reported but does not fail readiness.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if s.db == nil {
		dbStatus = "unavailable"
	} else if sqlDB, err := s.db.DB(); err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus != "healthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"sessions":    s.registry.Len(),
		"connections": s.hub.Connections(),
		"time":        time.Now(),
	})
}

// App builds the Fiber application with middleware and routes. The same
// instance is returned on later calls.
func (s *Server) App() *fiber.App {
	if s.app != nil {
		return s.app
	}
	app := fiber.New(fiber.Config{
		AppName: "Animegram API",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", "error", err)
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	s.app = app
	return app
}

// StartDelivery subscribes to the per-user Redis channels so events published
// by any instance reach the stores held here. Without Redis it does nothing.
func (s *Server) StartDelivery(ctx context.Context) error {
	if !s.notifier.Enabled() {
		return nil
	}
	return service.StartDispatch(ctx, s.notifier, s.local)
}

// Start starts the server
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	app := s.App()

	if err := s.StartDelivery(s.shutdownCtx); err != nil {
		middleware.Logger.Error("failed to start delivery subscriber", "error", err)
	}

	middleware.Logger.Info("server starting", "port", s.config.Port, "data_source", s.config.DataSource)
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", "error", err)
		}
	}

	if err := s.hub.Shutdown(ctx); err != nil {
		middleware.Logger.Error("error shutting down hub", "hub", s.hub.Name(), "error", err)
	}

	if s.db != nil {
		if sqlDB, err := s.db.DB(); err == nil {
			if cerr := sqlDB.Close(); cerr != nil {
				middleware.Logger.Error("error closing sql DB", "error", cerr)
			}
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			middleware.Logger.Error("error closing redis", "error", rerr)
		}
	}

	if err := s.runtime.Close(ctx); err != nil {
		middleware.Logger.Error("error flushing traces", "error", err)
	}

	middleware.Logger.Info("server shutdown complete")
	return nil
}
