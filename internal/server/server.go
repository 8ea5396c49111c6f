// Package server exposes the feed session to the UI over HTTP and a websocket.
package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"animelight/internal/config"
	"animelight/internal/featureflags"
	"animelight/internal/feed"
	"animelight/internal/models"
	"animelight/internal/notifications"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

// HealthCheck checks one dependency for GET /health.
type HealthCheck func(ctx context.Context) error

// Deps are the collaborators the bridge serves. Session is required.
type Deps struct {
	Session *feed.Session
	Alerts  *feed.AlertBuffer
	Signal  *notifications.Signal
	Hub     *notifications.Hub
	Flags   *featureflags.Manager
	Checks  map[string]HealthCheck
}

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	session        *feed.Session
	alerts         *feed.AlertBuffer
	signal         *notifications.Signal
	hub            *notifications.Hub
	featureFlags   *featureflags.Manager
	checks         map[string]HealthCheck
	promMiddleware *fiberprometheus.FiberPrometheus
}

var (
	promOnce sync.Once
	prom     *fiberprometheus.FiberPrometheus
)

// initMetrics registers the HTTP collectors once per process.
func initMetrics(serviceName string) *fiberprometheus.FiberPrometheus {
	promOnce.Do(func() {
		prom = fiberprometheus.New(serviceName)
	})
	return prom
}

// NewServer creates the bridge and wires session events to the UI hub.
func NewServer(cfg *config.Config, deps Deps) *Server {
	hub := deps.Hub
	if hub == nil {
		hub = notifications.NewHub()
	}
	alerts := deps.Alerts
	if alerts == nil {
		alerts = feed.NewAlertBuffer(0)
	}
	s := &Server{
		config:         cfg,
		session:        deps.Session,
		alerts:         alerts,
		signal:         deps.Signal,
		hub:            hub,
		featureFlags:   deps.Flags,
		checks:         deps.Checks,
		promMiddleware: initMetrics("feedsyncd"),
	}

	s.session.Store().OnChange(func(version uint64) {
		s.hub.Broadcast(notifications.FrameFeedChanged, fiber.Map{"version": version})
	})
	s.alerts.OnAlert(func(a models.Alert) {
		s.hub.Broadcast(notifications.FrameAlert, a)
	})
	if s.signal != nil {
		s.hub.WireSignal(s.signal)
	}
	return s
}

// NewApp builds the fiber app with middleware and routes.
func (s *Server) NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "feedsyncd",
		BodyLimit:    64 * 1024,
		ErrorHandler: errorHandler,
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(ContextMiddleware())
	app.Use(TracingMiddleware())

	if s.promMiddleware != nil {
		app.Use(s.promMiddleware.Middleware)
	}

	app.Use(helmet.New())
	app.Use(StructuredLogger())

	origins := ""
	if s.config != nil {
		origins = s.config.AllowedOrigins
	}
	if origins == "" {
		origins = "http://localhost:8081,http://localhost:19006"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowHeaders: "Origin, Content-Type, Accept, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		MaxAge:       86400,
	}))

	app.Use(limiter.New(limiter.Config{
		Max:        600,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
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
	app.Get("/health", s.Health)
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api")

	feedGroup := api.Group("/feed")
	feedGroup.Get("/", s.GetFeed)
	feedGroup.Post("/refresh", s.RefreshFeed)
	feedGroup.Post("/more", s.LoadMore)
	feedGroup.Post("/mount", s.MountFeed)
	feedGroup.Post("/unmount", s.UnmountFeed)

	posts := api.Group("/posts")
	posts.Post("/:id/like", s.ToggleLike)
	posts.Post("/:id/comments", s.AddComment)
	posts.Post("/:id/comment-confirmed", s.ConfirmComment)

	api.Get("/alerts", s.GetAlerts)
	api.Get("/feature-flags", s.GetFeatureFlags)

	api.Use("/ws", s.RequireUpgrade)
	api.Get("/ws", s.WebsocketHandler())
}

// Health reports the status of every configured dependency.
func (s *Server) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	checks := fiber.Map{}
	status := fiber.StatusOK
	overall := "healthy"
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			checks[name] = "unhealthy"
			status = fiber.StatusServiceUnavailable
			overall = "unhealthy"
			continue
		}
		checks[name] = "healthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status":     overall,
		"session_id": s.session.ID,
		"checks":     checks,
		"time":       time.Now(),
	})
}

// Shutdown closes the UI connections and ends the session.
func (s *Server) Shutdown(ctx context.Context) error {
	return errors.Join(
		s.hub.Shutdown(ctx),
		s.session.Stop(ctx),
	)
}
