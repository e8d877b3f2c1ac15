package server

import (
	"context"
	"time"

	"clientreports/internal/auth"
	"clientreports/internal/cache"
	"clientreports/internal/config"
	"clientreports/internal/handlers"
	"clientreports/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"
)

// ClientService is the client, template and feedback persistence behind the API
type ClientService interface {
	handlers.ClientStore
	handlers.FeedbackStore
}

// Dependencies are the services routes are bound to. A nil field leaves its routes out.
type Dependencies struct {
	Fetcher  handlers.ClientEmailFetcher
	Clients  ClientService
	Messages handlers.MessageInserter
	Tasks    handlers.TaskQueue
	Vectors  handlers.VectorChecker
}

// Server represents the application server
type Server struct {
	echo        *echo.Echo
	db          *sqlx.DB
	config      *config.Config
	deps        Dependencies
	admins      *auth.AdminPolicy
	logger      zerolog.Logger
	clientCache *cache.Cache[models.Client]
}

// New creates a new server instance
func New(cfg *config.Config, db *sqlx.DB, deps Dependencies, logger zerolog.Logger) *Server {
	return &Server{
		config:      cfg,
		db:          db,
		deps:        deps,
		admins:      auth.NewAdminPolicy(cfg.AdminEmails),
		logger:      logger,
		clientCache: cache.New[models.Client](cache.DefaultTTL),
	}
}

// zerologMiddleware creates a zerolog-based logging middleware for Echo
func (s *Server) zerologMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()

			s.logger.Info().
				Str("method", req.Method).
				Str("uri", req.RequestURI).
				Str("remote_ip", c.RealIP()).
				Int("status", res.Status).
				Int64("latency_ms", time.Since(start).Milliseconds()).
				Str("user_agent", req.UserAgent()).
				Msg("HTTP request")

			return err
		}
	}
}

// Initialize sets up the Echo framework with middleware and routes
func (s *Server) Initialize() {
	s.echo = echo.New()

	s.echo.Use(s.zerologMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.CORS())

	s.echo.HideBanner = true

	s.setupRoutes()
}

// setupRoutes configures all the application routes
func (s *Server) setupRoutes() {
	api := s.echo.Group("/api")

	s.echo.GET("/swagger/*", echoSwagger.WrapHandler)

	// Health endpoints (keep at root level for monitoring)
	s.echo.GET("/healthz", handlers.HealthHandler(s.config.Version))
	s.echo.GET("/healthz/db", handlers.DBHealthHandler(s.db, s.deps.Vectors))

	api.GET("/", handlers.RootHandler(s.config.Version))

	var lookup *handlers.ClientLookup
	if s.deps.Clients != nil {
		lookup = handlers.NewClientLookup(s.deps.Clients, s.clientCache)
		api.GET("/clients", handlers.ListClientsHandler(s.deps.Clients))
		api.POST("/clients", handlers.CreateClientHandler(s.deps.Clients))
		api.POST("/feedback", handlers.FeedbackHandler(s.deps.Clients))
	}
	if s.deps.Fetcher != nil {
		api.POST("/emails/fetch", handlers.FetchEmailsHandler(s.deps.Fetcher, lookup, s.logger))
	}
	if s.deps.Messages != nil {
		var enqueuer handlers.TaskEnqueuer
		if s.deps.Tasks != nil {
			enqueuer = s.deps.Tasks
		}
		api.POST("/webhooks/messages", handlers.MessageWebhookHandler(s.deps.Messages, enqueuer, s.logger))
	}

	if s.deps.Tasks != nil {
		admin := api.Group("/admin", auth.Middleware(s.admins))
		admin.POST("/tasks", handlers.EnqueueTaskHandler(s.deps.Tasks, s.logger))
		admin.GET("/tasks", handlers.ListTasksHandler(s.deps.Tasks))
		admin.GET("/tasks/:taskId", handlers.GetTaskHandler(s.deps.Tasks))
	}
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() *echo.Echo {
	return s.echo
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info().Str("port", s.config.Port).Msg("Server starting")
	return s.echo.Start(":" + s.config.Port)
}

// Shutdown stops accepting connections and waits for in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
