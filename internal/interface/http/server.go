// Package http exposes the push webhook, leaderboard reads, the observer
// stream and health endpoints over gin.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/gamifyx/gradehub/internal/application/command"
	"github.com/gamifyx/gradehub/internal/application/query"
	"github.com/gamifyx/gradehub/internal/infrastructure/realtime"
	"github.com/gamifyx/gradehub/internal/interface/http/handlers"
	"github.com/gamifyx/gradehub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Host - address to bind (default: "0.0.0.0").
	Host string

	// Port - port to listen on (default: 8080).
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// MaxHeaderBytes - maximum size of request headers.
	MaxHeaderBytes int

	// AllowedOrigins - allowed origins for CORS. "*" allows any.
	AllowedOrigins []string

	// WebhookMaxBodyBytes - cap on the push payload size.
	WebhookMaxBodyBytes int64

	// Heartbeat - interval between SSE keep-alive comments.
	Heartbeat time.Duration

	// ChannelBuffer - per-observer outbound queue size.
	ChannelBuffer int

	// ServiceName - reported on server spans.
	ServiceName string

	// Version - reported in health responses.
	Version string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:                "0.0.0.0",
		Port:                8080,
		ReadTimeout:         15 * time.Second,
		WriteTimeout:        15 * time.Second,
		IdleTimeout:         60 * time.Second,
		MaxHeaderBytes:      1 << 20, // 1 MB
		AllowedOrigins:      []string{"*"},
		WebhookMaxBodyBytes: 5 << 20,
		Heartbeat:           realtime.DefaultHeartbeat,
		ChannelBuffer:       64,
		ServiceName:         "gradehub",
	}
}

// Address returns the server address string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// PushProcessor grades a push delivery.
type PushProcessor interface {
	Handle(ctx context.Context, cmd command.ProcessPushCommand) (*command.ProcessPushResult, error)
}

// TokenVerifier resolves an observer token to a user id.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// Dependencies contains all dependencies required by HTTP handlers.
type Dependencies struct {
	// Write side
	PushHandler PushProcessor

	// Read side
	GetLeaderboardHandler *query.GetLeaderboardHandler

	// Realtime
	Registry      realtime.SessionRegistry
	TokenVerifier TokenVerifier

	HealthChecker handlers.HealthChecker
	Logger        *logger.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	httpServer *http.Server
	router     *gin.Engine
	logger     *logger.Logger

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) *Server {
	s := &Server{
		config: config,
		deps:   deps,
		router: gin.New(),
		logger: deps.Logger,
	}
	if s.logger == nil {
		s.logger = logger.Default()
	}
	s.logger = s.logger.With(logger.Component("http"))
	if s.deps.HealthChecker == nil {
		s.deps.HealthChecker = handlers.NewCompositeHealthChecker(config.Version)
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:           config.Address(),
		Handler:        s.router,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) setupMiddleware() {
	s.router.Use(
		handlers.Recovery(s.logger),
		handlers.RequestID(s.logger),
		otelgin.Middleware(s.config.ServiceName),
		handlers.Logging(s.logger),
		cors.New(s.corsConfig()),
	)
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type", handlers.HeaderRequestID},
		ExposeHeaders: []string{handlers.HeaderRequestID},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range s.config.AllowedOrigins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = s.config.AllowedOrigins
	if len(cfg.AllowOrigins) == 0 {
		cfg.AllowAllOrigins = true
	}
	return cfg
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	// ─────────────────────────────────────────────────────────────────────────
	// Health & Status Endpoints
	// ─────────────────────────────────────────────────────────────────────────
	s.router.GET("/", s.handleRoot)
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ready", s.handleReady)
	s.router.GET("/live", s.handleLive)

	// ─────────────────────────────────────────────────────────────────────────
	// Webhook Endpoints
	// ─────────────────────────────────────────────────────────────────────────
	s.router.POST("/webhook/push", handlers.BodyLimit(s.config.WebhookMaxBodyBytes), s.handlePush)

	// ─────────────────────────────────────────────────────────────────────────
	// API v1
	// ─────────────────────────────────────────────────────────────────────────
	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/leaderboard/:window", s.handleGetLeaderboard)
		v1.GET("/realtime/stream", s.handleRealtimeStream)
		v1.POST("/realtime/authenticate", s.handleRealtimeAuthenticate)
	}

	s.router.NoRoute(func(c *gin.Context) {
		handlers.AbortWithError(c, http.StatusNotFound, "not_found", "route not found")
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Address()))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully shuts down the server. Open observer streams end when
// their request context is cancelled.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Uptime returns the server uptime.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}

// Address returns the server address.
func (s *Server) Address() string {
	return s.config.Address()
}
