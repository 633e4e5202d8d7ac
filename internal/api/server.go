// Package api exposes the HTTP surface: the inbound signal endpoint, bot
// control, read endpoints over signals, groups and operations, and a
// WebSocket stream of system events.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"consensus-trading-bot/config"
	"consensus-trading-bot/internal/auth"
	"consensus-trading-bot/internal/database"
	"consensus-trading-bot/internal/events"
	"consensus-trading-bot/internal/logging"
	"consensus-trading-bot/internal/tasks"
	"consensus-trading-bot/internal/vault"
)

// Server represents the HTTP API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	repo       *database.Repository
	eventBus   *events.EventBus
	handlers   *tasks.Handlers
	jwtManager *auth.JWTManager
	vault      *vault.Client
	hub        *WSHub
	config     config.ServerConfig
	log        *logging.Logger
}

// NewServer creates a new API server
func NewServer(
	cfg config.ServerConfig,
	repo *database.Repository,
	eventBus *events.EventBus,
	handlers *tasks.Handlers,
	jwtManager *auth.JWTManager, // Can be nil if auth is disabled
	vaultClient *vault.Client, // Can be nil if vault is disabled
	log *logging.Logger,
) *Server {
	if cfg.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if cfg.AllowedOrigins == "" || cfg.AllowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = strings.Split(cfg.AllowedOrigins, ",")
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:     router,
		repo:       repo,
		eventBus:   eventBus,
		handlers:   handlers,
		jwtManager: jwtManager,
		vault:      vaultClient,
		config:     cfg,
		log:        log.WithComponent("api"),
	}

	server.hub = NewWSHub(server.log)
	go server.hub.Run()
	eventBus.SubscribeAll(server.hub.BroadcastEvent)

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ws", s.handleWebSocket)

	api := s.router.Group("/api")
	if s.jwtManager != nil {
		api.Use(auth.Middleware(s.jwtManager))
	}

	api.POST("/signals", s.handleSubmitSignal)
	api.GET("/signals", s.handleListSignals)
	api.GET("/groups", s.handleListGroups)
	api.GET("/groups/:id", s.handleGetGroup)

	api.POST("/bot/start", s.handleStartBot)
	api.POST("/bot/stop", s.handleStopBot)
	api.POST("/bot/restart", s.handleRestartBot)
	api.GET("/bot/status", s.handleBotStatus)

	api.GET("/operations", s.handleListOperations)
	api.GET("/operations/:id", s.handleGetOperation)

	api.GET("/settings", s.handleGetSettings)
	api.PUT("/settings", s.handlePutSettings)
	api.PUT("/credentials", s.handlePutCredentials)
}

// Start begins serving HTTP requests. Blocks until the listener fails or the
// server is shut down.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
	}

	s.log.Info("API server listening", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	status := "ok"
	checks := gin.H{}

	if err := s.repo.HealthCheck(c.Request.Context()); err != nil {
		status = "degraded"
		checks["database"] = err.Error()
	} else {
		checks["database"] = "ok"
	}

	if s.vault != nil {
		if err := s.vault.Health(c.Request.Context()); err != nil {
			status = "degraded"
			checks["vault"] = err.Error()
		} else {
			checks["vault"] = "ok"
		}
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "checks": checks})
}
