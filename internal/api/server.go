package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/apperror"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/auth"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/cache"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/catalog"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/database"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/events"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/license"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/logging"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/metrics"
)

// Server represents the HTTP API server
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	store       database.Store
	config      ServerConfig
	licenses    *license.Service
	authService *auth.Service
	catalog     *catalog.Service
	metrics     *metrics.Manager
	denylist    cache.Denylist
	hub         *WSHub
	log         *logging.Logger
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Host           string
	ProductionMode bool
	AllowedOrigins []string // empty allows any origin
	MetricsPath    string   // empty disables /metrics
}

// Services bundles the collaborators the handlers call into
type Services struct {
	Store    database.Store
	EventBus *events.EventBus
	Licenses *license.Service
	Auth     *auth.Service
	Catalog  *catalog.Service
	Metrics  *metrics.Manager // optional
	Denylist cache.Denylist   // reported by /health; optional
}

// NewServer creates a new API server
func NewServer(config ServerConfig, svc Services) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logging.GinMiddleware(logging.WithComponent("http")))
	if svc.Metrics != nil {
		router.Use(svc.Metrics.GinMiddleware())
	}

	corsConfig := cors.DefaultConfig()
	if len(config.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = config.AllowedOrigins
		corsConfig.AllowCredentials = true
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", logging.RequestIDHeader}
	corsConfig.ExposeHeaders = []string{"Content-Length", "Content-Disposition", logging.RequestIDHeader}
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:      router,
		store:       svc.Store,
		config:      config,
		licenses:    svc.Licenses,
		authService: svc.Auth,
		catalog:     svc.Catalog,
		metrics:     svc.Metrics,
		denylist:    svc.Denylist,
		hub:         NewWSHub(),
		log:         logging.WithComponent("api"),
	}

	go server.hub.Run()
	if svc.EventBus != nil {
		server.hub.Subscribe(svc.EventBus)
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	if s.metrics != nil && s.config.MetricsPath != "" {
		s.router.GET(s.config.MetricsPath, gin.WrapH(s.metrics.Handler()))
	}

	requireUser := auth.Middleware(s.authService.GetJWTManager(), s.store, false)

	api := s.router.Group("/api")

	authHandlers := auth.NewHandlers(s.authService)
	authHandlers.RegisterRoutes(api.Group("/auth"), requireUser)

	activation := api.Group("/activation")
	{
		activation.POST("/check-device", s.handleCheckDevice)
		activation.GET("/status", requireUser, s.handleActivationStatus)
		activation.POST("/activate", requireUser, s.handleActivate)
	}

	// the event feed accepts ?token= because browsers cannot set headers on upgrades
	api.GET("/admin/ws", auth.Middleware(s.authService.GetJWTManager(), s.store, true), auth.RequireAdmin(), s.handleAdminEvents)

	admin := api.Group("/admin", requireUser, auth.RequireAdmin())
	{
		admin.GET("/stats", s.handleAdminStats)

		admin.GET("/users", s.handleListUsers)
		admin.GET("/users/:id", s.handleGetUser)
		admin.PUT("/users/:id", s.handleUpdateUser)
		admin.POST("/users/:id/extend", s.handleExtendLicense)
		admin.POST("/users/:id/assign-key", s.handleAssignKey)

		admin.GET("/keys", s.handleListKeys)
		admin.POST("/keys", s.handleGenerateKeys)
		admin.POST("/keys/generate", s.handleGenerateKeys)
		admin.GET("/keys/:id", s.handleGetKey)
		admin.PUT("/keys/:id", s.handleUpdateKey)
		admin.DELETE("/keys/:id", s.handleDeleteKey)
	}

	products := api.Group("/products", requireUser)
	{
		products.GET("/databases", s.handleListDatabases)
		products.POST("/databases", s.handleCreateDatabase)
		products.PUT("/databases/:id", s.handleUpdateDatabase)
		products.DELETE("/databases/:id", s.handleDeleteDatabase)

		products.GET("/databases/:id/products", s.handleListProducts)
		products.POST("/databases/:id/products", s.handleAddProducts)
		products.PUT("/databases/:id/products/:pid", s.handleUpdateProduct)
		products.DELETE("/databases/:id/products/:pid", s.handleDeleteProduct)

		products.POST("/databases/:id/import-csv", s.handleImportCSV)
		products.GET("/databases/:id/export-csv", s.handleExportCSV)
		products.GET("/databases/:id/export-xlsx", s.handleExportXLSX)
	}

	s.router.NoRoute(func(c *gin.Context) {
		apperror.Respond(c, apperror.NotFound("NOT_FOUND", "Resource not found"))
	})
}

// Handler exposes the router, mainly for httptest
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the admin event hub
func (s *Server) Hub() *WSHub {
	return s.hub
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Infof("Starting HTTP server on %s", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server")
	s.hub.Stop()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

// handleHealth reports store and cache health
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	cacheStatus := "local"
	if s.denylist != nil {
		cacheStatus = s.denylist.Status()
	}

	if err := s.store.HealthCheck(ctx); err != nil {
		logging.FromContext(c.Request.Context()).Warn("Health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": "unhealthy",
			"cache":    cacheStatus,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"database": "healthy",
		"cache":    cacheStatus,
	})
}

// pathID parses a positive integer path parameter
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id < 1 {
		apperror.Respond(c, apperror.Invalid("Invalid "+name))
		return 0, false
	}
	return id, true
}

// queryInt reads an integer query parameter, falling back to def
func queryInt(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return def
	}
	return v
}
