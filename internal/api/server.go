package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"catalogsync/internal/api/handlers"
	"catalogsync/internal/api/middleware"
	"catalogsync/internal/catalog"
	"catalogsync/internal/config"
	"catalogsync/internal/logger"
	"catalogsync/internal/metrics"
	"catalogsync/internal/store"
	catalogsync "catalogsync/internal/sync"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
)

// Deps are the services the HTTP surface is built on.
type Deps struct {
	Catalog      *catalog.Service
	Hierarchy    *catalog.HierarchyBuilder
	Store        *store.Store
	Orchestrator *catalogsync.Orchestrator
}

type Server struct {
	config  *config.Config
	logger  *logger.Logger
	router  *gin.Engine
	handler http.Handler
	server  *http.Server
}

func New(cfg *config.Config, logger *logger.Logger, deps Deps) *Server {
	// Set Gin mode
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Recovery(logger))

	// Initialize handlers
	productHandler := handlers.NewProductHandler(deps.Catalog, deps.Store, logger)
	categoryHandler := handlers.NewCategoryHandler(deps.Catalog, deps.Hierarchy, deps.Store, logger)
	syncHandler := handlers.NewSyncHandler(deps.Orchestrator, deps.Store, logger)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Routes
	v1 := router.Group("/api/v1")
	{
		products := v1.Group("/products")
		{
			products.GET("", productHandler.List)
			products.GET("/stats", productHandler.Stats)
			products.GET("/:id", productHandler.Get)
			products.PATCH("/:id/ai", productHandler.SetVisibility)
		}

		categories := v1.Group("/categories")
		{
			categories.GET("", categoryHandler.List)
			categories.GET("/hierarchy", categoryHandler.Hierarchy)
		}

		sync := v1.Group("/sync")
		{
			sync.POST("", syncHandler.Trigger)
			sync.GET("/status", syncHandler.Status)
			sync.GET("/history", syncHandler.History)
		}

		admin := v1.Group("/admin")
		{
			admin.POST("/search-index/rebuild", syncHandler.RebuildSearchIndex)
		}
	}

	handler := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler(router)

	return &Server{
		config:  cfg,
		logger:  logger,
		router:  router,
		handler: handler,
	}
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%s", s.config.APIHost, s.config.APIPort)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting server on " + addr)
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the CORS-wrapped router for serverless entry points.
func (s *Server) Handler() http.Handler {
	return s.handler
}
