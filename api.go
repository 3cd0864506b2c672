package handler

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"catalogsync/internal/api"
	"catalogsync/internal/app"
	"catalogsync/internal/config"
	"catalogsync/internal/logger"

	"github.com/gin-gonic/gin"
)

var (
	initOnce sync.Once
	initErr  error
	server   *api.Server
)

// initServer builds the application once per serverless instance.
func initServer() error {
	initOnce.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			initErr = err
			return
		}
		gin.SetMode(gin.ReleaseMode)
		log := logger.NewProduction(cfg.LogLevel)

		application, err := app.New(context.Background(), cfg, log)
		if err != nil {
			initErr = err
			return
		}
		server = api.New(cfg, log, api.Deps{
			Catalog:      application.Catalog,
			Hierarchy:    application.Hierarchy,
			Store:        application.Store,
			Orchestrator: application.Orchestrator,
		})
	})
	return initErr
}

// Handler is the Vercel entry point.
func Handler(w http.ResponseWriter, r *http.Request) {
	if err := initServer(); err != nil {
		http.Error(w, fmt.Sprintf("Initialization failed: %v", err), http.StatusInternalServerError)
		return
	}

	server.Handler().ServeHTTP(w, r)
}
