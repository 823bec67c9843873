package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stwalsh4118/solosafe/api/internal/config"
	"github.com/stwalsh4118/solosafe/api/internal/database"
	"github.com/stwalsh4118/solosafe/api/internal/handlers"
	"github.com/stwalsh4118/solosafe/api/internal/logger"
	"github.com/stwalsh4118/solosafe/api/internal/observability"
	"github.com/stwalsh4118/solosafe/api/internal/repository"
	"github.com/stwalsh4118/solosafe/api/internal/services"
)

const (
	shutdownTimeout   = 30 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func main() {
	// Load configuration from .env and environment variables
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Server.Env, logger.WithLevel(cfg.Server.LogLevel))
	log.Info("Starting SoloSafe API", map[string]interface{}{
		"version":     handlers.APIVersion,
		"environment": cfg.Server.Env,
		"port":        cfg.Server.Port,
	})

	ctx := context.Background()
	db, err := database.NewPostgresPool(ctx, cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", err, map[string]interface{}{
			"host": cfg.Database.Host,
			"port": cfg.Database.Port,
			"name": cfg.Database.Name,
		})
	}
	defer db.Close()

	log.Info("Database connection established", map[string]interface{}{
		"host":     cfg.Database.Host,
		"port":     cfg.Database.Port,
		"database": cfg.Database.Name,
		"pool_min": cfg.Database.PoolMin,
		"pool_max": cfg.Database.PoolMax,
	})

	if cfg.Database.AutoMigrate {
		applied, err := db.Migrate(ctx)
		if err != nil {
			log.Fatal("Failed to apply migrations", err, nil)
		}
		log.Info("Schema up to date", map[string]interface{}{
			"applied": applied,
		})
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)

	reportRepo := repository.NewReportRepository(db)
	locationRepo := repository.NewLocationRepository(db)

	router := newRouter(routerDeps{
		log:       log,
		metrics:   metrics,
		gatherer:  prometheus.DefaultGatherer,
		origins:   cfg.CORS.Origins,
		health:    handlers.NewHealthHandler(db, cfg.Server.Env),
		reports:   services.NewReportService(reportRepo, locationRepo, clockwork.NewRealClock(), metrics, log),
		analytics: services.NewAnalyticsService(reportRepo, cfg.Analytics.TopK, metrics, log),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info("Server listening", map[string]interface{}{
			"port": cfg.Server.Port,
			"addr": srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", err, nil)
		}
	}()

	// Wait for interrupt signal (SIGINT or SIGTERM)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", err, map[string]interface{}{
			"timeout": shutdownTimeout.String(),
		})
	}

	log.Info("Server exited", nil)
}
