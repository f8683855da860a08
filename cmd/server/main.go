package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"turbine-platform/internal/cache"
	"turbine-platform/internal/config"
	"turbine-platform/internal/handlers"
	"turbine-platform/internal/repository"
	"turbine-platform/internal/services"
	"turbine-platform/pkg/database"
	"turbine-platform/pkg/logging"
	"turbine-platform/pkg/metrics"
)

const version = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if !cfg.Database.Enabled {
		fmt.Fprintln(os.Stderr, "The API server requires DB_ENABLED=true")
		os.Exit(1)
	}

	logger, err := logging.NewStructuredLoggerWithOptions("turbine-api", version, cfg.LoggerOptions())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	ctx := context.Background()
	logger.Info(ctx, "[STARTUP] Starting turbine platform API server", logging.Fields{
		"version":     version,
		"server_host": cfg.Server.Host,
		"server_port": cfg.Server.Port,
		"db_host":     cfg.Database.Host,
		"db_name":     cfg.Database.Database,
		"redis":       cfg.Redis.Enabled,
	})

	metricsCollector := metrics.NewCollector("turbine_platform")

	db, err := database.NewPostgresDB(cfg.PostgresConfig(), logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	turbineRepo := repository.NewTurbineRepository(db, logger, metricsCollector, cfg.Database.BatchSize)

	// The statistics cache is optional; without it lookups go to PostgreSQL
	var statsCache services.StatisticsCache
	if cfg.Redis.Enabled {
		redisCache, err := cache.NewStatsCache(ctx, cfg.CacheOptions(), logger)
		if err != nil {
			logger.Warn(ctx, "[STARTUP_CACHE_UNAVAILABLE] Redis unavailable, serving statistics from database", logging.Fields{
				"redis_addr": cfg.Redis.Addr,
				"error":      err.Error(),
			})
		} else {
			defer redisCache.Close()
			statsCache = redisCache
		}
	}

	readingService := services.NewReadingService(turbineRepo, logger)
	statsService := services.NewStatisticsService(turbineRepo, statsCache, logger, metricsCollector)

	turbineHandler := handlers.NewTurbineHandler(readingService, statsService, logger, metricsCollector)

	router := mux.NewRouter()
	turbineHandler.RegisterRoutes(router)
	handlers.RegisterDocs(router)
	router.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info(ctx, "[SERVER_START] HTTP server listening", logging.Fields{
			"address": server.Addr,
		})

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "[SERVER_ERROR] Server failed", logging.Fields{}, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "[SHUTDOWN] Shutting down server...", logging.Fields{})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "[SHUTDOWN_ERROR] Server forced to shutdown", logging.Fields{}, err)
	}

	logger.Info(ctx, "[SHUTDOWN_COMPLETE] Server stopped", logging.Fields{})
}
