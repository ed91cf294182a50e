package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/dabonzo/sslmonitor-sub001/internal/alerting"
	"github.com/dabonzo/sslmonitor-sub001/internal/api"
	"github.com/dabonzo/sslmonitor-sub001/internal/config"
	"github.com/dabonzo/sslmonitor-sub001/internal/database"
	"github.com/dabonzo/sslmonitor-sub001/internal/jobs"
	"github.com/dabonzo/sslmonitor-sub001/internal/monitor"
	"github.com/dabonzo/sslmonitor-sub001/internal/notification"
	"github.com/dabonzo/sslmonitor-sub001/internal/probe"
	"github.com/dabonzo/sslmonitor-sub001/internal/scheduler"
	"github.com/dabonzo/sslmonitor-sub001/internal/storage"
	"github.com/dabonzo/sslmonitor-sub001/internal/summary"
	"github.com/dabonzo/sslmonitor-sub001/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Run migrations before opening the pooled connection
	if err := database.RunMigrations(cfg.Database); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	// Initialize database
	db, err := database.Connect(cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("failed to get database connection", zap.Error(err))
	}
	defer sqlDB.Close()

	store := storage.NewGormStore(db)

	// Initialize WebSocket hub
	hub := websocket.NewHub(cfg.JWTSecret, cfg.CORSOrigins, logger)
	go hub.Run()

	// Probe stack and check executor
	ssrf := probe.NewSSRFProtection(cfg.AllowPrivateIPs)
	renderer := probe.NewRenderer()
	prober := probe.NewNetworkProber(ssrf, renderer, logger)
	executor := monitor.NewExecutor(store, prober, logger)

	// Notifications and alert evaluation
	dispatcher := notification.NewDispatcher(store, logger)
	alerts := alerting.NewEngine(store, store, dispatcher, hub, logger, cfg.Monitoring.AlertCooldown)

	// Check scheduler with worker pool
	checks := scheduler.New(store, store, executor, alerts, hub, logger, scheduler.Options{
		Workers:          cfg.Monitoring.Workers,
		QueueSize:        cfg.Monitoring.QueueSize,
		ScheduledTimeout: cfg.Monitoring.ScheduledTimeout,
		ManualTimeout:    cfg.Monitoring.ManualTimeout,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	checks.Start(ctx)

	// Summary aggregation and cron jobs
	aggregator := summary.NewAggregator(store, store, store, logger)
	cronJobs := jobs.NewScheduler(checks, aggregator, store, store, cfg.Retention, logger)
	cronJobs.Start(ctx)
	defer cronJobs.Stop()

	// Setup API router
	router := api.NewRouter(api.RouterDeps{
		Config:     cfg,
		DB:         db,
		Store:      store,
		Hub:        hub,
		Checks:     checks,
		Alerts:     alerts,
		Aggregator: aggregator,
		Dispatcher: dispatcher,
		SSRF:       ssrf,
		Logger:     logger,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port), zap.String("environment", cfg.Environment))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	// Stop workers after in-flight requests have drained
	cancel()
	checks.Stop()

	logger.Info("server exited")
}

func newLogger(environment string) (*zap.Logger, error) {
	if environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
