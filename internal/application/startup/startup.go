// Package startup prepares the application server
package startup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AtRiskMedia/reportcache-go/internal/application/container"
	schema "github.com/AtRiskMedia/reportcache-go/internal/infrastructure/database"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/persistence/database"
	"github.com/AtRiskMedia/reportcache-go/internal/presentation/http/server"
	"github.com/AtRiskMedia/reportcache-go/pkg/config"
	"github.com/coder/quartz"
	"github.com/gin-gonic/gin"
)

// OpenDatabase connects and makes sure the schema exists.
func OpenDatabase(ctx context.Context, cfg *config.Config, logger *logging.ChanneledLogger) (*database.DB, error) {
	start := time.Now()
	db, err := database.Open(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := schema.NewTableCreator().CreateSchema(ctx, db.DB); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	logger.LogStartupPhase("database", time.Since(start), true)
	return db, nil
}

// Initialize runs the service until SIGINT or SIGTERM.
func Initialize(cfg *config.Config) error {
	start := time.Now().UTC()

	if cfg.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancelBackgroundTasks := context.WithCancel(context.Background())
	defer cancelBackgroundTasks()

	// Step 1: Logging, with a tap feeding the sysop log stream
	broadcaster := logging.NewLogBroadcaster()
	logger, err := container.NewLogger(cfg, broadcaster)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Close()
	go broadcaster.Run(ctx)

	logger.Startup().Info("Starting report cache",
		"driver", cfg.DBDriver,
		"generator", cfg.GeneratorProvider,
		"freshnessThresholdDays", cfg.FreshnessThresholdDays)

	// Step 2: Database and schema
	db, err := OpenDatabase(ctx, cfg, logger)
	if err != nil {
		logger.LogStartupPhase("database", time.Since(start), false)
		return err
	}

	// Step 3: Dependency injection container
	containerStart := time.Now()
	appContainer, err := container.NewContainer(ctx, cfg, db, logger, broadcaster, quartz.NewReal())
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to build container: %w", err)
	}
	logger.LogStartupPhase("container", time.Since(containerStart), true)

	// Step 4: Background workers
	go appContainer.EventHub.Run(ctx)
	go appContainer.Cleanup.Start(ctx)
	logger.Startup().Info("Background workers started", "cleanupInterval", cfg.CleanupInterval)

	// Step 5: HTTP server
	httpServer := server.New(cfg, appContainer)
	serverErrors := make(chan error, 1)
	go func() {
		logger.System().Info("Starting HTTP server", "address", ":"+cfg.Port)
		serverErrors <- httpServer.Start()
	}()

	logger.Startup().Info("Application startup complete",
		"totalDuration", time.Since(start),
		"port", cfg.Port)

	// Step 6: Wait for a shutdown signal or a server failure
	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(gracefulShutdown)

	var runErr error
	select {
	case sig := <-gracefulShutdown:
		logger.Shutdown().Info("Shutdown signal received, starting graceful shutdown...", "signal", sig.String())
	case err := <-serverErrors:
		if err != nil {
			logger.System().Error("HTTP server failed", "error", err.Error())
			runErr = err
		}
	}

	shutdownStart := time.Now()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	logger.Shutdown().Info("Stopping HTTP server...")
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Shutdown().Error("Error during server shutdown", "error", err.Error())
	}

	// In-flight generations run detached from requests; give them the
	// shutdown window to land in the store.
	for appContainer.Guard.InFlight() > 0 && shutdownCtx.Err() == nil {
		time.Sleep(100 * time.Millisecond)
	}
	if n := appContainer.Guard.InFlight(); n > 0 {
		logger.Shutdown().Warn("Abandoning in-flight generations", "count", n)
	}

	cancelBackgroundTasks()

	if err := appContainer.Close(); err != nil {
		logger.Shutdown().Error("Error closing container", "error", err.Error())
		runErr = errors.Join(runErr, err)
	}

	logger.Shutdown().Info("Application shutdown complete",
		"totalUptime", time.Since(start),
		"shutdownDuration", time.Since(shutdownStart))
	return runErr
}
