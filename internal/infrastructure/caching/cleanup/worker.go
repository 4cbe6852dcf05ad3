// Package cleanup provides the background worker that removes expired
// generation leases and old quota receipts.
package cleanup

import (
	"context"
	"time"

	"github.com/AtRiskMedia/reportcache-go/internal/domain/repositories"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/observability/logging"
	"github.com/coder/quartz"
)

// Worker handles background cleanup operations
type Worker struct {
	leases repositories.LeaseStore
	quota  repositories.QuotaStore
	clock  quartz.Clock
	config *Config
	logger *logging.ChanneledLogger
}

// Report summarizes one cleanup pass.
type Report struct {
	ExpiredLeases  int64
	Authorizations int64
	Duration       time.Duration
}

// NewWorker creates a new cleanup worker with injected configuration
func NewWorker(leases repositories.LeaseStore, quota repositories.QuotaStore, clock quartz.Clock, config *Config, logger *logging.ChanneledLogger) *Worker {
	return &Worker{
		leases: leases,
		quota:  quota,
		clock:  clock,
		config: config,
		logger: logger,
	}
}

// Start begins the cleanup worker routine, using the configured interval
func (w *Worker) Start(ctx context.Context) {
	ticker := w.clock.NewTicker(w.config.CleanupInterval, "cleanup")
	defer ticker.Stop()

	w.logger.System().Info("Cleanup worker started", "interval", w.config.CleanupInterval)

	for {
		select {
		case <-ctx.Done():
			w.logger.Shutdown().Info("Cleanup worker stopping")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single cleanup pass. Failures are logged and the other
// steps still run.
func (w *Worker) RunOnce(ctx context.Context) Report {
	start := time.Now()
	now := w.clock.Now()
	var report Report

	expired, err := w.leases.PurgeExpired(ctx, now)
	if err != nil {
		w.logger.Database().Error("Failed to purge expired leases", "error", err)
	} else {
		report.ExpiredLeases = expired
	}

	purged, err := w.quota.PurgeAuthorizations(ctx, now.Add(-w.config.AuthorizationRetention))
	if err != nil {
		w.logger.Database().Error("Failed to purge quota authorizations", "error", err)
	} else {
		report.Authorizations = purged
	}

	report.Duration = time.Since(start)
	if report.ExpiredLeases > 0 || report.Authorizations > 0 {
		w.logger.System().Info("Cleanup finished",
			"expiredLeases", report.ExpiredLeases, "authorizations", report.Authorizations, "duration", report.Duration)
	} else {
		w.logger.Debug().Debug("Cleanup completed, nothing to remove", "duration", report.Duration)
	}
	return report
}
