// Package container provides dependency injection for all singleton services
package container

import (
	"context"
	"fmt"

	"github.com/AtRiskMedia/reportcache-go/internal/application/services"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/caching/cleanup"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/caching/flight"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/email"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/generation"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/observability/metrics"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/persistence/database"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/persistence/research"
	"github.com/AtRiskMedia/reportcache-go/pkg/config"
	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Container holds all singleton services and infrastructure dependencies
type Container struct {
	Config *config.Config
	Clock  quartz.Clock

	// Observability
	Logger         *logging.ChanneledLogger
	LogBroadcaster *logging.LogBroadcaster
	PerfTracker    *performance.Tracker
	Registry       *prometheus.Registry
	Metrics        *metrics.Metrics

	// Persistence
	DB            *database.DB
	Content       *research.ContentRepository
	Access        *research.AccessRepository
	Quota         *research.QuotaRepository
	Leases        *research.LeaseRepository
	Subscriptions *research.SubscriptionRepository

	// Infrastructure
	Guard     *flight.Guard
	Generator generation.Generator
	EventHub  *messaging.EventHub
	Cleanup   *cleanup.Worker

	// Application services
	Coordinator         *services.Coordinator
	QuotaLedger         *services.QuotaLedger
	HistoryService      *services.HistoryService
	SubscriptionService *services.SubscriptionService
}

// NewLogger builds the channeled logger described by cfg. tap may be nil.
func NewLogger(cfg *config.Config, tap *logging.LogBroadcaster) (*logging.ChanneledLogger, error) {
	loggerConfig := logging.DefaultLoggerConfig()
	loggerConfig.OutputToFile = cfg.LogToFile
	loggerConfig.LogDirectory = cfg.LogDirectory
	loggerConfig.JSONFormat = cfg.LogJSON
	loggerConfig.IncludeSource = cfg.LogSource
	loggerConfig.DefaultLevel = cfg.SlogLevel()
	if tap != nil {
		loggerConfig.Tap = tap
	}
	return logging.NewChanneledLogger(loggerConfig)
}

// NewContainer creates and wires all singleton services on top of an open
// database. The schema must already exist.
func NewContainer(ctx context.Context, cfg *config.Config, db *database.DB, logger *logging.ChanneledLogger, broadcaster *logging.LogBroadcaster, clock quartz.Clock) (*Container, error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("failed to register go collector: %w", err)
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("failed to register process collector: %w", err)
	}
	m, err := metrics.NewMetrics(registry)
	if err != nil {
		return nil, err
	}

	generator, err := generation.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}

	var mailer email.Service
	if cfg.ResendAPIKey != "" {
		mailer, err = email.NewService(cfg)
		if err != nil {
			return nil, err
		}
	} else {
		logger.Startup().Warn("RESEND_API_KEY not set, allowance notices will only be logged")
	}

	catalog := cfg.Tiers()
	c := &Container{
		Config:         cfg,
		Clock:          clock,
		Logger:         logger,
		LogBroadcaster: broadcaster,
		PerfTracker:    performance.NewTracker(performance.DefaultTrackerConfig(), logger),
		Registry:       registry,
		Metrics:        m,
		DB:             db,
		Content:        research.NewContentRepository(db),
		Access:         research.NewAccessRepository(db),
		Quota:          research.NewQuotaRepository(db),
		Leases:         research.NewLeaseRepository(db),
		Subscriptions:  research.NewSubscriptionRepository(db, catalog),
		Generator:      generator,
		EventHub:       messaging.NewEventHub(logger),
	}

	c.Guard = flight.NewGuard(c.Leases, clock, flight.Config{
		LeaseTTL:        cfg.LeaseTTL,
		PollInterval:    cfg.LeasePollInterval,
		PollMaxInterval: cfg.LeasePollMaxInterval,
	}, logger)
	c.Cleanup = cleanup.NewWorker(c.Leases, c.Quota, clock, cleanup.NewConfig(cfg), logger)

	c.SubscriptionService = services.NewSubscriptionService(c.Subscriptions, catalog, cfg.DefaultTier, mailer, clock, logger)
	c.QuotaLedger = services.NewQuotaLedger(c.Quota, c.SubscriptionService, c.SubscriptionService, clock, m, logger)
	c.HistoryService = services.NewHistoryService(c.Access, clock, cfg.FreshnessThresholdDays)
	c.Coordinator = services.NewCoordinator(
		c.Content,
		c.Access,
		c.SubscriptionService,
		c.QuotaLedger,
		c.Guard,
		generator,
		c.EventHub,
		m,
		c.PerfTracker,
		clock,
		services.CoordinatorConfig{
			FreshnessThresholdDays: cfg.FreshnessThresholdDays,
			GenerationTimeout:      cfg.GenerationTimeout,
		},
		logger,
	)

	logger.Startup().Info("Container wired", "generator", generator.Name(), "tiers", len(catalog), "leaseOwner", c.Guard.Owner())
	return c, nil
}

// Close waits for pending notices and closes the database.
func (c *Container) Close() error {
	c.SubscriptionService.Wait()
	return c.DB.Close()
}
