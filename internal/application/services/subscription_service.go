package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/AtRiskMedia/reportcache-go/internal/domain/entities/research"
	"github.com/AtRiskMedia/reportcache-go/internal/domain/repositories"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/email"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/reportcache-go/pkg/config"
	"github.com/coder/quartz"
)

// SubscriptionService manages tier assignments and tells users when their
// allowance runs out.
type SubscriptionService struct {
	subscriptions repositories.SubscriptionRepository
	catalog       config.TierCatalog
	defaultTier   string
	mailer        email.Service
	clock         quartz.Clock
	logger        *logging.ChanneledLogger
	wg            sync.WaitGroup
}

// NewSubscriptionService creates the service. mailer may be nil, in which
// case exhaustion notices are only logged.
func NewSubscriptionService(subscriptions repositories.SubscriptionRepository, catalog config.TierCatalog, defaultTier string, mailer email.Service, clock quartz.Clock, logger *logging.ChanneledLogger) *SubscriptionService {
	return &SubscriptionService{
		subscriptions: subscriptions,
		catalog:       catalog,
		defaultTier:   defaultTier,
		mailer:        mailer,
		clock:         clock,
		logger:        logger,
	}
}

// GetTier resolves the user's tier.
func (s *SubscriptionService) GetTier(ctx context.Context, userID string) (*research.Tier, error) {
	return s.subscriptions.GetTier(ctx, userID)
}

// AssignTier sets the user's tier. An empty email keeps the stored one.
func (s *SubscriptionService) AssignTier(ctx context.Context, userID, emailAddress, tier string) (*research.Tier, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	assigned, ok := s.catalog.Lookup(tier)
	if !ok {
		return nil, fmt.Errorf("unknown tier %q", tier)
	}
	if err := s.subscriptions.AssignTier(ctx, userID, emailAddress, assigned.Name, s.clock.Now()); err != nil {
		return nil, fmt.Errorf("failed to assign tier: %w", err)
	}
	s.logger.Auth().Info("Tier assigned", "userId", userID, "tier", assigned.Name)
	return assigned, nil
}

// EnsureSubscribed gives a user seen for the first time the default tier.
func (s *SubscriptionService) EnsureSubscribed(ctx context.Context, userID, emailAddress string) error {
	_, err := s.subscriptions.GetTier(ctx, userID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, research.ErrUnknownUser) {
		return fmt.Errorf("failed to look up subscription: %w", err)
	}
	_, err = s.AssignTier(ctx, userID, emailAddress, s.defaultTier)
	return err
}

// Plans lists the catalog ordered by allowance.
func (s *SubscriptionService) Plans() []research.Tier {
	return s.catalog.Sorted()
}

// QuotaExhausted sends the allowance notice in the background.
func (s *SubscriptionService) QuotaExhausted(userID string, usage *research.Usage) {
	s.logger.Quota().Info("Allowance used up", "userId", userID, "tier", usage.Tier, "limit", usage.Limit)
	if s.mailer == nil {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log := s.logger.WithUser(logging.ChannelQuota, userID)
		address, err := s.subscriptions.Email(context.Background(), userID)
		if err != nil {
			log.Error("Failed to load email for allowance notice", "error", err)
			return
		}
		if address == "" {
			return
		}
		if err := s.mailer.SendQuotaExhaustedEmail(address, usage); err != nil {
			log.Error("Failed to send allowance notice", "error", err)
			return
		}
		log.Info("Allowance notice sent")
	}()
}

// Wait blocks until pending notices have been sent.
func (s *SubscriptionService) Wait() {
	s.wg.Wait()
}
